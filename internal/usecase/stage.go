package usecase

// Stage is a state of one generation job.
type Stage int

const (
	StageIdle Stage = iota
	StageAdmitted
	StageAwaitingModel
	StageSanitizing
	StageLayoutResolved
	StageAssembled
	StagePersisted
	StageDelivered
	StageSettled
	StageFailed
)

var stageNames = [...]string{
	StageIdle:           "idle",
	StageAdmitted:       "admitted",
	StageAwaitingModel:  "awaiting_model_response",
	StageSanitizing:     "sanitizing",
	StageLayoutResolved: "layout_resolved",
	StageAssembled:      "assembled",
	StagePersisted:      "persisted",
	StageDelivered:      "delivered",
	StageSettled:        "settled",
	StageFailed:         "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageSettled || s == StageFailed
}
