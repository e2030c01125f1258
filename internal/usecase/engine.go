package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"slide-master/internal/artifact"
	"slide-master/internal/deck"
	"slide-master/internal/domain"
	"slide-master/internal/render/pptx"
)

const defaultModelTimeout = 60 * time.Second

// DefaultSlideCounts are the counts offered to users.
var DefaultSlideCounts = []int{5, 7, 10, 15, 20}

type ModelClient interface {
	Complete(ctx context.Context, prompt domain.Prompt) (string, error)
}

// AccountStore is the entitlement ledger. ConditionalDecrement must be atomic
// per requester: it lowers the balance by one only when it is positive.
type AccountStore interface {
	Get(ctx context.Context, requesterID string) (domain.Account, error)
	ConditionalDecrement(ctx context.Context, requesterID string) (remaining int, ok bool, err error)
	Credit(ctx context.Context, requesterID string, amount int) (int, error)
	Ensure(ctx context.Context, requesterID string, initial int) (domain.Account, bool, error)
}

// InFlightGuard admits at most one running job per requester.
type InFlightGuard interface {
	Acquire(ctx context.Context, requesterID, token string) (bool, error)
	Release(ctx context.Context, requesterID, token string) error
}

type DeliveryChannel interface {
	Deliver(ctx context.Context, chatID string, a domain.Artifact, caption string) error
}

type AnomalyRecorder interface {
	Record(ctx context.Context, a domain.ReconciliationAnomaly) error
}

// ProgressNotifier is told once a job has been admitted.
type ProgressNotifier interface {
	Working(ctx context.Context, req domain.GenerationRequest)
}

// CaptionFunc builds the delivery caption for a finished deck.
type CaptionFunc func(lang string, d domain.Deck) string

// Encoder turns an assembled document into file bytes.
type Encoder func(deck.Document) ([]byte, error)

type httpStatusCoder interface {
	HTTPStatusCode() int
}

type Dependencies struct {
	Model     ModelClient
	Accounts  AccountStore
	InFlight  InFlightGuard
	Delivery  DeliveryChannel
	Artifacts *artifact.Manager

	// Optional.
	Anomalies AnomalyRecorder
	Progress  ProgressNotifier
	Pool      *Pool
	Encoder   Encoder
	Logger    *slog.Logger
}

type EngineConfig struct {
	SlideCounts  []int
	ModelTimeout time.Duration
	Brand        string
	Caption      CaptionFunc
}

// Outcome describes a delivered deck. Anomaly is set when the charge could not
// be settled after delivery.
type Outcome struct {
	JobID     string
	Stage     Stage
	Slides    int
	Dropped   int
	Balance   int
	Unlimited bool
	Anomaly   *domain.ReconciliationAnomaly
}

// Engine runs generation jobs from admission to settlement.
type Engine struct {
	model     ModelClient
	accounts  AccountStore
	inflight  InFlightGuard
	delivery  DeliveryChannel
	artifacts *artifact.Manager
	anomalies AnomalyRecorder
	progress  ProgressNotifier
	pool      *Pool
	encode    Encoder
	log       *slog.Logger
	assembler *deck.Assembler

	counts       []int
	modelTimeout time.Duration
	caption      CaptionFunc
	now          func() time.Time
	newID        func() string
}

func NewEngine(deps Dependencies, cfg EngineConfig) (*Engine, error) {
	if deps.Model == nil {
		return nil, errors.New("usecase: model client must not be nil")
	}
	if deps.Accounts == nil {
		return nil, errors.New("usecase: account store must not be nil")
	}
	if deps.InFlight == nil {
		return nil, errors.New("usecase: in-flight guard must not be nil")
	}
	if deps.Delivery == nil {
		return nil, errors.New("usecase: delivery channel must not be nil")
	}
	if deps.Artifacts == nil {
		return nil, errors.New("usecase: artifact manager must not be nil")
	}

	e := &Engine{
		model:        deps.Model,
		accounts:     deps.Accounts,
		inflight:     deps.InFlight,
		delivery:     deps.Delivery,
		artifacts:    deps.Artifacts,
		anomalies:    deps.Anomalies,
		progress:     deps.Progress,
		pool:         deps.Pool,
		encode:       deps.Encoder,
		log:          deps.Logger,
		assembler:    deck.NewAssembler(cfg.Brand),
		counts:       slices.Clone(cfg.SlideCounts),
		modelTimeout: cfg.ModelTimeout,
		caption:      cfg.Caption,
		now:          time.Now,
		newID:        artifact.NewID,
	}
	if e.pool == nil {
		e.pool = NewPool(0)
	}
	if e.encode == nil {
		e.encode = pptx.Encode
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if len(e.counts) == 0 {
		e.counts = slices.Clone(DefaultSlideCounts)
	}
	if e.modelTimeout <= 0 {
		e.modelTimeout = defaultModelTimeout
	}
	if e.caption == nil {
		e.caption = func(_ string, d domain.Deck) string { return d.Topic }
	}
	return e, nil
}

// SlideCounts returns the offered slide counts in ascending order.
func (e *Engine) SlideCounts() []int {
	out := slices.Clone(e.counts)
	slices.Sort(out)
	return out
}

// job carries the mutable state of one Generate call.
type job struct {
	id    string
	req   domain.GenerationRequest
	stage Stage
	log   *slog.Logger
}

func (j *job) advance(s Stage) {
	j.stage = s
	j.log.Debug("job stage", "stage", s.String())
}

func (j *job) fail(e *Error) error {
	e.Stage = j.stage
	j.stage = StageFailed
	j.log.Warn("job failed", "code", e.Code, "reason", e.Reason, "stage", e.Stage.String(), "err", e.Err)
	return e
}

// Generate produces, delivers and charges for one deck. The requester is
// charged only after delivery succeeded; every failure leaves the balance and
// the artifact directory as they were.
func (e *Engine) Generate(ctx context.Context, req domain.GenerationRequest) (Outcome, error) {
	req, err := e.normalize(req)
	if err != nil {
		return Outcome{Stage: StageFailed}, err
	}

	j := &job{id: e.newID(), req: req}
	j.log = e.log.With("job_id", j.id, "requester_id", req.RequesterID)

	acquired, err := e.inflight.Acquire(ctx, req.RequesterID, j.id)
	if err != nil {
		return j.failed(newError(ErrorInternal, "inflight_acquire_error", err))
	}
	if !acquired {
		return j.failed(newError(ErrorInProgress, "job_in_progress", nil))
	}
	defer func() {
		if err := e.inflight.Release(context.WithoutCancel(ctx), req.RequesterID, j.id); err != nil {
			j.log.Error("failed to release in-flight guard", "err", err)
		}
	}()

	account, err := e.accounts.Get(ctx, req.RequesterID)
	if err != nil {
		return j.failed(newError(ErrorInternal, "account_read_error", err))
	}
	if !account.CanGenerate() {
		return j.failed(newError(ErrorInsufficientCredit, "no_balance", nil))
	}
	j.advance(StageAdmitted)
	if e.progress != nil {
		e.progress.Working(ctx, req)
	}

	j.advance(StageAwaitingModel)
	raw, merr := e.complete(ctx, req)
	if merr != nil {
		return j.failed(merr)
	}

	var (
		handle *artifact.Handle
		built  domain.Deck
		plans  []deck.Plan
	)
	err = e.pool.Do(ctx, func() error {
		var werr *Error
		handle, built, plans, werr = e.build(j, raw)
		if werr != nil {
			return werr
		}
		return nil
	})
	if handle != nil {
		defer func() {
			if err := handle.Release(); err != nil {
				j.log.Error("failed to release artifact", "path", handle.Path, "err", err)
			}
		}()
	}
	if err != nil {
		return j.failed(workerError(err))
	}

	artifactRef := domain.Artifact{
		Path:        handle.Path,
		Name:        handle.Name,
		ContentType: pptx.ContentType,
		Size:        handle.Size,
	}
	if err := e.delivery.Deliver(ctx, req.ChatID, artifactRef, e.caption(req.Language, built)); err != nil {
		return j.failed(newError(ErrorDelivery, "send_error", err))
	}
	j.advance(StageDelivered)

	out := j.outcome()
	out.Slides = len(built.Slides)
	for _, p := range plans {
		out.Dropped += p.Dropped
	}
	out.Unlimited = account.Unlimited
	out.Balance = account.Balance

	if !account.Unlimited {
		remaining, ok, err := e.accounts.ConditionalDecrement(context.WithoutCancel(ctx), req.RequesterID)
		if err != nil || !ok {
			out.Anomaly = e.reconcile(ctx, j, remaining, err)
			out.Balance = out.Anomaly.Balance
		} else {
			out.Balance = remaining
		}
	}
	j.advance(StageSettled)
	out.Stage = j.stage
	j.log.Info("deck delivered", "slides", out.Slides, "dropped_items", out.Dropped, "balance", out.Balance)
	return out, nil
}

func (j *job) failed(e *Error) (Outcome, error) {
	err := j.fail(e)
	return j.outcome(), err
}

func (j *job) outcome() Outcome {
	return Outcome{JobID: j.id, Stage: j.stage}
}

func (e *Engine) normalize(req domain.GenerationRequest) (domain.GenerationRequest, error) {
	req.RequesterID = strings.TrimSpace(req.RequesterID)
	if req.RequesterID == "" {
		return req, newError(ErrorInvalidInput, "empty_requester", nil)
	}
	req.ChatID = strings.TrimSpace(req.ChatID)
	if req.ChatID == "" {
		req.ChatID = req.RequesterID
	}
	req.Topic = normalizeTopic(req.Topic)
	if req.Topic == "" {
		return req, newError(ErrorInvalidInput, "empty_topic", nil)
	}
	if !slices.Contains(e.counts, req.SlideCount) {
		return req, newError(ErrorInvalidInput, "unsupported_slide_count", nil)
	}
	req.Language = NormalizeLanguage(req.Language)
	return req, nil
}

func (e *Engine) complete(ctx context.Context, req domain.GenerationRequest) (string, *Error) {
	mctx, cancel := context.WithTimeout(ctx, e.modelTimeout)
	defer cancel()

	raw, err := e.model.Complete(mctx, buildPrompt(req.Topic, req.SlideCount, req.Language))
	if err == nil {
		return raw, nil
	}
	switch {
	case ctx.Err() != nil:
		return "", newError(ErrorInternal, "canceled", err)
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(mctx.Err(), context.DeadlineExceeded):
		return "", newError(ErrorUpstream, "model_timeout", err)
	}
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return "", newError(ErrorUpstream, "model_rate_limited", err)
	}
	return "", newError(ErrorUpstream, "model_error", err)
}

// build runs the CPU and file bound part of a job on a pool worker.
func (e *Engine) build(j *job, raw string) (*artifact.Handle, domain.Deck, []deck.Plan, *Error) {
	j.advance(StageSanitizing)
	tree, err := deck.Sanitize(raw)
	if err != nil {
		return nil, domain.Deck{}, nil, malformedError(err)
	}
	built, err := deck.Decode(tree, j.req.Topic, j.req.SlideCount)
	if err != nil {
		return nil, domain.Deck{}, nil, malformedError(err)
	}

	plans := e.assembler.Plan(built)
	j.advance(StageLayoutResolved)

	doc := e.assembler.AssemblePlanned(built, plans)
	data, err := e.encode(doc)
	if err != nil {
		return nil, built, plans, newError(ErrorRender, "encode_error", err)
	}
	j.advance(StageAssembled)

	handle, err := e.artifacts.Persist(j.id, j.req.RequesterID, data)
	if err != nil {
		return nil, built, plans, newError(ErrorInternal, "artifact_write_error", err)
	}
	j.advance(StagePersisted)
	return handle, built, plans, nil
}

func (e *Engine) reconcile(ctx context.Context, j *job, remaining int, cause error) *domain.ReconciliationAnomaly {
	reason := "balance_exhausted"
	if cause != nil {
		reason = "decrement_error"
	}
	a := &domain.ReconciliationAnomaly{
		JobID:       j.id,
		RequesterID: j.req.RequesterID,
		Balance:     remaining,
		Reason:      reason,
		At:          e.now().UTC(),
	}
	if acct, err := e.accounts.Get(context.WithoutCancel(ctx), j.req.RequesterID); err == nil {
		a.Balance = acct.Balance
	}
	j.log.Warn("settlement failed after delivery", "reason", reason, "balance", a.Balance, "err", cause)
	if e.anomalies != nil {
		if err := e.anomalies.Record(context.WithoutCancel(ctx), *a); err != nil {
			j.log.Error("failed to record reconciliation anomaly", "err", err)
		}
	}
	return a
}

func malformedError(err error) *Error {
	reason := "malformed_response"
	var me *deck.MalformedError
	if errors.As(err, &me) {
		reason = me.Reason
	}
	return newError(ErrorMalformedResponse, reason, err)
}

func workerError(err error) *Error {
	var ue *Error
	if errors.As(err, &ue) {
		return ue
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		return newError(ErrorRender, "worker_panic", err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return newError(ErrorInternal, "canceled", err)
	}
	return newError(ErrorInternal, "worker_error", err)
}

func upstreamStatusCode(err error) (int, bool) {
	var sc httpStatusCoder
	if !errors.As(err, &sc) {
		return 0, false
	}
	return sc.HTTPStatusCode(), true
}
