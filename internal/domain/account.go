package domain

import "time"

// Account is the entitlement state of one requester.
type Account struct {
	RequesterID string
	Balance     int
	Unlimited   bool
}

// CanGenerate reports whether admission would pass for this snapshot.
func (a Account) CanGenerate() bool {
	return a.Unlimited || a.Balance > 0
}

// ReconciliationAnomaly records a delivered deck whose charge could not be settled.
type ReconciliationAnomaly struct {
	JobID       string
	RequesterID string
	Balance     int
	Reason      string
	At          time.Time
}
