package model

import "time"

// StagingState tracks a newly observed file through its grace window.
type StagingState string

// Staging state constants. WITHDRAWN is terminal: the user deleted or
// moved the file before the grace period elapsed, and no candidate is
// ever created for it.
const (
	StagingPending   StagingState = "PENDING"
	StagingReleased  StagingState = "RELEASED"
	StagingWithdrawn StagingState = "WITHDRAWN"
)

// StagedFile is a file held in the pending set before any automated
// action is considered.
type StagedFile struct {
	DiscoveredAt time.Time    `json:"discovered_at"`
	Path         string       `json:"path"`
	State        StagingState `json:"state"`
}
