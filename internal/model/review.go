package model

import "time"

// ReviewItem is a scored decision parked in the review queue awaiting an
// explicit user confirmation.
type ReviewItem struct {
	QueuedAt     time.Time            `json:"queued_at"`
	Candidate    CandidateAction      `json:"candidate"`
	Explanations []SignalContribution `json:"explanations"`
	ID           int64                `json:"id"`
	Confidence   float64              `json:"confidence"`
	Resolved     bool                 `json:"resolved"`
}
