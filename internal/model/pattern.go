package model

import "time"

// PatternEntry holds learned statistics for one (feature, category) pair.
// Entries are updated additively and never deleted, only decayed toward
// zero relevance; compaction may prune entries below a relevance floor.
type PatternEntry struct {
	LastUpdated       time.Time `json:"last_updated"`
	FeatureKey        string    `json:"feature_key"`
	Category          string    `json:"category"`
	ObservationCount  int       `json:"observation_count"`
	ConfirmationCount int       `json:"confirmation_count"`
}

// Valid reports whether the entry's counters are internally consistent.
// Corrupt entries are skipped at snapshot build time rather than failing
// a scoring pass.
func (e *PatternEntry) Valid() bool {
	if e.FeatureKey == "" || e.Category == "" {
		return false
	}
	if e.ObservationCount < 0 || e.ConfirmationCount < 0 {
		return false
	}
	return e.ConfirmationCount <= e.ObservationCount
}

// Ratio returns the raw confirmation ratio before decay.
func (e *PatternEntry) Ratio() float64 {
	if e.ObservationCount < 1 {
		return float64(e.ConfirmationCount)
	}
	return float64(e.ConfirmationCount) / float64(e.ObservationCount)
}

// LearningSource identifies the provenance of a pattern update. Both
// sources share one update rule; provenance is recorded for audit only.
type LearningSource string

// Learning source constants.
const (
	SourceCorrection   LearningSource = "USER_CORRECTION"
	SourceObservedMove LearningSource = "OBSERVED_MOVE"
)
