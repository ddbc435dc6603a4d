// Package learning consumes correction and observed-move events and turns
// them into pattern store mutations, publishing immutable snapshots for
// the confidence engine.
package learning

import (
	"log/slog"
	"math"
	"time"

	"github.com/filewarden/filewarden/internal/model"
)

// Snapshot is an immutable view of the pattern store taken at a point in
// time. Readers holding a snapshot never observe a partial update; a new
// snapshot is published after every write.
type Snapshot struct {
	takenAt  time.Time
	entries  map[string]map[string]model.PatternEntry
	halfLife time.Duration
}

// newSnapshot builds a snapshot from raw entries, skipping corrupt rows.
// A corrupt entry contributes score 0 rather than failing scoring.
func newSnapshot(entries []model.PatternEntry, halfLife time.Duration, takenAt time.Time) *Snapshot {
	indexed := make(map[string]map[string]model.PatternEntry)
	for _, entry := range entries {
		if !entry.Valid() {
			slog.Warn("Skipping corrupt pattern entry",
				"feature_key", entry.FeatureKey,
				"category", entry.Category,
				"observation_count", entry.ObservationCount,
				"confirmation_count", entry.ConfirmationCount)
			continue
		}
		byCategory, ok := indexed[entry.FeatureKey]
		if !ok {
			byCategory = make(map[string]model.PatternEntry)
			indexed[entry.FeatureKey] = byCategory
		}
		byCategory[entry.Category] = entry
	}

	return &Snapshot{
		entries:  indexed,
		halfLife: halfLife,
		takenAt:  takenAt,
	}
}

// TakenAt returns the snapshot creation time.
func (s *Snapshot) TakenAt() time.Time {
	return s.takenAt
}

// Len returns the number of valid entries in the snapshot.
func (s *Snapshot) Len() int {
	var n int
	for _, byCategory := range s.entries {
		n += len(byCategory)
	}
	return n
}

// Confidence returns the decayed confirmation ratio for one
// (feature, category) pair, or 0 when unknown.
func (s *Snapshot) Confidence(featureKey, category string) float64 {
	byCategory, ok := s.entries[featureKey]
	if !ok {
		return 0
	}
	entry, ok := byCategory[category]
	if !ok {
		return 0
	}
	return entry.Ratio() * decayFactor(s.takenAt.Sub(entry.LastUpdated), s.halfLife)
}

// CategoryScores aggregates decayed scores per category over the given
// feature keys.
func (s *Snapshot) CategoryScores(features model.FeatureVector) map[string]float64 {
	totals := make(map[string]float64)
	if len(features) == 0 {
		return totals
	}

	for key := range features {
		byCategory, ok := s.entries[key]
		if !ok {
			continue
		}
		for category := range byCategory {
			totals[category] += s.Confidence(key, category)
		}
	}

	for category := range totals {
		totals[category] /= float64(len(features))
	}
	return totals
}

// decayFactor halves relevance every halfLife. Entries never go negative,
// they only decay toward zero relevance.
func decayFactor(age, halfLife time.Duration) float64 {
	if halfLife <= 0 || age <= 0 {
		return 1
	}
	return math.Pow(0.5, float64(age)/float64(halfLife))
}
