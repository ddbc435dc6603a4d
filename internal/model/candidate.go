// Package model defines the core domain models used throughout the application.
package model

import (
	"time"

	"github.com/google/uuid"
)

// FeatureVector maps named signals to normalized scores in [0,1].
// Signals come from external classifier collaborators; the engine
// only trusts names on its allow-list.
type FeatureVector map[string]float64

// CandidateAction is an unexecuted file action proposal. It is immutable
// once created and consumed exactly once by the engine.
type CandidateAction struct {
	DiscoveredAt time.Time     `json:"discovered_at"`
	Features     FeatureVector `json:"feature_vector"`
	ID           string        `json:"id"`
	SourcePath   string        `json:"source_path"`
	ProposedPath string        `json:"proposed_path"`
	Category     string        `json:"category"`
	SourceSystem string        `json:"source_system"`
}

// NewCandidateAction creates a candidate with a fresh ID and discovery time.
func NewCandidateAction(sourcePath, proposedPath, category, sourceSystem string, features FeatureVector) CandidateAction {
	return CandidateAction{
		ID:           uuid.NewString(),
		SourcePath:   sourcePath,
		ProposedPath: proposedPath,
		Category:     category,
		SourceSystem: sourceSystem,
		Features:     features,
		DiscoveredAt: time.Now(),
	}
}
