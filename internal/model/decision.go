package model

// DecisionTier routes a scored candidate.
type DecisionTier string

// Decision tier constants.
const (
	TierAuto   DecisionTier = "AUTO"
	TierReview DecisionTier = "REVIEW"
	TierReject DecisionTier = "REJECT"
)

// SignalContribution records how much a single signal added to the final
// confidence, for user-facing transparency.
type SignalContribution struct {
	Signal       string  `json:"signal"`
	Score        float64 `json:"score"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// ScoredDecision is the result of evaluating a candidate against a
// pattern snapshot. It is created fresh per evaluation and never mutated;
// re-evaluation produces a new ScoredDecision.
type ScoredDecision struct {
	Candidate    CandidateAction      `json:"candidate"`
	Tier         DecisionTier         `json:"tier"`
	Explanations []SignalContribution `json:"explanations"`
	Confidence   float64              `json:"confidence"`
}
