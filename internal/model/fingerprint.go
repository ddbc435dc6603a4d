package model

// ContentFingerprint is a tiered identity check for a file. Tier1 covers
// size plus a partial hash and is cheap to compute; Tier2 is a full
// cryptographic hash and is only computed when tier1 collides.
type ContentFingerprint struct {
	Path        string  `json:"path"`
	Tier1Digest string  `json:"tier1_digest"`
	Tier2Digest string  `json:"tier2_digest,omitempty"`
	SizeBytes   int64   `json:"size_bytes"`
	SafetyScore float64 `json:"safety_score"`
}

// HasTier2 reports whether the full-content digest has been computed.
func (fp *ContentFingerprint) HasTier2() bool {
	return fp.Tier2Digest != ""
}

// DiscardChoice identifies which of a compared pair may be discarded.
type DiscardChoice string

// Discard choice constants.
const (
	DiscardA       DiscardChoice = "A"
	DiscardB       DiscardChoice = "B"
	DiscardNeither DiscardChoice = "NEITHER"
)

// CompareResult is the outcome of comparing two fingerprints.
// Identical is true only when size, tier1 and tier2 all match.
type CompareResult struct {
	SafeToDiscard DiscardChoice `json:"safe_to_discard"`
	Identical     bool          `json:"identical"`
}
