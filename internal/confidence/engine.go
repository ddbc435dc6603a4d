// Package confidence implements the pure scoring engine that turns a
// candidate action and a pattern snapshot into a routed decision.
package confidence

import (
	"sort"
	"strings"

	"github.com/filewarden/filewarden/internal/model"
)

// SignalHistoricalFreq is the snapshot-derived signal name. When the
// feature vector does not carry it explicitly, the engine computes it
// from the pattern snapshot.
const SignalHistoricalFreq = "historical_category_freq"

// PatternSnapshot is a read-only view of learned pattern statistics.
// Implementations must be immutable: a long-running score computation
// never observes a partial update.
type PatternSnapshot interface {
	// Confidence returns the decayed confirmation ratio for one
	// (feature, category) pair, or 0 when the pair is unknown or the
	// stored entry is corrupt.
	Confidence(featureKey, category string) float64
	// CategoryScores returns the decayed per-category score aggregated
	// over the given feature keys.
	CategoryScores(features model.FeatureVector) map[string]float64
}

// Config holds scoring weights and routing thresholds. Thresholds are
// configuration, not hardcoded: AutoThreshold 1.01 yields a never-auto
// mode, ReviewThreshold 0 a never-ask mode.
type Config struct {
	// Weights is the engine-level allow-list: feature keys whose signal
	// name is absent from it are ignored.
	Weights         map[string]float64
	AutoThreshold   float64
	ReviewThreshold float64
	TieMargin       float64
}

// DefaultConfig returns the default scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights: map[string]float64{
			"keyword_match":       0.3,
			"semantic_similarity": 0.2,
			"filename_heuristic":  0.2,
			SignalHistoricalFreq:  0.3,
		},
		AutoThreshold:   0.85,
		ReviewThreshold: 0.40,
		TieMargin:       0.02,
	}
}

// Score evaluates a candidate against a pattern snapshot. It is
// deterministic and side-effect-free: no log writes, no pattern
// mutation, safe for dry-run use. Missing signals score 0; they degrade
// confidence rather than aborting.
func Score(candidate model.CandidateAction, snapshot PatternSnapshot, cfg Config) model.ScoredDecision {
	signals := make([]string, 0, len(cfg.Weights))
	for signal := range cfg.Weights {
		signals = append(signals, signal)
	}
	sort.Strings(signals)

	var confidence float64
	explanations := make([]model.SignalContribution, 0, len(signals))

	for _, signal := range signals {
		weight := cfg.Weights[signal]
		score := clip(signalScore(signal, candidate, snapshot))
		contribution := score * weight
		confidence += contribution

		explanations = append(explanations, model.SignalContribution{
			Signal:       signal,
			Score:        score,
			Weight:       weight,
			Contribution: contribution,
		})
	}

	confidence = clip(confidence)

	sort.SliceStable(explanations, func(i, j int) bool {
		return explanations[i].Contribution > explanations[j].Contribution
	})

	tier := route(confidence, cfg)
	if tier == model.TierAuto && nearEqualAlternative(candidate, snapshot, cfg) {
		// Never auto-pick between near-equal categories.
		tier = model.TierReview
	}

	return model.ScoredDecision{
		Candidate:    candidate,
		Confidence:   confidence,
		Tier:         tier,
		Explanations: explanations,
	}
}

// UnknownSignals returns the feature keys whose signal name is not on
// the allow-list. Callers log them; scoring ignores them.
func UnknownSignals(features model.FeatureVector, cfg Config) []string {
	var unknown []string
	for key := range features {
		if _, ok := cfg.Weights[signalName(key)]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// signalScore resolves one allow-listed signal for a candidate. A feature
// key may be a bare signal name or namespaced ("keyword:contract" feeds
// the "keyword" signal); namespaced keys contribute their maximum.
func signalScore(signal string, candidate model.CandidateAction, snapshot PatternSnapshot) float64 {
	if value, ok := candidate.Features[signal]; ok {
		return value
	}

	var best float64
	var found bool
	for key, value := range candidate.Features {
		if signalName(key) == signal {
			found = true
			if value > best {
				best = value
			}
		}
	}
	if found {
		return best
	}

	if signal == SignalHistoricalFreq && snapshot != nil {
		return historicalFreq(candidate, snapshot)
	}

	return 0
}

// historicalFreq averages the snapshot confidence of the candidate's
// feature keys against its proposed category.
func historicalFreq(candidate model.CandidateAction, snapshot PatternSnapshot) float64 {
	if candidate.Category == "" || len(candidate.Features) == 0 {
		return 0
	}

	var total float64
	var count int
	for key := range candidate.Features {
		total += snapshot.Confidence(key, candidate.Category)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// nearEqualAlternative reports whether another category scores within the
// tie margin of the candidate's category in the pattern snapshot.
func nearEqualAlternative(candidate model.CandidateAction, snapshot PatternSnapshot, cfg Config) bool {
	if snapshot == nil || candidate.Category == "" {
		return false
	}

	scores := snapshot.CategoryScores(candidate.Features)
	chosen, ok := scores[candidate.Category]
	if !ok {
		return false
	}

	for category, score := range scores {
		if category == candidate.Category {
			continue
		}
		diff := chosen - score
		if diff < 0 {
			diff = -diff
		}
		if diff <= cfg.TieMargin {
			return true
		}
	}
	return false
}

// route applies the tier thresholds. The AUTO bound is inclusive.
func route(confidence float64, cfg Config) model.DecisionTier {
	switch {
	case confidence >= cfg.AutoThreshold:
		return model.TierAuto
	case confidence >= cfg.ReviewThreshold:
		return model.TierReview
	default:
		return model.TierReject
	}
}

// signalName strips a namespaced feature key down to its signal prefix.
func signalName(key string) string {
	if idx := strings.IndexByte(key, ':'); idx > 0 {
		return key[:idx]
	}
	return key
}

func clip(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
