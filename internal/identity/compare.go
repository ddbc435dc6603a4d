package identity

import (
	"context"

	"github.com/filewarden/filewarden/internal/model"
)

// minSafetyForDiscard gates auto-deletion: below this, an identical pair
// is only flagged.
const minSafetyForDiscard = 0.8

// Compare decides whether two fingerprints identify the same content and
// which copy, if any, may be discarded. Two files are identical only when
// size, tier1 and tier2 all match; tier1 collisions are expected, so the
// tier2 digest is computed here before any identical verdict.
func (s *Service) Compare(ctx context.Context, a, b *model.ContentFingerprint) (model.CompareResult, error) {
	neither := model.CompareResult{Identical: false, SafeToDiscard: model.DiscardNeither}

	if a.SizeBytes != b.SizeBytes || a.Tier1Digest != b.Tier1Digest {
		return neither, nil
	}

	// Tier1 collided: mandatory full-content check.
	if err := s.Deepen(ctx, a); err != nil {
		return neither, err
	}
	if err := s.Deepen(ctx, b); err != nil {
		return neither, err
	}
	if a.Tier2Digest != b.Tier2Digest {
		return neither, nil
	}

	return model.CompareResult{
		Identical:     true,
		SafeToDiscard: s.discardChoice(a, b),
	}, nil
}

// discardChoice applies the path heuristics. Neither is the default: a
// copy is discardable only when both files sit in monitored staging
// areas, or one copy sits in a lower-authority scratch location, and
// never when either sits somewhere sensitive.
func (s *Service) discardChoice(a, b *model.ContentFingerprint) model.DiscardChoice {
	if a.SafetyScore < minSafetyForDiscard || b.SafetyScore < minSafetyForDiscard {
		return model.DiscardNeither
	}

	aScratch := pathUnder(a.Path, s.cfg.ScratchDirs)
	bScratch := pathUnder(b.Path, s.cfg.ScratchDirs)
	aMonitored := pathUnder(a.Path, s.cfg.MonitoredDirs)
	bMonitored := pathUnder(b.Path, s.cfg.MonitoredDirs)

	switch {
	case aScratch && !bScratch:
		return model.DiscardA
	case bScratch && !aScratch:
		return model.DiscardB
	case aMonitored && bMonitored:
		// Both in managed staging: keep the earlier copy.
		return model.DiscardB
	default:
		return model.DiscardNeither
	}
}
