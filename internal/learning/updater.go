package learning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/filewarden/filewarden/internal/model"
	"github.com/filewarden/filewarden/internal/service"
	"github.com/filewarden/filewarden/internal/storage"
)

// Config controls decay and compaction behavior.
type Config struct {
	// HalfLife is the relevance half-life applied to stale entries.
	HalfLife time.Duration
	// RelevanceFloor is the decayed ratio below which compaction prunes
	// an entry.
	RelevanceFloor float64
}

// DefaultConfig returns the default learning configuration.
func DefaultConfig() Config {
	return Config{
		HalfLife:       90 * 24 * time.Hour,
		RelevanceFloor: 0.01,
	}
}

// Updater is the exclusive writer of the pattern store. Explicit user
// corrections and observed manual moves resolve to the same update
// primitive; the only difference is provenance, recorded for audit but
// not for weighting.
type Updater struct {
	storage service.Storage
	current *Snapshot
	cfg     Config
	mu      sync.RWMutex
	writeMu sync.Mutex
}

// NewUpdater creates an updater and loads the initial snapshot.
func NewUpdater(ctx context.Context, store service.Storage, cfg Config) (*Updater, error) {
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = DefaultConfig().HalfLife
	}
	if cfg.RelevanceFloor <= 0 {
		cfg.RelevanceFloor = DefaultConfig().RelevanceFloor
	}

	u := &Updater{
		storage: store,
		cfg:     cfg,
	}
	if err := u.refreshSnapshot(ctx); err != nil {
		return nil, fmt.Errorf("failed to load pattern snapshot: %w", err)
	}
	return u, nil
}

// Snapshot returns the current immutable snapshot.
func (u *Updater) Snapshot() *Snapshot {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.current
}

// ApplyCorrection records an explicit user correction for a candidate.
func (u *Updater) ApplyCorrection(ctx context.Context, candidate model.CandidateAction, chosenCategory string) error {
	return u.apply(ctx, model.SourceCorrection, chosenCategory, candidate.Features)
}

// ApplyObservedMove records a manual move between managed folders.
func (u *Updater) ApplyObservedMove(ctx context.Context, oldCategory, newCategory string, features model.FeatureVector) error {
	if oldCategory != "" && oldCategory != newCategory {
		// Seed the losing category so its ratio reflects the miss.
		if err := u.observe(ctx, oldCategory, features); err != nil {
			return err
		}
	}
	return u.apply(ctx, model.SourceObservedMove, newCategory, features)
}

// apply is the single update primitive shared by both learning sources:
// every feature present gains an observation against every known category
// for that feature, and a confirmation against the chosen category.
func (u *Updater) apply(ctx context.Context, source model.LearningSource, chosenCategory string, features model.FeatureVector) error {
	if chosenCategory == "" {
		return errors.New("chosen category cannot be empty")
	}
	if len(features) == 0 {
		return nil
	}

	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	now := time.Now().UTC()

	for key := range features {
		categories, err := u.knownCategories(ctx, key)
		if err != nil {
			return err
		}
		seen := false
		for _, category := range categories {
			if category == chosenCategory {
				seen = true
			}
			if err := u.bump(ctx, key, category, category == chosenCategory, now); err != nil {
				return err
			}
		}
		if !seen {
			if err := u.bump(ctx, key, chosenCategory, true, now); err != nil {
				return err
			}
		}
	}

	slog.Debug("Applied pattern update",
		"source", source,
		"category", chosenCategory,
		"features", len(features))

	return u.refreshSnapshot(ctx)
}

// observe increments observation counts only, without a confirmation.
func (u *Updater) observe(ctx context.Context, category string, features model.FeatureVector) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	now := time.Now().UTC()
	for key := range features {
		if err := u.bump(ctx, key, category, false, now); err != nil {
			return err
		}
	}
	return u.refreshSnapshot(ctx)
}

// bump applies decay and the additive update to one entry.
func (u *Updater) bump(ctx context.Context, featureKey, category string, confirmed bool, now time.Time) error {
	entry, err := u.storage.GetPatternEntry(ctx, featureKey, category)
	if err != nil {
		if !errors.Is(err, storage.ErrPatternEntryNotFound) {
			return fmt.Errorf("failed to read pattern entry: %w", err)
		}
		entry = &model.PatternEntry{
			FeatureKey: featureKey,
			Category:   category,
		}
	} else if !entry.Valid() {
		// Corrupt row: treat as absent and overwrite with clean counts.
		slog.Warn("Resetting corrupt pattern entry",
			"feature_key", featureKey,
			"category", category)
		entry = &model.PatternEntry{
			FeatureKey: featureKey,
			Category:   category,
		}
	} else {
		u.decayCounts(entry, now)
	}

	entry.ObservationCount++
	if confirmed {
		entry.ConfirmationCount++
	}
	entry.LastUpdated = now

	if err := u.storage.UpsertPatternEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to write pattern entry: %w", err)
	}
	return nil
}

// decayCounts shrinks stale counters by the half-life so old evidence
// does not dominate fresh corrections. Ratios are preserved.
func (u *Updater) decayCounts(entry *model.PatternEntry, now time.Time) {
	age := now.Sub(entry.LastUpdated)
	if age < u.cfg.HalfLife {
		return
	}
	factor := math.Pow(0.5, float64(age)/float64(u.cfg.HalfLife))
	entry.ObservationCount = int(math.Floor(float64(entry.ObservationCount) * factor))
	entry.ConfirmationCount = int(math.Floor(float64(entry.ConfirmationCount) * factor))
	if entry.ConfirmationCount > entry.ObservationCount {
		entry.ConfirmationCount = entry.ObservationCount
	}
}

// Compact prunes entries whose decayed relevance has fallen below the
// floor. It takes the writer lock, so it never runs mid-write.
func (u *Updater) Compact(ctx context.Context) (int, error) {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	entries, err := u.storage.GetPatternEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load pattern entries: %w", err)
	}

	now := time.Now().UTC()
	var pruned int
	for i := range entries {
		entry := &entries[i]
		relevance := entry.Ratio() * decayFactor(now.Sub(entry.LastUpdated), u.cfg.HalfLife)
		if entry.Valid() && relevance >= u.cfg.RelevanceFloor {
			continue
		}
		if err := u.storage.DeletePatternEntry(ctx, entry.FeatureKey, entry.Category); err != nil {
			if errors.Is(err, storage.ErrPatternEntryNotFound) {
				continue
			}
			return pruned, fmt.Errorf("failed to prune pattern entry: %w", err)
		}
		pruned++
	}

	if pruned > 0 {
		slog.Info("Compacted pattern store", "pruned", pruned)
		if err := u.refreshSnapshot(ctx); err != nil {
			return pruned, err
		}
	}
	return pruned, nil
}

// knownCategories lists the categories already observed for a feature.
func (u *Updater) knownCategories(ctx context.Context, featureKey string) ([]string, error) {
	snapshot := u.Snapshot()
	byCategory, ok := snapshot.entries[featureKey]
	if !ok {
		return nil, nil
	}
	categories := make([]string, 0, len(byCategory))
	for category := range byCategory {
		categories = append(categories, category)
	}
	return categories, nil
}

// refreshSnapshot rebuilds and publishes the immutable snapshot.
func (u *Updater) refreshSnapshot(ctx context.Context) error {
	entries, err := u.storage.GetPatternEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pattern entries: %w", err)
	}

	snapshot := newSnapshot(entries, u.cfg.HalfLife, time.Now().UTC())

	u.mu.Lock()
	u.current = snapshot
	u.mu.Unlock()

	return nil
}
