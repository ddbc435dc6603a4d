// Package identity computes tiered content fingerprints and answers
// whether two files are duplicates and how safe it is to discard a copy.
package identity

import (
	"path/filepath"
	"strings"

	"golang.org/x/sync/singleflight"
)

// Config controls partial-hash size and the path heuristics used for
// discard safety.
type Config struct {
	// MonitoredDirs are staging areas managed by the system; files there
	// are not user-authored.
	MonitoredDirs []string
	// ScratchDirs are lower-authority locations (inbox, downloads) whose
	// copies lose against copies anywhere else.
	ScratchDirs []string
	// SensitiveDirs lower the safety score of anything beneath them.
	SensitiveDirs []string
	// PartialBytes is how much of the head and tail of a file feeds the
	// tier1 digest.
	PartialBytes int64
}

// DefaultConfig returns the default identity configuration.
func DefaultConfig() Config {
	return Config{
		PartialBytes: 64 * 1024,
	}
}

// Service computes and compares content fingerprints. Hashing distinct
// files is safely parallel; concurrent calls for the same path share one
// in-flight computation.
type Service struct {
	cfg   Config
	group singleflight.Group
}

// NewService creates a new identity service.
func NewService(cfg Config) *Service {
	if cfg.PartialBytes <= 0 {
		cfg.PartialBytes = DefaultConfig().PartialBytes
	}
	return &Service{cfg: cfg}
}

// pathUnder reports whether path sits beneath any of the given roots.
func pathUnder(path string, roots []string) bool {
	cleaned := filepath.Clean(path)
	for _, root := range roots {
		root = filepath.Clean(root)
		if root == "" || root == "." {
			continue
		}
		if cleaned == root || strings.HasPrefix(cleaned, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// safetyScore derives a 0-1 discard-safety estimate from path heuristics.
// Lower means the file sits somewhere a user would not want touched.
func (s *Service) safetyScore(path string) float64 {
	switch {
	case pathUnder(path, s.cfg.SensitiveDirs):
		return 0.1
	case pathUnder(path, s.cfg.MonitoredDirs):
		return 1.0
	case pathUnder(path, s.cfg.ScratchDirs):
		return 0.9
	default:
		return 0.5
	}
}
