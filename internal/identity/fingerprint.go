package identity

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/filewarden/filewarden/internal/model"
)

// Identify computes the tier1 fingerprint for a file: size plus a hash of
// the first and last PartialBytes. The full-content tier2 digest is left
// empty; Deepen computes it on demand. Concurrent Identify calls on the
// same path share a single read.
func (s *Service) Identify(ctx context.Context, path string) (*model.ContentFingerprint, error) {
	result, err, _ := s.group.Do("tier1:"+path, func() (any, error) {
		return s.identify(ctx, path)
	})
	if err != nil {
		return nil, err
	}

	// Copy so callers never share the fanned-out value.
	fp := *(result.(*model.ContentFingerprint))
	return &fp, nil
}

func (s *Service) identify(ctx context.Context, path string) (*model.ContentFingerprint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("cannot fingerprint directory %s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	size := info.Size()
	hasher := sha256.New()

	var sizeBytes [8]byte
	binary.BigEndian.PutUint64(sizeBytes[:], uint64(size))
	_, _ = hasher.Write(sizeBytes[:])

	head := s.cfg.PartialBytes
	if head > size {
		head = size
	}
	if _, err := io.CopyN(hasher, f, head); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read head of %s: %w", path, err)
	}

	// Tail. When the trailing window overlaps the head, hash only the
	// remainder past the head so every byte of a small file still feeds
	// the digest exactly once.
	tailStart := size - s.cfg.PartialBytes
	if tailStart < head {
		tailStart = head
	}
	if tailStart < size {
		if _, err := f.Seek(tailStart, io.SeekStart); err != nil {
			return nil, fmt.Errorf("failed to seek in %s: %w", path, err)
		}
		if _, err := io.Copy(hasher, f); err != nil {
			return nil, fmt.Errorf("failed to read tail of %s: %w", path, err)
		}
	}

	return &model.ContentFingerprint{
		Path:        path,
		SizeBytes:   size,
		Tier1Digest: hex.EncodeToString(hasher.Sum(nil)),
		SafetyScore: s.safetyScore(path),
	}, nil
}

// Deepen computes the tier2 full-content digest for a fingerprint in
// place. It is a no-op if tier2 is already present.
func (s *Service) Deepen(ctx context.Context, fp *model.ContentFingerprint) error {
	if fp.HasTier2() {
		return nil
	}

	result, err, _ := s.group.Do("tier2:"+fp.Path, func() (any, error) {
		return s.fullDigest(ctx, fp.Path)
	})
	if err != nil {
		return err
	}

	fp.Tier2Digest = result.(string)
	return nil
}

func (s *Service) fullDigest(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}
