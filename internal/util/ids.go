package util

import (
	"fmt"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	nanoidLength  = 21
	nanoidAlpha   = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	versionLayout = "20060102T150405Z"
)

// NewRunID returns a fresh nanoid identifying one rebuild run or curation
// submission.
func NewRunID() (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("nanoid: %w", err)
	}
	return id, nil
}

// SnapshotVersion names a snapshot directory. Versions sort lexically in
// creation order; the run id keeps two rebuilds in the same second apart.
func SnapshotVersion(at time.Time, runID string) string {
	return at.UTC().Format(versionLayout) + "-" + runID
}

// ParseSnapshotVersion splits a version into its creation time and run id.
func ParseSnapshotVersion(version string) (time.Time, string, error) {
	stamp, rest, ok := strings.Cut(version, "-")
	if !ok {
		return time.Time{}, "", fmt.Errorf("snapshot version %q has no run id", version)
	}
	at, err := time.Parse(versionLayout, stamp)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("snapshot version %q: %w", version, err)
	}
	id := extractNanoid(rest)
	if id == "" {
		return time.Time{}, "", fmt.Errorf("snapshot version %q has an invalid run id", version)
	}
	return at, id, nil
}

func isNanoid(s string) bool {
	if len(s) != nanoidLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(nanoidAlpha, rune(s[i])) {
			return false
		}
	}
	return true
}

// extractNanoid returns the trailing nanoid of s, tolerating prefixes such
// as "LEHR," or "DOC:" that callers prepend to ids.
func extractNanoid(s string) string {
	s = strings.TrimSpace(s)
	if isNanoid(s) {
		return s
	}
	if i := strings.LastIndexAny(s, ",;|: "); i >= 0 {
		if tail := s[i+1:]; isNanoid(tail) {
			return tail
		}
	}
	return ""
}
