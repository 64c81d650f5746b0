package detector

import (
	"context"
	"os"
	"strings"

	"loadsentry/pkg/logger"
)

// HealthSource reports whether the node under test has been out of sync
// beyond the allowed duration. The signal is computed by an external
// collaborator; the engine only consumes it.
type HealthSource interface {
	Unhealthy(ctx context.Context) bool
}

// FlagFileSource adapts the collaborator's flag-file convention: the node is
// unhealthy when the file exists and its content is "1".
type FlagFileSource struct {
	path string
}

// NewFlagFileSource creates the adapter. An empty path always reads healthy.
func NewFlagFileSource(path string) *FlagFileSource {
	return &FlagFileSource{path: path}
}

// Unhealthy implements HealthSource.
func (s *FlagFileSource) Unhealthy(ctx context.Context) bool {
	if s.path == "" {
		return false
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Debugf("node health flag unreadable (%s): %v", s.path, err)
		}
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

// StaticHealthSource is a fixed health signal, used by callers that supply
// the flag directly and in tests.
type StaticHealthSource bool

// Unhealthy implements HealthSource.
func (s StaticHealthSource) Unhealthy(ctx context.Context) bool {
	return bool(s)
}
