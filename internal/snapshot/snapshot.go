// Package snapshot feeds the scan pipeline the latest open-position
// snapshot. Entry and exit execution happen at the broker; the advisor
// only consumes an exported snapshot of what is currently open.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"options-advisor/internal/position"
)

// FileSource reads the snapshot from a JSON file on disk. The file is
// re-read on every call, so an external export job can rewrite it at any
// time and the next scan picks the change up.
type FileSource struct {
	path   string
	logger zerolog.Logger
}

// NewFileSource creates a snapshot source backed by a JSON file.
func NewFileSource(path string, logger zerolog.Logger) *FileSource {
	return &FileSource{
		path:   path,
		logger: logger.With().Str("component", "snapshot").Logger(),
	}
}

// Snapshot reads and validates the position file. Rows that fail
// validation are dropped with a warning rather than failing the scan;
// a missing file is an error because the scheduler has nothing to
// reconcile against.
func (s *FileSource) Snapshot(ctx context.Context) ([]position.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read position snapshot %s: %w", s.path, err)
	}

	var positions []position.Position
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("failed to parse position snapshot %s: %w", s.path, err)
	}

	valid := positions[:0]
	for i := range positions {
		if err := positions[i].Validate(); err != nil {
			s.logger.Warn().Err(err).
				Str("symbol", positions[i].Symbol).
				Msg("Dropping invalid snapshot row")
			continue
		}
		valid = append(valid, positions[i])
	}

	s.logger.Debug().
		Int("total", len(positions)).
		Int("valid", len(valid)).
		Msg("Position snapshot loaded")

	return valid, nil
}
