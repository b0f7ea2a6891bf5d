package snapshot_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-advisor/internal/snapshot"
)

func writeSnapshot(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "positions.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSnapshotReadsValidRows(t *testing.T) {
	path := writeSnapshot(t, `[
		{"id": "p1", "symbol": "AAPL", "account": "brokerage", "tax_type": "taxable",
		 "kind": "covered_call", "strike": 200, "expiration": "2026-03-20T16:00:00Z",
		 "contracts": 2, "original_premium": 3.5, "current_mark": 1.4, "underlying_price": 195},
		{"id": "p2", "symbol": "NVDA", "kind": "uncovered_shares"}
	]`)

	src := snapshot.NewFileSource(path, zerolog.Nop())
	positions, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "AAPL", positions[0].Symbol)
	assert.Equal(t, "NVDA", positions[1].Symbol)
}

func TestSnapshotDropsInvalidRows(t *testing.T) {
	path := writeSnapshot(t, `[
		{"id": "p1", "symbol": "AAPL", "kind": "covered_call", "strike": 200,
		 "expiration": "2026-03-20T16:00:00Z", "contracts": 1},
		{"id": "p2", "symbol": "", "kind": "covered_call", "strike": 100,
		 "expiration": "2026-03-20T16:00:00Z", "contracts": 1},
		{"id": "p3", "symbol": "TSLA", "kind": "covered_put", "strike": 0,
		 "expiration": "2026-03-20T16:00:00Z", "contracts": 1}
	]`)

	src := snapshot.NewFileSource(path, zerolog.Nop())
	positions, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "p1", positions[0].ID)
}

func TestSnapshotMissingFile(t *testing.T) {
	src := snapshot.NewFileSource(filepath.Join(t.TempDir(), "absent.json"), zerolog.Nop())
	_, err := src.Snapshot(context.Background())
	assert.Error(t, err)
}

func TestSnapshotMalformedJSON(t *testing.T) {
	path := writeSnapshot(t, `{"not": "an array"`)
	src := snapshot.NewFileSource(path, zerolog.Nop())
	_, err := src.Snapshot(context.Background())
	assert.Error(t, err)
}
