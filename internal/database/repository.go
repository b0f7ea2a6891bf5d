package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository provides data access methods.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// RECOMMENDATIONS
// ============================================================================

// CreateRecommendation inserts a new recommendation record.
func (r *Repository) CreateRecommendation(ctx context.Context, rec *Recommendation) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	query := `
		INSERT INTO recommendations
			(id, position_id, symbol, account, action, priority, reason,
			 proposed_strike, proposed_expiration, net_cost, itm_percent, scan_id, scan_kind)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		rec.ID, rec.PositionID, rec.Symbol, rec.Account, rec.Action, rec.Priority, rec.Reason,
		rec.ProposedStrike, rec.ProposedExpiration, rec.NetCost, rec.ITMPercent,
		nullIfEmpty(rec.ScanID), nullIfEmpty(rec.ScanKind),
	).Scan(&rec.CreatedAt)
}

// ListRecommendations returns recent recommendations, newest first,
// optionally filtered by symbol and/or account.
func (r *Repository) ListRecommendations(ctx context.Context, symbol, account string, limit int) ([]Recommendation, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, position_id, symbol, account, action, priority, reason,
		       proposed_strike, proposed_expiration, net_cost, itm_percent,
		       COALESCE(scan_id::text, ''), COALESCE(scan_kind, ''), created_at
		FROM recommendations
		WHERE ($1 = '' OR symbol = $1)
		  AND ($2 = '' OR account = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`
	rows, err := r.db.Pool.Query(ctx, query, symbol, account, limit)
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()
	return scanRecommendations(rows)
}

// LatestRecommendationForPosition returns the newest recommendation for a
// position, or pgx.ErrNoRows.
func (r *Repository) LatestRecommendationForPosition(ctx context.Context, positionID string) (*Recommendation, error) {
	query := `
		SELECT id, position_id, symbol, account, action, priority, reason,
		       proposed_strike, proposed_expiration, net_cost, itm_percent,
		       COALESCE(scan_id::text, ''), COALESCE(scan_kind, ''), created_at
		FROM recommendations
		WHERE position_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	rows, err := r.db.Pool.Query(ctx, query, positionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recs, err := scanRecommendations(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &recs[0], nil
}

func scanRecommendations(rows pgx.Rows) ([]Recommendation, error) {
	var out []Recommendation
	for rows.Next() {
		var rec Recommendation
		if err := rows.Scan(
			&rec.ID, &rec.PositionID, &rec.Symbol, &rec.Account, &rec.Action, &rec.Priority, &rec.Reason,
			&rec.ProposedStrike, &rec.ProposedExpiration, &rec.NetCost, &rec.ITMPercent,
			&rec.ScanID, &rec.ScanKind, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recommendation row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ============================================================================
// RESOLUTION EVENTS
// ============================================================================

// CreateResolutionEvent records a resolved position.
func (r *Repository) CreateResolutionEvent(ctx context.Context, ev *ResolutionEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	query := `
		INSERT INTO resolution_events (id, position_id, symbol, account, kind, strike, expiration)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING resolved_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		ev.ID, ev.PositionID, ev.Symbol, ev.Account, ev.Kind, ev.Strike, ev.Expiration,
	).Scan(&ev.ResolvedAt)
}

// ListResolutionEvents returns recent resolution events, newest first.
func (r *Repository) ListResolutionEvents(ctx context.Context, limit int) ([]ResolutionEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT id, position_id, symbol, account, kind, strike, expiration, resolved_at
		FROM resolution_events
		ORDER BY resolved_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list resolution events: %w", err)
	}
	defer rows.Close()

	var out []ResolutionEvent
	for rows.Next() {
		var ev ResolutionEvent
		if err := rows.Scan(&ev.ID, &ev.PositionID, &ev.Symbol, &ev.Account, &ev.Kind, &ev.Strike, &ev.Expiration, &ev.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan resolution row: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// ============================================================================
// SCAN RUNS
// ============================================================================

// CreateScanRun records one completed scan cycle.
func (r *Repository) CreateScanRun(ctx context.Context, run *ScanRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	query := `
		INSERT INTO scan_runs (id, kind, started_at, duration_ms, evaluated, emitted, resolved, skipped)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		run.ID, run.Kind, run.StartedAt, run.Duration.Milliseconds(),
		run.Evaluated, run.Emitted, run.Resolved, run.Skipped,
	)
	return err
}

// ListScanRuns returns recent scan runs, newest first.
func (r *Repository) ListScanRuns(ctx context.Context, limit int) ([]ScanRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	query := `
		SELECT id, kind, started_at, duration_ms, evaluated, emitted, resolved, skipped
		FROM scan_runs
		ORDER BY started_at DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list scan runs: %w", err)
	}
	defer rows.Close()

	var out []ScanRun
	for rows.Next() {
		var run ScanRun
		var durationMS int64
		if err := rows.Scan(&run.ID, &run.Kind, &run.StartedAt, &durationMS, &run.Evaluated, &run.Emitted, &run.Resolved, &run.Skipped); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		run.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, run)
	}
	return out, rows.Err()
}

// ============================================================================
// FEEDBACK
// ============================================================================

// CreateFeedback logs a human verdict on a recommendation.
func (r *Repository) CreateFeedback(ctx context.Context, fb *Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	query := `
		INSERT INTO recommendation_feedback (id, recommendation_id, verdict, comment)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`
	return r.db.Pool.QueryRow(ctx, query, fb.ID, fb.RecommendationID, fb.Verdict, fb.Comment).Scan(&fb.CreatedAt)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
