package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// TransitionRepo implements ports.TransitionRepository with pgx.
type TransitionRepo struct {
	db *DB
}

// NewTransitionRepo creates a new TransitionRepo.
func NewTransitionRepo(db *DB) *TransitionRepo {
	return &TransitionRepo{db: db}
}

// Insert stores a confirmed transition. Inserting the same event id twice is
// a no-op.
func (r *TransitionRepo) Insert(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO transitions (id, site_id, kind, observed_at, motion_kind, motion_confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.SiteID, string(ev.Kind), ev.ObservedAt,
		ev.Motion.Kind.String(), ev.Motion.ConfidencePercent)
	if err != nil {
		return fmt.Errorf("insert transition %s: %w", ev.ID, err)
	}
	return nil
}

// ListBySite returns the most recent transitions of a site, newest first.
func (r *TransitionRepo) ListBySite(ctx context.Context, siteID string, limit int) ([]domain.ConfirmedTransitionEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, site_id, kind, observed_at, motion_kind, motion_confidence
		FROM transitions
		WHERE site_id = $1
		ORDER BY observed_at DESC, recorded_at DESC
		LIMIT $2
	`, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.ConfirmedTransitionEvent
	for rows.Next() {
		var (
			ev         domain.ConfirmedTransitionEvent
			kind       string
			motionKind string
		)
		if err := rows.Scan(&ev.ID, &ev.SiteID, &kind, &ev.ObservedAt, &motionKind, &ev.Motion.ConfidencePercent); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		ev.Kind = domain.ConfirmedKind(kind)
		ev.Motion.Kind = domain.ParseActivityKind(motionKind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// InsertVisit stores a completed visit. A visit is identified by its site
// and entry time.
func (r *TransitionRepo) InsertVisit(ctx context.Context, v *domain.VisitSummary) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO visits (site_id, entered_at, exited_at, dwell_seconds, entry_motion_kind, entry_motion_confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (site_id, entered_at) DO UPDATE
		SET exited_at = EXCLUDED.exited_at, dwell_seconds = EXCLUDED.dwell_seconds
	`, v.SiteID, v.EnteredAt, v.ExitedAt, int64(v.Dwell/time.Second),
		v.EntryMotion.Kind.String(), v.EntryMotion.ConfidencePercent)
	if err != nil {
		return fmt.Errorf("insert visit %s: %w", v.SiteID, err)
	}
	return nil
}
