package workflows

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// VisitRecorder persists completed visits.
type VisitRecorder interface {
	InsertVisit(ctx context.Context, v *domain.VisitSummary) error
}

// VisitActivities holds the activity implementations for SiteVisitWorkflow.
type VisitActivities struct {
	Visits VisitRecorder
}

// RecordVisit stores a completed visit. Without a recorder the visit is
// only logged.
func (a *VisitActivities) RecordVisit(ctx context.Context, summary *domain.VisitSummary) error {
	if a.Visits == nil {
		slog.Info("visit (no recorder)", "site_id", summary.SiteID, "dwell", summary.Dwell.String())
		return nil
	}
	if err := a.Visits.InsertVisit(ctx, summary); err != nil {
		return fmt.Errorf("record visit at %s: %w", summary.SiteID, err)
	}
	return nil
}
