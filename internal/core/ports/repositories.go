package ports

import (
	"context"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// SiteRepository persists the authoritative site list.
type SiteRepository interface {
	SiteSource
	UpsertBatch(ctx context.Context, sites []domain.Site) error
	GetByID(ctx context.Context, id string) (*domain.Site, error)
	Deactivate(ctx context.Context, ids []string) error
}

// TransitionRepository persists confirmed transitions and visit summaries.
// Insert must be idempotent on the event ID.
type TransitionRepository interface {
	Insert(ctx context.Context, ev *domain.ConfirmedTransitionEvent) error
	ListBySite(ctx context.Context, siteID string, limit int) ([]domain.ConfirmedTransitionEvent, error)
	InsertVisit(ctx context.Context, v *domain.VisitSummary) error
}
