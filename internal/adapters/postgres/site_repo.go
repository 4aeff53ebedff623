package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// SiteRepo implements ports.SiteRepository with pgx.
type SiteRepo struct {
	db *DB
}

// NewSiteRepo creates a new SiteRepo.
func NewSiteRepo(db *DB) *SiteRepo {
	return &SiteRepo{db: db}
}

// FetchSites returns every active site ordered by id.
func (r *SiteRepo) FetchSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, name, latitude, longitude, radius_meters
		FROM sites
		WHERE active
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query sites: %w", err)
	}
	defer rows.Close()

	var sites []domain.Site
	for rows.Next() {
		var s domain.Site
		if err := rows.Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude, &s.RadiusMeters); err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

// UpsertBatch inserts or updates many sites using pgx.Batch. Upserted sites
// become active again.
func (r *SiteRepo) UpsertBatch(ctx context.Context, sites []domain.Site) error {
	if len(sites) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, s := range sites {
		batch.Queue(`
			INSERT INTO sites (id, name, latitude, longitude, radius_meters, active, updated_at)
			VALUES ($1, $2, $3, $4, $5, TRUE, NOW())
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, latitude = EXCLUDED.latitude,
			    longitude = EXCLUDED.longitude, radius_meters = EXCLUDED.radius_meters,
			    active = TRUE, updated_at = NOW()
		`, s.ID, s.Name, s.Latitude, s.Longitude, s.RadiusMeters)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, s := range sites {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert site %s: %w", s.ID, err)
		}
	}
	return nil
}

// GetByID returns a site, active or not.
func (r *SiteRepo) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	var s domain.Site
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, name, latitude, longitude, radius_meters
		FROM sites WHERE id = $1
	`, id).Scan(&s.ID, &s.Name, &s.Latitude, &s.Longitude, &s.RadiusMeters)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

// Deactivate hides sites from FetchSites without deleting their history.
func (r *SiteRepo) Deactivate(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE sites SET active = FALSE, updated_at = NOW() WHERE id = ANY($1)
	`, ids)
	return err
}
