package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/samirrijal/sitewatch/internal/adapters/postgres"
	"github.com/samirrijal/sitewatch/internal/adapters/sitesource"
	"github.com/samirrijal/sitewatch/internal/core/domain"
	"github.com/samirrijal/sitewatch/internal/pkg/config"
	"github.com/samirrijal/sitewatch/internal/pkg/logging"
)

// Manifest is the site list file loaded into the database.
type Manifest struct {
	Source string        `json:"source"`
	Prune  bool          `json:"prune"` // deactivate active sites missing from Sites
	Sites  []domain.Site `json:"sites"`
}

const batchSize = 500

// siteloader upserts a site manifest into the sites table.
//
//	siteloader [manifest.json | https://host/sites] [id,id,...]
func main() {
	cfg, err := config.Load("sitewatch-siteloader")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format, "sitewatch-siteloader")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	src := "sites.json"
	if len(os.Args) > 1 {
		src = os.Args[1]
	}

	manifest, err := loadManifest(ctx, src, cfg.Sites.FetchTimeout())
	if err != nil {
		log.Fatalf("%v", err)
	}

	if len(os.Args) > 2 {
		manifest.Sites = filterSites(manifest.Sites, strings.Split(os.Args[2], ","))
		manifest.Prune = false
	}

	valid, rejected := partition(manifest.Sites)
	for _, err := range rejected {
		slog.Warn("skipping site", "error", err)
	}
	slog.Info("loading sites", "source", manifest.Source, "valid", len(valid), "rejected", len(rejected))

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	repo := postgres.NewSiteRepo(db)

	for start := 0; start < len(valid); start += batchSize {
		end := min(start+batchSize, len(valid))
		if err := repo.UpsertBatch(ctx, valid[start:end]); err != nil {
			log.Fatalf("upsert sites %d-%d: %v", start, end, err)
		}
		slog.Info("upserted batch", "from", start, "to", end)
	}

	if manifest.Prune {
		active, err := repo.FetchSites(ctx)
		if err != nil {
			log.Fatalf("list active sites: %v", err)
		}
		if stale := missing(active, valid); len(stale) > 0 {
			if err := repo.Deactivate(ctx, stale); err != nil {
				log.Fatalf("deactivate: %v", err)
			}
			slog.Info("deactivated sites missing from manifest", "count", len(stale))
		}
	}

	slog.Info("site load complete", "sites", len(valid))
}

// loadManifest reads a manifest file, or fetches a bare site list when src
// is an http(s) URL.
func loadManifest(ctx context.Context, src string, timeout time.Duration) (*Manifest, error) {
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		sites, err := sitesource.NewHTTPSource(src, timeout).FetchSites(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", src, err)
		}
		return &Manifest{Source: src, Sites: sites}, nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return parseManifest(data, src)
}

// parseManifest accepts a Manifest object or a bare array of sites.
func parseManifest(data []byte, name string) (*Manifest, error) {
	var m Manifest
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &m.Sites); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	} else if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Source == "" {
		m.Source = name
	}
	return &m, nil
}

// partition splits sites into valid ones and validation errors. A repeated
// id keeps its last occurrence.
func partition(sites []domain.Site) ([]domain.Site, []error) {
	var errs []error
	index := make(map[string]int, len(sites))
	var valid []domain.Site
	for _, s := range sites {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		if i, ok := index[s.ID]; ok {
			valid[i] = s
			continue
		}
		index[s.ID] = len(valid)
		valid = append(valid, s)
	}
	return valid, errs
}

func filterSites(sites []domain.Site, ids []string) []domain.Site {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			want[id] = true
		}
	}
	var out []domain.Site
	for _, s := range sites {
		if want[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// missing returns the ids of active sites that are not in keep.
func missing(active, keep []domain.Site) []string {
	kept := make(map[string]bool, len(keep))
	for _, s := range keep {
		kept[s.ID] = true
	}
	var out []string
	for _, s := range active {
		if !kept[s.ID] {
			out = append(out, s.ID)
		}
	}
	return out
}
