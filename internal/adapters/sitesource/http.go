// Package sitesource fetches the authoritative site list over HTTP.
package sitesource

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/samirrijal/sitewatch/internal/core/domain"
)

// HTTPSource implements ports.SiteSource against a JSON endpoint. The body
// may be a bare array of sites or an object with a "sites" array.
//
// Responses are revalidated with ETag: a 304 returns the previous list.
type HTTPSource struct {
	client  *fasthttp.Client
	url     string
	timeout time.Duration

	mu    sync.Mutex
	etag  string
	sites []domain.Site
}

// Option customises an HTTPSource.
type Option func(*HTTPSource)

// WithClient replaces the default fasthttp client.
func WithClient(c *fasthttp.Client) Option {
	return func(s *HTTPSource) { s.client = c }
}

func NewHTTPSource(url string, timeout time.Duration, opts ...Option) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &HTTPSource{
		client: &fasthttp.Client{
			Name:                "sitewatch",
			ReadTimeout:         timeout,
			WriteTimeout:        timeout,
			MaxIdleConnDuration: time.Minute,
		},
		url:     url,
		timeout: timeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type envelope struct {
	Sites []domain.Site `json:"sites"`
}

// FetchSites downloads the list. Invalid entries are skipped.
func (s *HTTPSource) FetchSites(ctx context.Context) ([]domain.Site, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set(fasthttp.HeaderAccept, "application/json")
	s.mu.Lock()
	if s.etag != "" {
		req.Header.Set(fasthttp.HeaderIfNoneMatch, s.etag)
	}
	s.mu.Unlock()

	if err := s.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}

	switch resp.StatusCode() {
	case fasthttp.StatusOK:
	case fasthttp.StatusNotModified:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.sites != nil {
			return append([]domain.Site(nil), s.sites...), nil
		}
		return nil, fmt.Errorf("%w: 304 without a previous response", domain.ErrFetch)
	default:
		return nil, fmt.Errorf("%w: HTTP %d from %s", domain.ErrFetch, resp.StatusCode(), s.url)
	}

	sites, err := decode(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}

	s.mu.Lock()
	s.etag = string(resp.Header.Peek(fasthttp.HeaderETag))
	s.sites = sites
	s.mu.Unlock()

	return append([]domain.Site(nil), sites...), nil
}

func decode(body []byte) ([]domain.Site, error) {
	var raw []domain.Site
	if err := json.Unmarshal(body, &raw); err != nil {
		var env envelope
		if err2 := json.Unmarshal(body, &env); err2 != nil {
			return nil, fmt.Errorf("decode sites: %w", err)
		}
		raw = env.Sites
	}

	sites := make([]domain.Site, 0, len(raw))
	for _, site := range raw {
		if err := site.Validate(); err != nil {
			slog.Warn("skipping invalid site", "error", err)
			continue
		}
		sites = append(sites, site)
	}
	return sites, nil
}
