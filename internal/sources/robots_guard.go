package sources

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const robotsCacheTTL = time.Hour

type robotsCacheEntry struct {
	data    *robotstxt.RobotsData
	fetched time.Time
}

// RobotsGuard answers whether a page may be crawled, caching robots.txt per
// host for an hour.
type RobotsGuard struct {
	client    *http.Client
	userAgent string

	mu      sync.Mutex
	entries map[string]robotsCacheEntry
}

func NewRobotsGuard(client *http.Client, userAgent string) *RobotsGuard {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsGuard{
		client:    client,
		userAgent: userAgent,
		entries:   make(map[string]robotsCacheEntry),
	}
}

// Allowed reports false only when a robots.txt exists and disallows the path.
// Missing or unreachable robots files allow the crawl.
func (g *RobotsGuard) Allowed(ctx context.Context, targetURL string) (bool, error) {
	parsed, err := url.Parse(targetURL)
	if err != nil {
		return true, fmt.Errorf("parse robots target: %w", err)
	}
	if parsed.Host == "" {
		return true, fmt.Errorf("parse robots target: missing host in %q", targetURL)
	}

	entry, err := g.load(ctx, parsed)
	if err != nil {
		return true, err
	}
	if entry.data == nil {
		return true, nil
	}

	group := entry.data.FindGroup(g.userAgent)
	if group == nil {
		return true, nil
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	return group.Test(path), nil
}

func (g *RobotsGuard) load(ctx context.Context, parsed *url.URL) (robotsCacheEntry, error) {
	key := robotsCacheKey(parsed)

	g.mu.Lock()
	entry, ok := g.entries[key]
	if ok && time.Since(entry.fetched) > robotsCacheTTL {
		delete(g.entries, key)
		ok = false
	}
	g.mu.Unlock()
	if ok {
		return entry, nil
	}

	entry, err := g.fetch(ctx, parsed)
	if err != nil {
		return entry, err
	}
	entry.fetched = time.Now()

	g.mu.Lock()
	g.entries[key] = entry
	g.mu.Unlock()

	return entry, nil
}

func (g *RobotsGuard) fetch(ctx context.Context, parsed *url.URL) (robotsCacheEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsCacheKey(parsed)+"/robots.txt", nil)
	if err != nil {
		return robotsCacheEntry{}, err
	}
	if g.userAgent != "" {
		req.Header.Set("User-Agent", g.userAgent)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return robotsCacheEntry{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return robotsCacheEntry{}, nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return robotsCacheEntry{}, err
	}
	return robotsCacheEntry{data: data}, nil
}

func robotsCacheKey(parsed *url.URL) string {
	scheme := parsed.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, parsed.Host)
}
