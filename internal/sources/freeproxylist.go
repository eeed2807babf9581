package sources

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/charmbracelet/log"
	"github.com/gocolly/colly/v2"

	"proxycrawler/internal/config"
	"proxycrawler/internal/domain"
)

const (
	freeProxyListName = "free-proxy-list"

	freeProxyListColumns = 8
)

var errRobotsDisallowed = errors.New("disallowed by robots.txt")

// column order of the free-proxy-list table
var freeProxyListFields = [freeProxyListColumns]string{
	"ip", "port", "country_code", "country", "anonymity", "google", "https", "last_checked",
}

type FreeProxyListOptions struct {
	URL           string
	UserAgent     string
	Timeout       time.Duration
	RespectRobots bool
	Robots        *RobotsGuard
}

// FreeProxyList scrapes the HTML table on free-proxy-list.net.
type FreeProxyList struct {
	opts FreeProxyListOptions
}

func NewFreeProxyList(opts FreeProxyListOptions) *FreeProxyList {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RespectRobots && opts.Robots == nil {
		opts.Robots = NewRobotsGuard(nil, opts.UserAgent)
	}
	return &FreeProxyList{opts: opts}
}

func FreeProxyListFromConfig(cfg config.Config) *FreeProxyList {
	fpl := cfg.Sources.FreeProxyList
	return NewFreeProxyList(FreeProxyListOptions{
		URL:           fpl.URL,
		UserAgent:     cfg.Checker.UserAgent,
		Timeout:       config.SourceTimeout(cfg),
		RespectRobots: fpl.RespectRobots,
	})
}

func (f *FreeProxyList) Name() string {
	return freeProxyListName
}

func (f *FreeProxyList) URL() string {
	return f.opts.URL
}

func (f *FreeProxyList) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	if f.opts.RespectRobots {
		allowed, err := f.opts.Robots.Allowed(ctx, f.opts.URL)
		if err != nil {
			log.Debug("robots.txt lookup failed", "source", freeProxyListName, "error", err)
		}
		if !allowed {
			return nil, unavailable(freeProxyListName, errRobotsDisallowed)
		}
	}

	options := []colly.CollectorOption{colly.StdlibContext(ctx)}
	if f.opts.UserAgent != "" {
		options = append(options, colly.UserAgent(f.opts.UserAgent))
	}
	collector := colly.NewCollector(options...)
	collector.SetRequestTimeout(f.opts.Timeout)

	var candidates []domain.Candidate
	skipped := 0

	collector.OnHTML("tr", func(e *colly.HTMLElement) {
		cells := e.DOM.Find("td")
		if cells.Length() != freeProxyListColumns {
			return
		}

		candidate, ok := candidateFromRow(cells)
		if !ok {
			skipped++
			return
		}
		candidates = append(candidates, candidate)
	})

	if err := collector.Visit(f.opts.URL); err != nil {
		return candidates, unavailable(freeProxyListName, fmt.Errorf("visit %s: %w", f.opts.URL, err))
	}

	if skipped > 0 {
		log.Debug("Skipped unparsable rows", "source", freeProxyListName, "rows", skipped)
	}
	return candidates, nil
}

func candidateFromRow(cells *goquery.Selection) (domain.Candidate, bool) {
	var values [freeProxyListColumns]string
	cells.Each(func(i int, cell *goquery.Selection) {
		values[i] = strings.TrimSpace(cell.Text())
	})

	port, err := strconv.Atoi(values[1])
	if err != nil {
		return domain.Candidate{}, false
	}

	candidate := domain.NewCandidate(values[0], port)
	if !candidate.HasValidIP() || !candidate.HasValidPort() {
		return domain.Candidate{}, false
	}

	candidate.Country = values[2]
	for i, field := range freeProxyListFields[2:] {
		candidate.Metadata[field] = values[i+2]
	}

	return candidate, true
}
