package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"proxycrawler/internal/config"
	"proxycrawler/internal/domain"
)

const (
	geonodeName = "geonode"

	geonodeMaxPageSize = 500
	geonodeMaxPages    = 100
)

// metadata fields copied verbatim from a geonode record
var geonodeMetadataFields = []string{
	"anonymityLevel", "asn", "city", "isp", "org", "region", "latency",
	"responseTime", "speed", "upTime", "upTimeSuccessCount", "upTimeTryCount",
	"workingPercent", "google", "lastChecked", "created_at", "updated_at",
}

type GeonodeOptions struct {
	SiteURL   string
	APIURL    string
	PageLimit int
	PageSize  int
	SortBy    string
	SortType  string
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

// Geonode pages through the geonode proxy list API.
type Geonode struct {
	opts   GeonodeOptions
	client *http.Client
}

func NewGeonode(opts GeonodeOptions) *Geonode {
	if opts.PageSize <= 0 || opts.PageSize > geonodeMaxPageSize {
		opts.PageSize = geonodeMaxPageSize
	}
	if opts.PageLimit <= 0 {
		opts.PageLimit = 1
	}
	if opts.PageLimit > geonodeMaxPages {
		opts.PageLimit = geonodeMaxPages
	}
	if opts.SortBy == "" {
		opts.SortBy = "lastChecked"
	}
	if opts.SortType == "" {
		opts.SortType = "desc"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	return &Geonode{opts: opts, client: client}
}

func GeonodeFromConfig(cfg config.Config) *Geonode {
	geonode := cfg.Sources.Geonode
	return NewGeonode(GeonodeOptions{
		SiteURL:   geonode.URL,
		APIURL:    geonode.APIURL,
		PageLimit: int(geonode.PageLimit),
		PageSize:  int(geonode.PageSize),
		SortBy:    geonode.SortBy,
		SortType:  geonode.SortType,
		UserAgent: cfg.Checker.UserAgent,
		Timeout:   config.SourceTimeout(cfg),
	})
}

func (g *Geonode) Name() string {
	return geonodeName
}

func (g *Geonode) URL() string {
	if g.opts.SiteURL != "" {
		return g.opts.SiteURL
	}
	return g.opts.APIURL
}

// errUnexpectedStatus marks a page answered with something other than 200.
var errUnexpectedStatus = errors.New("unexpected status")

func (g *Geonode) Fetch(ctx context.Context) ([]domain.Candidate, error) {
	var candidates []domain.Candidate

	for page := 1; page <= g.opts.PageLimit; page++ {
		if err := ctx.Err(); err != nil {
			return candidates, unavailable(geonodeName, err)
		}

		records, err := g.fetchPage(ctx, page)
		if err != nil && page > 1 && errors.Is(err, errUnexpectedStatus) {
			log.Warn("Geonode stopped paging early", "page", page, "collected", len(candidates), "error", err)
			break
		}
		if err != nil {
			return candidates, unavailable(geonodeName, err)
		}
		if len(records) == 0 {
			log.Debug("Geonode returned an empty page", "page", page)
			break
		}

		for _, record := range records {
			candidate, ok := candidateFromGeonode(record)
			if !ok {
				continue
			}
			candidates = append(candidates, candidate)
		}
	}

	return candidates, nil
}

type geonodeResponse struct {
	Data []map[string]any `json:"data"`
}

func (g *Geonode) fetchPage(ctx context.Context, page int) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(g.opts.PageSize))
	params.Set("page", strconv.Itoa(page))
	params.Set("sort_by", g.opts.SortBy)
	params.Set("sort_type", g.opts.SortType)

	endpoint, err := url.Parse(g.opts.APIURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, err
	}
	g.setHeaders(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("page %d: %w %d", page, errUnexpectedStatus, resp.StatusCode)
	}

	var body geonodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}

	return body.Data, nil
}

func (g *Geonode) setHeaders(req *http.Request) {
	origin := "https://geonode.com"
	if site, err := url.Parse(g.opts.SiteURL); err == nil && site.Scheme != "" && site.Host != "" {
		origin = site.Scheme + "://" + site.Host
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Origin", origin)
	req.Header.Set("Referer", origin+"/")
	req.Header.Set("Sec-Fetch-Dest", "empty")
	req.Header.Set("Sec-Fetch-Mode", "cors")
	req.Header.Set("Sec-Fetch-Site", "same-site")
	if g.opts.UserAgent != "" {
		req.Header.Set("User-Agent", g.opts.UserAgent)
	}
}

func candidateFromGeonode(record map[string]any) (domain.Candidate, bool) {
	ip := stringField(record, "ip")
	port := intField(record, "port")

	candidate := domain.NewCandidate(ip, port)
	if !candidate.HasValidIP() || !candidate.HasValidPort() {
		return domain.Candidate{}, false
	}

	candidate.DeclaredProtocols = domain.ProtocolNames(stringsField(record, "protocols"))
	candidate.Country = stringField(record, "country")

	for _, field := range geonodeMetadataFields {
		if value, ok := record[field]; ok && value != nil {
			candidate.Metadata[field] = value
		}
	}

	return candidate, true
}

func stringField(record map[string]any, key string) string {
	switch v := record[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func intField(record map[string]any, key string) int {
	switch v := record[key].(type) {
	case float64:
		return int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func stringsField(record map[string]any, key string) []string {
	raw, ok := record[key].([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
