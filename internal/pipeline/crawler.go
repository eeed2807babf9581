package pipeline

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"proxycrawler/internal/checker"
	"proxycrawler/internal/database"
	"proxycrawler/internal/domain"
	"proxycrawler/internal/export"
	"proxycrawler/internal/sources"
	"proxycrawler/internal/support"
)

type Store interface {
	Upsert(ctx context.Context, candidate domain.Candidate) (database.UpsertResult, error)
	Fetch(ctx context.Context, limit int) ([]domain.StoredProxy, error)
	UpdateValidity(ctx context.Context, record domain.StoredProxy) error
	Count(ctx context.Context) (int64, error)
}

type Sink interface {
	Write(records []domain.Candidate, groupByProtocol bool, path string) ([]string, error)
}

// Crawler ties sources, validation, storage and file output together.
type Crawler struct {
	sources      []sources.Source
	fresh        *checker.Engine
	revalidation *checker.Engine
	store        Store
	sink         Sink
}

func NewCrawler(srcs []sources.Source, fresh, revalidation *checker.Engine, store Store, sink Sink) *Crawler {
	return &Crawler{
		sources:      srcs,
		fresh:        fresh,
		revalidation: revalidation,
		store:        store,
		sink:         sink,
	}
}

type CrawlOptions struct {
	Validate        bool
	SaveOnRun       bool
	GroupByProtocol bool
	OutputPath      string
}

type ExportOptions struct {
	Limit           int
	Validate        bool
	GroupByProtocol bool
	OutputPath      string
}

type ValidateFileOptions struct {
	Protocol        domain.Protocol
	AllProtocols    bool
	GroupByProtocol bool
	OutputPath      string
}

type fetchResult struct {
	candidates []domain.Candidate
	err        error
}

// Crawl fetches every source, keeps the candidates that pass (or are assumed
// to pass) and persists them. It returns the files written.
func (c *Crawler) Crawl(ctx context.Context, opts CrawlOptions) ([]string, error) {
	if err := export.CheckOutputPath(opts.OutputPath); err != nil {
		return nil, err
	}

	results := make([]fetchResult, len(c.sources))
	var group errgroup.Group
	for i, source := range c.sources {
		group.Go(func() error {
			log.Info("Fetching proxies", "source", source.Name(), "url", source.URL())
			candidates, err := source.Fetch(ctx)
			results[i] = fetchResult{candidates: candidates, err: err}
			return nil
		})
	}
	_ = group.Wait()

	var (
		pending []domain.Candidate
		written []string
		total   int
		seen    = make(map[string]struct{})
	)

	for i, source := range c.sources {
		result := results[i]
		if result.err != nil {
			log.Error("Failed to fetch proxies", "source", source.Name(), "error", result.err)
		}

		fresh := make([]domain.Candidate, 0, len(result.candidates))
		for _, candidate := range result.candidates {
			if _, dup := seen[candidate.Key()]; dup {
				continue
			}
			seen[candidate.Key()] = struct{}{}
			fresh = append(fresh, candidate)
		}
		if len(fresh) == 0 {
			log.Warn("Source returned no proxies", "source", source.Name())
			continue
		}
		total += len(fresh)

		accepted, err := c.admit(ctx, source.Name(), fresh, opts.Validate)
		if err != nil {
			return written, err
		}

		if opts.SaveOnRun {
			paths, err := c.sink.Write(accepted, opts.GroupByProtocol, opts.OutputPath)
			written = mergePaths(written, paths)
			if err != nil {
				return written, err
			}
			continue
		}
		pending = append(pending, accepted...)
	}

	if total == 0 {
		return nil, ErrEmptyResult
	}

	if !opts.SaveOnRun {
		paths, err := c.sink.Write(pending, opts.GroupByProtocol, opts.OutputPath)
		written = mergePaths(written, paths)
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

// admit validates or assumes endpoints for a source's candidates and stores
// every one that ends up valid.
func (c *Crawler) admit(ctx context.Context, source string, candidates []domain.Candidate, validate bool) ([]domain.Candidate, error) {
	usable := candidates[:0]
	for _, candidate := range candidates {
		if !candidate.HasValidIP() || !candidate.HasValidPort() {
			log.Debug("Dropping malformed candidate", "source", source, "proxy", candidate.Key())
			continue
		}
		usable = append(usable, candidate)
	}

	if validate {
		jobs := make([]checker.Job, len(usable))
		for i := range usable {
			jobs[i] = checker.Job{Candidate: &usable[i], Protocols: checker.ProtocolsFor(&usable[i])}
		}
		log.Info("Validating proxies", "source", source, "count", len(jobs))
		c.fresh.ValidateBatch(ctx, jobs)
	} else {
		for i := range usable {
			protocols := usable[i].DeclaredProtocols
			if len(domain.NormalizeProtocols(protocols)) == 0 {
				protocols = domain.AssumedProtocols
			}
			usable[i].SetEndpoints(protocols)
		}
	}

	accepted := make([]domain.Candidate, 0, len(usable))
	stats := make(map[database.UpsertResult]int)
	for _, candidate := range usable {
		if !candidate.IsValid {
			continue
		}
		result, err := c.store.Upsert(ctx, candidate)
		if err != nil {
			return accepted, fmt.Errorf("persist %s: %w", candidate.Key(), err)
		}
		stats[result]++
		accepted = append(accepted, candidate)
	}

	log.Info("Processed proxies",
		"source", source,
		"valid", len(accepted),
		"inserted", stats[database.Inserted],
		"updated", stats[database.Updated],
		"unchanged", stats[database.Unchanged],
	)
	return accepted, nil
}

// Export writes stored proxies to files, optionally checking them again and
// demoting the ones that no longer work.
func (c *Crawler) Export(ctx context.Context, opts ExportOptions) ([]string, error) {
	if err := export.CheckOutputPath(opts.OutputPath); err != nil {
		return nil, err
	}

	stored, err := c.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	if stored == 0 {
		return nil, ErrEmptyResult
	}

	records, err := c.store.Fetch(ctx, opts.Limit)
	if err != nil {
		return nil, err
	}
	log.Info("Loaded stored proxies", "count", len(records), "stored", stored)

	candidates := make([]domain.Candidate, len(records))
	for i := range records {
		candidates[i] = records[i].ToCandidate()
	}

	if !opts.Validate {
		log.Info("Exporting proxies", "count", len(candidates))
		return c.sink.Write(candidates, opts.GroupByProtocol, opts.OutputPath)
	}

	jobs := make([]checker.Job, len(candidates))
	for i := range candidates {
		protocols := domain.NormalizeProtocols(records[i].Protocols)
		if len(protocols) == 0 {
			protocols = domain.AllProtocols
		}
		jobs[i] = checker.Job{Candidate: &candidates[i], Protocols: protocols}
	}

	log.Info("Re-validating stored proxies", "count", len(jobs))
	c.revalidation.ValidateBatch(ctx, jobs)

	valid := make([]domain.Candidate, 0, len(candidates))
	for i := range records {
		records[i].IsValid = candidates[i].IsValid
		if err := c.store.UpdateValidity(ctx, records[i]); err != nil {
			return nil, err
		}
		if candidates[i].IsValid {
			valid = append(valid, candidates[i])
		} else {
			log.Debug("Proxy no longer valid", "proxy", records[i].GetFullProxy())
		}
	}

	log.Info("Re-validation finished", "valid", len(valid), "invalid", len(records)-len(valid))
	return c.sink.Write(valid, opts.GroupByProtocol, opts.OutputPath)
}

// ValidateFile checks the proxies listed in lines. Every non blank line must
// be well formed before anything is probed.
func (c *Crawler) ValidateFile(ctx context.Context, lines []string, opts ValidateFileOptions) ([]string, error) {
	if err := export.CheckOutputPath(opts.OutputPath); err != nil {
		return nil, err
	}

	parsed, invalid := support.ParseProxyLines(lines)
	if len(invalid) > 0 {
		return nil, &MalformedInputError{Lines: invalid}
	}
	if len(parsed) == 0 {
		return nil, ErrEmptyResult
	}

	groups := support.GroupProxyLines(parsed)
	candidates := make([]domain.Candidate, len(groups))
	jobs := make([]checker.Job, len(groups))
	for i, group := range groups {
		candidates[i] = domain.NewCandidate(group.IP, group.Port)

		var protocols []domain.Protocol
		switch {
		case opts.AllProtocols:
			protocols = domain.AllProtocols
		case opts.Protocol != "":
			protocols = []domain.Protocol{opts.Protocol}
		default:
			protocols = group.Protocols
		}
		candidates[i].DeclaredProtocols = protocols
		jobs[i] = checker.Job{Candidate: &candidates[i], Protocols: protocols}
	}

	log.Info("Validating proxies from file", "count", len(jobs))
	c.fresh.ValidateBatch(ctx, jobs)

	valid := make([]domain.Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		if !candidate.IsValid {
			continue
		}
		if _, err := c.store.Upsert(ctx, candidate); err != nil {
			return nil, fmt.Errorf("persist %s: %w", candidate.Key(), err)
		}
		valid = append(valid, candidate)
	}

	if len(valid) == 0 {
		log.Warn("No valid proxies found", "checked", len(candidates))
		return nil, nil
	}

	log.Info("Validation finished", "valid", len(valid), "invalid", len(candidates)-len(valid))
	return c.sink.Write(valid, opts.GroupByProtocol, opts.OutputPath)
}

func mergePaths(existing, paths []string) []string {
	for _, path := range paths {
		found := false
		for _, known := range existing {
			if known == path {
				found = true
				break
			}
		}
		if !found {
			existing = append(existing, path)
		}
	}
	return existing
}
