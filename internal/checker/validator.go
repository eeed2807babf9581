package checker

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"proxycrawler/internal/config"
	"proxycrawler/internal/domain"
)

type Policy struct {
	Probes      int
	Threshold   int
	Delay       time.Duration
	Concurrency int
	UseCache    bool
}

// FreshPolicy is used for candidates that were just scraped.
func FreshPolicy(cfg config.Config) Policy {
	return Policy{
		Probes:      int(cfg.Checker.Probes),
		Threshold:   int(cfg.Checker.Threshold),
		Delay:       config.FreshProbeDelay(cfg),
		Concurrency: int(cfg.Checker.Threads),
		UseCache:    true,
	}
}

// RevalidationPolicy is used for stored proxies and always probes live.
func RevalidationPolicy(cfg config.Config) Policy {
	return Policy{
		Probes:      int(cfg.Checker.Probes),
		Threshold:   int(cfg.Checker.Threshold),
		Delay:       config.RevalidationProbeDelay(cfg),
		Concurrency: int(cfg.Checker.Threads),
	}
}

func (p Policy) normalized() Policy {
	if p.Probes <= 0 {
		p.Probes = 3
	}
	if p.Threshold <= 0 {
		p.Threshold = 2
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	return p
}

// Job asks for the given protocols of one candidate to be checked.
type Job struct {
	Candidate *domain.Candidate
	Protocols []domain.Protocol
}

type Engine struct {
	prober Prober
	cache  VerdictCache
	policy Policy

	inflight singleflight.Group
}

func NewEngine(prober Prober, cache VerdictCache, policy Policy) *Engine {
	if cache == nil {
		cache = NopVerdictCache{}
	}
	return &Engine{
		prober: prober,
		cache:  cache,
		policy: policy.normalized(),
	}
}

// ProtocolsFor returns the declared protocols, or the whole universe when the
// source did not declare any.
func ProtocolsFor(candidate *domain.Candidate) []domain.Protocol {
	declared := domain.NormalizeProtocols(candidate.DeclaredProtocols)
	if len(declared) == 0 {
		return append([]domain.Protocol(nil), domain.AllProtocols...)
	}
	return declared
}

// Validate checks a single candidate and rewrites its endpoints to the
// protocols that passed.
func (e *Engine) Validate(ctx context.Context, candidate *domain.Candidate, protocols []domain.Protocol) (*domain.Candidate, bool) {
	e.ValidateBatch(ctx, []Job{{Candidate: candidate, Protocols: protocols}})
	return candidate, candidate.IsValid
}

type verdict struct {
	job      int
	protocol domain.Protocol
	passed   bool
}

// ValidateBatch probes every (candidate, protocol) pair on a bounded pool and
// returns how many candidates ended up valid. Protocols that were not
// finished because ctx was cancelled count as failed.
func (e *Engine) ValidateBatch(ctx context.Context, jobs []Job) int {
	if len(jobs) == 0 {
		return 0
	}

	results := make(chan verdict)
	passed := make([][]domain.Protocol, len(jobs))
	merged := make(chan struct{})

	go func() {
		defer close(merged)
		for v := range results {
			if v.passed {
				passed[v.job] = append(passed[v.job], v.protocol)
			}
		}
	}()

	var group errgroup.Group
	group.SetLimit(e.policy.Concurrency)

dispatch:
	for i, job := range jobs {
		for _, protocol := range domain.NormalizeProtocols(job.Protocols) {
			if ctx.Err() != nil {
				break dispatch
			}

			ip, port := job.Candidate.IP, job.Candidate.Port
			group.Go(func() error {
				results <- verdict{job: i, protocol: protocol, passed: e.check(ctx, protocol, ip, port)}
				return nil
			})
		}
	}

	_ = group.Wait()
	close(results)
	<-merged

	valid := 0
	for i, job := range jobs {
		job.Candidate.SetEndpoints(passed[i])
		if job.Candidate.IsValid {
			valid++
			log.Debug("Found valid proxy", "proxy", job.Candidate.Key(), "protocols", job.Candidate.Protocols())
		}
	}
	return valid
}

func (e *Engine) check(ctx context.Context, protocol domain.Protocol, ip string, port int) bool {
	key := protocol.String() + "://" + domain.EndpointKey(ip, port)

	if e.policy.UseCache {
		if passed, found := e.cache.Get(ctx, key); found {
			return passed
		}
	}

	result, _, _ := e.inflight.Do(key, func() (any, error) {
		return e.probeLoop(ctx, protocol, ip, port), nil
	})
	passed := result.(bool)

	if e.policy.UseCache && ctx.Err() == nil {
		e.cache.Set(ctx, key, passed)
	}
	return passed
}

// probeLoop issues every configured probe, pausing between them, and applies
// the threshold.
func (e *Engine) probeLoop(ctx context.Context, protocol domain.Protocol, ip string, port int) bool {
	passes := 0

	for attempt := 0; attempt < e.policy.Probes; attempt++ {
		if attempt > 0 && e.policy.Delay > 0 {
			timer := time.NewTimer(e.policy.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return false
			case <-timer.C:
			}
		}
		if ctx.Err() != nil {
			return false
		}

		status, err := e.prober.Probe(ctx, protocol, ip, port)
		switch {
		case err != nil:
			log.Debug("Probe failed", "protocol", protocol, "proxy", domain.EndpointKey(ip, port), "attempt", attempt+1, "error", err)
		case status != http.StatusOK:
			log.Debug("Probe rejected", "protocol", protocol, "proxy", domain.EndpointKey(ip, port), "attempt", attempt+1, "status", status)
		default:
			passes++
		}
	}

	return passes >= e.policy.Threshold
}
