package checker

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"proxycrawler/internal/domain"
)

// scriptedProber answers probes from a fixed status sequence per
// protocol://ip:port. An exhausted or missing script fails the probe.
type scriptedProber struct {
	mu      sync.Mutex
	scripts map[string][]int
	calls   map[string]int
}

func newScriptedProber(scripts map[string][]int) *scriptedProber {
	return &scriptedProber{scripts: scripts, calls: make(map[string]int)}
}

func (p *scriptedProber) Probe(_ context.Context, protocol domain.Protocol, ip string, port int) (int, error) {
	key := protocol.String() + "://" + domain.EndpointKey(ip, port)

	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.calls[key]
	p.calls[key] = n + 1

	script := p.scripts[key]
	if n >= len(script) {
		return 0, errors.New("connection refused")
	}
	return script[n], nil
}

func (p *scriptedProber) callCount(key string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[key]
}

type memoryVerdictCache struct {
	mu       sync.Mutex
	verdicts map[string]bool
}

func newMemoryVerdictCache() *memoryVerdictCache {
	return &memoryVerdictCache{verdicts: make(map[string]bool)}
}

func (c *memoryVerdictCache) Get(_ context.Context, key string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	passed, ok := c.verdicts[key]
	return passed, ok
}

func (c *memoryVerdictCache) Set(_ context.Context, key string, passed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verdicts[key] = passed
}

// callRecorder answers 200 and remembers when each request was made. onCall,
// when set, runs before answering and receives the 1-based call number.
type callRecorder struct {
	mu     sync.Mutex
	times  []time.Time
	onCall func(ctx context.Context, call int)
}

func (r *callRecorder) Probe(ctx context.Context, _ domain.Protocol, _ string, _ int) (int, error) {
	r.mu.Lock()
	r.times = append(r.times, time.Now())
	call := len(r.times)
	r.mu.Unlock()

	if r.onCall != nil {
		r.onCall(ctx, call)
	}
	return http.StatusOK, nil
}

func (r *callRecorder) calls() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Time(nil), r.times...)
}
