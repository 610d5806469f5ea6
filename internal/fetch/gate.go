package fetch

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// hostGate serializes requests to one remote host. The semaphore has a
// single slot so at most one request per host is in flight; the limiter
// optionally spaces consecutive requests.
type hostGate struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

func (g *hostGate) acquire(ctx context.Context) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *hostGate) release() {
	<-g.sem
}

// gateTable hands out one hostGate per host, created on first use.
type gateTable struct {
	mu    sync.Mutex
	gates map[string]*hostGate
	every rate.Limit
}

func newGateTable(every rate.Limit) *gateTable {
	return &gateTable{
		gates: make(map[string]*hostGate),
		every: every,
	}
}

// get returns the gate for host. The table lock is held only for the map
// lookup, never while a request runs.
func (t *gateTable) get(host string) *hostGate {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.gates[host]
	if !ok {
		g = &hostGate{
			sem:     make(chan struct{}, 1),
			limiter: rate.NewLimiter(t.every, 1),
		}
		t.gates[host] = g
	}
	return g
}

// hosts returns the number of hosts seen so far.
func (t *gateTable) hosts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.gates)
}
