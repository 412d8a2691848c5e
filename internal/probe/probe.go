package probe

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/railfield/tracksync/internal/config"
	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/transport"
)

// Probe periodically checks endpoint reachability and publishes an
// advisory online signal. It never blocks capture operations; the
// synchronizer merely consults the last published state.
type Probe struct {
	endpoints []transport.Endpoint
	interval  time.Duration
	timeout   time.Duration
	logger    *events.Logger

	online atomic.Bool

	mu      sync.Mutex
	subs    []chan bool
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New creates a probe over the configured endpoints.
func New(endpoints []transport.Endpoint, cfg config.ProbeConfig, logger *events.Logger) *Probe {
	return &Probe{
		endpoints: endpoints,
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		logger:    logger.WithField("component", "network_probe"),
	}
}

// Start launches the background probe loop. The first check runs
// immediately so startup does not wait a full interval for a signal.
func (p *Probe) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop halts the background loop and waits for it to exit.
func (p *Probe) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.running = false
	p.mu.Unlock()

	p.wg.Wait()
}

// Online returns the last published reachability state.
func (p *Probe) Online() bool {
	return p.online.Load()
}

// Subscribe returns a channel receiving online/offline transitions.
// Slow receivers miss intermediate transitions rather than blocking
// the probe.
func (p *Probe) Subscribe() <-chan bool {
	ch := make(chan bool, 1)

	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()

	return ch
}

// CheckNow runs one probe pass: online when any endpoint responds.
func (p *Probe) CheckNow(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	online := false
	for _, ep := range p.endpoints {
		if err := ep.Ping(ctx); err == nil {
			online = true
			break
		}
	}

	p.publish(online)
	return online
}

func (p *Probe) loop(ctx context.Context) {
	defer p.wg.Done()

	p.CheckNow(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CheckNow(ctx)
		}
	}
}

func (p *Probe) publish(online bool) {
	previous := p.online.Swap(online)
	if previous == online {
		return
	}

	if online {
		p.logger.Info("Network reachable, sync eligible")
	} else {
		p.logger.Warn("Network unreachable, entering offline mode")
	}

	p.mu.Lock()
	subs := append([]chan bool(nil), p.subs...)
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Drop rather than block; subscribers poll Online anyway.
		}
	}
}
