package sync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/railfield/tracksync/internal/events"
	"github.com/railfield/tracksync/internal/models"
	"github.com/railfield/tracksync/internal/probe"
)

// Service runs synchronization cycles in the background: on a periodic
// tick, whenever the probe reports the network came back, and on explicit
// user request.
type Service struct {
	engine   *Engine
	probe    *probe.Probe
	interval time.Duration
	logger   *events.Logger

	trigger chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	subs    []chan Event
}

// NewService creates a sync service around an engine.
func NewService(engine *Engine, netProbe *probe.Probe, interval time.Duration, logger *events.Logger) *Service {
	return &Service{
		engine:   engine,
		probe:    netProbe,
		interval: interval,
		logger:   logger.WithField("service", "sync"),
		trigger:  make(chan struct{}, 1),
	}
}

// Engine exposes the underlying engine for progress and event access.
func (s *Service) Engine() *Engine {
	return s.engine
}

// SyncOnce runs a single foreground cycle.
func (s *Service) SyncOnce(ctx context.Context) error {
	return s.engine.SyncOnce(ctx)
}

// Start launches the background loop. Safe to call once.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.stopped = make(chan struct{})

	go s.run(ctx)
	go s.forward(ctx)
	s.logger.WithField("interval", s.interval.String()).Info("Sync service started")
}

// Stop cancels the background loop and any in-flight cycle, then waits
// for the loop to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	stopped := s.stopped
	s.mu.Unlock()

	cancel()
	s.engine.Cancel()
	<-stopped
	s.logger.Info("Sync service stopped")
}

// TriggerSync requests a cycle outside the normal schedule. Coalesces
// when a request is already pending.
func (s *Service) TriggerSync() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Subscribe returns a channel receiving engine events while the service
// runs. Slow subscribers miss events rather than block the forwarder.
func (s *Service) Subscribe() <-chan Event {
	ch := make(chan Event, 32)

	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	return ch
}

func (s *Service) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-s.engine.Events():
			s.mu.Lock()
			for _, sub := range s.subs {
				select {
				case sub <- event:
				default:
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *Service) run(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var transitions <-chan bool
	if s.probe != nil {
		transitions = s.probe.Subscribe()
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			s.cycle(ctx, "tick")

		case <-s.trigger:
			s.cycle(ctx, "trigger")

		case online := <-transitions:
			// Flush the backlog as soon as connectivity returns.
			if online {
				s.cycle(ctx, "online")
			}
		}
	}
}

func (s *Service) cycle(ctx context.Context, reason string) {
	err := s.engine.SyncOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrOffline):
		s.logger.WithField("reason", reason).Debug("Skipping cycle, offline")
	case errors.Is(err, models.ErrSyncInProgress):
		s.logger.WithField("reason", reason).Debug("Skipping cycle, already syncing")
	case errors.Is(err, context.Canceled):
	default:
		s.logger.WithError(err).WithField("reason", reason).Error("Sync cycle failed")
	}
}
