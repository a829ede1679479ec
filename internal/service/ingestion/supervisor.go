package ingestion

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/sirupsen/logrus"
)

type SupervisorState string

const (
	StateDisconnected SupervisorState = "disconnected"
	StateConnecting   SupervisorState = "connecting"
	StateConnected    SupervisorState = "connected"
	StateBackoff      SupervisorState = "backoff"
	StateFailed       SupervisorState = "failed"
)

const backoffFactor = 1.5

// backoffDelay is the wait before reconnect attempt n+1 after n consecutive
// failures: min(base * 1.5^n, max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := float64(base) * math.Pow(backoffFactor, float64(attempt))
	if delay > float64(max) {
		return max
	}

	return time.Duration(delay)
}

// Supervisor owns the lifecycle of one push provider: it repairs the session
// with capped exponential backoff and gives up terminally after the
// configured attempt budget. The provider itself never reconnects.
type Supervisor struct {
	provider entity.PushProvider
	store    entity.AssetStore
	turbo    entity.TurboSink
	cfg      config.IngestionConfig

	mu      sync.RWMutex
	state   SupervisorState
	attempt int

	initialized atomic.Bool
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewSupervisor(provider entity.PushProvider, store entity.AssetStore, turbo entity.TurboSink, cfg config.IngestionConfig) *Supervisor {
	return &Supervisor{
		provider: provider,
		store:    store,
		turbo:    turbo,
		cfg:      cfg,
		state:    StateDisconnected,
		done:     make(chan struct{}),
	}
}

func (s *Supervisor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(runCtx)
}

// Stop terminates the supervised session promptly and waits for the run loop
// to exit.
func (s *Supervisor) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done
}

func (s *Supervisor) run(ctx context.Context) {
	defer close(s.done)

	logger := logrus.WithField("provider", s.provider.Name())

	for {
		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}

		s.setState(StateConnecting)

		connected := false
		err := s.provider.Connect(ctx, func(assets []entity.Asset) {
			if !connected {
				connected = true
				s.setState(StateConnected)
				s.resetAttempts()
			}

			s.deliver(ctx, assets)
		})

		if ctx.Err() != nil {
			s.setState(StateDisconnected)
			return
		}

		if err == nil {
			// clean remote close, reconnect without burning an attempt
			logger.Warn("push session ended, reconnecting")
			continue
		}

		attempt := s.failAttempt()
		if attempt >= s.cfg.MaxAttempts {
			s.setState(StateFailed)
			logger.Errorf("giving up after %d attempts: %v", attempt, err)
			return
		}

		wait := backoffDelay(s.cfg.BackoffBase, s.cfg.BackoffCap, attempt)
		s.setState(StateBackoff)
		logger.WithFields(logrus.Fields{
			"attempt":  attempt,
			"retry_in": wait.String(),
		}).Warnf("push session failed: %v", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			s.setState(StateDisconnected)
			return
		}
	}
}

// deliver hands the batch to the turbo path first, then the cache. The turbo
// path never waits on the cache write; a store outage degrades only the
// standard path.
func (s *Supervisor) deliver(ctx context.Context, assets []entity.Asset) {
	if len(assets) == 0 {
		return
	}

	if s.turbo != nil {
		s.turbo.PublishTurbo(assets)
	}

	if _, err := s.store.Write(ctx, assets); err != nil {
		logrus.WithField("provider", s.provider.Name()).Errorf("asset write failed: %v", err)
		return
	}

	s.initialized.Store(true)
}

func (s *Supervisor) setState(state SupervisorState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Supervisor) State() SupervisorState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

func (s *Supervisor) resetAttempts() {
	s.mu.Lock()
	s.attempt = 0
	s.mu.Unlock()
}

func (s *Supervisor) failAttempt() int {
	s.mu.Lock()
	s.attempt++
	attempt := s.attempt
	s.mu.Unlock()

	return attempt
}

func (s *Supervisor) Initialized() bool {
	return s.initialized.Load()
}

func (s *Supervisor) Live() bool {
	return s.State() == StateConnected
}
