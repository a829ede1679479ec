package ingestion

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/ichie-benjamin/market-pulse/internal/config"
	"github.com/ichie-benjamin/market-pulse/internal/entity"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

const defaultPollInterval = 30 * time.Second

// Poller drives one (provider, category) polling schedule. Every tick goes
// through a circuit breaker so a broken upstream fails fast instead of
// stacking slow requests, and other categories keep their own cadence.
type Poller struct {
	provider entity.PollProvider
	category entity.Category
	store    entity.AssetStore
	turbo    entity.TurboSink
	interval time.Duration
	breaker  *gobreaker.CircuitBreaker[[]entity.Asset]

	refresh     chan struct{}
	initialized atomic.Bool
	live        atomic.Bool
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewPoller(provider entity.PollProvider, category entity.Category, store entity.AssetStore, turbo entity.TurboSink, interval time.Duration, cfg config.IngestionConfig) *Poller {
	if interval <= 0 {
		interval = defaultPollInterval
	}

	settings := gobreaker.Settings{
		Name:        provider.Name() + ":" + string(category),
		MaxRequests: 1, // half-open admits exactly one trial call
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinCalls {
				return false
			}

			failRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return failRate >= cfg.BreakerFailRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("poll circuit breaker state changed")
		},
	}

	return &Poller{
		provider: provider,
		category: category,
		store:    store,
		turbo:    turbo,
		interval: interval,
		breaker:  gobreaker.NewCircuitBreaker[[]entity.Asset](settings),
		refresh:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (p *Poller) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go p.run(runCtx)
}

func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	<-p.done
}

// Refresh schedules an immediate out-of-band poll. Coalesces when one is
// already pending.
func (p *Poller) Refresh() {
	select {
	case p.refresh <- struct{}{}:
	default:
	}
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		case <-p.refresh:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	logger := logrus.WithFields(logrus.Fields{
		"provider": p.provider.Name(),
		"category": p.category,
	})

	assets, err := p.breaker.Execute(func() ([]entity.Asset, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, p.interval)
		defer cancel()

		return p.provider.Fetch(fetchCtx, p.category)
	})
	if err != nil {
		p.live.Store(false)

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logger.Debug("poll skipped: circuit breaker open")
			return
		}

		logger.Errorf("poll failed: %v", err)
		return
	}

	p.live.Store(true)
	if len(assets) == 0 {
		return
	}

	if p.turbo != nil {
		p.turbo.PublishTurbo(assets)
	}

	if _, err := p.store.Write(ctx, assets); err != nil {
		logger.Errorf("asset write failed: %v", err)
		return
	}

	p.initialized.Store(true)
}

func (p *Poller) Initialized() bool {
	return p.initialized.Load()
}

func (p *Poller) Live() bool {
	return p.live.Load()
}
