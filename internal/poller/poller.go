// Package poller refreshes the dashboard snapshot on a fixed interval.
package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"catdash/internal/alerts"
	"catdash/internal/model"
	"catdash/internal/observability"
)

const DefaultInterval = 30 * time.Second

// Fetcher produces a snapshot and never fails; failures come back flagged stale.
type Fetcher interface {
	FetchSafe(ctx context.Context) model.Snapshot
}

// Config holds poller settings.
type Config struct {
	Interval       time.Duration
	AlertThreshold float64
	Watch          []string
}

// Update is published after every completed refresh.
type Update struct {
	Previous model.Snapshot
	Current  model.Snapshot
	Alerts   []alerts.Alert
}

// Poller holds the latest snapshot and runs at most one refresh at a time.
type Poller struct {
	cfg     Config
	fetcher Fetcher
	metrics *observability.Metrics
	logger  *zap.Logger
	watch   map[string]struct{}

	running atomic.Bool
	wg      sync.WaitGroup

	mu      sync.RWMutex
	current model.Snapshot
	ready   bool

	subMu  sync.Mutex
	subs   map[int]chan Update
	nextID int
}

func New(cfg Config, fetcher Fetcher, metrics *observability.Metrics, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		metrics: metrics,
		logger:  logger,
		watch:   alerts.WatchSet(cfg.Watch),
		subs:    make(map[int]chan Update),
	}
}

// Run refreshes immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	if p.fetcher == nil {
		return fmt.Errorf("fetcher is nil")
	}
	defer p.wg.Wait()

	p.start(ctx)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.logger.Info("poller started", zap.Duration("interval", p.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopping")
			return nil
		case <-ticker.C:
			p.start(ctx)
		}
	}
}

func (p *Poller) start(ctx context.Context) {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.SkipTick()
		p.logger.Debug("refresh still running, tick dropped")
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.running.Store(false)
		p.refresh(ctx)
	}()
}

// Refresh runs one cycle synchronously. It returns false without fetching
// when another cycle is in flight.
func (p *Poller) Refresh(ctx context.Context) bool {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.SkipTick()
		return false
	}
	defer p.running.Store(false)
	p.refresh(ctx)
	return true
}

func (p *Poller) refresh(ctx context.Context) {
	next := p.fetcher.FetchSafe(ctx)

	p.mu.Lock()
	prev, hadPrev := p.current, p.ready
	if next.IsStale && hadPrev && len(prev.Tokens) > 0 {
		kept := prev
		kept.IsStale = true
		next = kept
	}
	p.current = next
	p.ready = true
	p.mu.Unlock()

	var triggered []alerts.Alert
	if hadPrev {
		triggered = alerts.Detect(prev, next, p.cfg.AlertThreshold, p.watch)
	}
	p.metrics.AddAlerts(len(triggered))

	p.logger.Debug("snapshot refreshed",
		zap.Int("tokens", len(next.Tokens)),
		zap.Bool("stale", next.IsStale),
		zap.Int("alerts", len(triggered)),
	)
	for _, a := range triggered {
		p.logger.Info("price alert",
			zap.String("id", a.ID),
			zap.String("symbol", a.Symbol),
			zap.Float64("change_pct", a.ChangePct),
			zap.String("direction", string(a.Direction)),
		)
	}

	p.publish(Update{Previous: prev, Current: next, Alerts: triggered})
}

// Current returns the held snapshot; ok is false before the first refresh completes.
func (p *Poller) Current() (model.Snapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current, p.ready
}

// Subscribe registers a listener. Updates are dropped for a subscriber whose buffer is full.
// The returned func unsubscribes and closes the channel.
func (p *Poller) Subscribe(buffer int) (<-chan Update, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Update, buffer)

	p.subMu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.subMu.Lock()
			delete(p.subs, id)
			p.subMu.Unlock()
			close(ch)
		})
	}
}

func (p *Poller) publish(update Update) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for id, ch := range p.subs {
		select {
		case ch <- update:
		default:
			p.logger.Debug("subscriber lagging, update dropped", zap.Int("subscriber", id))
		}
	}
}
