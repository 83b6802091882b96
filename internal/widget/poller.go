package widget

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sumire/calwidget/internal/domain"
)

// DefaultInterval matches the widget's one-minute refresh.
const DefaultInterval = time.Minute

// EventFetcher is the part of Client the poller needs.
type EventFetcher interface {
	FetchEvents(ctx context.Context) ([]domain.EventRecord, error)
}

// RenderFunc receives the outcome of the most recent poll.
type RenderFunc func(records []domain.EventRecord, err error)

// PollerConfig holds Poller settings. Zero values take the defaults; a Timeout
// longer than Interval is cut to Interval.
type PollerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Location *time.Location
}

// Poller refreshes events on a fixed wall-clock schedule. Polls may overlap
// when the backend is slow; a result is rendered only if no newer poll has
// started since it was issued.
type Poller struct {
	fetcher  EventFetcher
	render   RenderFunc
	interval time.Duration
	timeout  time.Duration
	cron     *cron.Cron

	seq      atomic.Uint64
	renderMu sync.Mutex
	inflight sync.WaitGroup
}

// NewPoller creates a Poller that hands each fresh result to render. The
// per-poll timeout never exceeds the interval.
func NewPoller(fetcher EventFetcher, render RenderFunc, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Timeout > cfg.Interval {
		slog.Warn("poll timeout exceeds interval, using interval",
			"timeout", cfg.Timeout.String(),
			"interval", cfg.Interval.String(),
		)
		cfg.Timeout = cfg.Interval
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}

	return &Poller{
		fetcher:  fetcher,
		render:   render,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		cron:     cron.New(cron.WithLocation(loc)),
	}
}

// Start polls once immediately, then on every interval until ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	schedule := fmt.Sprintf("@every %s", p.interval)
	if _, err := p.cron.AddFunc(schedule, func() { p.Poll(ctx) }); err != nil {
		return fmt.Errorf("add poll job: %w", err)
	}

	p.cron.Start()
	slog.Info("poller started", "interval", p.interval.String())

	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		p.Poll(ctx)
	}()

	<-ctx.Done()
	p.Stop()
	return nil
}

// Stop halts the schedule and waits for running polls to finish.
func (p *Poller) Stop() {
	done := p.cron.Stop()
	<-done.Done()
	p.inflight.Wait()
	slog.Info("poller stopped")
}

// Poll fetches once and reports whether the result was rendered.
func (p *Poller) Poll(ctx context.Context) bool {
	seq := p.seq.Add(1)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	records, err := p.fetcher.FetchEvents(ctx)

	p.renderMu.Lock()
	defer p.renderMu.Unlock()

	if p.seq.Load() != seq {
		slog.Debug("discarding stale poll result", "seq", seq)
		return false
	}
	if err != nil {
		slog.Warn("poll failed", "error", err)
	}
	p.render(records, err)
	return true
}
