package pipeline

import (
	"context"
	"fmt"
	"time"

	"tradePilot/internal/ports"
)

// Start launches the monitoring loop. Calling Start on a running pipeline
// is a no-op.
func (p *Pipeline) Start(ctx context.Context) {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.cancel != nil {
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.refreshFailures = 0
	go p.run(loopCtx, done)

	p.logger.Info(ctx, "Signal pipeline started", map[string]interface{}{
		"interval":   p.cfg.UpdateInterval.String(),
		"strategies": len(p.strategies),
		"symbols":    p.cfg.Symbols,
	})
}

// Stop ends the loop and blocks until the in-flight batch, if any, has
// finished. Stopping a stopped pipeline is a no-op.
func (p *Pipeline) Stop() {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
	p.done = nil
	p.logger.Info(context.Background(), "Signal pipeline stopped", map[string]interface{}{
		"stats": p.Stats(),
	})
}

// Running reports whether the loop is active.
func (p *Pipeline) Running() bool {
	p.lifecycle.Lock()
	defer p.lifecycle.Unlock()
	return p.cancel != nil
}

// Faults delivers unrecoverable loop faults to the supervisor.
func (p *Pipeline) Faults() <-chan error {
	return p.faults
}

func (p *Pipeline) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer p.inflight.Wait()

	ticker := time.NewTicker(p.cfg.UpdateInterval)
	defer ticker.Stop()

	p.trigger(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.trigger(ctx)
		}
	}
}

// trigger starts a cycle unless one is still running; busy ticks are
// dropped, not queued.
func (p *Pipeline) trigger(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		p.logger.Debug(ctx, "Previous batch still running, skipping tick")
		return
	}
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		defer p.busy.Store(false)
		p.RunCycle(ctx)
	}()
}

// RunCycle performs one refresh, generate and execute pass. Order processing
// is detached from ctx cancellation so a stop never abandons a submission.
func (p *Pipeline) RunCycle(ctx context.Context) {
	op := "RunCycle"
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%s: panic: %v", op, r)
			p.logger.Error(ctx, err, "Pipeline cycle crashed")
			p.reportFault(err)
		}
	}()

	snap, err := p.gateway.PortfolioSnapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.refreshFailures++
		p.logger.Warn(ctx, fmt.Sprintf("%s: portfolio refresh failed", op), map[string]interface{}{
			"error":    err.Error(),
			"failures": p.refreshFailures,
		})
		if p.refreshFailures >= p.cfg.MaxRefreshFailures {
			p.reportFault(fmt.Errorf("%w: %d consecutive portfolio refresh failures: %v", ports.ErrConnectivity, p.refreshFailures, err))
		}
		return
	}
	p.refreshFailures = 0
	p.risk.UpdatePortfolio(ctx, snap)

	if ctx.Err() != nil {
		return
	}
	ts := p.now()
	market := p.fetchMarket(ctx)
	if p.cfg.DeriveCorrelations {
		p.refreshCorrelations(ctx, market)
	}
	signals := p.generate(ctx, ts, market)
	if len(signals) == 0 {
		p.logger.Debug(ctx, fmt.Sprintf("%s: no signals", op))
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.ProcessBatch(context.WithoutCancel(ctx), signals)
}

func (p *Pipeline) reportFault(err error) {
	select {
	case p.faults <- err:
	default:
	}
}
