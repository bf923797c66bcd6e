package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tradePilot/internal/domain"
	"tradePilot/internal/ports"
	"tradePilot/internal/risk"
	"tradePilot/internal/strategy/indicators"
)

type strategyOutput struct {
	signals []domain.TradingSignal
	err     error
}

// generate asks every strategy for signals concurrently. A failing, slow or
// panicking strategy is logged and contributes nothing; the rest are kept in
// registration order.
func (p *Pipeline) generate(ctx context.Context, ts time.Time, market domain.MarketData) []domain.TradingSignal {
	outputs := make([][]domain.TradingSignal, len(p.strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range p.strategies {
		g.Go(func() error {
			sigs, err := p.callStrategy(gctx, s, ts, market)
			if err != nil {
				p.logger.Error(ctx, err, "Strategy failed, skipping its signals", map[string]interface{}{
					"strategy": s.Name(),
				})
				return nil
			}
			outputs[i] = sigs
			return nil
		})
	}
	_ = g.Wait()

	var all []domain.TradingSignal
	for _, sigs := range outputs {
		all = append(all, sigs...)
	}
	return all
}

func (p *Pipeline) callStrategy(ctx context.Context, s ports.StrategyCapability, ts time.Time, market domain.MarketData) ([]domain.TradingSignal, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.StrategyTimeout)
	defer cancel()

	out := make(chan strategyOutput, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				out <- strategyOutput{err: &ports.StrategyError{Strategy: s.Name(), Err: fmt.Errorf("panic: %v", r)}}
			}
		}()
		sigs, err := s.GenerateSignals(ctx, ts, market)
		if err != nil {
			err = &ports.StrategyError{Strategy: s.Name(), Err: err}
		}
		out <- strategyOutput{signals: sigs, err: err}
	}()

	select {
	case o := <-out:
		return o.signals, o.err
	case <-ctx.Done():
		return nil, &ports.StrategyError{Strategy: s.Name(), Err: fmt.Errorf("%w: %v", ports.ErrTimeout, ctx.Err())}
	}
}

// fetchMarket loads bars for each configured symbol. Symbols that fail are
// left out of the map.
func (p *Pipeline) fetchMarket(ctx context.Context) domain.MarketData {
	market := make(domain.MarketData, len(p.cfg.Symbols))
	if p.market == nil {
		return market
	}
	for _, symbol := range p.cfg.Symbols {
		bars, err := p.market.Bars(ctx, symbol, p.cfg.BarLimit)
		if err != nil {
			p.logger.Warn(ctx, "Failed to fetch bars", map[string]interface{}{
				"symbol": symbol,
				"error":  err.Error(),
			})
			continue
		}
		market[symbol] = bars
	}
	return market
}

// refreshCorrelations swaps in pairwise return correlations of the fetched
// symbols. An empty market keeps the current source.
func (p *Pipeline) refreshCorrelations(ctx context.Context, market domain.MarketData) {
	returns := make(map[string][]float64, len(market))
	for symbol, bars := range market {
		if r := indicators.Returns(bars); len(r) >= 2 {
			returns[symbol] = r
		}
	}
	if len(returns) < 2 {
		return
	}
	m := risk.CorrelationFromReturns(returns)
	p.risk.SwapCorrelations(m)
	p.logger.Debug(ctx, "Correlations refreshed from market data", map[string]interface{}{
		"symbols": len(returns),
		"pairs":   m.Len(),
	})
}
