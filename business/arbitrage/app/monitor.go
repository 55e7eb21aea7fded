package app

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/flash-defi/venus/internal/logger"
	"github.com/flash-defi/venus/internal/market"
)

const monitorMeterName = "github.com/flash-defi/venus/business/arbitrage/app"

// SpreadSource is the typed liveness capability a venue session exposes; a
// nil spread means the venue book is not currently trustworthy.
type SpreadSource func() *market.Spread

// Monitor consumes the merged market-change stream, tracks the last seen
// top of book per venue, and emits at most one intent per change when the
// dislocation strictly exceeds the threshold.
type Monitor struct {
	thresholdBp decimal.Decimal
	notional    decimal.Decimal
	opener      Opener
	cexLive     SpreadSource // nil-able gate: suppress intents while the venue book is stale
	log         logger.LoggerInterface

	mu     sync.RWMutex
	cexBid *decimal.Decimal
	cexAsk *decimal.Decimal
	dexBid *decimal.Decimal
	dexAsk *decimal.Decimal

	intentsEmitted metric.Int64Counter
}

// NewMonitor creates the spread monitor.
func NewMonitor(thresholdBp, notional decimal.Decimal, opener Opener, cexLive SpreadSource, log logger.LoggerInterface) *Monitor {
	m := &Monitor{
		thresholdBp: thresholdBp,
		notional:    notional,
		opener:      opener,
		cexLive:     cexLive,
		log:         log.With("component", "monitor"),
	}

	meter := otel.Meter(monitorMeterName)
	counter, err := meter.Int64Counter(
		"arbitrage_intents_emitted_total",
		metric.WithDescription("Arbitrage intents emitted by the spread monitor"),
	)
	if err == nil {
		m.intentsEmitted = counter
	}

	return m
}

// Run consumes market changes until the channel closes or the context ends.
func (m *Monitor) Run(ctx context.Context, changes <-chan market.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case change, ok := <-changes:
			if !ok {
				return
			}
			m.OnChange(ctx, change)
		}
	}
}

// OnChange folds one market change into the state and emits an intent when
// a crossing strictly exceeds the threshold.
func (m *Monitor) OnChange(ctx context.Context, change market.Change) {
	m.mu.Lock()
	if change.Cex != nil {
		bid, ask := change.Cex.BestBid, change.Cex.BestAsk
		m.cexBid, m.cexAsk = &bid, &ask
	}
	if change.Dex != nil {
		bid, ask := change.Dex.BestBid, change.Dex.BestAsk
		m.dexBid, m.dexAsk = &bid, &ask
	}
	ready := m.cexBid != nil && m.cexAsk != nil && m.dexBid != nil && m.dexAsk != nil
	var cexBid, cexAsk, dexBid, dexAsk decimal.Decimal
	if ready {
		cexBid, cexAsk, dexBid, dexAsk = *m.cexBid, *m.cexAsk, *m.dexBid, *m.dexAsk
	}
	m.mu.Unlock()

	if !ready {
		return
	}

	// A stale venue book publishes nothing new, but the retained last
	// values must not keep firing either.
	if m.cexLive != nil && m.cexLive() == nil {
		return
	}

	m.log.Debug(ctx, "current spread",
		"cex_bid", cexBid.String(), "cex_ask", cexAsk.String(),
		"dex_bid", dexBid.String(), "dex_ask", dexAsk.String(),
	)

	// At most one intent per change; under the no-crossed-book invariant
	// the two directions cannot hold simultaneously.
	if cexBid.GreaterThan(dexAsk) {
		delta := market.DeltaBp(cexBid, dexAsk)
		if delta.GreaterThan(m.thresholdBp) {
			m.log.Info(ctx, "found a cross",
				"direction", string(SellCexBuyDex),
				"cex_bid", cexBid.String(), "dex_ask", dexAsk.String(),
				"delta_bp", delta.StringFixed(2),
			)
			m.emit(ctx, Intent{
				Direction: SellCexBuyDex,
				CexAmount: m.notional.Neg(),
				DexAmount: m.notional,
				DeltaBp:   delta,
			})
		}
		return
	}

	if dexBid.GreaterThan(cexAsk) {
		delta := market.DeltaBp(dexBid, cexAsk)
		if delta.GreaterThan(m.thresholdBp) {
			m.log.Info(ctx, "found a cross",
				"direction", string(BuyCexSellDex),
				"dex_bid", dexBid.String(), "cex_ask", cexAsk.String(),
				"delta_bp", delta.StringFixed(2),
			)
			m.emit(ctx, Intent{
				Direction: BuyCexSellDex,
				CexAmount: m.notional,
				DexAmount: m.notional.Neg(),
				DeltaBp:   delta,
			})
		}
	}
}

func (m *Monitor) emit(ctx context.Context, intent Intent) {
	if m.intentsEmitted != nil {
		m.intentsEmitted.Add(ctx, 1)
	}
	m.opener.TryOpen(ctx, intent)
}

// LastSpreads returns copies of the last seen venue spreads; either may be
// nil before first sight. Used by the status reporter.
func (m *Monitor) LastSpreads() (cex, dex *market.Spread) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cexBid != nil && m.cexAsk != nil {
		cex = &market.Spread{BestBid: *m.cexBid, BestAsk: *m.cexAsk}
	}
	if m.dexBid != nil && m.dexAsk != nil {
		dex = &market.Spread{BestBid: *m.dexBid, BestAsk: *m.dexAsk}
	}
	return cex, dex
}

// LastDexBid returns the last seen DEX bid; the coordinator uses it to
// price the quote-asset balance floor.
func (m *Monitor) LastDexBid() (decimal.Decimal, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.dexBid == nil {
		return decimal.Decimal{}, false
	}
	return *m.dexBid, true
}
