package app

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/flash-defi/venus/business/arbitrage/domain"
	cexdomain "github.com/flash-defi/venus/business/cex/domain"
	dexdomain "github.com/flash-defi/venus/business/dex/domain"
	"github.com/flash-defi/venus/internal/asset"
	"github.com/flash-defi/venus/internal/logger"
	"github.com/flash-defi/venus/internal/venue"
)

const (
	coordinatorTracerName = "github.com/flash-defi/venus/business/arbitrage/app"

	// DefaultMaxInflight is the hard ceiling on attempts still awaiting their CEX fill.
	DefaultMaxInflight = 5

	// DefaultHalfFillTimeout bounds how long one leg may dangle alone.
	DefaultHalfFillTimeout = 30 * time.Second

	// MinAssetBalanceMultiplier prices the balance safety floor in units of
	// the per-leg notional.
	MinAssetBalanceMultiplier = 5
)

// CoordinatorConfig holds the coordinator's market selection and budgets.
type CoordinatorConfig struct {
	Cex       venue.Cex
	Dex       venue.Dex
	Network   venue.Network
	Pair      asset.Pair
	FeeTier   uint32
	Recipient common.Address
	// Notional is the per-leg base amount.
	Notional decimal.Decimal

	MaxInflight     int32
	HalfFillTimeout time.Duration
}

func (c *CoordinatorConfig) withDefaults() {
	if c.MaxInflight == 0 {
		c.MaxInflight = DefaultMaxInflight
	}
	if c.HalfFillTimeout == 0 {
		c.HalfFillTimeout = DefaultHalfFillTimeout
	}
}

type coordinatorMetrics struct {
	opened    metric.Int64Counter
	dropped   metric.Int64Counter
	settled   metric.Int64Counter
	failed    metric.Int64Counter
	inflightG metric.Int64Gauge
}

// Coordinator owns the arbitrage table and the inflight budget. All table
// mutations go through its exclusive lock; reads by other components use
// the snapshot accessors. One Coordinator value, constructed at startup,
// replaces every piece of cross-task shared state.
type Coordinator struct {
	cfg        CoordinatorConfig
	cex        CexTrader
	dex        DexTrader
	reconciler *Reconciler
	log        logger.LoggerInterface

	// now supplies wall-clock milliseconds for CID allocation.
	now func() int64
	// fatal stops the process on unrecoverable market-safety conditions.
	fatal func(reason string)

	mu      sync.RWMutex
	table   map[domain.CID]*domain.Pair
	lastCID domain.CID

	inflight atomic.Int32

	// minBaseBalance is the immutable balance floor in base asset.
	minBaseBalance decimal.Decimal
	// dexBid prices the quote-asset floor; fed by the monitor.
	dexBid func() (decimal.Decimal, bool)

	tracer  trace.Tracer
	metrics *coordinatorMetrics
}

// NewCoordinator wires the coordinator. fatal is invoked (once) on market
// safety violations; the caller decides how the process dies.
func NewCoordinator(
	cfg CoordinatorConfig,
	cex CexTrader,
	dex DexTrader,
	reconciler *Reconciler,
	now func() int64,
	fatal func(reason string),
	dexBid func() (decimal.Decimal, bool),
	log logger.LoggerInterface,
) *Coordinator {
	cfg.withDefaults()

	c := &Coordinator{
		cfg:            cfg,
		cex:            cex,
		dex:            dex,
		reconciler:     reconciler,
		log:            log.With("component", "coordinator"),
		now:            now,
		fatal:          fatal,
		table:          make(map[domain.CID]*domain.Pair),
		minBaseBalance: cfg.Notional.Mul(decimal.NewFromInt(MinAssetBalanceMultiplier)),
		dexBid:         dexBid,
		tracer:         otel.Tracer(coordinatorTracerName),
	}

	c.initMetrics()
	return c
}

func (c *Coordinator) initMetrics() {
	meter := otel.Meter(coordinatorTracerName)
	m := &coordinatorMetrics{}
	var err error

	if m.opened, err = meter.Int64Counter("arbitrage_opened_total",
		metric.WithDescription("Arbitrage attempts opened")); err != nil {
		return
	}
	if m.dropped, err = meter.Int64Counter("arbitrage_dropped_total",
		metric.WithDescription("Intents dropped by the inflight ceiling")); err != nil {
		return
	}
	if m.settled, err = meter.Int64Counter("arbitrage_settled_total",
		metric.WithDescription("Arbitrage attempts settled")); err != nil {
		return
	}
	if m.failed, err = meter.Int64Counter("arbitrage_failed_total",
		metric.WithDescription("Arbitrage attempts failed")); err != nil {
		return
	}
	if m.inflightG, err = meter.Int64Gauge("arbitrage_inflight",
		metric.WithDescription("Attempts awaiting their CEX fill")); err != nil {
		return
	}

	c.metrics = m
}

// Inflight returns the current inflight count.
func (c *Coordinator) Inflight() int32 { return c.inflight.Load() }

// ActivePairs returns a snapshot of the open table ordered by CID.
func (c *Coordinator) ActivePairs() []domain.Pair {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Pair, 0, len(c.table))
	for _, p := range c.table {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// allocateCID returns a unique wall-clock millisecond identifier. Two opens
// within the same millisecond test-and-bump to preserve uniqueness.
// Caller holds c.mu.
func (c *Coordinator) allocateCID() domain.CID {
	cid := domain.CID(c.now())
	if cid <= c.lastCID {
		cid = c.lastCID + 1
	}
	c.lastCID = cid
	return cid
}

// TryOpen admits one intent: budget check, table insert, then the CEX leg
// before the DEX leg. CEX latency dominates time-to-hedge, so its order
// goes out first.
func (c *Coordinator) TryOpen(ctx context.Context, intent Intent) {
	ctx, span := c.tracer.Start(ctx, "coordinator.try_open",
		trace.WithAttributes(
			attribute.String("direction", string(intent.Direction)),
			attribute.String("delta_bp", intent.DeltaBp.StringFixed(2)),
		),
	)
	defer span.End()

	if c.inflight.Load() >= c.cfg.MaxInflight {
		if c.metrics != nil {
			c.metrics.dropped.Add(ctx, 1)
		}
		c.log.Warn(ctx, "inflight ceiling reached, dropping intent",
			"inflight", c.inflight.Load(), "max", c.cfg.MaxInflight)
		return
	}
	c.recordInflight(ctx, c.inflight.Add(1))

	c.mu.Lock()
	cid := c.allocateCID()
	pair := &domain.Pair{
		ID:       cid,
		Datetime: time.UnixMilli(c.now()),
		Base:     c.cfg.Pair.Base,
		Quote:    c.cfg.Pair.Quote,
		Cex: domain.CexLeg{
			Venue:             c.cfg.Cex,
			InstructionAmount: intent.CexAmount,
		},
		Dex: domain.DexLeg{
			Venue:             c.cfg.Dex,
			Network:           c.cfg.Network,
			FeeTier:           c.cfg.FeeTier,
			InstructionAmount: intent.DexAmount,
		},
	}
	c.table[cid] = pair
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.opened.Add(ctx, 1)
	}
	span.SetAttributes(attribute.Int64("cid", int64(cid)))
	c.log.Info(ctx, "arbitrage opened",
		"cid", int64(cid),
		"direction", string(intent.Direction),
		"cex_amount", intent.CexAmount.String(),
		"dex_amount", intent.DexAmount.String(),
	)

	// CEX leg: fire-and-forget, the fill arrives on the event stream.
	if err := c.cex.SubmitOrder(ctx, int64(cid), c.cfg.Cex, c.cfg.Pair, intent.CexAmount); err != nil {
		c.log.Error(ctx, "cex submit failed", "cid", int64(cid), "error", err)
		// The session reports SendFailed on the event stream; lifecycle
		// handling happens there.
	}

	// DEX leg. A failure here does not cancel the CEX leg; the operator
	// accepted delta risk at the configured notional.
	hash, err := c.dex.SubmitOrder(ctx, intent.DexAmount, c.cfg.Recipient)
	if err != nil {
		c.log.Error(ctx, "dex submit failed", "cid", int64(cid), "error", err)
		c.mu.Lock()
		pair.Dex.Failed = true
		pair.Dex.FailReason = err.Error()
		c.mu.Unlock()
		c.checkStatus(ctx)
		return
	}

	c.mu.Lock()
	pair.Dex.TxHash = &hash
	c.mu.Unlock()
	c.log.Info(ctx, "dex order sent", "cid", int64(cid), "tx", hash.Hex())
}

// Run drives the coordinator from its two event streams plus a periodic
// half-fill scan tick, until the context ends.
func (c *Coordinator) Run(ctx context.Context, cexEvents <-chan cexdomain.Event, dexFinalised <-chan dexdomain.SwapFinalised) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-cexEvents:
			if !ok {
				return
			}
			c.OnCexEvent(ctx, ev)
		case fin, ok := <-dexFinalised:
			if !ok {
				return
			}
			c.OnDexFinalised(ctx, fin)
		case <-ticker.C:
			c.checkStatus(ctx)
		}
	}
}

// OnCexEvent applies one exchange event to the table.
func (c *Coordinator) OnCexEvent(ctx context.Context, ev cexdomain.Event) {
	switch e := ev.(type) {
	case cexdomain.Balance:
		c.onBalance(ctx, e)
		return
	case cexdomain.TradeExecution:
		c.onTradeExecution(ctx, e)
	case cexdomain.SendFailed:
		c.onSendFailed(ctx, e)
	}
	c.checkStatus(ctx)
}

func (c *Coordinator) onTradeExecution(ctx context.Context, trade cexdomain.TradeExecution) {
	cid := domain.CID(trade.ClientOrderID)

	c.mu.Lock()
	pair, ok := c.table[cid]
	if !ok {
		c.mu.Unlock()
		// Late fill after its pair left the table (e.g. post-shutdown of
		// the attempt): nothing to update.
		c.log.Warn(ctx, "fill for unknown cid discarded", "cid", trade.ClientOrderID)
		return
	}
	if pair.Cex.Fill != nil {
		c.mu.Unlock()
		c.log.Warn(ctx, "duplicate fill ignored", "cid", trade.ClientOrderID)
		return
	}
	t := trade
	pair.Cex.Fill = &t
	c.mu.Unlock()

	// The inflight slot is released here and only here.
	c.recordInflight(ctx, c.inflight.Add(-1))
	c.log.Info(ctx, "cex leg filled",
		"cid", trade.ClientOrderID,
		"base", trade.BaseAmount.String(),
		"quote", trade.QuoteAmount.String(),
		"price", trade.Price.String(),
	)
}

func (c *Coordinator) onSendFailed(ctx context.Context, failed cexdomain.SendFailed) {
	cid := domain.CID(failed.ClientOrderID)

	c.mu.Lock()
	pair, ok := c.table[cid]
	if ok {
		pair.Cex.Failed = true
		if failed.Err != nil {
			pair.Cex.FailReason = failed.Err.Error()
		}
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn(ctx, "send failure for unknown cid", "cid", failed.ClientOrderID)
		return
	}
	c.log.Error(ctx, "cex leg failed", "cid", failed.ClientOrderID, "error", failed.Err)
}

// onBalance enforces the asset balance floors: base below 5x notional, or
// quote below the DEX-bid-priced equivalent, is fatal.
func (c *Coordinator) onBalance(ctx context.Context, balance cexdomain.Balance) {
	if balance.WalletType != "exchange" {
		return
	}
	c.log.Debug(ctx, "wallet update",
		"currency", balance.Currency, "balance", balance.Balance.String())

	if balance.Currency == string(c.cfg.Pair.Base) {
		if balance.Balance.LessThanOrEqual(c.minBaseBalance) {
			c.log.Warn(ctx, "base balance below floor",
				"balance", balance.Balance.String(), "floor", c.minBaseBalance.String())
			c.fatal("base asset balance below safety floor")
		}
		return
	}

	if balance.Currency == string(c.cfg.Pair.Quote) && c.dexBid != nil {
		bid, ok := c.dexBid()
		if !ok {
			return
		}
		minQuote := bid.Mul(c.minBaseBalance)
		if balance.Balance.LessThanOrEqual(minQuote) {
			c.log.Warn(ctx, "quote balance below floor",
				"balance", balance.Balance.String(), "floor", minQuote.String())
			c.fatal("quote asset balance below safety floor")
		}
	}
}

// OnDexFinalised matches a confirmed swap log to its pair by transaction
// hash across the whole table; the chain does not carry the CID.
func (c *Coordinator) OnDexFinalised(ctx context.Context, fin dexdomain.SwapFinalised) {
	c.mu.Lock()
	var matched *domain.Pair
	for _, p := range c.table {
		if p.Dex.TxHash != nil && *p.Dex.TxHash == fin.TxHash && p.Dex.Finalised == nil {
			f := fin
			p.Dex.Finalised = &f
			matched = p
			break
		}
	}
	c.mu.Unlock()

	if matched == nil {
		c.log.Warn(ctx, "swap log with no matching pair", "tx", fin.TxHash.Hex())
		return
	}
	c.log.Info(ctx, "dex leg confirmed",
		"cid", int64(matched.ID), "tx", fin.TxHash.Hex(), "block", fin.BlockNumber)

	c.checkStatus(ctx)
}

// checkStatus scans the table for terminal pairs and for the half-filled
// anomaly. The scan is linear in the table size; pairs that are CEX-filled
// no longer count against the inflight ceiling but stay in the table until
// they settle.
func (c *Coordinator) checkStatus(ctx context.Context) {
	now := time.UnixMilli(c.now())

	c.mu.Lock()
	var settled []*domain.Pair
	var failed *domain.Pair
	var halfFilled *domain.Pair

	for _, p := range c.table {
		switch p.State() {
		case domain.StateSettled:
			settled = append(settled, p)
		case domain.StateFailed:
			failed = p
		case domain.StateCexFilled, domain.StateDexConfirmed:
			if p.Age(now) > c.cfg.HalfFillTimeout {
				halfFilled = p
			}
		}
	}
	for _, p := range settled {
		delete(c.table, p.ID)
	}
	c.mu.Unlock()

	for _, p := range settled {
		if c.metrics != nil {
			c.metrics.settled.Add(ctx, 1)
		}
		c.log.Info(ctx, "arbitrage settled", "cid", int64(p.ID))
		c.reconciler.Settle(ctx, p)
	}

	if failed != nil {
		if c.metrics != nil {
			c.metrics.failed.Add(ctx, 1)
		}
		c.dumpTable(ctx)
		c.reconciler.Fail(ctx, failed, "leg failed: "+failReason(failed))
		c.fatal("arbitrage leg failed with counter-leg accepted")
		return
	}

	if halfFilled != nil {
		if c.metrics != nil {
			c.metrics.failed.Add(ctx, 1)
		}
		c.log.Error(ctx, "half-filled arbitrage past deadline",
			"cid", int64(halfFilled.ID),
			"state", string(halfFilled.State()),
			"age", halfFilled.Age(now).String(),
		)
		c.dumpTable(ctx)
		c.reconciler.Fail(ctx, halfFilled, "half-filled past deadline")
		c.fatal("half-filled arbitrage: one-sided exposure")
	}
}

func failReason(p *domain.Pair) string {
	if p.Cex.Failed {
		return p.Cex.FailReason
	}
	return p.Dex.FailReason
}

// dumpTable logs every open pair before a fatal stop.
func (c *Coordinator) dumpTable(ctx context.Context) {
	for _, p := range c.ActivePairs() {
		tx := ""
		if p.Dex.TxHash != nil {
			tx = p.Dex.TxHash.Hex()
		}
		c.log.Error(ctx, "open arbitrage at shutdown",
			"cid", int64(p.ID),
			"state", string(p.State()),
			"opened_at", p.Datetime.Format(time.RFC3339Nano),
			"cex_amount", p.Cex.InstructionAmount.String(),
			"dex_amount", p.Dex.InstructionAmount.String(),
			"tx", tx,
		)
	}
}

func (c *Coordinator) recordInflight(ctx context.Context, v int32) {
	if c.metrics != nil {
		c.metrics.inflightG.Record(ctx, int64(v))
	}
}
