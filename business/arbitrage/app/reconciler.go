package app

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/flash-defi/venus/business/arbitrage/domain"
	"github.com/flash-defi/venus/internal/logger"
	"github.com/flash-defi/venus/internal/market"
)

// Reconciler computes realized results for terminal pairs and hands them to
// the notifier. Notification failures are logged and never block the
// lifecycle.
type Reconciler struct {
	receipts DexReceipts
	notifier Notifier
	log      logger.LoggerInterface

	notifyFailures metric.Int64Counter
}

// NewReconciler wires the reconciler.
func NewReconciler(receipts DexReceipts, notifier Notifier, log logger.LoggerInterface) *Reconciler {
	r := &Reconciler{
		receipts: receipts,
		notifier: notifier,
		log:      log.With("component", "reconciler"),
	}

	meter := otel.Meter(coordinatorTracerName)
	counter, err := meter.Int64Counter(
		"arbitrage_notify_failures_total",
		metric.WithDescription("Webhook notifications that failed"),
	)
	if err == nil {
		r.notifyFailures = counter
	}

	return r
}

// Settle reconciles a fully observed pair and notifies the operator.
func (r *Reconciler) Settle(ctx context.Context, p *domain.Pair) {
	summary := r.summarize(ctx, p, domain.StateSettled, "")
	r.notify(ctx, summary)
}

// Fail reconciles a failed (or half-filled) pair with an error tag.
func (r *Reconciler) Fail(ctx context.Context, p *domain.Pair, reason string) {
	summary := r.summarize(ctx, p, domain.StateFailed, reason)
	r.notify(ctx, summary)
}

func (r *Reconciler) summarize(ctx context.Context, p *domain.Pair, status domain.State, reason string) domain.Summary {
	summary := domain.Summary{
		Datetime: p.Datetime,
		Base:     p.Base,
		Quote:    p.Quote,
		Status:   status,
		Reason:   reason,
	}

	// CEX side: realized price from the fill's signed amounts.
	summary.Cex = domain.Outcome{
		ID:    strconv.FormatInt(int64(p.ID), 10),
		Venue: p.Cex.Venue.String(),
	}
	if fill := p.Cex.Fill; fill != nil {
		summary.Cex.BaseAmount = fill.BaseAmount
		summary.Cex.QuoteAmount = fill.QuoteAmount
		summary.Cex.FeeCurrency = fill.FeeCurrency
		summary.Cex.FeeAmount = fill.FeeAmount
		if !fill.BaseAmount.IsZero() {
			summary.Cex.Price = fill.QuoteAmount.Div(fill.BaseAmount).Abs()
		}
	}

	// DEX side: realized amounts from the transaction receipt.
	summary.Dex = domain.Outcome{
		Venue:   p.Dex.Venue.String(),
		Network: p.Dex.Network.String(),
	}
	if p.Dex.TxHash != nil {
		summary.Dex.ID = p.Dex.TxHash.Hex()
		if receipt, err := r.receipts.Receipt(ctx, *p.Dex.TxHash); err != nil {
			r.log.Warn(ctx, "receipt fetch failed", "tx", p.Dex.TxHash.Hex(), "error", err)
		} else if receipt.Reverted {
			if summary.Reason == "" {
				summary.Reason = "swap reverted"
			}
			summary.Status = domain.StateFailed
		} else {
			summary.Dex.BaseAmount = receipt.BaseAmount
			summary.Dex.QuoteAmount = receipt.QuoteAmount
			if !receipt.BaseAmount.IsZero() {
				summary.Dex.Price = receipt.QuoteAmount.Div(receipt.BaseAmount).Abs()
			}
		}
	}

	// Realized spread between the two leg prices, in basis points.
	if summary.Cex.Price.IsPositive() && summary.Dex.Price.IsPositive() {
		higher, lower := summary.Cex.Price, summary.Dex.Price
		if lower.GreaterThan(higher) {
			higher, lower = lower, higher
		}
		summary.RealizedSpreadBp = market.DeltaBp(higher, lower)
	}

	// Net PnL in quote terms: both legs' quote deltas less fees.
	summary.NetPnl = summary.Cex.QuoteAmount.
		Add(summary.Dex.QuoteAmount).
		Sub(r.feesInQuote(summary))

	return summary
}

// feesInQuote sums the fees that are denominated in the quote asset, plus CEX
// fees charged in USD; fees charged in other currencies are reported but not
// netted.
func (r *Reconciler) feesInQuote(s domain.Summary) decimal.Decimal {
	total := decimal.Zero
	if s.Cex.FeeCurrency == string(s.Quote) || s.Cex.FeeCurrency == "USD" {
		total = total.Add(s.Cex.FeeAmount)
	}
	if s.Dex.FeeCurrency == string(s.Quote) {
		total = total.Add(s.Dex.FeeAmount)
	}
	return total
}

func (r *Reconciler) notify(ctx context.Context, summary domain.Summary) {
	if err := r.notifier.Notify(ctx, summary); err != nil {
		if r.notifyFailures != nil {
			r.notifyFailures.Add(ctx, 1)
		}
		r.log.Error(ctx, "notification failed", "error", err)
		return
	}
	r.log.Info(ctx, "settlement notified",
		"status", string(summary.Status),
		"spread_bp", summary.RealizedSpreadBp.StringFixed(2),
		"net_pnl", summary.NetPnl.String(),
	)
}
