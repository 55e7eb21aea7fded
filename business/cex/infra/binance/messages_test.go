package binance

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/business/cex/domain"
	"github.com/flash-defi/venus/internal/asset"
)

func TestPartialDepthLevels(t *testing.T) {
	raw := []byte(`{"lastUpdateId":160,"bids":[["1.0010","431.0"],["1.0000","12.0"],["0.9990","0.0"]],"asks":[["1.0030","12.5"],["1.0040","100.0"]]}`)

	var depth PartialDepthEvent
	if err := json.Unmarshal(raw, &depth); err != nil {
		t.Fatal(err)
	}

	levels, err := depth.Levels()
	if err != nil {
		t.Fatal(err)
	}
	// Zero-quantity rows are dropped.
	if len(levels) != 4 {
		t.Fatalf("levels = %d, want 4", len(levels))
	}

	book := domain.NewBook()
	book.ApplySnapshot(levels)

	bid, _ := book.BestBid()
	if !bid.Price.Equal(decimal.RequireFromString("1.0010")) {
		t.Errorf("best bid = %s", bid.Price)
	}
	ask, _ := book.BestAsk()
	if !ask.Price.Equal(decimal.RequireFromString("1.0030")) {
		t.Errorf("best ask = %s", ask.Price)
	}
	if !ask.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Errorf("ask amount = %s, want absolute 12.5", ask.Amount)
	}
}

func TestExecutionReportToTradeExecution(t *testing.T) {
	raw := []byte(`{"e":"executionReport","s":"ARBUSDC","c":"1700000000123","S":"SELL","x":"TRADE","X":"FILLED","l":"10","L":"1.01","Z":"10.10","n":"0.0202","N":"USDC"}`)

	var report ExecutionReport
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatal(err)
	}

	trade, err := report.ToTradeExecution()
	if err != nil {
		t.Fatal(err)
	}
	if trade.ClientOrderID != 1700000000123 {
		t.Errorf("cid = %d", trade.ClientOrderID)
	}
	if !trade.BaseAmount.Equal(decimal.RequireFromString("-10")) {
		t.Errorf("base = %s, want -10 for a sell", trade.BaseAmount)
	}
	if !trade.QuoteAmount.Equal(decimal.RequireFromString("10.1")) {
		t.Errorf("quote = %s, want 10.1", trade.QuoteAmount)
	}
	if trade.FeeCurrency != "USDC" || !trade.FeeAmount.Equal(decimal.RequireFromString("0.0202")) {
		t.Errorf("fee = %s %s", trade.FeeAmount, trade.FeeCurrency)
	}
}

func TestExecutionReportBadCID(t *testing.T) {
	report := ExecutionReport{ClientOrderID: "web_abc123", LastExecutedQty: "1", LastExecutedPx: "1"}
	if _, err := report.ToTradeExecution(); err == nil {
		t.Error("non-numeric client order id must not match")
	}
}

func TestStreamNames(t *testing.T) {
	sym := Symbol(asset.Pair{Base: asset.ARB, Quote: asset.USDC})
	if sym != "ARBUSDC" {
		t.Errorf("symbol = %q", sym)
	}
	if got := DepthStream(sym, 100); got != "arbusdc@depth20@100ms" {
		t.Errorf("stream = %q", got)
	}
}
