package bitfinex

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/business/cex/domain"
	"github.com/flash-defi/venus/internal/asset"
)

func TestClassify(t *testing.T) {
	if classify([]byte(`{"event":"info"}`)) != kindEvent {
		t.Error("object should classify as event")
	}
	if classify([]byte(` [1,"hb",7]`)) != kindChannel {
		t.Error("array should classify as channel")
	}
	if classify([]byte(`true`)) != kindUnknown {
		t.Error("scalar should classify as unknown")
	}
}

func TestDecodeChannelFrame(t *testing.T) {
	frame, err := decodeChannelFrame([]byte(`[17,"hb",42]`))
	if err != nil {
		t.Fatal(err)
	}
	if frame.ChanID != 17 {
		t.Errorf("chan id = %d", frame.ChanID)
	}
	if frame.label() != "hb" {
		t.Errorf("label = %q", frame.label())
	}
	seq, ok := frame.seq()
	if !ok || seq != 42 {
		t.Errorf("seq = %d ok=%v", seq, ok)
	}
}

func TestParseBookSnapshotFrame(t *testing.T) {
	// Snapshot payload from the venue: [[price, count, amount], ...]
	raw := []byte(`[1,[[1000.1,7,1.1],[1003.4,1,-2.1],[1004.4,4,-5.1],[1000.2,5,2.1],[1002.4,2,-3.1],[999.2,3,3.1]],1]`)
	frame, err := decodeChannelFrame(raw)
	if err != nil {
		t.Fatal(err)
	}

	levels, err := parseBookSnapshot(frame.Terms[0])
	if err != nil {
		t.Fatal(err)
	}
	if len(levels) != 6 {
		t.Fatalf("levels = %d, want 6", len(levels))
	}

	book := domain.NewBook()
	book.ApplySnapshot(levels)

	bid, _ := book.BestBid()
	if !bid.Price.Equal(decimal.RequireFromString("1000.2")) {
		t.Errorf("best bid = %s, want 1000.2", bid.Price)
	}
	ask, _ := book.BestAsk()
	if !ask.Price.Equal(decimal.RequireFromString("1002.4")) {
		t.Errorf("best ask = %s, want 1002.4", ask.Price)
	}
}

func TestParseBookUpdateFrame(t *testing.T) {
	frame, err := decodeChannelFrame([]byte(`[1,[1000.1,0,1.1],2]`))
	if err != nil {
		t.Fatal(err)
	}

	// An update payload must not parse as a snapshot.
	if _, err := parseBookSnapshot(frame.Terms[0]); err == nil {
		t.Error("single level must not parse as snapshot")
	}

	level, err := parseBookUpdate(frame.Terms[0])
	if err != nil {
		t.Fatal(err)
	}
	if level.Count != 0 {
		t.Errorf("count = %d, want 0 (removal)", level.Count)
	}
	if !level.Price.Equal(decimal.RequireFromString("1000.1")) {
		t.Errorf("price = %s", level.Price)
	}
	if !level.IsBid() {
		t.Error("positive amount should be a bid")
	}
}

func TestParseTradeExecution(t *testing.T) {
	// [ID, SYMBOL, MTS_CREATE, ORDER_ID, EXEC_AMOUNT, EXEC_PRICE, ORDER_TYPE,
	//  ORDER_PRICE, MAKER, FEE, FEE_CURRENCY, CID]
	raw := json.RawMessage(`[401597395,"tARBUSD",1700000001000,1185815100,-10,1.01,"EXCHANGE MARKET",0,-1,-0.0202,"USD",1700000000123]`)

	trade, err := parseTradeExecution(raw)
	if err != nil {
		t.Fatal(err)
	}
	if trade.ClientOrderID != 1700000000123 {
		t.Errorf("cid = %d", trade.ClientOrderID)
	}
	if !trade.BaseAmount.Equal(decimal.RequireFromString("-10")) {
		t.Errorf("base amount = %s", trade.BaseAmount)
	}
	if !trade.Price.Equal(decimal.RequireFromString("1.01")) {
		t.Errorf("price = %s", trade.Price)
	}
	// Selling 10 base at 1.01 receives 10.1 quote.
	if !trade.QuoteAmount.Equal(decimal.RequireFromString("10.1")) {
		t.Errorf("quote amount = %s, want 10.1", trade.QuoteAmount)
	}
	if trade.FeeCurrency != "USD" || !trade.FeeAmount.Equal(decimal.RequireFromString("0.0202")) {
		t.Errorf("fee = %s %s", trade.FeeAmount, trade.FeeCurrency)
	}
}

func TestParseWallet(t *testing.T) {
	raw := json.RawMessage(`["exchange","ARB",120.5,0,null]`)
	wallet, err := parseWallet(raw)
	if err != nil {
		t.Fatal(err)
	}
	if wallet.WalletType != "exchange" || wallet.Currency != "ARB" {
		t.Errorf("wallet = %+v", wallet)
	}
	if !wallet.Balance.Equal(decimal.RequireFromString("120.5")) {
		t.Errorf("balance = %s", wallet.Balance)
	}
}

func TestTradeSymbol(t *testing.T) {
	got := TradeSymbol(asset.Pair{Base: asset.ARB, Quote: asset.USD})
	if got != "tARBUSD" {
		t.Errorf("symbol = %q, want tARBUSD", got)
	}
}
