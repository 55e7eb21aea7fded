// Package binance implements the Binance session: partial-depth book
// mirroring over the market stream, order submission over signed REST, and
// fills over the user-data stream.
package binance

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/business/cex/domain"
	"github.com/flash-defi/venus/internal/asset"
)

// Endpoints.
const (
	BaseWSURL   = "wss://stream.binance.com:9443"
	BaseAPIURL  = "https://api.binance.com"
	depthLevels = 20
)

// WSRequest is a WebSocket subscription request.
type WSRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// StreamEvent is the combined-stream wrapper.
type StreamEvent struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// PartialDepthEvent is a top-N book snapshot from <symbol>@depth20@100ms.
// The stream is self-contained: every event replaces the whole mirrored
// book, so no sequence bookkeeping applies.
type PartialDepthEvent struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"` // [[price, qty], ...]
	Asks         [][]string `json:"asks"`
}

// Levels converts the event to book levels with the internal sign
// convention: positive bid amounts, negative ask amounts.
func (e *PartialDepthEvent) Levels() ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(e.Bids)+len(e.Asks))

	for _, row := range e.Bids {
		l, err := parseLevel(row, false)
		if err != nil {
			return nil, err
		}
		if l.Amount.IsZero() {
			continue
		}
		levels = append(levels, l)
	}
	for _, row := range e.Asks {
		l, err := parseLevel(row, true)
		if err != nil {
			return nil, err
		}
		if l.Amount.IsZero() {
			continue
		}
		levels = append(levels, l)
	}
	return levels, nil
}

func parseLevel(row []string, ask bool) (domain.PriceLevel, error) {
	price, err := decimal.NewFromString(row[0])
	if err != nil {
		return domain.PriceLevel{}, err
	}
	qty, err := decimal.NewFromString(row[1])
	if err != nil {
		return domain.PriceLevel{}, err
	}
	if ask {
		qty = qty.Neg()
	}
	return domain.PriceLevel{Price: price, Amount: qty, Count: 1}, nil
}

// ExecutionReport is the user-data stream fill/lifecycle event.
type ExecutionReport struct {
	EventType        string `json:"e"` // "executionReport"
	Symbol           string `json:"s"`
	ClientOrderID    string `json:"c"`
	Side             string `json:"S"` // BUY / SELL
	ExecutionType    string `json:"x"` // NEW / TRADE / REJECTED / ...
	OrderStatus      string `json:"X"`
	LastExecutedQty  string `json:"l"`
	LastExecutedPx   string `json:"L"`
	CumulativeQuote  string `json:"Z"`
	CommissionAmount string `json:"n"`
	CommissionAsset  string `json:"N"`
}

// ToTradeExecution converts a TRADE execution into the domain event. The
// client order id round-trips as the decimal string we submitted.
func (e *ExecutionReport) ToTradeExecution() (domain.TradeExecution, error) {
	cid, err := strconv.ParseInt(e.ClientOrderID, 10, 64)
	if err != nil {
		return domain.TradeExecution{}, err
	}
	qty, err := decimal.NewFromString(e.LastExecutedQty)
	if err != nil {
		return domain.TradeExecution{}, err
	}
	price, err := decimal.NewFromString(e.LastExecutedPx)
	if err != nil {
		return domain.TradeExecution{}, err
	}
	fee := decimal.Zero
	if e.CommissionAmount != "" {
		fee, err = decimal.NewFromString(e.CommissionAmount)
		if err != nil {
			return domain.TradeExecution{}, err
		}
	}

	base := qty
	if e.Side == "SELL" {
		base = qty.Neg()
	}

	return domain.TradeExecution{
		ClientOrderID: cid,
		BaseAmount:    base,
		QuoteAmount:   base.Mul(price).Neg(),
		Price:         price,
		FeeCurrency:   e.CommissionAsset,
		FeeAmount:     fee.Abs(),
	}, nil
}

// OutboundAccountPosition is the user-data stream balance event.
type OutboundAccountPosition struct {
	EventType string `json:"e"` // "outboundAccountPosition"
	Balances  []struct {
		Asset string `json:"a"`
		Free  string `json:"f"`
	} `json:"B"`
}

// Symbol renders the venue symbol, e.g. "ARBUSDC".
func Symbol(p asset.Pair) string {
	return string(p.Base) + string(p.Quote)
}

// DepthStream returns the partial book stream name for a symbol.
func DepthStream(symbol string, speedMs int) string {
	return strings.ToLower(symbol) + "@depth" + strconv.Itoa(depthLevels) + "@" + strconv.Itoa(speedMs) + "ms"
}
