package bitfinex

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/business/cex/domain"
)

// Websocket endpoint and protocol constants.
const (
	WebSocketURL = "wss://api.bitfinex.com/ws/2"

	// conf flags: sequence numbers on every message + order book checksums
	confFlagSeqAll     = 65536
	confFlagOBChecksum = 131072

	// book subscription parameters per the session contract
	bookPrecision = "P0"
	bookFrequency = "F0"
	bookLength    = 100

	orderTypeExchangeMarket = "EXCHANGE MARKET"
)

// subscribeEvent is the JSON object confirming a channel subscription.
type subscribeEvent struct {
	Event   string `json:"event"`
	Channel string `json:"channel"`
	ChanID  int64  `json:"chanId"`
	Symbol  string `json:"symbol"`
	Status  string `json:"status"`
	Code    int64  `json:"code"`
	Msg     string `json:"msg"`
}

// inboundKind classifies a raw frame.
type inboundKind int

const (
	kindUnknown inboundKind = iota
	kindEvent               // JSON object: info/subscribed/auth/conf/error
	kindChannel             // JSON array: data on a subscribed channel
)

func classify(raw []byte) inboundKind {
	for _, c := range raw {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return kindEvent
		case '[':
			return kindChannel
		}
		break
	}
	return kindUnknown
}

// channelFrame is a decoded channel array: [chanId, payload..., seq].
type channelFrame struct {
	ChanID int64
	// Terms holds the raw elements after the channel id.
	Terms []json.RawMessage
}

func decodeChannelFrame(raw []byte) (channelFrame, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return channelFrame{}, fmt.Errorf("bitfinex: bad frame: %w", err)
	}
	if len(elems) < 2 {
		return channelFrame{}, fmt.Errorf("bitfinex: short frame")
	}
	var chanID int64
	if err := json.Unmarshal(elems[0], &chanID); err != nil {
		return channelFrame{}, fmt.Errorf("bitfinex: bad channel id: %w", err)
	}
	return channelFrame{ChanID: chanID, Terms: elems[1:]}, nil
}

// label returns the string tag of the first term ("hb", "cs", "te", ...) or
// empty when the term is not a string.
func (f channelFrame) label() string {
	var s string
	if err := json.Unmarshal(f.Terms[0], &s); err != nil {
		return ""
	}
	return s
}

// seq returns the trailing sequence number. With SEQ_ALL enabled every
// channel message carries one as the last numeric element.
func (f channelFrame) seq() (int64, bool) {
	if len(f.Terms) == 0 {
		return 0, false
	}
	var n int64
	if err := json.Unmarshal(f.Terms[len(f.Terms)-1], &n); err != nil {
		return 0, false
	}
	return n, true
}

// rawLevel is the wire form of a book level: [price, count, amount].
type rawLevel [3]json.Number

func (r rawLevel) toLevel() (domain.PriceLevel, error) {
	price, err := decimal.NewFromString(r[0].String())
	if err != nil {
		return domain.PriceLevel{}, err
	}
	count, err := r[1].Int64()
	if err != nil {
		return domain.PriceLevel{}, err
	}
	if count < 0 {
		return domain.PriceLevel{}, fmt.Errorf("bitfinex: negative level count %d", count)
	}
	amount, err := decimal.NewFromString(r[2].String())
	if err != nil {
		return domain.PriceLevel{}, err
	}
	return domain.PriceLevel{Price: price, Amount: amount, Count: uint32(count)}, nil
}

// parseBookSnapshot parses [[price,count,amount],...].
func parseBookSnapshot(raw json.RawMessage) ([]domain.PriceLevel, error) {
	var rows []rawLevel
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	levels := make([]domain.PriceLevel, 0, len(rows))
	for _, r := range rows {
		l, err := r.toLevel()
		if err != nil {
			return nil, err
		}
		levels = append(levels, l)
	}
	return levels, nil
}

// parseBookUpdate parses a single [price,count,amount].
func parseBookUpdate(raw json.RawMessage) (domain.PriceLevel, error) {
	var row rawLevel
	if err := json.Unmarshal(raw, &row); err != nil {
		return domain.PriceLevel{}, err
	}
	return row.toLevel()
}

// parseTradeExecution parses a "tu" trade update on the account channel:
// [ID, SYMBOL, MTS_CREATE, ORDER_ID, EXEC_AMOUNT, EXEC_PRICE, ORDER_TYPE,
// ORDER_PRICE, MAKER, FEE, FEE_CURRENCY, CID]
func parseTradeExecution(raw json.RawMessage) (domain.TradeExecution, error) {
	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return domain.TradeExecution{}, err
	}
	if len(row) < 12 {
		return domain.TradeExecution{}, fmt.Errorf("bitfinex: short trade row (%d)", len(row))
	}

	execAmount, err := decodeDecimal(row[4])
	if err != nil {
		return domain.TradeExecution{}, fmt.Errorf("exec amount: %w", err)
	}
	execPrice, err := decodeDecimal(row[5])
	if err != nil {
		return domain.TradeExecution{}, fmt.Errorf("exec price: %w", err)
	}
	fee, err := decodeDecimal(row[9])
	if err != nil {
		return domain.TradeExecution{}, fmt.Errorf("fee: %w", err)
	}
	var feeCurrency string
	if err := json.Unmarshal(row[10], &feeCurrency); err != nil {
		return domain.TradeExecution{}, fmt.Errorf("fee currency: %w", err)
	}
	var cid int64
	if err := json.Unmarshal(row[11], &cid); err != nil {
		return domain.TradeExecution{}, fmt.Errorf("cid: %w", err)
	}

	return domain.TradeExecution{
		ClientOrderID: cid,
		BaseAmount:    execAmount,
		QuoteAmount:   execAmount.Mul(execPrice).Neg(),
		Price:         execPrice,
		FeeCurrency:   feeCurrency,
		// Fees arrive negative (a charge); store the magnitude.
		FeeAmount: fee.Abs(),
	}, nil
}

// parseWallet parses one wallet row: [WALLET_TYPE, CURRENCY, BALANCE, ...]
func parseWallet(raw json.RawMessage) (domain.Balance, error) {
	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return domain.Balance{}, err
	}
	if len(row) < 3 {
		return domain.Balance{}, fmt.Errorf("bitfinex: short wallet row (%d)", len(row))
	}

	var walletType, currency string
	if err := json.Unmarshal(row[0], &walletType); err != nil {
		return domain.Balance{}, err
	}
	if err := json.Unmarshal(row[1], &currency); err != nil {
		return domain.Balance{}, err
	}
	balance, err := decodeDecimal(row[2])
	if err != nil {
		return domain.Balance{}, err
	}

	return domain.Balance{WalletType: walletType, Currency: currency, Balance: balance}, nil
}

func decodeDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(n.String())
}
