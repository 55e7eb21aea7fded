package bitfinex

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/flash-defi/venus/business/cex/domain"
	"github.com/flash-defi/venus/internal/asset"
	"github.com/flash-defi/venus/internal/logger"
	"github.com/flash-defi/venus/internal/market"
	"github.com/flash-defi/venus/internal/venue"
	"github.com/flash-defi/venus/internal/wsconn"
)

const (
	tracerName = "github.com/flash-defi/venus/business/cex/infra/bitfinex"
	meterName  = "github.com/flash-defi/venus/business/cex/infra/bitfinex"
)

// SessionConfig holds one pair's session settings.
type SessionConfig struct {
	URL       string // empty = production endpoint
	APIKey    string
	APISecret string
	Pair      asset.Pair
}

// sessionMetrics holds OTEL instruments for the session.
type sessionMetrics struct {
	bookResyncs    metric.Int64Counter
	checksumErrors metric.Int64Counter
	seqGaps        metric.Int64Counter
	droppedChanges metric.Int64Counter
	ordersSent     metric.Int64Counter
}

// Session owns one authenticated Bitfinex socket for one trading pair. The
// socket writer is the wsconn client; everything read lands in run(). Book
// access from run(), the reconnect handshake and BestSpread is serialized by
// mu.
type Session struct {
	cfg    SessionConfig
	symbol string
	log    logger.LoggerInterface

	client *wsconn.Client

	marketCh chan<- market.Change
	eventCh  chan<- domain.Event

	mu         sync.RWMutex
	book       *domain.Book
	bookChanID int64
	// lastSeq tracks the trailing sequence number per channel; the account
	// channel's auth sequence and the public channels' sequence are
	// independent monotone counters.
	lastSeq map[int64]int64
	authed  bool

	tracer  trace.Tracer
	metrics *sessionMetrics
}

// NewSession creates a session; Connect must be called before use.
func NewSession(cfg SessionConfig, marketCh chan<- market.Change, eventCh chan<- domain.Event, log logger.LoggerInterface) (*Session, error) {
	url := cfg.URL
	if url == "" {
		url = WebSocketURL
	}

	wsCfg := wsconn.DefaultConfig(url, "bitfinex-"+cfg.Pair.String())
	client, err := wsconn.New(wsCfg)
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:      cfg,
		symbol:   TradeSymbol(cfg.Pair),
		log:      log.With("session", "bitfinex", "pair", cfg.Pair.String()),
		client:   client,
		marketCh: marketCh,
		eventCh:  eventCh,
		book:     domain.NewBook(),
		lastSeq:  make(map[int64]int64),
		tracer:   otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	// Every (re)connect starts a fresh protocol handshake.
	client.OnStateChange(func(state wsconn.State, _ error) {
		if state == wsconn.StateConnected {
			go s.handshake(context.Background())
		}
	})

	return s, nil
}

func (s *Session) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &sessionMetrics{}

	s.metrics.bookResyncs, err = meter.Int64Counter(
		"bitfinex_book_resyncs_total",
		metric.WithDescription("Order book resubscriptions forced by staleness"),
	)
	if err != nil {
		return err
	}
	s.metrics.checksumErrors, err = meter.Int64Counter(
		"bitfinex_checksum_mismatches_total",
		metric.WithDescription("Order book checksum mismatches"),
	)
	if err != nil {
		return err
	}
	s.metrics.seqGaps, err = meter.Int64Counter(
		"bitfinex_sequence_gaps_total",
		metric.WithDescription("Sequence number gaps"),
	)
	if err != nil {
		return err
	}
	s.metrics.droppedChanges, err = meter.Int64Counter(
		"bitfinex_market_changes_dropped_total",
		metric.WithDescription("Market changes dropped on a full channel"),
	)
	if err != nil {
		return err
	}
	s.metrics.ordersSent, err = meter.Int64Counter(
		"bitfinex_orders_sent_total",
		metric.WithDescription("Orders submitted over the socket"),
	)
	return err
}

// TradeSymbol renders the venue trading symbol, e.g. "tARBUSD".
func TradeSymbol(p asset.Pair) string {
	return "t" + string(p.Base) + string(p.Quote)
}

// Connect dials the venue and starts the read loop. Idempotent per session.
func (s *Session) Connect(ctx context.Context) error {
	if s.client.IsConnected() {
		return nil
	}
	if err := s.client.ConnectWithRetry(ctx); err != nil {
		return err
	}
	go s.run(ctx)
	return nil
}

// Close tears the session down.
func (s *Session) Close() error {
	return s.client.Close()
}

// IsConnected reports transport liveness.
func (s *Session) IsConnected() bool { return s.client.IsConnected() }

// BestSpread returns the current top of book, nil while the book is not
// synced. Safe for concurrent readers.
func (s *Session) BestSpread() *market.Spread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Spread()
}

// handshake authenticates, enables sequence/checksum flags, and subscribes
// the book channel. Runs after every (re)connect.
func (s *Session) handshake(ctx context.Context) {
	s.mu.Lock()
	s.bookChanID = 0
	s.lastSeq = make(map[int64]int64)
	s.authed = false
	s.book.MarkStale()
	s.mu.Unlock()

	nonce := generateNonce()
	payload := "AUTH" + nonce
	auth := map[string]any{
		"event":       "auth",
		"apiKey":      s.cfg.APIKey,
		"authSig":     signPayload([]byte(s.cfg.APISecret), []byte(payload)),
		"authNonce":   nonce,
		"authPayload": payload,
		"filters":     []string{},
	}
	if err := s.client.SendJSON(ctx, auth); err != nil {
		s.log.Error(ctx, "auth send failed", "error", err)
		return
	}

	conf := map[string]any{
		"event": "conf",
		"flags": confFlagSeqAll + confFlagOBChecksum,
	}
	if err := s.client.SendJSON(ctx, conf); err != nil {
		s.log.Error(ctx, "conf send failed", "error", err)
		return
	}

	s.subscribeBook(ctx)
}

func (s *Session) subscribeBook(ctx context.Context) {
	sub := map[string]any{
		"event":   "subscribe",
		"channel": "book",
		"symbol":  s.symbol,
		"prec":    bookPrecision,
		"freq":    bookFrequency,
		"len":     bookLength,
	}
	if err := s.client.SendJSON(ctx, sub); err != nil {
		s.log.Error(ctx, "book subscribe failed", "error", err)
	}
}

// resync abandons the local book and resubscribes the channel. The monitor
// stops seeing this venue's spread until the fresh snapshot arrives.
func (s *Session) resync(ctx context.Context, reason string) {
	s.book.MarkStale()
	s.metrics.bookResyncs.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	s.log.Warn(ctx, "book resync forced", "reason", reason)

	if s.bookChanID != 0 {
		unsub := map[string]any{"event": "unsubscribe", "chanId": s.bookChanID}
		if err := s.client.SendJSON(ctx, unsub); err != nil {
			s.log.Error(ctx, "unsubscribe failed", "error", err)
		}
		delete(s.lastSeq, s.bookChanID)
		s.bookChanID = 0
	}
	s.subscribeBook(ctx)
}

// run drains inbound frames until the context ends or the client closes.
func (s *Session) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-s.client.Messages():
			if !ok {
				return
			}
			s.handleMessage(ctx, raw)
		}
	}
}

func (s *Session) handleMessage(ctx context.Context, raw []byte) {
	switch classify(raw) {
	case kindEvent:
		s.handleEvent(ctx, raw)
	case kindChannel:
		frame, err := decodeChannelFrame(raw)
		if err != nil {
			s.log.Warn(ctx, "undecodable frame", "error", err)
			return
		}
		s.mu.Lock()
		s.handleFrame(ctx, frame)
		s.mu.Unlock()
	}
}

func (s *Session) handleEvent(ctx context.Context, raw []byte) {
	var ev subscribeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.log.Warn(ctx, "undecodable event", "error", err)
		return
	}

	switch ev.Event {
	case "info":
		s.log.Info(ctx, "venue info received")
	case "auth":
		s.mu.Lock()
		s.authed = ev.Status == "OK"
		s.mu.Unlock()
		if ev.Status != "OK" {
			s.log.Error(ctx, "authentication rejected", "code", ev.Code, "msg", ev.Msg)
		}
	case "conf":
		s.log.Info(ctx, "conf acknowledged", "status", ev.Status)
	case "subscribed":
		if ev.Channel == "book" && ev.Symbol == s.symbol {
			s.mu.Lock()
			s.bookChanID = ev.ChanID
			s.mu.Unlock()
			s.log.Info(ctx, "book subscribed", "chan_id", ev.ChanID)
		}
	case "error":
		s.log.Error(ctx, "venue error", "code", ev.Code, "msg", ev.Msg)
	}
}

// handleFrame processes one channel frame. Caller holds s.mu.
func (s *Session) handleFrame(ctx context.Context, frame channelFrame) {
	if seq, ok := frame.seq(); ok {
		if prev, seen := s.lastSeq[frame.ChanID]; seen && seq != prev+1 {
			s.metrics.seqGaps.Add(ctx, 1)
			s.log.Warn(ctx, "sequence gap", "chan_id", frame.ChanID, "want", prev+1, "got", seq)
			if frame.ChanID == s.bookChanID && s.bookChanID != 0 {
				s.resync(ctx, "sequence_gap")
				return
			}
		}
		s.lastSeq[frame.ChanID] = seq
	}

	if frame.ChanID == s.bookChanID && s.bookChanID != 0 {
		s.handleBookFrame(ctx, frame)
		return
	}
	if frame.ChanID == 0 {
		s.handleAccountFrame(ctx, frame)
	}
}

func (s *Session) handleBookFrame(ctx context.Context, frame channelFrame) {
	switch frame.label() {
	case "hb":
		return
	case "cs":
		if len(frame.Terms) < 2 {
			return
		}
		var cs int64
		if err := json.Unmarshal(frame.Terms[1], &cs); err != nil {
			return
		}
		// The venue publishes a signed 32-bit CRC.
		if uint32(cs) != s.book.Checksum() {
			s.metrics.checksumErrors.Add(ctx, 1)
			s.resync(ctx, "checksum_mismatch")
		}
		return
	}

	// Snapshot first, then deltas.
	if levels, err := parseBookSnapshot(frame.Terms[0]); err == nil {
		s.book.ApplySnapshot(levels)
		s.publishSpread(ctx)
		return
	}
	level, err := parseBookUpdate(frame.Terms[0])
	if err != nil {
		s.log.Warn(ctx, "undecodable book payload", "error", err)
		return
	}
	s.book.ApplyUpdate(level)
	if s.book.State() == domain.BookStale {
		s.resync(ctx, "crossed_book")
		return
	}
	s.publishSpread(ctx)
}

// publishSpread sends the current top of book to the monitor. Market data
// is replaceable by the next tick, so the send never blocks.
func (s *Session) publishSpread(ctx context.Context) {
	spread := s.book.Spread()
	if spread == nil {
		return
	}
	select {
	case s.marketCh <- market.Change{Cex: spread}:
	default:
		s.metrics.droppedChanges.Add(ctx, 1)
		s.log.Debug(ctx, "market change dropped, channel full")
	}
}

func (s *Session) handleAccountFrame(ctx context.Context, frame channelFrame) {
	switch frame.label() {
	case "hb", "te", "os", "on", "oc", "ou", "ps", "bu":
		// "te" is ignored: "tu" follows with fee details filled in.
		return
	case "tu":
		if len(frame.Terms) < 2 {
			return
		}
		trade, err := parseTradeExecution(frame.Terms[1])
		if err != nil {
			s.log.Warn(ctx, "undecodable trade execution", "error", err)
			return
		}
		trade.Venue = venue.Bitfinex
		s.emit(ctx, trade)
	case "ws":
		if len(frame.Terms) < 2 {
			return
		}
		var rows []json.RawMessage
		if err := json.Unmarshal(frame.Terms[1], &rows); err != nil {
			s.log.Warn(ctx, "undecodable wallet snapshot", "error", err)
			return
		}
		for _, row := range rows {
			if wallet, err := parseWallet(row); err == nil {
				wallet.Venue = venue.Bitfinex
				s.emit(ctx, wallet)
			}
		}
	case "wu":
		if len(frame.Terms) < 2 {
			return
		}
		wallet, err := parseWallet(frame.Terms[1])
		if err != nil {
			s.log.Warn(ctx, "undecodable wallet update", "error", err)
			return
		}
		wallet.Venue = venue.Bitfinex
		s.emit(ctx, wallet)
	case "n":
		s.handleNotification(ctx, frame)
	}
}

// handleNotification surfaces rejected order requests as SendFailed.
func (s *Session) handleNotification(ctx context.Context, frame channelFrame) {
	if len(frame.Terms) < 2 {
		return
	}
	var row []json.RawMessage
	if err := json.Unmarshal(frame.Terms[1], &row); err != nil || len(row) < 8 {
		return
	}
	var kind, status, text string
	json.Unmarshal(row[1], &kind)
	json.Unmarshal(row[6], &status)
	json.Unmarshal(row[7], &text)

	if kind != "on-req" || status != "ERROR" {
		return
	}

	// The embedded order array carries the CID at index 2.
	var order []json.RawMessage
	var cid int64
	if err := json.Unmarshal(row[4], &order); err == nil && len(order) > 2 {
		json.Unmarshal(order[2], &cid)
	}

	s.log.Error(ctx, "order rejected", "cid", cid, "text", text)
	s.emit(ctx, domain.SendFailed{
		Venue:         venue.Bitfinex,
		ClientOrderID: cid,
		Err:           fmt.Errorf("bitfinex: order rejected: %s", text),
	})
}

func (s *Session) emit(ctx context.Context, ev domain.Event) {
	select {
	case s.eventCh <- ev:
	case <-ctx.Done():
	}
}

// SubmitOrder sends a market order over the authenticated socket. The sign
// of amount selects the side. Acknowledgement and fill arrive later on the
// event channel tagged with cid; a transport failure is surfaced as
// SendFailed immediately.
func (s *Session) SubmitOrder(ctx context.Context, cid int64, amount decimal.Decimal) error {
	ctx, span := s.tracer.Start(ctx, "bitfinex.submit_order",
		trace.WithAttributes(
			attribute.Int64("cid", cid),
			attribute.String("symbol", s.symbol),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	frame := []any{
		0,
		"on",
		nil,
		map[string]any{
			"gid":    0,
			"cid":    cid,
			"type":   orderTypeExchangeMarket,
			"symbol": s.symbol,
			"amount": amount.String(),
		},
	}

	if err := s.client.SendJSON(ctx, frame); err != nil {
		span.RecordError(err)
		s.emit(ctx, domain.SendFailed{Venue: venue.Bitfinex, ClientOrderID: cid, Err: err})
		return fmt.Errorf("submit order cid %d: %w", cid, err)
	}

	s.metrics.ordersSent.Add(ctx, 1)
	s.log.Info(ctx, "order submitted", "cid", cid, "amount", amount.String())
	return nil
}
