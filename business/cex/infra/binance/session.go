package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
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
	tracerName = "github.com/flash-defi/venus/business/cex/infra/binance"
	meterName  = "github.com/flash-defi/venus/business/cex/infra/binance"

	depthSpeedMs       = 100
	listenKeyKeepAlive = 30 * time.Minute
)

// SessionConfig holds one pair's session settings.
type SessionConfig struct {
	WSURL     string // empty = production stream endpoint
	APIURL    string // empty = production REST endpoint
	APIKey    string
	APISecret string
	Pair      asset.Pair
}

type sessionMetrics struct {
	depthEvents    metric.Int64Counter
	droppedChanges metric.Int64Counter
	ordersSent     metric.Int64Counter
}

// Session owns the Binance market stream, the user-data stream, and the
// signed REST client for one trading pair. The partial-depth stream replaces
// the whole book mirror on every event, so unlike Bitfinex there is no
// delta/sequence/checksum bookkeeping; the stream itself is the sync point.
type Session struct {
	cfg    SessionConfig
	symbol string
	log    logger.LoggerInterface

	marketClient *wsconn.Client
	userClient   *wsconn.Client
	rest         *RestClient

	marketCh chan<- market.Change
	eventCh  chan<- domain.Event

	mu   sync.RWMutex
	book *domain.Book

	tracer  trace.Tracer
	metrics *sessionMetrics
}

// NewSession creates a session; Connect must be called before use.
func NewSession(cfg SessionConfig, marketCh chan<- market.Change, eventCh chan<- domain.Event, log logger.LoggerInterface) (*Session, error) {
	symbol := Symbol(cfg.Pair)

	wsURL := cfg.WSURL
	if wsURL == "" {
		wsURL = BaseWSURL
	}
	streamURL := wsURL + "/stream?streams=" + DepthStream(symbol, depthSpeedMs)

	marketClient, err := wsconn.New(wsconn.DefaultConfig(streamURL, "binance-"+cfg.Pair.String()))
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:          cfg,
		symbol:       symbol,
		log:          log.With("session", "binance", "pair", cfg.Pair.String()),
		marketClient: marketClient,
		rest:         NewRestClient(cfg.APIURL, cfg.APIKey, cfg.APISecret, log),
		marketCh:     marketCh,
		eventCh:      eventCh,
		book:         domain.NewBook(),
		tracer:       otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	return s, nil
}

func (s *Session) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &sessionMetrics{}

	s.metrics.depthEvents, err = meter.Int64Counter(
		"binance_depth_events_total",
		metric.WithDescription("Partial depth snapshots applied"),
	)
	if err != nil {
		return err
	}
	s.metrics.droppedChanges, err = meter.Int64Counter(
		"binance_market_changes_dropped_total",
		metric.WithDescription("Market changes dropped on a full channel"),
	)
	if err != nil {
		return err
	}
	s.metrics.ordersSent, err = meter.Int64Counter(
		"binance_orders_sent_total",
		metric.WithDescription("Orders submitted via REST"),
	)
	return err
}

// Connect dials the market stream and, when credentials are configured, the
// user-data stream. Idempotent per session.
func (s *Session) Connect(ctx context.Context) error {
	if s.marketClient.IsConnected() {
		return nil
	}
	if err := s.marketClient.ConnectWithRetry(ctx); err != nil {
		return err
	}
	go s.runMarket(ctx)

	if s.cfg.APIKey != "" {
		if err := s.connectUserStream(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) connectUserStream(ctx context.Context) error {
	key, err := s.rest.CreateListenKey(ctx)
	if err != nil {
		return err
	}

	wsURL := s.cfg.WSURL
	if wsURL == "" {
		wsURL = BaseWSURL
	}

	userClient, err := wsconn.New(wsconn.DefaultConfig(wsURL+"/ws/"+key, "binance-user-"+s.cfg.Pair.String()))
	if err != nil {
		return err
	}
	s.userClient = userClient

	if err := userClient.ConnectWithRetry(ctx); err != nil {
		return err
	}
	go s.runUser(ctx)
	go s.keepAliveLoop(ctx, key)
	return nil
}

func (s *Session) keepAliveLoop(ctx context.Context, key string) {
	ticker := time.NewTicker(listenKeyKeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.rest.KeepAliveListenKey(ctx, key); err != nil {
				s.log.Warn(ctx, "listen key keepalive failed", "error", err)
			}
		}
	}
}

// Close tears the session down.
func (s *Session) Close() error {
	if s.userClient != nil {
		s.userClient.Close()
	}
	return s.marketClient.Close()
}

// IsConnected reports market stream liveness.
func (s *Session) IsConnected() bool { return s.marketClient.IsConnected() }

// BestSpread returns the current top of book, nil while no snapshot has
// been applied. Safe for concurrent readers.
func (s *Session) BestSpread() *market.Spread {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.book.Spread()
}

func (s *Session) runMarket(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-s.marketClient.Messages():
			if !ok {
				return
			}
			s.handleMarketMessage(ctx, raw)
		}
	}
}

func (s *Session) handleMarketMessage(ctx context.Context, raw []byte) {
	var wrapper StreamEvent
	if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.Stream == "" {
		// Plain (non-combined) payloads arrive without the wrapper.
		wrapper.Data = raw
	}

	if wrapper.Stream != "" && !strings.Contains(wrapper.Stream, "@depth") {
		return
	}

	var depth PartialDepthEvent
	if err := json.Unmarshal(wrapper.Data, &depth); err != nil {
		s.log.Warn(ctx, "undecodable depth event", "error", err)
		return
	}
	if len(depth.Bids) == 0 && len(depth.Asks) == 0 {
		return
	}

	levels, err := depth.Levels()
	if err != nil {
		s.log.Warn(ctx, "bad depth levels", "error", err)
		return
	}

	s.mu.Lock()
	s.book.ApplySnapshot(levels)
	spread := s.book.Spread()
	s.mu.Unlock()

	s.metrics.depthEvents.Add(ctx, 1)

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

func (s *Session) runUser(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-s.userClient.Messages():
			if !ok {
				return
			}
			s.handleUserMessage(ctx, raw)
		}
	}
}

func (s *Session) handleUserMessage(ctx context.Context, raw []byte) {
	var probe struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return
	}

	switch probe.EventType {
	case "executionReport":
		var report ExecutionReport
		if err := json.Unmarshal(raw, &report); err != nil {
			s.log.Warn(ctx, "undecodable execution report", "error", err)
			return
		}
		s.handleExecutionReport(ctx, report)
	case "outboundAccountPosition":
		var pos OutboundAccountPosition
		if err := json.Unmarshal(raw, &pos); err != nil {
			return
		}
		for _, b := range pos.Balances {
			free, err := decimal.NewFromString(b.Free)
			if err != nil {
				continue
			}
			s.emit(ctx, domain.Balance{
				Venue:      venue.Binance,
				WalletType: "exchange",
				Currency:   b.Asset,
				Balance:    free,
			})
		}
	}
}

func (s *Session) handleExecutionReport(ctx context.Context, report ExecutionReport) {
	switch report.ExecutionType {
	case "TRADE":
		trade, err := report.ToTradeExecution()
		if err != nil {
			s.log.Warn(ctx, "unmatchable execution report", "cid", report.ClientOrderID, "error", err)
			return
		}
		trade.Venue = venue.Binance
		s.emit(ctx, trade)
	case "REJECTED", "EXPIRED":
		trade, err := report.ToTradeExecution()
		cid := int64(0)
		if err == nil {
			cid = trade.ClientOrderID
		}
		s.emit(ctx, domain.SendFailed{
			Venue:         venue.Binance,
			ClientOrderID: cid,
			Err:           fmt.Errorf("binance: order %s", report.OrderStatus),
		})
	}
}

func (s *Session) emit(ctx context.Context, ev domain.Event) {
	select {
	case s.eventCh <- ev:
	case <-ctx.Done():
	}
}

// SubmitOrder places a market order via signed REST. The sign of amount
// selects the side; the fill arrives on the user-data stream tagged with cid.
func (s *Session) SubmitOrder(ctx context.Context, cid int64, amount decimal.Decimal) error {
	ctx, span := s.tracer.Start(ctx, "binance.submit_order")
	defer span.End()

	if err := s.rest.SubmitMarketOrder(ctx, cid, s.symbol, amount); err != nil {
		span.RecordError(err)
		s.emit(ctx, domain.SendFailed{Venue: venue.Binance, ClientOrderID: cid, Err: err})
		return err
	}

	s.metrics.ordersSent.Add(ctx, 1)
	s.log.Info(ctx, "order submitted", "cid", cid, "amount", amount.String())
	return nil
}
