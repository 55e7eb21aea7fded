// Package app exposes the CEX session service: one socket per venue pair,
// translated into the coordinator's vocabulary.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/business/cex/domain"
	"github.com/flash-defi/venus/business/cex/infra/binance"
	"github.com/flash-defi/venus/business/cex/infra/bitfinex"
	"github.com/flash-defi/venus/internal/apperror"
	"github.com/flash-defi/venus/internal/asset"
	"github.com/flash-defi/venus/internal/config"
	"github.com/flash-defi/venus/internal/logger"
	"github.com/flash-defi/venus/internal/market"
	"github.com/flash-defi/venus/internal/venue"
)

// Session is the per-venue transport surface the service multiplexes.
type Session interface {
	Connect(ctx context.Context) error
	SubmitOrder(ctx context.Context, cid int64, amount decimal.Decimal) error
	BestSpread() *market.Spread
	IsConnected() bool
	Close() error
}

// Service owns one session per (venue, pair) and routes submissions and
// spread reads to them. Sessions feed the shared market-change and cex-event
// channels directly.
type Service struct {
	cfg      *config.Config
	log      logger.LoggerInterface
	marketCh chan<- market.Change
	eventCh  chan<- domain.Event

	mu       sync.Mutex
	sessions map[string]Session // key: venue + "/" + pair
}

// NewService creates the service. Channels are shared with the coordinator.
func NewService(cfg *config.Config, marketCh chan<- market.Change, eventCh chan<- domain.Event, log logger.LoggerInterface) *Service {
	return &Service{
		cfg:      cfg,
		log:      log,
		marketCh: marketCh,
		eventCh:  eventCh,
		sessions: make(map[string]Session),
	}
}

func sessionKey(cex venue.Cex, pair asset.Pair) string {
	return string(cex) + "/" + pair.String()
}

// ConnectPair establishes the venue session for a pair. Idempotent: a
// second call for a live pair is a no-op.
func (s *Service) ConnectPair(ctx context.Context, cex venue.Cex, pair asset.Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(cex, pair)
	if _, ok := s.sessions[key]; ok {
		return nil
	}

	keys, err := s.cfg.Keys(cex)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeConfigurationError, "cex credentials")
	}

	var session Session
	switch cex {
	case venue.Bitfinex:
		session, err = bitfinex.NewSession(bitfinex.SessionConfig{
			APIKey:    keys.APIKey,
			APISecret: keys.APISecret,
			Pair:      pair,
		}, s.marketCh, s.eventCh, s.log)
	case venue.Binance:
		session, err = binance.NewSession(binance.SessionConfig{
			APIKey:    keys.APIKey,
			APISecret: keys.APISecret,
			Pair:      pair,
		}, s.marketCh, s.eventCh, s.log)
	default:
		return apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("unsupported cex %s", cex)))
	}
	if err != nil {
		return apperror.Wrap(err, apperror.CodeCexNotConnected, "create session")
	}

	if err := session.Connect(ctx); err != nil {
		return apperror.Wrap(err, apperror.CodeCexNotConnected, "connect session")
	}

	s.sessions[key] = session
	s.log.Info(ctx, "cex pair connected", "venue", cex.String(), "pair", pair.String())
	return nil
}

// SubmitOrder submits a market order on an established session. The sign of
// amount encodes the side (positive buy, negative sell). Fire-and-forget:
// the fill arrives later on the event channel tagged with cid.
func (s *Service) SubmitOrder(ctx context.Context, cid int64, cex venue.Cex, pair asset.Pair, amount decimal.Decimal) error {
	session, err := s.session(cex, pair)
	if err != nil {
		return err
	}
	return session.SubmitOrder(ctx, cid, amount)
}

// BestSpread returns the venue's current top of book, nil while the book is
// not synced.
func (s *Service) BestSpread(cex venue.Cex, pair asset.Pair) *market.Spread {
	session, err := s.session(cex, pair)
	if err != nil {
		return nil
	}
	return session.BestSpread()
}

// IsConnected reports whether the venue session transport is up.
func (s *Service) IsConnected(cex venue.Cex, pair asset.Pair) bool {
	session, err := s.session(cex, pair)
	if err != nil {
		return false
	}
	return session.IsConnected()
}

// Close tears down every session.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for key, session := range s.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.sessions, key)
	}
	return firstErr
}

func (s *Service) session(cex venue.Cex, pair asset.Pair) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionKey(cex, pair)]
	if !ok {
		return nil, apperror.New(apperror.CodeCexNotConnected,
			apperror.WithContext(fmt.Sprintf("%s %s", cex, pair)))
	}
	return session, nil
}
