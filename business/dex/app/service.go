// Package app exposes the DEX session service: off-chain quoting, swap
// submission, and the confirmed-swap subscription.
package app

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/flash-defi/venus/business/dex/domain"
	walletpkg "github.com/flash-defi/venus/business/dex/infra/ethereum"
	"github.com/flash-defi/venus/business/dex/infra/uniswap"
	"github.com/flash-defi/venus/internal/apperror"
	"github.com/flash-defi/venus/internal/asset"
	"github.com/flash-defi/venus/internal/circuitbreaker"
	"github.com/flash-defi/venus/internal/logger"
	"github.com/flash-defi/venus/internal/market"
	"github.com/flash-defi/venus/internal/ratelimit"
	"github.com/flash-defi/venus/internal/venue"
)

const (
	tracerName = "github.com/flash-defi/venus/business/dex/app"
	meterName  = "github.com/flash-defi/venus/business/dex/app"

	// swapGasLimit bounds a single-hop v3 swap comfortably.
	swapGasLimit = 500_000

	// quoterCallsPerMinute keeps the spread poller inside free-tier RPC quotas.
	quoterCallsPerMinute = 600
)

// Config holds the dex session settings.
type Config struct {
	Network       venue.Network
	Venue         venue.Dex
	Base          asset.TokenInfo
	Quote         asset.TokenInfo
	FeeTier       uint32
	QuoteNotional decimal.Decimal // per-leg notional used for spread quoting
	PollInterval  time.Duration
}

type serviceMetrics struct {
	quotesTotal    metric.Int64Counter
	quoteErrors    metric.Int64Counter
	swapsSubmitted metric.Int64Counter
	swapsConfirmed metric.Int64Counter
	droppedChanges metric.Int64Counter
}

// Service is the dex session for one pool. Quoting goes through the quoter
// contract, submission through the router, and confirmations through the
// pool's swap log filtered to the wallet.
type Service struct {
	cfg    Config
	client *ethclient.Client
	wallet *walletpkg.Wallet
	log    logger.LoggerInterface

	deployment uniswap.Deployment
	quoterABI  abi.ABI
	routerABI  abi.ABI
	factoryABI abi.ABI
	poolABI    abi.ABI
	pool       common.Address

	marketCh chan<- market.Change

	cb      *circuitbreaker.CircuitBreaker[[]byte]
	limiter *ratelimit.Limiter

	tracer  trace.Tracer
	metrics *serviceMetrics
}

// NewService creates the dex session and resolves the pool address.
func NewService(ctx context.Context, cfg Config, client *ethclient.Client, wallet *walletpkg.Wallet, marketCh chan<- market.Change, log logger.LoggerInterface) (*Service, error) {
	if cfg.Venue != venue.UniswapV3 {
		return nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContext(fmt.Sprintf("unsupported dex %s", cfg.Venue)))
	}

	deployment, ok := uniswap.Deployments[cfg.Network]
	if !ok {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(fmt.Sprintf("no uniswap deployment on %s", cfg.Network)))
	}

	quoterABI, err := abi.JSON(strings.NewReader(uniswap.QuoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("parse quoter ABI: %w", err)
	}
	routerABI, err := abi.JSON(strings.NewReader(uniswap.SwapRouterABI))
	if err != nil {
		return nil, fmt.Errorf("parse router ABI: %w", err)
	}
	factoryABI, err := abi.JSON(strings.NewReader(uniswap.FactoryABI))
	if err != nil {
		return nil, fmt.Errorf("parse factory ABI: %w", err)
	}
	poolABI, err := abi.JSON(strings.NewReader(uniswap.PoolABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool ABI: %w", err)
	}

	s := &Service{
		cfg:        cfg,
		client:     client,
		wallet:     wallet,
		log:        log.With("session", "uniswap", "network", cfg.Network.String()),
		deployment: deployment,
		quoterABI:  quoterABI,
		routerABI:  routerABI,
		factoryABI: factoryABI,
		poolABI:    poolABI,
		marketCh:   marketCh,
		cb:         circuitbreaker.New[[]byte](circuitbreaker.DefaultConfig("uniswap-rpc")),
		limiter:    ratelimit.New(quoterCallsPerMinute),
		tracer:     otel.Tracer(tracerName),
	}

	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	if err := s.resolvePool(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error

	s.metrics = &serviceMetrics{}

	s.metrics.quotesTotal, err = meter.Int64Counter(
		"dex_quotes_total",
		metric.WithDescription("Total quoter contract calls"),
	)
	if err != nil {
		return err
	}
	s.metrics.quoteErrors, err = meter.Int64Counter(
		"dex_quote_errors_total",
		metric.WithDescription("Failed quoter contract calls"),
	)
	if err != nil {
		return err
	}
	s.metrics.swapsSubmitted, err = meter.Int64Counter(
		"dex_swaps_submitted_total",
		metric.WithDescription("Swap transactions broadcast"),
	)
	if err != nil {
		return err
	}
	s.metrics.swapsConfirmed, err = meter.Int64Counter(
		"dex_swaps_confirmed_total",
		metric.WithDescription("Swap logs observed for the wallet"),
	)
	if err != nil {
		return err
	}
	s.metrics.droppedChanges, err = meter.Int64Counter(
		"dex_market_changes_dropped_total",
		metric.WithDescription("Market changes dropped on a full channel"),
	)
	return err
}

// Pool returns the resolved pool address.
func (s *Service) Pool() common.Address { return s.pool }

func (s *Service) resolvePool(ctx context.Context) error {
	t0, t1 := uniswap.SortTokens(s.cfg.Base.Address, s.cfg.Quote.Address)
	callData, err := s.factoryABI.Pack("getPool", t0, t1, big.NewInt(int64(s.cfg.FeeTier)))
	if err != nil {
		return fmt.Errorf("pack getPool: %w", err)
	}

	out, err := s.call(ctx, s.deployment.Factory, callData)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeDexPoolNotFound, "factory getPool")
	}

	outputs, err := s.factoryABI.Unpack("getPool", out)
	if err != nil {
		return fmt.Errorf("unpack getPool: %w", err)
	}
	pool := outputs[0].(common.Address)
	if pool == (common.Address{}) {
		return apperror.New(apperror.CodeDexPoolNotFound,
			apperror.WithContext(fmt.Sprintf("%s/%s fee %d", s.cfg.Base.Symbol, s.cfg.Quote.Symbol, s.cfg.FeeTier)))
	}

	s.pool = pool
	s.log.Info(ctx, "pool resolved", "pool", pool.Hex(), "fee_tier", s.cfg.FeeTier)
	return nil
}

func (s *Service) call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.cb.Execute(func() ([]byte, error) {
		return s.client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
}

// Quote simulates a swap of amountIn of tokenIn and returns the amount of
// tokenOut received.
func (s *Service) Quote(ctx context.Context, tokenIn, tokenOut asset.TokenInfo, amountIn decimal.Decimal) (decimal.Decimal, error) {
	ctx, span := s.tracer.Start(ctx, "dex.quote",
		trace.WithAttributes(
			attribute.String("token_in", tokenIn.Symbol.String()),
			attribute.String("token_out", tokenOut.Symbol.String()),
			attribute.String("amount_in", amountIn.String()),
		),
	)
	defer span.End()

	s.metrics.quotesTotal.Add(ctx, 1)

	callData, err := s.quoterABI.Pack("quoteExactInputSingle", struct {
		TokenIn           common.Address
		TokenOut          common.Address
		AmountIn          *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn.Address,
		TokenOut:          tokenOut.Address,
		AmountIn:          asset.ToWei(amountIn, tokenIn.Decimals),
		Fee:               big.NewInt(int64(s.cfg.FeeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack quote: %w", err)
	}

	out, err := s.call(ctx, s.deployment.Quoter, callData)
	if err != nil {
		s.metrics.quoteErrors.Add(ctx, 1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "quoter call failed")
		return decimal.Zero, apperror.Wrap(err, apperror.CodeDexQuoteFailed, "quoteExactInputSingle")
	}

	outputs, err := s.quoterABI.Unpack("quoteExactInputSingle", out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unpack quote: %w", err)
	}

	amountOut := asset.FromWei(outputs[0].(*big.Int), tokenOut.Decimals)
	span.SetAttributes(attribute.String("amount_out", amountOut.String()))
	return amountOut, nil
}

// quoteExactOutput simulates buying exactly amountOut of tokenOut and
// returns the tokenIn spent.
func (s *Service) quoteExactOutput(ctx context.Context, tokenIn, tokenOut asset.TokenInfo, amountOut decimal.Decimal) (decimal.Decimal, error) {
	s.metrics.quotesTotal.Add(ctx, 1)

	callData, err := s.quoterABI.Pack("quoteExactOutputSingle", struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Amount            *big.Int
		Fee               *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn.Address,
		TokenOut:          tokenOut.Address,
		Amount:            asset.ToWei(amountOut, tokenOut.Decimals),
		Fee:               big.NewInt(int64(s.cfg.FeeTier)),
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("pack quote: %w", err)
	}

	out, err := s.call(ctx, s.deployment.Quoter, callData)
	if err != nil {
		s.metrics.quoteErrors.Add(ctx, 1)
		return decimal.Zero, apperror.Wrap(err, apperror.CodeDexQuoteFailed, "quoteExactOutputSingle")
	}

	outputs, err := s.quoterABI.Unpack("quoteExactOutputSingle", out)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unpack quote: %w", err)
	}

	return asset.FromWei(outputs[0].(*big.Int), tokenIn.Decimals), nil
}

// BestSpread derives the pool's effective top of book at the configured
// notional: the bid is what selling the notional realizes per unit, the ask
// what buying it costs per unit.
func (s *Service) BestSpread(ctx context.Context) (*market.Spread, error) {
	notional := s.cfg.QuoteNotional

	quoteOut, err := s.Quote(ctx, s.cfg.Base, s.cfg.Quote, notional)
	if err != nil {
		return nil, err
	}
	quoteIn, err := s.quoteExactOutput(ctx, s.cfg.Quote, s.cfg.Base, notional)
	if err != nil {
		return nil, err
	}
	if notional.IsZero() || quoteOut.IsZero() || quoteIn.IsZero() {
		return nil, apperror.New(apperror.CodeDexQuoteFailed, apperror.WithContext("empty quote"))
	}

	return &market.Spread{
		BestBid: quoteOut.Div(notional),
		BestAsk: quoteIn.Div(notional),
	}, nil
}

// Run polls the pool spread on the configured interval and publishes it on
// the market channel until the context ends.
func (s *Service) Run(ctx context.Context) {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			spread, err := s.BestSpread(ctx)
			if err != nil {
				s.log.Debug(ctx, "spread poll failed", "error", err)
				continue
			}
			select {
			case s.marketCh <- market.Change{Dex: spread}:
			default:
				s.metrics.droppedChanges.Add(ctx, 1)
				s.log.Debug(ctx, "market change dropped, channel full")
			}
		}
	}
}

// SubmitOrder signs and broadcasts a single-hop swap. A positive amount
// buys exactly that much base (exact output); a negative amount sells it
// (exact input). Returns the transaction hash; the confirmed swap arrives
// later on the subscription.
func (s *Service) SubmitOrder(ctx context.Context, amount decimal.Decimal, recipient common.Address) (common.Hash, error) {
	ctx, span := s.tracer.Start(ctx, "dex.submit_order",
		trace.WithAttributes(attribute.String("amount", amount.String())),
	)
	defer span.End()

	var callData []byte
	var err error

	if amount.IsNegative() {
		// Sell base: exact input base -> quote.
		callData, err = s.routerABI.Pack("exactInputSingle", struct {
			TokenIn           common.Address
			TokenOut          common.Address
			Fee               *big.Int
			Recipient         common.Address
			AmountIn          *big.Int
			AmountOutMinimum  *big.Int
			SqrtPriceLimitX96 *big.Int
		}{
			TokenIn:           s.cfg.Base.Address,
			TokenOut:          s.cfg.Quote.Address,
			Fee:               big.NewInt(int64(s.cfg.FeeTier)),
			Recipient:         recipient,
			AmountIn:          asset.ToWei(amount.Abs(), s.cfg.Base.Decimals),
			AmountOutMinimum:  big.NewInt(0),
			SqrtPriceLimitX96: uniswap.SwapPriceLimit(s.cfg.Base.Address, s.cfg.Quote.Address),
		})
	} else {
		// Buy base: exact output quote -> base.
		callData, err = s.routerABI.Pack("exactOutputSingle", struct {
			TokenIn           common.Address
			TokenOut          common.Address
			Fee               *big.Int
			Recipient         common.Address
			AmountOut         *big.Int
			AmountInMaximum   *big.Int
			SqrtPriceLimitX96 *big.Int
		}{
			TokenIn:           s.cfg.Quote.Address,
			TokenOut:          s.cfg.Base.Address,
			Fee:               big.NewInt(int64(s.cfg.FeeTier)),
			Recipient:         recipient,
			AmountOut:         asset.ToWei(amount, s.cfg.Base.Decimals),
			AmountInMaximum:   math.MaxBig256,
			SqrtPriceLimitX96: uniswap.SwapPriceLimit(s.cfg.Quote.Address, s.cfg.Base.Address),
		})
	}
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack swap: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		span.RecordError(err)
		return common.Hash{}, apperror.Wrap(err, apperror.CodeEthereumRPCError, "suggest gas price")
	}

	nonce, err := s.wallet.NextNonce(ctx, s.client)
	if err != nil {
		return common.Hash{}, err
	}

	router := s.deployment.Router
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &router,
		Gas:      swapGasLimit,
		GasPrice: gasPrice,
		Data:     callData,
	})

	signed, err := s.wallet.SignTx(tx)
	if err != nil {
		s.wallet.ReleaseNonce(nonce)
		return common.Hash{}, apperror.Wrap(err, apperror.CodeDexSubmitFailed, "sign swap")
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		s.wallet.ReleaseNonce(nonce)
		span.RecordError(err)
		span.SetStatus(codes.Error, "broadcast failed")
		return common.Hash{}, apperror.Wrap(err, apperror.CodeDexSubmitFailed, "broadcast swap")
	}

	s.metrics.swapsSubmitted.Add(ctx, 1)
	hash := signed.Hash()
	s.log.Info(ctx, "swap submitted", "tx", hash.Hex(), "amount", amount.String())
	span.SetAttributes(attribute.String("tx_hash", hash.Hex()))
	return hash, nil
}

// SubscribeSwaps streams the pool's confirmed swap logs for the wallet,
// starting at the latest block. Each log is keyed by transaction hash.
func (s *Service) SubscribeSwaps(ctx context.Context) (<-chan domain.SwapFinalised, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeEthereumRPCError, "block number")
	}

	recipientTopic := common.BytesToHash(s.wallet.Address().Bytes())
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(head),
		Addresses: []common.Address{s.pool},
		Topics: [][]common.Hash{
			{uniswap.SwapEventTopic},
			nil,
			{recipientTopic},
		},
	}

	logs := make(chan types.Log, 16)
	sub, err := s.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeEthereumSubscribeFailed, "swap logs")
	}

	out := make(chan domain.SwapFinalised, 16)
	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					s.log.Error(ctx, "swap subscription error", "error", err)
				}
				return
			case l := <-logs:
				if l.Removed {
					continue
				}
				s.metrics.swapsConfirmed.Add(ctx, 1)
				s.log.Info(ctx, "swap confirmed", "tx", l.TxHash.Hex(), "block", l.BlockNumber)
				select {
				case out <- domain.SwapFinalised{TxHash: l.TxHash, BlockNumber: l.BlockNumber}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Receipt fetches and decodes the mined swap's outcome: revert status and
// the wallet's signed token deltas from the pool's swap log.
func (s *Service) Receipt(ctx context.Context, txHash common.Hash) (*domain.SwapReceipt, error) {
	receipt, err := s.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeEthereumRPCError, "transaction receipt")
	}

	result := &domain.SwapReceipt{
		TxHash:      txHash,
		BlockNumber: receipt.BlockNumber.Uint64(),
		Reverted:    receipt.Status == types.ReceiptStatusFailed,
		GasUsed:     receipt.GasUsed,
	}
	if result.Reverted {
		return result, nil
	}

	for _, l := range receipt.Logs {
		if l.Address != s.pool || len(l.Topics) == 0 || l.Topics[0] != uniswap.SwapEventTopic {
			continue
		}
		values, err := s.poolABI.Unpack("Swap", l.Data)
		if err != nil {
			return nil, fmt.Errorf("unpack swap log: %w", err)
		}
		amount0 := values[0].(*big.Int)
		amount1 := values[1].(*big.Int)

		// Swap log amounts are the pool's deltas; the wallet's are negated.
		baseIsToken0 := uniswap.IsToken0(s.cfg.Base.Address, s.cfg.Quote.Address)
		if baseIsToken0 {
			result.BaseAmount = asset.FromWei(amount0, s.cfg.Base.Decimals).Neg()
			result.QuoteAmount = asset.FromWei(amount1, s.cfg.Quote.Decimals).Neg()
		} else {
			result.BaseAmount = asset.FromWei(amount1, s.cfg.Base.Decimals).Neg()
			result.QuoteAmount = asset.FromWei(amount0, s.cfg.Quote.Decimals).Neg()
		}
		break
	}

	return result, nil
}
