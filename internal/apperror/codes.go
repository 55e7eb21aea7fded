package apperror

// Code represents a unique error code for the application
type Code string

// General error codes
const (
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeInvalidState  Code = "INVALID_STATE"
	CodeNotFound      Code = "NOT_FOUND"
	CodeInternalError Code = "INTERNAL_ERROR"
	CodeUnknownError  Code = "UNKNOWN_ERROR"

	// Configuration
	CodeConfigurationError Code = "CONFIGURATION_ERROR"

	// External service errors
	CodeExternalServiceError Code = "EXTERNAL_SERVICE_ERROR"
	CodeServiceTimeout       Code = "SERVICE_TIMEOUT"
	CodeRateLimitExceeded    Code = "RATE_LIMIT_EXCEEDED"
)

// Venue and arbitrage error codes
const (
	// Blockchain errors
	CodeEthereumConnectionFailed Code = "ETHEREUM_CONNECTION_FAILED"
	CodeEthereumSubscribeFailed  Code = "ETHEREUM_SUBSCRIBE_FAILED"
	CodeEthereumRPCError         Code = "ETHEREUM_RPC_ERROR"
	CodeNonceFetchFailed         Code = "NONCE_FETCH_FAILED"

	// WebSocket errors
	CodeWebSocketConnectionError Code = "WEBSOCKET_CONNECTION_ERROR"
	CodeWebSocketSendError       Code = "WEBSOCKET_SEND_ERROR"

	// CEX session errors
	CodeCexAuthFailed        Code = "CEX_AUTH_FAILED"
	CodeCexSubmitFailed      Code = "CEX_SUBMIT_FAILED"
	CodeCexNotConnected      Code = "CEX_NOT_CONNECTED"
	CodeOrderbookStale       Code = "ORDERBOOK_STALE"
	CodeOrderbookChecksum    Code = "ORDERBOOK_CHECKSUM_MISMATCH"
	CodeOrderbookSequenceGap Code = "ORDERBOOK_SEQUENCE_GAP"
	CodeInvalidOrderbook     Code = "INVALID_ORDERBOOK"

	// DEX session errors
	CodeDexQuoteFailed  Code = "DEX_QUOTE_FAILED"
	CodeDexSubmitFailed Code = "DEX_SUBMIT_FAILED"
	CodeDexPoolNotFound Code = "DEX_POOL_NOT_FOUND"
	CodeContractCall    Code = "CONTRACT_CALL_FAILED"

	// Arbitrage lifecycle errors
	CodeInflightCeiling   Code = "INFLIGHT_CEILING_REACHED"
	CodeHalfFilled        Code = "HALF_FILLED_ARBITRAGE"
	CodeBalanceBelowFloor Code = "BALANCE_BELOW_FLOOR"
	CodeNotifyFailed      Code = "NOTIFY_FAILED"

	// Circuit breaker errors
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
)
