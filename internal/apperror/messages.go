package apperror

// messages maps error codes to human-readable messages
var messages = map[Code]string{
	CodeInvalidInput:  "Invalid input provided",
	CodeInvalidState:  "Invalid state for this operation",
	CodeNotFound:      "Resource not found",
	CodeInternalError: "Internal error",
	CodeUnknownError:  "An unknown error occurred",

	CodeConfigurationError: "Configuration error",

	CodeExternalServiceError: "External service error",
	CodeServiceTimeout:       "Service request timeout",
	CodeRateLimitExceeded:    "Rate limit exceeded",

	CodeEthereumConnectionFailed: "Failed to connect to Ethereum node",
	CodeEthereumSubscribeFailed:  "Failed to subscribe to Ethereum events",
	CodeEthereumRPCError:         "Ethereum RPC call failed",
	CodeNonceFetchFailed:         "Failed to fetch account nonce",

	CodeWebSocketConnectionError: "WebSocket connection error",
	CodeWebSocketSendError:       "Failed to send WebSocket message",

	CodeCexAuthFailed:        "Exchange authentication failed",
	CodeCexSubmitFailed:      "Exchange order submission failed",
	CodeCexNotConnected:      "Exchange pair is not connected",
	CodeOrderbookStale:       "Order book is stale",
	CodeOrderbookChecksum:    "Order book checksum mismatch",
	CodeOrderbookSequenceGap: "Order book sequence gap detected",
	CodeInvalidOrderbook:     "Invalid order book data",

	CodeDexQuoteFailed:  "Failed to quote swap",
	CodeDexSubmitFailed: "Failed to submit swap",
	CodeDexPoolNotFound: "Pool not found for token pair",
	CodeContractCall:    "Smart contract call failed",

	CodeInflightCeiling:   "Too many arbitrages in flight",
	CodeHalfFilled:        "Arbitrage half-filled past deadline",
	CodeBalanceBelowFloor: "Asset balance below safety floor",
	CodeNotifyFailed:      "Webhook notification failed",

	CodeCircuitOpen: "Circuit breaker is open",
}
