package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"github.com/flash-defi/venus/internal/logger"
)

// RestClient is the signed REST surface: market orders and the user-data
// stream listen key.
type RestClient struct {
	http      *resty.Client
	apiKey    string
	apiSecret string
	log       logger.LoggerInterface
}

// NewRestClient creates a REST client with retry on 5xx.
func NewRestClient(baseURL, apiKey, apiSecret string, log logger.LoggerInterface) *RestClient {
	if baseURL == "" {
		baseURL = BaseAPIURL
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(250 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("X-MBX-APIKEY", apiKey)

	return &RestClient{
		http:      httpClient,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		log:       log,
	}
}

// sign appends the HMAC-SHA256 signature over the encoded query.
func (c *RestClient) sign(params url.Values) string {
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	encoded := params.Encode()

	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(encoded))
	return encoded + "&signature=" + hex.EncodeToString(mac.Sum(nil))
}

// SubmitMarketOrder places a MARKET order. The sign of amount selects the
// side; cid becomes newClientOrderId so the fill can be matched.
func (c *RestClient) SubmitMarketOrder(ctx context.Context, cid int64, symbol string, amount decimal.Decimal) error {
	side := "BUY"
	if amount.IsNegative() {
		side = "SELL"
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("side", side)
	params.Set("type", "MARKET")
	params.Set("quantity", amount.Abs().String())
	params.Set("newClientOrderId", strconv.FormatInt(cid, 10))

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(c.sign(params)).
		Post("/api/v3/order")
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("submit order: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

// CreateListenKey opens a user-data stream and returns its key.
func (c *RestClient) CreateListenKey(ctx context.Context) (string, error) {
	var result struct {
		ListenKey string `json:"listenKey"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&result).
		Post("/api/v3/userDataStream")
	if err != nil {
		return "", fmt.Errorf("create listen key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("create listen key: status %d: %s", resp.StatusCode(), resp.String())
	}
	return result.ListenKey, nil
}

// KeepAliveListenKey extends the stream's validity; call every ~30 minutes.
func (c *RestClient) KeepAliveListenKey(ctx context.Context, key string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("listenKey", key).
		Put("/api/v3/userDataStream")
	if err != nil {
		return fmt.Errorf("keepalive listen key: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("keepalive listen key: status %d", resp.StatusCode())
	}
	return nil
}
