// Package lark delivers settlement summaries to a Lark group webhook.
package lark

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/flash-defi/venus/business/arbitrage/domain"
	"github.com/flash-defi/venus/internal/apperror"
	"github.com/flash-defi/venus/internal/logger"
)

// message is the Lark bot webhook payload.
type message struct {
	MsgType string  `json:"msg_type"`
	Content content `json:"content"`
}

type content struct {
	Text string `json:"text"`
}

// Notifier posts arbitrage summaries to a configured webhook URL.
type Notifier struct {
	webhook string
	http    *resty.Client
	log     logger.LoggerInterface
}

// NewNotifier creates the notifier. An empty webhook disables delivery.
func NewNotifier(webhook string, log logger.LoggerInterface) *Notifier {
	httpClient := resty.New().
		SetTimeout(5 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &Notifier{
		webhook: webhook,
		http:    httpClient,
		log:     log.With("component", "lark"),
	}
}

// Notify serializes the summary and posts it. Failures are returned for the
// caller to log; they never block the lifecycle.
func (n *Notifier) Notify(ctx context.Context, summary domain.Summary) error {
	if n.webhook == "" {
		n.log.Debug(ctx, "webhook not configured, skipping notification")
		return nil
	}

	payload := message{
		MsgType: "text",
		Content: content{Text: renderSummary(summary)},
	}

	resp, err := n.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(n.webhook)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeNotifyFailed, "post webhook")
	}
	if resp.StatusCode() != http.StatusOK {
		return apperror.New(apperror.CodeNotifyFailed,
			apperror.WithContext(fmt.Sprintf("status %d: %s", resp.StatusCode(), resp.String())))
	}
	return nil
}

// renderSummary renders the summary as the plain-text block the group chat
// shows.
func renderSummary(s domain.Summary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "arbitrage %s %s/%s\n", s.Status, s.Base, s.Quote)
	fmt.Fprintf(&b, "opened: %s\n", s.Datetime.Format(time.RFC3339))
	if s.Reason != "" {
		fmt.Fprintf(&b, "reason: %s\n", s.Reason)
	}

	fmt.Fprintf(&b, "cex %s: base %s, quote %s, price %s, fee %s %s\n",
		s.Cex.Venue,
		s.Cex.BaseAmount.String(), s.Cex.QuoteAmount.String(),
		s.Cex.Price.String(), s.Cex.FeeAmount.String(), s.Cex.FeeCurrency,
	)
	fmt.Fprintf(&b, "dex %s (%s): base %s, quote %s, price %s\n",
		s.Dex.Venue, s.Dex.Network,
		s.Dex.BaseAmount.String(), s.Dex.QuoteAmount.String(), s.Dex.Price.String(),
	)
	if s.Dex.ID != "" {
		fmt.Fprintf(&b, "tx: %s\n", s.Dex.ID)
	}

	fmt.Fprintf(&b, "realized spread: %s bp\n", s.RealizedSpreadBp.StringFixed(2))
	fmt.Fprintf(&b, "net pnl: %s %s", s.NetPnl.String(), s.Quote)

	return b.String()
}
