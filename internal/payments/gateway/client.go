// Package gateway provides the payment gateway collaborator client.
// The gateway owns order/settlement mechanics; this backend only creates
// orders and verifies signed callbacks.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"repairlink_backend/platform/config"
	"repairlink_backend/platform/logger"
)

// Order is the gateway's handle for a payment attempt.
type Order struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkoutUrl"`
}

// Client talks to the payment gateway's REST API.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
	log       *logger.Logger
}

type createOrderRequest struct {
	AmountCents int64             `json:"amount"`
	Currency    string            `json:"currency"`
	Receipt     string            `json:"receipt"`
	Notes       map[string]string `json:"notes,omitempty"`
}

type createOrderResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"short_url"`
}

// NewClient creates a gateway client, or nil when no gateway is configured.
// A nil client returns placeholder orders so local development works without
// gateway credentials.
func NewClient(cfg config.GatewayConfig, log *logger.Logger) *Client {
	if !cfg.IsGatewayEnabled() {
		return nil
	}

	return &Client{
		baseURL:   strings.TrimRight(cfg.GetGatewayBaseURL(), "/"),
		keyID:     cfg.GetGatewayKeyID(),
		keySecret: cfg.GetGatewayKeySecret(),
		http:      &http.Client{Timeout: 10 * time.Second},
		log:       log,
	}
}

// CreateOrder registers a payment order with the gateway. The returned order
// id is what callbacks are later correlated and signature-checked against.
func (c *Client) CreateOrder(ctx context.Context, amountCents int64, currency, receipt string, notes map[string]string) (Order, error) {
	if c == nil {
		return Order{ID: "local_" + receipt}, nil
	}

	payload := createOrderRequest{
		AmountCents: amountCents,
		Currency:    currency,
		Receipt:     receipt,
		Notes:       notes,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Order{}, fmt.Errorf("marshal order payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/orders", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return Order{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf("gateway request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return Order{}, fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var decoded createOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Order{}, fmt.Errorf("decode gateway response: %w", err)
	}

	c.log.Info("gateway order created", "order_id", decoded.ID, "amount_cents", amountCents)
	return Order{ID: decoded.ID, CheckoutURL: decoded.CheckoutURL}, nil
}
