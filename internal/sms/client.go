// Package sms provides the SMS delivery collaborator client. Completion
// codes go out through here; delivery mechanics stay with the collaborator.
package sms

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
	"repairlink_backend/platform/phone"
)

// Sender sends SMS messages.
type Sender interface {
	SendSMS(ctx context.Context, phoneNumber, message string) error
}

// NoopSender drops messages. Used when no SMS collaborator is configured.
type NoopSender struct{}

func (NoopSender) SendSMS(context.Context, string, string) error { return nil }

// Client talks to the SMS collaborator's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

// NewClient creates an SMS client, or nil when no collaborator is configured.
func NewClient(cfg config.SMSConfig, log *logger.Logger) *Client {
	if !cfg.IsSMSEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetSMSServiceURL(), "/"),
		apiKey:  cfg.GetSMSServiceKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// SendSMS delivers one message to the normalized number.
func (c *Client) SendSMS(ctx context.Context, phoneNumber, message string) error {
	if c == nil {
		return nil
	}

	payload := sendRequest{
		Phone:   phone.NormalizeE164(phoneNumber),
		Message: message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sms payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sms service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("sms sent", "phone", payload.Phone)
	return nil
}
