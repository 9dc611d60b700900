// Package chat provides the conversation collaborator client. When a
// repairer is assigned, a conversation between the parties is opened there.
package chat

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

	"github.com/google/uuid"
)

// Opener opens conversations between a customer and a repairer.
type Opener interface {
	OpenConversation(ctx context.Context, requestID, customerID, repairerID uuid.UUID) error
}

// NoopOpener drops requests. Used when no chat collaborator is configured.
type NoopOpener struct{}

func (NoopOpener) OpenConversation(context.Context, uuid.UUID, uuid.UUID, uuid.UUID) error {
	return nil
}

// Client talks to the conversation collaborator's REST API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

type openConversationRequest struct {
	ReferenceID string   `json:"referenceId"`
	Members     []string `json:"members"`
}

// NewClient creates a chat client, or nil when no collaborator is configured.
func NewClient(cfg config.ChatConfig, log *logger.Logger) *Client {
	if !cfg.IsChatEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetChatServiceURL(), "/"),
		apiKey:  cfg.GetChatServiceKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// OpenConversation creates the conversation keyed by the request id.
// The collaborator treats repeat calls for the same reference as a no-op.
func (c *Client) OpenConversation(ctx context.Context, requestID, customerID, repairerID uuid.UUID) error {
	if c == nil {
		return nil
	}

	payload := openConversationRequest{
		ReferenceID: requestID.String(),
		Members:     []string{customerID.String(), repairerID.String()},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal conversation payload: %w", err)
	}

	url := fmt.Sprintf("%s/v1/conversations", c.baseURL)
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
		return fmt.Errorf("chat request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("conversation opened", "request_id", requestID)
	return nil
}
