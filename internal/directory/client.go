// Package directory resolves actor contact details from the identity
// service. This backend stores no profiles of its own.
package directory

import (
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

// Contact holds the deliverable addresses for one actor.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Resolver looks up contact details by actor id.
type Resolver interface {
	GetContact(ctx context.Context, actorID uuid.UUID) (Contact, error)
}

// NoopResolver returns empty contacts. Callers skip delivery for empty
// addresses, so notifications degrade quietly without a directory.
type NoopResolver struct{}

func (NoopResolver) GetContact(context.Context, uuid.UUID) (Contact, error) {
	return Contact{}, nil
}

// Client talks to the identity service's directory API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a directory client, or nil when not configured.
func NewClient(cfg config.DirectoryConfig, log *logger.Logger) *Client {
	if !cfg.IsDirectoryEnabled() {
		return nil
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.GetDirectoryServiceURL(), "/"),
		apiKey:  cfg.GetDirectoryServiceKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// GetContact fetches one actor's contact record.
func (c *Client) GetContact(ctx context.Context, actorID uuid.UUID) (Contact, error) {
	if c == nil {
		return Contact{}, nil
	}

	url := fmt.Sprintf("%s/v1/contacts/%s", c.baseURL, actorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Contact{}, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Contact{}, fmt.Errorf("directory request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return Contact{}, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return Contact{}, fmt.Errorf("directory returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var contact Contact
	if err := json.NewDecoder(resp.Body).Decode(&contact); err != nil {
		return Contact{}, fmt.Errorf("decode directory response: %w", err)
	}
	return contact, nil
}
