package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	pushPath         = "/push"
	instructionsPath = "/instructions"

	defaultTimeout     = 30 * time.Second
	maxRetries         = 3
	initialRetryDelay  = 1 * time.Second
	maxRetryDelay      = 30 * time.Second
	retryBackoffFactor = 2
)

// Uploader delivers queued sync actions to the cloud backend.
type Uploader interface {
	PushObjects(ctx context.Context, attemptID, collection string, objects []map[string]any) error
	ExecuteClientInstructions(ctx context.Context, attemptID string, instructions []ClientInstruction) error
}

// ClientInstruction is a follow-up action issued by the backend that the
// client has to carry out, e.g. uploading a locally stored blob.
type ClientInstruction struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PushRequest is the body of a push call.
type PushRequest struct {
	AttemptID  string           `json:"attempt_id"`
	Collection string           `json:"collection"`
	Objects    []map[string]any `json:"objects"`
}

// InstructionsRequest is the body of an instructions call.
type InstructionsRequest struct {
	AttemptID          string              `json:"attempt_id"`
	ClientInstructions []ClientInstruction `json:"client_instructions"`
}

// Client talks to the cloud sync backend over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retryDelay time.Duration
}

// NewClient creates a backend client. baseURL may be empty, in which case
// every call fails with ErrNotConfigured.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		retryDelay: initialRetryDelay,
	}
}

// PushObjects sends one batch of records of a collection.
func (c *Client) PushObjects(ctx context.Context, attemptID, collection string, objects []map[string]any) error {
	if objects == nil {
		objects = []map[string]any{}
	}
	return c.post(ctx, pushPath, PushRequest{
		AttemptID:  attemptID,
		Collection: collection,
		Objects:    objects,
	})
}

// ExecuteClientInstructions forwards backend-issued instructions.
func (c *Client) ExecuteClientInstructions(ctx context.Context, attemptID string, instructions []ClientInstruction) error {
	if instructions == nil {
		instructions = []ClientInstruction{}
	}
	return c.post(ctx, instructionsPath, InstructionsRequest{
		AttemptID:          attemptID,
		ClientInstructions: instructions,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.calculateRetryDelay(attempt)):
			}
		}

		lastErr = c.doPost(ctx, c.baseURL+path, body)
		if lastErr == nil {
			return nil
		}

		// Only retry on rate limits or server errors
		if !isRetryableError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func (c *Client) doPost(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 500:
		return &ServerError{StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

func (c *Client) calculateRetryDelay(attempt int) time.Duration {
	delay := c.retryDelay
	for i := 1; i < attempt; i++ {
		delay *= time.Duration(retryBackoffFactor)
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay
}

func isRetryableError(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var serverErr *ServerError
	return errors.As(err, &serverErr)
}
