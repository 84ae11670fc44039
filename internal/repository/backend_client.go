package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "parkwise/internal/errors"
	"parkwise/internal/logger"
)

// BackendClient talks JSON to the parking backend's REST API.
type BackendClient struct {
	BaseURL    string
	HTTPClient *http.Client
	log        *logger.Logger
}

func NewBackendClient(baseURL string, timeout time.Duration, log *logger.Logger) *BackendClient {
	return &BackendClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		log: log,
	}
}

type backendError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// Do sends body (if any) as JSON and decodes a 2xx response into out (if non-nil).
// Non-2xx responses become *errors.HTTPError carrying the backend's status and message.
func (c *BackendClient) Do(ctx context.Context, method, path, token string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	c.log.Debug("backend call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errorFromResponse(resp.StatusCode, respBody)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return nil
}

func errorFromResponse(status int, body []byte) *apperrors.HTTPError {
	var be backendError
	_ = json.Unmarshal(body, &be)

	msg := be.Message
	if msg == "" {
		msg = be.Error
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return apperrors.NewHTTPError(status, msg)
}
