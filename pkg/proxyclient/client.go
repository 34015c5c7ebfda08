/**
 * @description
 * This package provides a client for the upstream proxy provider API. It
 * encapsulates price lookups and order execution against provider services,
 * with a bounded retry for transient network failures.
 *
 * @dependencies
 * - context, encoding/json, net/http: Standard Go libraries.
 */
package proxyclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	maxAttempts      = 3
	baseRetryBackoff = 500 * time.Millisecond
)

// Client is a client for the proxy provider API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
}

// NewClient creates a new proxy provider client.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		apiSecret:  strings.TrimSpace(apiSecret),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Period is the rental period forwarded to the provider.
type Period struct {
	Unit  string `json:"unit"`
	Value int    `json:"value"`
}

// OrderPayload is the body for an order execution call. Optional fields are
// pointers so unset parameters are omitted entirely; the provider rejects
// explicit nulls.
type OrderPayload struct {
	PlanID     *string  `json:"planId,omitempty"`
	Quantity   *int     `json:"quantity,omitempty"`
	Period     *Period  `json:"period,omitempty"`
	AutoExtend *bool    `json:"autoExtend,omitempty"`
	Traffic    *float64 `json:"traffic,omitempty"`
	Country    *string  `json:"country,omitempty"`
	PackageID  *string  `json:"packageId,omitempty"`
	ISPID      *string  `json:"ispId,omitempty"`
}

// OrderResult is the provider's response to a successful order execution.
type OrderResult struct {
	OrderID string                 `json:"orderId"`
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// PriceResult is the provider's response to a price lookup.
type PriceResult struct {
	PriceUSD float64 `json:"price"`
	PlanID   string  `json:"planId,omitempty"`
}

// APIError is a non-2xx response from the provider. Such responses are never
// retried; the provider has already made a decision about the request.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("proxy provider returned status %d: %s", e.StatusCode, e.Message)
}

// ExecuteOrder places an order for a proxy service. Transient network errors
// are retried with exponential backoff; HTTP error responses are not.
func (c *Client) ExecuteOrder(ctx context.Context, serviceID string, payload OrderPayload) (*OrderResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("proxy provider base url is empty")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/execute", c.baseURL, serviceID)

	var result OrderResult
	if err := c.doWithRetry(ctx, "POST", url, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPrice looks up the provider's USD price for a service and plan.
func (c *Client) GetPrice(ctx context.Context, serviceID string, planID *string) (*PriceResult, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("proxy provider base url is empty")
	}

	url := fmt.Sprintf("%s/%s/price", c.baseURL, serviceID)
	if planID != nil && *planID != "" {
		url = fmt.Sprintf("%s?planId=%s", url, *planID)
	}

	var result PriceResult
	if err := c.doWithRetry(ctx, "GET", url, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) doWithRetry(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var lastErr error
	backoff := baseRetryBackoff

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			log.Printf("level=warn component=proxy_client msg=\"retrying provider request\" attempt=%d url=%s err=%v", attempt, url, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err := c.doOnce(ctx, method, url, body, out)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			// The provider responded; retrying would duplicate the order.
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("provider request failed after %d attempts: %w", maxAttempts, lastErr)
}

func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, out interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("X-Api-Secret", c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := decodeErrorMessage(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode provider response: %w", err)
		}
	}
	return nil
}

func decodeErrorMessage(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(raw) == 0 {
		return "no error body"
	}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return string(raw)
}
