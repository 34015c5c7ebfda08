/**
 * @description
 * This package provides a client for the public exchange-rate API used to
 * convert provider USD prices into naira. The API exposes a single endpoint
 * returning the latest rates against a USD base.
 *
 * @dependencies
 * - context, encoding/json, net/http: Standard Go libraries.
 */
package fxrates

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client fetches exchange rates from the upstream rate API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new exchange-rate API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type latestRatesResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// GetUSDRate returns the current USD -> currency rate.
func (c *Client) GetUSDRate(ctx context.Context, currency string) (float64, error) {
	if c.baseURL == "" {
		return 0, fmt.Errorf("exchange rate base url is empty")
	}

	url := fmt.Sprintf("%s/latest/USD", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to execute request to rate API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("rate API returned error status %d", resp.StatusCode)
	}

	var response latestRatesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return 0, fmt.Errorf("failed to decode rate response: %w", err)
	}

	rate, ok := response.Rates[strings.ToUpper(currency)]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("rate API response missing %s rate", currency)
	}

	return rate, nil
}
