/**
 * @description
 * This package provides a client for the PaymentPoint collection API. It
 * encapsulates the call for provisioning a dedicated virtual bank account
 * that a user can transfer naira into. Payment confirmations arrive
 * asynchronously via PaymentPoint's signed webhook, not through this client.
 *
 * @dependencies
 * - context, encoding/json, net/http: Standard Go libraries.
 */
package paymentpoint

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the PaymentPoint API.
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	businessID string
	httpClient *http.Client
}

// NewClient creates a new PaymentPoint client.
func NewClient(baseURL, apiKey, apiSecret, businessID string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		apiSecret:  strings.TrimSpace(apiSecret),
		businessID: strings.TrimSpace(businessID),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateVirtualAccountRequest defines the payload for provisioning a virtual account.
type CreateVirtualAccountRequest struct {
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	PhoneNumber string   `json:"phoneNumber,omitempty"`
	BankCode    []string `json:"bankCode"`
	BusinessID  string   `json:"businessId"`
}

// VirtualAccountDetails is a single provisioned bank account.
type VirtualAccountDetails struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankName      string `json:"bank_name"`
}

// CreateVirtualAccountResponse defines the response from provisioning a virtual account.
type CreateVirtualAccountResponse struct {
	Status      string                  `json:"status"`
	CustomerID  string                  `json:"customer_id"`
	BankAccount []VirtualAccountDetails `json:"bankAccounts"`
}

// CreateVirtualAccount provisions a dedicated collection account for a user.
func (c *Client) CreateVirtualAccount(ctx context.Context, email, name string) (*CreateVirtualAccountResponse, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("paymentpoint base url is empty")
	}

	url := fmt.Sprintf("%s/createVirtualAccount", c.baseURL)

	payload := CreateVirtualAccountRequest{
		Email:      email,
		Name:       name,
		BankCode:   []string{"20946"},
		BusinessID: c.businessID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiSecret)
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to paymentpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("paymentpoint returned error status %d", resp.StatusCode)
	}

	var response CreateVirtualAccountResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode paymentpoint response: %w", err)
	}

	if len(response.BankAccount) == 0 {
		return nil, fmt.Errorf("paymentpoint response contained no bank accounts")
	}

	return &response, nil
}
