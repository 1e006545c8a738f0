// Package ledger is the client for the external ledger that moves reward funds.
package ledger

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

	"github.com/shopspring/decimal"
)

// ErrTransferFailed wraps every failed transfer, whether the ledger refused
// it or could not be reached.
var ErrTransferFailed = errors.New("ledger: transfer failed")

// Client moves funds to a wallet address.
type Client interface {
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
}

// TransferRequest describes one payout. Reference is the idempotency key:
// repeating a request with the same reference must not pay twice.
type TransferRequest struct {
	Reference string
	ToAddress string
	Amount    decimal.Decimal
}

// TransferResult is the ledger's acknowledgement of a transfer.
type TransferResult struct {
	TxHash string `json:"tx_hash"`
	Status string `json:"status"`
}

// Config holds HTTP client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPClient talks to the ledger's JSON API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a new ledger client.
func NewHTTPClient(cfg Config) *HTTPClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type transferBody struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type errorBody struct {
	Message string `json:"message"`
}

// Transfer sends a payout. Any non-2xx answer, transport error or malformed
// body is reported as ErrTransferFailed.
func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	if req.ToAddress == "" {
		return nil, fmt.Errorf("%w: recipient has no wallet address", ErrTransferFailed)
	}
	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrTransferFailed)
	}

	body, err := json.Marshal(transferBody{To: req.ToAddress, Amount: req.Amount.String()})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/transfers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.Reference)
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransferFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var eb errorBody
		if json.Unmarshal(respBody, &eb) == nil && eb.Message != "" {
			return nil, fmt.Errorf("%w: %s: %s", ErrTransferFailed, resp.Status, eb.Message)
		}
		return nil, fmt.Errorf("%w: %s", ErrTransferFailed, resp.Status)
	}

	var result TransferResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("%w: unmarshal response: %v", ErrTransferFailed, err)
	}
	if result.TxHash == "" {
		return nil, fmt.Errorf("%w: response missing tx hash", ErrTransferFailed)
	}

	return &result, nil
}
