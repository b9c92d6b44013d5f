package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cartera-portal/cartera-portal/internal/shared"
)

// GatewayClient fetches transactions from the payment gateway's REST API.
type GatewayClient struct {
	baseURL    string
	privateKey string
	httpClient *http.Client
}

// NewGatewayClient constructs a GatewayClient. httpClient may be nil.
func NewGatewayClient(baseURL, privateKey string, httpClient *http.Client) *GatewayClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &GatewayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		privateKey: privateKey,
		httpClient: httpClient,
	}
}

type gatewayEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// GetTransaction fetches one transaction by its gateway id.
func (c *GatewayClient) GetTransaction(ctx context.Context, id string) (*Transaction, error) {
	if c.privateKey == "" {
		return nil, fmt.Errorf("%w: gateway private key not set", shared.ErrConfigMissing)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transactions/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("payments: build gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.privateKey)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("payments: gateway request: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("payments: read gateway response: %w", err)
	}
	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: transaction %s", shared.ErrNotFound, id)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, fmt.Errorf("payments: gateway returned %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope gatewayEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("payments: decode gateway envelope: %w", err)
	}
	var tx Transaction
	if err := json.Unmarshal(envelope.Data, &tx); err != nil {
		return nil, fmt.Errorf("payments: decode gateway transaction: %w", err)
	}
	tx.Raw = envelope.Data
	return &tx, nil
}
