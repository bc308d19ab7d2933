package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"custos/pkg/domain"
	"custos/pkg/platform/sentinel"
)

// LedgerClient reads holder balances from the ledger's HTTP API. It backs
// the max-balance check and holder-flag bookkeeping once a token is bound.
type LedgerClient struct {
	baseURL string
	client  *http.Client
}

func NewLedgerClient(baseURL string) *LedgerClient {
	return &LedgerClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

type balanceResponse struct {
	Balance uint64 `json:"balance"`
}

func (c *LedgerClient) BalanceOf(ctx context.Context, holder domain.Address) (uint64, error) {
	url := fmt.Sprintf("%s/v1/balances/%s", c.baseURL, holder.Hex())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build balance request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("read balance: %v: %w", err, sentinel.ErrUnavailable)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("read balance: ledger returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	var body balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	return body.Balance, nil
}
