package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPLedger is a client for the external wallet service. The wallet
// service owns persistence and serializes adjustments per user; this
// client only maps its HTTP contract onto the Ledger interface.
type HTTPLedger struct {
	baseURL string
	http    *http.Client
}

// NewHTTPLedger creates a wallet-service client. The short client timeout
// bounds balance operations so a stuck wallet cannot hold up placement.
func NewHTTPLedger(baseURL string) *HTTPLedger {
	return &HTTPLedger{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Second},
	}
}

type balanceResponse struct {
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
}

type adjustRequest struct {
	UserID string          `json:"user_id"`
	Delta  decimal.Decimal `json:"delta"`
}

type adjustResponse struct {
	Balance decimal.Decimal `json:"balance"`
	Error   string          `json:"error,omitempty"`
}

func (l *HTTPLedger) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		l.baseURL+"/wallet/balance/"+userID, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := l.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("wallet balance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return decimal.Zero, fmt.Errorf("user %s: %w", userID, ErrUnknownUser)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("wallet balance: unexpected status %d", resp.StatusCode)
	}

	var out balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("wallet balance: %w", err)
	}
	return out.Balance, nil
}

func (l *HTTPLedger) Adjust(ctx context.Context, userID string, delta decimal.Decimal) (decimal.Decimal, error) {
	body, err := json.Marshal(adjustRequest{UserID: userID, Delta: delta})
	if err != nil {
		return decimal.Zero, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		l.baseURL+"/wallet/adjust", bytes.NewReader(body))
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.http.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("wallet adjust: %w", err)
	}
	defer resp.Body.Close()

	var out adjustResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return decimal.Zero, fmt.Errorf("wallet adjust: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return out.Balance, nil
	case http.StatusNotFound:
		return decimal.Zero, fmt.Errorf("user %s: %w", userID, ErrUnknownUser)
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return decimal.Zero, fmt.Errorf("user %s: %s: %w", userID, out.Error, ErrInsufficientFunds)
	default:
		return decimal.Zero, fmt.Errorf("wallet adjust: unexpected status %d: %s", resp.StatusCode, out.Error)
	}
}
