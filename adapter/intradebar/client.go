package intradebar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/optionx/optionx/internal/domain"
)

// Client is the adapter's REST transport: a retryablehttp.Client (grounded
// on NimbleMarkets-dbn-go's use of the same package) paced by a
// golang.org/x/time/rate limiter, authenticating every request through an
// AuthClient the same way the teacher's doRequest delegates to
// ports.AuthClient.GetHTTPClient (adapter/saxo.go).
type Client struct {
	baseURL string
	auth    *AuthClient
	http    *retryablehttp.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewClient builds a Client from cfg and auth.
func NewClient(cfg Config, auth *AuthClient, logger *zap.SugaredLogger) *Client {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.Logger = nil // the adapter logs at the call site instead of retryablehttp's own format

	return &Client{
		baseURL: cfg.BaseURL,
		auth:    auth,
		http:    rc,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.RequestBurst),
		logger:  logger,
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("intradebar: rate limit wait: %w", err)
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("intradebar: encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("intradebar: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.auth.GetAccessToken()
	if err != nil {
		return fmt.Errorf("intradebar: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("intradebar: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("intradebar: read response body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("intradebar: %s %s returned %d: %s", method, path, resp.StatusCode, string(raw))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("intradebar: decode response: %w", err)
	}
	return nil
}

// PlaceOrder submits req to Intrade Bar and returns the broker's
// acknowledgement. Failures are returned as plain errors; the caller
// (Adapter.handleAdmit) is responsible for mapping them onto
// domain.ErrParsingError per spec.md §7.
func (c *Client) PlaceOrder(ctx context.Context, req domain.TradeRequest) (placeOrderResponse, error) {
	wire := placeOrderRequest{
		Symbol:      req.Symbol,
		OptionType:  req.OptionType.String(),
		Direction:   req.OrderType.String(),
		Amount:      req.Amount.String(),
		RefundRate:  req.RefundRate.String(),
		DurationSec: req.DurationSec,
		ExpiryTime:  req.ExpiryTime,
		AccountType: req.AccountType.String(),
		Currency:    req.Currency.String(),
		ClientID:    req.UniqueID.String(),
	}
	var resp placeOrderResponse
	if err := c.do(ctx, http.MethodPost, "/orders", wire, &resp); err != nil {
		return placeOrderResponse{}, err
	}
	return resp, nil
}

// GetTradeStatus polls the settlement state of optionID.
func (c *Client) GetTradeStatus(ctx context.Context, optionID string) (tradeStatusResponse, error) {
	var resp tradeStatusResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+optionID, nil, &resp); err != nil {
		return tradeStatusResponse{}, err
	}
	return resp, nil
}

// GetAccountInfo polls the authenticated account's capability snapshot.
func (c *Client) GetAccountInfo(ctx context.Context) (accountInfoResponse, error) {
	var resp accountInfoResponse
	if err := c.do(ctx, http.MethodGet, "/account", nil, &resp); err != nil {
		return accountInfoResponse{}, err
	}
	return resp, nil
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
