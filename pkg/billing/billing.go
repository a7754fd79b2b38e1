// Package billing resolves checkout prices and promo codes from the payment
// provider's HTTP API.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Price describes the product price used for plan checkout.
type Price struct {
	ID       string `json:"id"`
	Currency string `json:"currency"`
	Amount   int64  `json:"unit_amount"`
}

// Promo is an active promotion code and the discount it applies.
type Promo struct {
	ID         string `json:"id"`
	Code       string `json:"code"`
	PercentOff int    `json:"percent_off"`
}

// Client looks up the plan price and promo codes. The price ID is resolved
// once and memoized for the process lifetime; prices do not change without a
// redeploy, but promo codes do, so those are fetched per call.
type Client struct {
	baseURL    string
	apiKey     string
	lookupKey  string
	httpClient *http.Client

	mu    sync.Mutex
	price *Price
}

// NewClient builds a billing client. lookupKey identifies the plan price in
// the provider's catalog.
func NewClient(baseURL, apiKey, lookupKey string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("billing provider URL required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("billing api key required")
	}
	if lookupKey == "" {
		return nil, fmt.Errorf("billing price lookup key required")
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		lookupKey:  lookupKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// PlanPrice returns the checkout price, resolving it from the provider on
// first use.
func (c *Client) PlanPrice(ctx context.Context) (Price, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.price != nil {
		return *c.price, nil
	}
	var result struct {
		Data []Price `json:"data"`
	}
	query := url.Values{"lookup_keys[]": {c.lookupKey}, "active": {"true"}}
	if err := c.get(ctx, "/v1/prices?"+query.Encode(), &result); err != nil {
		return Price{}, err
	}
	if len(result.Data) == 0 {
		return Price{}, fmt.Errorf("no active price for lookup key %q", c.lookupKey)
	}
	c.price = &result.Data[0]
	return *c.price, nil
}

// LookupPromo resolves an active promotion code. A missing or inactive code
// returns ok=false rather than an error.
func (c *Client) LookupPromo(ctx context.Context, code string) (Promo, bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Promo{}, false, nil
	}
	var result struct {
		Data []Promo `json:"data"`
	}
	query := url.Values{"code": {code}, "active": {"true"}}
	if err := c.get(ctx, "/v1/promotion_codes?"+query.Encode(), &result); err != nil {
		return Promo{}, false, err
	}
	if len(result.Data) == 0 {
		return Promo{}, false, nil
	}
	return result.Data[0], true, nil
}

func (c *Client) get(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("billing request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("billing provider error: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode billing response: %w", err)
	}
	return nil
}
