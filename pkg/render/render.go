// Package render converts artifact HTML into PDF bytes through an external
// headless-browser render service.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

// Renderer turns an HTML document into PDF bytes. Close must be called after
// use regardless of success or failure.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
	Close() error
}

// Client talks to the render service's POST /render endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Dial creates a render client. The returned client holds pooled connections
// to the browser service; callers must Close it when done.
func Dial(baseURL string) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("render service URL required")
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// Render submits HTML and returns the PDF bytes. The output is sanity-checked
// before being handed back: an empty or unparsable PDF is an error, not a
// deliverable.
func (c *Client) Render(ctx context.Context, html string) ([]byte, error) {
	payload, err := json.Marshal(map[string]string{"html": html})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("render error: %s", msg)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read render response: %w", err)
	}
	if err := checkPDF(data); err != nil {
		return nil, err
	}
	return data, nil
}

// Close releases pooled connections to the render service.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// checkPDF verifies the bytes parse as a PDF with at least one page.
func checkPDF(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("render returned empty document")
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fmt.Errorf("render returned invalid pdf: %w", err)
	}
	if reader.NumPage() < 1 {
		return fmt.Errorf("render returned pdf with no pages")
	}
	return nil
}
