// Package mail delivers transactional email through an HTTP email provider.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Credentials carry the provider API key and sender identity.
type Credentials struct {
	APIKey string
	From   string
}

// CredentialSource returns provider credentials. It is called on every send
// and must not be cached, since keys are rotated and can expire between sends.
type CredentialSource func(ctx context.Context) (Credentials, error)

// Sender delivers one email. Implementations report failure with an opaque
// error; delivery problems never take a plan down.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Client posts messages to the provider's /emails endpoint.
type Client struct {
	baseURL     string
	credentials CredentialSource
	httpClient  *http.Client
}

// NewClient builds a mail client.
func NewClient(baseURL string, credentials CredentialSource) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("mail provider URL required")
	}
	if credentials == nil {
		return nil, fmt.Errorf("credential source required")
	}
	return &Client{
		baseURL:     baseURL,
		credentials: credentials,
		httpClient:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// Send delivers one email with both HTML and derived plain-text bodies.
func (c *Client) Send(ctx context.Context, to, subject, htmlBody string) error {
	creds, err := c.credentials(ctx)
	if err != nil {
		return fmt.Errorf("fetch mail credentials: %w", err)
	}
	if strings.TrimSpace(creds.APIKey) == "" {
		return fmt.Errorf("mail credentials missing api key")
	}
	payload, err := json.Marshal(map[string]string{
		"from":    creds.From,
		"to":      to,
		"subject": subject,
		"html":    htmlBody,
		"text":    PlainText(htmlBody),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Message
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("mail provider error: %s", msg)
	}
	return nil
}

// PlainText strips tags from an HTML body for the text/plain alternative.
func PlainText(htmlBody string) string {
	doc, err := html.Parse(strings.NewReader(htmlBody))
	if err != nil {
		return htmlBody
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte('\n')
				}
				sb.WriteString(text)
			}
		case html.ElementNode:
			if n.Data == "style" || n.Data == "script" {
				return
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return sb.String()
}
