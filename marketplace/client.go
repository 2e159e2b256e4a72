// Package marketplace fetches serialized offer documents from a marketplace
// HTTP API and digs them out of the handful of response envelopes observed in
// the wild.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout keeps a slow marketplace from stalling a settlement that
// already has the wallet's attention.
const DefaultTimeout = 10 * time.Second

const maxResponseBytes = 1 << 20

// Client resolves offer ids against a marketplace API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a marketplace client rooted at baseURL, e.g.
// "https://api.example.com".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveOffer fetches the serialized offer document for id.
func (c *Client) ResolveOffer(ctx context.Context, id string) (string, error) {
	endpoint := fmt.Sprintf("%s/offers/%s", c.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("building offer request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching offer %s: %w", id, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("reading offer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("marketplace returned non-200", "id", id, "status", resp.StatusCode)
		return "", fmt.Errorf("offer %s: marketplace returned status %d", id, resp.StatusCode)
	}

	doc, ok := ExtractOffer(body)
	if !ok {
		return "", fmt.Errorf("offer %s: no offer document in marketplace response", id)
	}
	return doc, nil
}

// ExtractOffer pulls a serialized offer document out of a marketplace
// response body. Recognized shapes, tried in order:
//
//	"offer1..."                          bare JSON string
//	{"offer": "offer1..."}               flat field
//	{"offer": {"offer": "offer1..."}}    offer object
//	{"data": {"offer": "offer1..."}}     data wrapper
func ExtractOffer(body []byte) (string, bool) {
	var bare string
	if err := json.Unmarshal(body, &bare); err == nil {
		return nonEmpty(bare)
	}

	var flat struct {
		Offer json.RawMessage `json:"offer"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &flat); err != nil {
		return "", false
	}
	if doc, ok := offerFromField(flat.Offer); ok {
		return doc, true
	}
	if len(flat.Data) > 0 {
		var inner struct {
			Offer json.RawMessage `json:"offer"`
		}
		if err := json.Unmarshal(flat.Data, &inner); err == nil {
			return offerFromField(inner.Offer)
		}
	}
	return "", false
}

// offerFromField accepts either a string or a nested {"offer": "..."} object.
func offerFromField(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return nonEmpty(s)
	}
	var nested struct {
		Offer string `json:"offer"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil {
		return nonEmpty(nested.Offer)
	}
	return "", false
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}
