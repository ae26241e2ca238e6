// Package robinhood is a broker.Client for the Robinhood REST API.
package robinhood

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jonandersen/rob/internal/broker"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.robinhood.com"

// ClientID is the OAuth client id used by Robinhood's web application.
const ClientID = "c82SH0WZOsabOXGP2sxqcj34FxkvfnWRZBKlBjFS"

// Client talks to the Robinhood API. It is not safe for concurrent use.
type Client struct {
	BaseURL     string
	DeviceToken string
	HTTPClient  *http.Client

	// OnRefresh is called with the new token after a transparent refresh.
	OnRefresh func(*broker.Token)

	token       *broker.Token
	accountURL  string
	symbols     map[string]string // instrument URL -> symbol
	instruments map[string]string // symbol -> instrument URL
	log         zerolog.Logger
}

var _ broker.Client = (*Client)(nil)

// NewClient creates a client. An empty deviceToken gets a random one;
// callers that persist it avoid repeated device approval.
func NewClient(baseURL, deviceToken string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if deviceToken == "" {
		deviceToken = uuid.NewString()
	}
	return &Client{
		BaseURL:     strings.TrimSuffix(baseURL, "/"),
		DeviceToken: deviceToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		symbols:     make(map[string]string),
		instruments: make(map[string]string),
		log:         log,
	}
}

// Token returns the current session token, or nil.
func (c *Client) Token() *broker.Token {
	return c.token
}

func (c *Client) get(ctx context.Context, path string, params url.Values) (*http.Response, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, "")
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body, "application/json")
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values) (*http.Response, error) {
	return c.do(ctx, http.MethodPost, path, []byte(form.Encode()), "application/x-www-form-urlencoded")
}

// getJSON performs a GET and decodes a 2xx body into target.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, target any) error {
	resp, err := c.get(ctx, path, params)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := CheckResponse(resp); err != nil {
		return err
	}
	return DecodeJSON(resp, target)
}

// do performs an HTTP request with auth header injection.
// On 401, if the session carries a refresh token, it refreshes and retries once.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	resp, err := c.doOnce(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.token != nil && c.token.RefreshToken != "" {
		_ = resp.Body.Close()

		// A failed refresh still re-issues the request so the caller sees a
		// fresh response body.
		if refreshErr := c.refresh(ctx); refreshErr != nil {
			c.log.Debug().Err(refreshErr).Msg("token refresh failed")
		}
		return c.doOnce(ctx, method, path, body, contentType)
	}

	return resp, nil
}

// doOnce performs a single HTTP request. Absolute URLs (pagination links,
// instrument URLs) are used as-is.
func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		target = c.BaseURL + path
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if c.token != nil && c.token.AccessToken != "" {
		tokenType := c.token.TokenType
		if tokenType == "" {
			tokenType = "Bearer"
		}
		req.Header.Set("Authorization", tokenType+" "+c.token.AccessToken)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.log.Debug().Str("method", method).Str("url", req.URL.Path).Int("status", resp.StatusCode).Msg("robinhood request")

	return resp, nil
}

// page is the envelope of paginated list endpoints.
type page[T any] struct {
	Next    string `json:"next"`
	Results []T    `json:"results"`
}

// getAll follows next links and returns every result.
func getAll[T any](ctx context.Context, c *Client, path string, params url.Values) ([]T, error) {
	var all []T
	for path != "" {
		var p page[T]
		if err := c.getJSON(ctx, path, params, &p); err != nil {
			return nil, err
		}
		all = append(all, p.Results...)
		path, params = p.Next, nil
	}
	return all, nil
}
