// Package provider is the HTTP client for the biometric identity
// verification provider.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"medcred/internal/providers"
)

// ProviderID tags errors from this client.
const ProviderID = "biometric"

const maxResponseBytes = 1 << 20

// Config holds the provider endpoint and credentials.
type Config struct {
	BaseURL     string
	APIKey      string
	WorkflowID  string
	CallbackURL string
	Timeout     time.Duration
}

// Client talks to the provider's session API.
type Client struct {
	baseURL     *url.URL
	apiKey      string
	workflowID  string
	callbackURL string
	http        *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid provider base url %q", cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, errors.New("provider api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:     base,
		apiKey:      cfg.APIKey,
		workflowID:  cfg.WorkflowID,
		callbackURL: cfg.CallbackURL,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateSession opens a verification session. WorkflowID and CallbackURL
// default to the configured values when the request leaves them empty.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*SessionCreated, error) {
	if req.WorkflowID == "" {
		req.WorkflowID = c.workflowID
	}
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}
	var out SessionCreated
	if err := c.do(ctx, http.MethodPost, "/session/", req, &out); err != nil {
		return nil, err
	}
	if out.SessionID == "" || out.SessionURL == "" {
		return nil, providers.NewProviderError(providers.ErrorBadData, ProviderID, "session response missing session_id or session_url", nil)
	}
	return &out, nil
}

// GetDecision fetches the current decision for a session. A 404 surfaces
// as a providers.ErrorNotFound error.
func (c *Client) GetDecision(ctx context.Context, sessionID string) (*Decision, error) {
	var out Decision
	path := "/session/" + url.PathEscape(sessionID) + "/decision/"
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out.SessionID == "" {
		out.SessionID = sessionID
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return providers.NewProviderError(providers.ErrorInternal, ProviderID, "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, reader)
	if err != nil {
		return providers.NewProviderError(providers.ErrorInternal, ProviderID, "build request", err)
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return providers.Classify(ProviderID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return providers.Classify(ProviderID, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return providers.FromStatus(ProviderID, resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return providers.NewProviderError(providers.ErrorBadData, ProviderID, "decode response", err)
	}
	return nil
}
