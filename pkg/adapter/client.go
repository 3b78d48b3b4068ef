package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/moltender/pkg/interfaces"
	"github.com/m-mizutani/moltender/pkg/model"
	"github.com/m-mizutani/moltender/pkg/utils/logging"
)

// TokenSource provides the bearer token of the current session
type TokenSource interface {
	Token() string
}

// TokenFunc adapts a function to TokenSource
type TokenFunc func() string

func (f TokenFunc) Token() string { return f() }

type tokenHolder struct {
	src TokenSource
}

// Client is the transport to the moltender backend. It issues request/response
// calls and opens persistent push channels.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	dialer     *websocket.Dialer
	backoff    Backoff
	maxRetries int

	tokens atomic.Pointer[tokenHolder]
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTokenSource(src TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens.Store(&tokenHolder{src: src})
	}
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// WithBackoff sets the reconnection delay policy of channels opened by the client
func WithBackoff(backoff Backoff) ClientOption {
	return func(c *Client) {
		c.backoff = backoff
	}
}

// WithMaxRetries bounds channel reconnection attempts. 0 retries forever.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// NewClient creates a new backend client for baseURL (e.g. https://moltender.example)
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, goerr.Wrap(err, "invalid base URL", goerr.V("base_url", baseURL))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, goerr.New("base URL must be http or https", goerr.V("base_url", baseURL))
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer:  websocket.DefaultDialer,
		backoff: DefaultBackoff(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetTokenSource replaces the token source. The token itself is read on every
// authenticated call, so a session refreshed mid-flight is honored by later calls.
func (c *Client) SetTokenSource(src TokenSource) {
	c.tokens.Store(&tokenHolder{src: src})
}

func (c *Client) token() string {
	h := c.tokens.Load()
	if h == nil || h.src == nil {
		return ""
	}
	return h.src.Token()
}

// Request describes one backend call
type Request struct {
	Method        string
	Path          string
	Query         url.Values
	Body          any
	Authenticated bool
}

// Call issues req and decodes a successful JSON response into out (if not nil).
// Non-2xx responses fail with *model.RequestError.
func (c *Client) Call(ctx context.Context, req Request, out any) error {
	logger := logging.From(ctx)

	endpoint := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		endpoint.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal request body", goerr.V("path", req.Path))
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint.String(), body)
	if err != nil {
		return goerr.Wrap(err, "failed to create request", goerr.V("path", req.Path))
	}

	requestID := uuid.New().String()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	if req.Authenticated {
		token := c.token()
		if token == "" {
			return goerr.Wrap(model.ErrNotAuthenticated, "authenticated call without session",
				goerr.V("method", req.Method), goerr.V("path", req.Path))
		}
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	logger.Debug("backend request", "method", req.Method, "path", req.Path, "request_id", requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return goerr.Wrap(err, "failed to send request",
			goerr.V("method", req.Method), goerr.V("path", req.Path))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerr.Wrap(err, "failed to read response body", goerr.V("path", req.Path))
	}

	logger.Debug("backend response", "path", req.Path, "status", resp.StatusCode, "request_id", requestID)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return goerr.Wrap(&model.RequestError{
			Status: resp.StatusCode,
			Detail: parseErrorDetail(raw),
		}, "backend returned error",
			goerr.V("method", req.Method),
			goerr.V("path", req.Path),
			goerr.V("request_id", requestID))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return goerr.Wrap(err, "failed to decode response",
			goerr.V("path", req.Path), goerr.V("body", string(raw)))
	}
	return nil
}

// parseErrorDetail extracts the structured error field of an error body. Validation
// failures come as a list of {msg} objects.
func parseErrorDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return model.DefaultErrorDetail
	}

	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err == nil {
		if detail == "" {
			return model.DefaultErrorDetail
		}
		return detail
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}

	return model.DefaultErrorDetail
}

// OpenChannel returns a push channel for path. Nothing is dialed until Connect.
func (c *Client) OpenChannel(path string, authenticated bool) interfaces.Channel {
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = strings.TrimRight(wsURL.Path, "/") + path

	target := wsURL.String()
	var resolve func() (string, error)
	if authenticated {
		resolve = func() (string, error) {
			token := c.token()
			if token == "" {
				return "", goerr.Wrap(model.ErrNotAuthenticated, "channel requires a session", goerr.V("path", path))
			}
			u := wsURL
			q := u.Query()
			q.Set("token", token)
			u.RawQuery = q.Encode()
			return u.String(), nil
		}
	} else {
		resolve = func() (string, error) { return target, nil }
	}

	return newChannel(path, resolve, c.dialer, c.backoff, c.maxRetries)
}
