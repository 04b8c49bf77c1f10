package client

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
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kashyapanjali/periskope/internal/domain"
	"github.com/kashyapanjali/periskope/internal/logging"
)

// Client talks to the periskoped HTTP API on behalf of one signed-in identity.
type Client struct {
	base *url.URL
	http *http.Client
	log  *zap.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithToken starts the client with a saved access token.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithTimeout bounds every HTTP round trip.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = logging.OrNop(l) }
}

// New creates a client for the daemon at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Timeout: 15 * time.Second},
		log:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Token returns the current access token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the access token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()
	return u.String()
}

// do sends a request and decodes a JSON response into out when non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	var (
		reader      io.Reader
		contentType string
	)
	switch b := body.(type) {
	case nil:
	case rawBody:
		reader, contentType = bytes.NewReader(b.data), b.contentType
	default:
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader, contentType = bytes.NewReader(buf), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.log.Debug("daemon request",
		zap.String("method", method), zap.String("path", path),
		zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

type rawBody struct {
	data        []byte
	contentType string
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

// orNone turns a 404 into a nil result for single-row lookups.
func orNone(err error) error {
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// SignUp creates an identity. The daemon answers ErrRateLimited when sign-ups are throttled.
func (c *Client) SignUp(ctx context.Context, email, password string, meta domain.IdentityMetadata) (*domain.Identity, error) {
	req := map[string]any{"email": email, "password": password, "metadata": meta}
	var ident domain.Identity
	if err := c.do(ctx, http.MethodPost, "/auth/signup", nil, req, &ident); err != nil {
		return nil, err
	}
	return &ident, nil
}

// SignIn exchanges a password for an access token and keeps the token.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Identity, error) {
	var resp struct {
		AccessToken string           `json:"access_token"`
		Identity    *domain.Identity `json:"identity"`
	}
	req := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/token", nil, req, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.AccessToken)
	return resp.Identity, nil
}

// CurrentIdentity returns the signed-in identity, or nil when there is no
// valid session.
func (c *Client) CurrentIdentity(ctx context.Context) (*domain.Identity, error) {
	if c.Token() == "" {
		return nil, nil
	}
	var ident domain.Identity
	err := c.do(ctx, http.MethodGet, "/auth/user", nil, nil, &ident)
	if errors.Is(err, ErrUnauthenticated) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ident, nil
}

// SignOut revokes the token on the daemon and forgets it locally.
func (c *Client) SignOut(ctx context.Context) error {
	if c.Token() == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	c.SetToken("")
	if errors.Is(err, ErrUnauthenticated) {
		return nil
	}
	return err
}
