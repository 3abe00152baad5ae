package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"gamevault/internal/logging"
	"gamevault/internal/metrics"
	"gamevault/internal/ratelimit"
	"gamevault/internal/services"
)

const (
	// DefaultBaseURL is the public catalog API root.
	DefaultBaseURL = "https://api.igdb.com/v4"
	// DefaultTokenURL issues client-credentials tokens for the catalog.
	DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

	maxResponseBytes = 16 << 20
	maxSnippetBytes  = 512
)

// Doer performs a single catalog request. Connection is the production
// implementation; tests substitute instrumented fakes.
type Doer interface {
	Do(ctx context.Context, endpoint, body string) ([]byte, error)
}

// StatusError describes a non-2xx catalog response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("catalog %s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("catalog %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Connection is the sole gate to the catalog service.
type Connection struct {
	clientID   string
	tokens     oauth2.TokenSource
	limiter    *ratelimit.Limiter
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

var _ Doer = (*Connection)(nil)

// Option configures a Connection.
type Option func(*Connection)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Connection) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL points the connection at a different API root.
func WithBaseURL(base string) Option {
	return func(c *Connection) {
		if base = strings.TrimSpace(base); base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithMetrics records request counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Connection) {
		c.metrics = m
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Connection) {
		if logger != nil {
			c.logger = logging.NewComponentLogger(logger, "catalog")
		}
	}
}

// NewConnection validates credentials and builds a connection.
func NewConnection(clientID string, tokens oauth2.TokenSource, limiter *ratelimit.Limiter, opts ...Option) (*Connection, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "new connection", "client id required", nil)
	}
	if tokens == nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "new connection", "token source required", nil)
	}
	if limiter == nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "new connection", "rate limiter required", nil)
	}
	c := &Connection{
		clientID:   clientID,
		tokens:     tokens,
		limiter:    limiter,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewTokenSource returns a refreshing client-credentials token source. When
// secret is empty and accessToken is set, a static source is returned.
func NewTokenSource(ctx context.Context, clientID, secret, accessToken, tokenURL string) (oauth2.TokenSource, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		accessToken = strings.TrimSpace(accessToken)
		if accessToken == "" {
			return nil, services.Wrap(services.ErrConfiguration, "catalog", "token source", "client secret or access token required", nil)
		}
		return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}), nil
	}
	if strings.TrimSpace(tokenURL) == "" {
		tokenURL = DefaultTokenURL
	}
	cfg := clientcredentials.Config{
		ClientID:     strings.TrimSpace(clientID),
		ClientSecret: secret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return cfg.TokenSource(ctx), nil
}

// Do issues one query against endpoint. It waits on the shared limiter and
// never retries.
func (c *Connection) Do(ctx context.Context, endpoint, body string) ([]byte, error) {
	return c.send(ctx, endpoint, endpoint, "text/plain", body)
}

// RegisterWebhook subscribes url to catalog change notifications for the
// endpoint. method is create, update or delete.
func (c *Connection) RegisterWebhook(ctx context.Context, endpoint, hookURL, method, secret string) error {
	switch method {
	case "create", "update", "delete":
	default:
		return services.Wrap(services.ErrValidation, "catalog", "register webhook", fmt.Sprintf("unsupported method %q", method), nil)
	}
	if strings.TrimSpace(hookURL) == "" {
		return services.Wrap(services.ErrValidation, "catalog", "register webhook", "webhook url required", nil)
	}
	form := url.Values{}
	form.Set("url", hookURL)
	form.Set("secret", secret)
	form.Set("method", method)
	path := strings.Trim(endpoint, "/") + "/webhooks"
	_, err := c.send(ctx, path, endpoint+"_webhooks", "application/x-www-form-urlencoded", form.Encode())
	return err
}

func (c *Connection) send(ctx context.Context, path, label, contentType, body string) ([]byte, error) {
	release, err := c.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	token, err := c.tokens.Token()
	if err != nil {
		return nil, classifyTokenError(label, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+strings.TrimLeft(path, "/"), strings.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "catalog", label, "build request", err)
	}
	req.Header.Set("Client-ID", c.clientID)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", contentType)
	token.SetAuthHeader(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.metrics.CatalogRequest(label, "network", latency)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("execute request (latency=%v): %w", latency, ctxErr)
		}
		return nil, services.Wrap(services.ErrTransient, "catalog", label, fmt.Sprintf("execute request (latency=%v)", latency), err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.CatalogRequest(label, "network", latency)
		return nil, services.Wrap(services.ErrTransient, "catalog", label, "read response", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.metrics.CatalogRequest(label, "ok", latency)
		return payload, nil
	}

	statusErr := &StatusError{Endpoint: label, StatusCode: resp.StatusCode, Body: snippet(payload)}
	marker := classifyStatus(resp.StatusCode)
	c.metrics.CatalogRequest(label, services.Kind(marker), latency)
	c.logger.Debug("catalog request rejected",
		logging.String("endpoint", label),
		logging.Int("status", resp.StatusCode),
		logging.Duration("latency", latency),
	)
	return nil, services.Wrap(marker, "catalog", label, "", statusErr)
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.ErrAuth
	case status == http.StatusTooManyRequests:
		return services.ErrRateLimited
	case status >= 500:
		return services.ErrTransient
	default:
		return services.ErrValidation
	}
}

func classifyTokenError(label string, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil && retrieve.Response.StatusCode >= 500 {
		return services.Wrap(services.ErrTransient, "catalog", label, "obtain access token", err)
	}
	if errors.As(err, &retrieve) {
		return services.Wrap(services.ErrAuth, "catalog", label, "obtain access token", err)
	}
	return services.Wrap(services.ErrTransient, "catalog", label, "obtain access token", err)
}

func snippet(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) > maxSnippetBytes {
		body = body[:maxSnippetBytes]
	}
	return string(body)
}
