package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gamevault/internal/documents"
	"gamevault/internal/webhooks"
)

// ErrAPIUnavailable means no daemon answered on the configured bind address.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// Error is a non-2xx daemon reply.
type Error struct {
	Status  int
	Message string
	Kind    string
}

func (e *Error) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("daemon returned status %d (%s): %s", e.Status, e.Kind, e.Message)
	}
	return fmt.Sprintf("daemon returned status %d: %s", e.Status, e.Message)
}

// Client calls the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// NewClient targets bind, a host:port or URL. token is sent as a bearer
// token when set.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// Reconcile passes over large backlogs can run for minutes.
		http: &http.Client{Timeout: 10 * time.Minute},
	}, nil
}

// Status fetches daemon status.
func (c *Client) Status(ctx context.Context) (DaemonStatus, error) {
	var out DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, &out)
	return out, err
}

// Library fetches a user's library document.
func (c *Client) Library(ctx context.Context, userID string) (documents.UserLibrary, error) {
	var out documents.UserLibrary
	err := c.do(ctx, http.MethodGet, userPath(userID, "library"), nil, nil, &out)
	return out, err
}

// Unresolved lists a user's backlog.
func (c *Client) Unresolved(ctx context.Context, userID string) (UnresolvedResponse, error) {
	var out UnresolvedResponse
	err := c.do(ctx, http.MethodGet, userPath(userID, "unresolved"), nil, nil, &out)
	return out, err
}

// Ingest resolves and stores one entry.
func (c *Client) Ingest(ctx context.Context, userID string, entry documents.StoreEntry) (ResolveResponse, error) {
	var out ResolveResponse
	err := c.do(ctx, http.MethodPost, userPath(userID, "entries"), nil, entry, &out)
	return out, err
}

// Approve resolves a queued entry to gameID.
func (c *Client) Approve(ctx context.Context, userID, key string, gameID int64) (documents.LibraryEntry, error) {
	var out documents.LibraryEntry
	err := c.do(ctx, http.MethodPost, entryPath(userID, key, "approve"), nil, ApproveRequest{GameID: gameID}, &out)
	return out, err
}

// Unmatch moves a resolved entry back to the unknown queue.
func (c *Client) Unmatch(ctx context.Context, userID, key string) error {
	return c.do(ctx, http.MethodPost, entryPath(userID, key, "unmatch"), nil, nil, nil)
}

// Remove deletes an entry from the user's library.
func (c *Client) Remove(ctx context.Context, userID, key string) error {
	return c.do(ctx, http.MethodDelete, entryPath(userID, key, ""), nil, nil, nil)
}

// RemoveStorefront deletes every entry userID imported from sf.
func (c *Client) RemoveStorefront(ctx context.Context, userID string, sf documents.Storefront) (RemoveStorefrontResponse, error) {
	var out RemoveStorefrontResponse
	err := c.do(ctx, http.MethodDelete, userPath(userID, "storefronts/"+url.PathEscape(string(sf))), nil, nil, &out)
	return out, err
}

// Reconcile runs a backlog pass for userID.
func (c *Client) Reconcile(ctx context.Context, userID string) (ReconcileResponse, error) {
	var out ReconcileResponse
	err := c.do(ctx, http.MethodPost, userPath(userID, "reconcile"), nil, nil, &out)
	return out, err
}

// Events fetches buffered events after since.
func (c *Client) Events(ctx context.Context, since uint64, limit int, follow bool) (EventsResponse, error) {
	values := url.Values{}
	if since > 0 {
		values.Set("since", strconv.FormatUint(since, 10))
	}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	if follow {
		values.Set("follow", "1")
	}
	var out EventsResponse
	err := c.do(ctx, http.MethodGet, "/api/events", values, nil, &out)
	return out, err
}

// RetryFailures re-runs stored webhook exceptions.
func (c *Client) RetryFailures(ctx context.Context) (webhooks.RetryReport, error) {
	var out webhooks.RetryReport
	err := c.do(ctx, http.MethodPost, "/api/webhooks/retry", nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	unescaped, err := url.PathUnescape(path)
	if err != nil {
		return fmt.Errorf("request path: %w", err)
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: unescaped, RawPath: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if IsAPIUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrAPIUnavailable, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var payload ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil || payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{Status: resp.StatusCode, Message: payload.Error, Kind: payload.Kind}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means the daemon could not be
// reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}

func userPath(userID, rest string) string {
	return "/api/users/" + url.PathEscape(userID) + "/" + rest
}

func entryPath(userID, key, action string) string {
	p := userPath(userID, "entries/"+url.PathEscape(key))
	if action != "" {
		p += "/" + action
	}
	return p
}
