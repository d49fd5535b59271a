// Package remote is the HTTP client for the BuddyBuy server: item table
// operations, blob storage and account management.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/erazemk/buddybuy/internal/model"
)

// ImageBucket is the blob bucket item images are uploaded to.
const ImageBucket = "item-images"

// DefaultTimeout bounds a single request when no HTTP client is supplied.
const DefaultTimeout = 30 * time.Second

// TokenSource returns the bearer token for the current session. An empty
// token sends the request unauthenticated.
type TokenSource func(ctx context.Context) (string, error)

// Sentinel errors matched by *Error through errors.Is.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// Error is a non-2xx response from the server.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// Is maps status codes to the package sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Session is the result of signing up or in.
type Session struct {
	Token string         `json:"token"`
	User  model.Identity `json:"user"`
}

// Client talks to the BuddyBuy server.
type Client struct {
	BaseURL string
	Token   TokenSource
	HTTP    *http.Client
	logger  *slog.Logger
}

// New creates a client for the server at baseURL.
func New(baseURL string, tok TokenSource) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   tok,
		HTTP:    &http.Client{Timeout: DefaultTimeout},
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger used for request diagnostics.
func (c *Client) WithLogger(l *slog.Logger) *Client {
	c.logger = l
	return c
}

// Select returns every item owned by ownerID.
func (c *Client) Select(ctx context.Context, ownerID string) ([]model.RemoteItem, error) {
	var items []model.RemoteItem
	q := url.Values{"user_id": {ownerID}}
	if err := c.doJSON(ctx, http.MethodGet, "/api/items?"+q.Encode(), nil, &items); err != nil {
		return nil, fmt.Errorf("selecting items: %w", err)
	}
	return items, nil
}

// Insert creates a record and returns it with its server id.
func (c *Client) Insert(ctx context.Context, rec model.RemoteItem) (model.RemoteItem, error) {
	var created model.RemoteItem
	if err := c.doJSON(ctx, http.MethodPost, "/api/items", rec, &created); err != nil {
		return model.RemoteItem{}, fmt.Errorf("inserting item: %w", err)
	}
	return created, nil
}

// Update overwrites the mutable fields of record id.
func (c *Client) Update(ctx context.Context, id string, patch model.RemotePatch) error {
	if err := c.doJSON(ctx, http.MethodPatch, "/api/items/"+url.PathEscape(id), patch, nil); err != nil {
		return fmt.Errorf("updating item %s: %w", id, err)
	}
	return nil
}

// Delete removes record id.
func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.doJSON(ctx, http.MethodDelete, "/api/items/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("deleting item %s: %w", id, err)
	}
	return nil
}

// Upload stores content under path in the image bucket.
func (c *Client) Upload(ctx context.Context, path string, content []byte, contentType string) error {
	req, err := c.newRequest(ctx, http.MethodPut, "/api/storage/"+ImageBucket+"/"+escapePath(path), bytes.NewReader(content))
	if err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	req.Header.Set("Content-Type", contentType)
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	return nil
}

// PublicURL returns the unauthenticated URL of a blob in the image bucket.
func (c *Client) PublicURL(path string) string {
	return c.BaseURL + "/storage/" + ImageBucket + "/" + escapePath(path)
}

// SignUp creates an account and returns its session.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/signup", body, &s); err != nil {
		return nil, fmt.Errorf("signing up: %w", err)
	}
	return &s, nil
}

// SignIn exchanges credentials for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/login", body, &s); err != nil {
		return nil, fmt.Errorf("signing in: %w", err)
	}
	return &s, nil
}

// SignOut revokes the current token on the server.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/logout", nil, nil); err != nil {
		return fmt.Errorf("signing out: %w", err)
	}
	return nil
}

// ChangePassword replaces the account password. The current session stays
// valid.
func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"current_password": current, "new_password": next}
	if err := c.doJSON(ctx, http.MethodPut, "/api/auth/password", body, nil); err != nil {
		return fmt.Errorf("changing password: %w", err)
	}
	return nil
}

// Session returns the identity the current token belongs to.
func (c *Client) Session(ctx context.Context) (model.Identity, error) {
	var s Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/session", nil, &s); err != nil {
		return model.Identity{}, fmt.Errorf("checking session: %w", err)
	}
	return s.User, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.Token != nil {
		tok, err := c.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("getting token: %w", err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("remote request", "method", req.Method, "path", req.URL.Path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &payload) != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(data))
		}
		return &Error{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
