// Package directory is a client for the directory service: login, the
// roster fetch and the admin user endpoints.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/mpchat/client/internal/protocol"
)

// Client talks to the directory service. The session cookie set by Login is
// kept and sent with every later request.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// Options tune the HTTP behaviour.
type Options struct {
	Timeout  time.Duration
	RetryMax int
}

// DefaultOptions returns the standard timeouts.
func DefaultOptions() Options {
	return Options{Timeout: 10 * time.Second, RetryMax: 2}
}

// New creates a client for baseURL, e.g. http://localhost:5000.
func New(baseURL string, opts Options) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, errors.Errorf("directory: invalid base url %q", baseURL)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "directory: cookie jar")
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = leveledLogger{}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.HTTPClient.Jar = jar
	rc.HTTPClient.Timeout = opts.Timeout

	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: rc}, nil
}

// envelope is the directory service's response body.
type envelope struct {
	Success bool                  `json:"success"`
	Message string                `json:"message"`
	User    *protocol.UserRecord  `json:"user,omitempty"`
	Users   []protocol.UserRecord `json:"users,omitempty"`
}

// Login signs in as username and returns the user record. The directory
// creates unknown users on first login.
func (c *Client) Login(ctx context.Context, username string) (protocol.UserRecord, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return protocol.UserRecord{}, errors.New("directory: username is required")
	}
	var env envelope
	if err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"username": username}, &env); err != nil {
		return protocol.UserRecord{}, err
	}
	if env.User == nil {
		return protocol.UserRecord{}, errors.New("directory: login response without user")
	}
	return *env.User, nil
}

// FetchRoster returns every user except the logged-in one.
func (c *Client) FetchRoster(ctx context.Context) ([]protocol.UserRecord, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/auth/users", nil, &env); err != nil {
		return nil, err
	}
	return env.Users, nil
}

// AdminUsers lists all users. Requires an admin session.
func (c *Client) AdminUsers(ctx context.Context) ([]protocol.UserRecord, error) {
	var env envelope
	if err := c.do(ctx, http.MethodGet, "/admin/users", nil, &env); err != nil {
		return nil, err
	}
	return env.Users, nil
}

// DeleteUser removes a user. Requires an admin session.
func (c *Client) DeleteUser(ctx context.Context, id protocol.ID) error {
	var env envelope
	return c.do(ctx, http.MethodDelete, "/admin/users/"+url.PathEscape(id.String()), nil, &env)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out *envelope) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "directory: encode request")
		}
		payload = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return errors.Wrapf(err, "directory: %s %s", method, path)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "directory: %s %s", method, path)
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "directory: %s %s: status %d", method, path, resp.StatusCode)
	}
	if resp.StatusCode >= 300 || !out.Success {
		msg := out.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return errors.Errorf("directory: %s %s: %s", method, path, msg)
	}
	return nil
}

// leveledLogger routes retryablehttp logs to zerolog.
type leveledLogger struct{}

func (leveledLogger) Error(msg string, kv ...interface{}) {
	log.Error().Str("component", "directory").Fields(kv).Msg(msg)
}

func (leveledLogger) Warn(msg string, kv ...interface{}) {
	log.Warn().Str("component", "directory").Fields(kv).Msg(msg)
}

func (leveledLogger) Info(msg string, kv ...interface{}) {
	log.Debug().Str("component", "directory").Fields(kv).Msg(msg)
}

func (leveledLogger) Debug(msg string, kv ...interface{}) {
	log.Trace().Str("component", "directory").Fields(kv).Msg(msg)
}
