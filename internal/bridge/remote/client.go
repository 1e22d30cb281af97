// Package remote polls a REST record store for the latest command of one
// user, runs it through the engine, and writes the result back.
//
// The store exposes a PostgREST-style table at
// <base>/rest/v1/command_outputs with columns user_key, last_command,
// last_response and updated_at.
package remote

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
)

// Environment variable names for the required settings.
const (
	EnvBaseURL = "OMNILINK_REMOTE_BASE_URL"
	EnvAnonKey = "OMNILINK_REMOTE_ANON_KEY"
	EnvUserKey = "OMNILINK_REMOTE_USER_KEY"
)

// DefaultTimeout bounds each request.
const DefaultTimeout = 10 * time.Second

// Config holds the store location and credentials.
type Config struct {
	BaseURL string
	AnonKey string
	UserKey string
	Timeout time.Duration
}

// MissingConfigError lists the settings that were not provided, by
// environment variable name.
type MissingConfigError struct {
	Missing []string
}

func (e *MissingConfigError) Error() string {
	return "remote client missing configuration; set environment variables " + strings.Join(e.Missing, ", ")
}

// Validate reports every missing required setting at once.
func (c Config) Validate() error {
	var missing []string
	if c.BaseURL == "" {
		missing = append(missing, EnvBaseURL)
	}
	if c.AnonKey == "" {
		missing = append(missing, EnvAnonKey)
	}
	if c.UserKey == "" {
		missing = append(missing, EnvUserKey)
	}
	if len(missing) > 0 {
		return &MissingConfigError{Missing: missing}
	}
	return nil
}

// Record is one row of the command table.
type Record struct {
	UserKey      string `json:"user_key"`
	LastCommand  string `json:"last_command"`
	LastResponse string `json:"last_response"`
	UpdatedAt    string `json:"updated_at"`
}

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Method, e.Status, e.Body)
}

// Client talks to the record store.
type Client struct {
	cfg      Config
	endpoint string
	http     *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient validates cfg and creates a client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + "/rest/v1/command_outputs",
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: cfg.Timeout}
	}
	return c, nil
}

// FetchLast returns the most recently updated record for the user, or
// nil when there is none.
func (c *Client) FetchLast(ctx context.Context) (*Record, error) {
	q := url.Values{}
	q.Set("select", "user_key,last_command,last_response,updated_at")
	q.Set("user_key", "eq."+c.cfg.UserKey)
	q.Set("order", "updated_at.desc")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch last command: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch last command: %w", err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var rows []Record
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("fetch last command: decode: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpdateLastResponse stores response, and lastCommand when non-empty, on
// the user's row.
func (c *Client) UpdateLastResponse(ctx context.Context, response, lastCommand string) error {
	payload := map[string]string{"last_response": response}
	if lastCommand != "" {
		payload["last_command"] = lastCommand
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("update last response: %w", err)
	}

	q := url.Values{}
	q.Set("user_key", "eq."+c.cfg.UserKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.endpoint+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("update last response: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("update last response: %w", err)
	}
	defer resp.Body.Close()
	return checkStatus(resp)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.cfg.AnonKey)
	req.Header.Set("Authorization", "Bearer "+c.cfg.AnonKey)
	req.Header.Set("X-Client-User-Key", c.cfg.UserKey)
	req.Header.Set("Accept", "application/json")
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{
		Method: resp.Request.Method,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}
