// Package client talks to a QuickText server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrPasswordRequired is returned when a share needs a password and none was given.
var ErrPasswordRequired = errors.New("password required")

// APIError is a non-success response from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL. httpClient may be nil.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type CreateParams struct {
	Content       string `json:"content"`
	ContentType   string `json:"contentType,omitempty"`
	Language      string `json:"language,omitempty"`
	Password      string `json:"password,omitempty"`
	Duration      string `json:"duration,omitempty"`
	MaxViews      int    `json:"maxViews,omitempty"`
	OneTimeAccess bool   `json:"oneTimeAccess,omitempty"`
}

type CreateResponse struct {
	Code          string    `json:"code"`
	URL           string    `json:"url"`
	ExpiresAt     time.Time `json:"expiresAt"`
	HasPassword   bool      `json:"hasPassword"`
	OneTimeAccess bool      `json:"oneTimeAccess"`
	ContentType   string    `json:"contentType"`
	Language      string    `json:"language"`
	Duration      string    `json:"duration"`
}

type Share struct {
	Content       string    `json:"content"`
	ContentType   string    `json:"contentType"`
	Language      string    `json:"language"`
	Views         int       `json:"views"`
	OneTimeAccess bool      `json:"oneTimeAccess"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (c *Client) Create(ctx context.Context, params CreateParams) (*CreateResponse, error) {
	var out CreateResponse
	if err := c.do(ctx, http.MethodPost, "/api/share", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Retrieve(ctx context.Context, code, password string) (*Share, error) {
	body := struct {
		Password string `json:"password,omitempty"`
	}{password}

	var out Share
	if err := c.do(ctx, http.MethodPost, "/api/retrieve/"+url.PathEscape(code), body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Update(ctx context.Context, code, content string) error {
	body := struct {
		Content string `json:"content"`
	}{content}
	return c.do(ctx, http.MethodPut, "/api/share/"+url.PathEscape(code), body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		var apiErr struct {
			Error            string `json:"error"`
			RequiresPassword bool   `json:"requiresPassword"`
		}
		_ = json.NewDecoder(res.Body).Decode(&apiErr)
		if apiErr.RequiresPassword {
			return ErrPasswordRequired
		}
		if apiErr.Error == "" {
			apiErr.Error = http.StatusText(res.StatusCode)
		}
		return &APIError{Status: res.StatusCode, Message: apiErr.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
