// Package profile resolves the portal user profile for an access token from the
// application session backend.
package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrUnexpectedStatus is returned for non-2xx responses.
	ErrUnexpectedStatus = errors.New("profile: unexpected status")
	// ErrErrorBody is returned when a 2xx response carries an error payload.
	ErrErrorBody = errors.New("profile: backend reported error")
	// ErrDecode is returned when the response body is not a profile.
	ErrDecode = errors.New("profile: decode response")
)

const (
	defaultTimeout = 3 * time.Second
	maxBodyBytes   = 1 << 20
)

// Profile is the resolved user and role information.
type Profile struct {
	UserID      string   `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"name"`
	TenantID    string   `json:"tenant_id,omitempty"`
	Roles       []string `json:"roles"`
}

// Fetcher resolves a profile for an access token.
type Fetcher interface {
	Fetch(ctx context.Context, accessToken string) (Profile, error)
}

// Client calls the backend's current-user endpoint.
type Client struct {
	url     string
	http    *http.Client
	timeout time.Duration
}

// NewClient returns a Client for url. A nil httpClient uses a client with the given timeout.
func NewClient(url string, httpClient *http.Client, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("profile: url is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{url: url, http: httpClient, timeout: timeout}, nil
}

type envelope struct {
	Profile
	Error  json.RawMessage   `json:"error"`
	Errors []json.RawMessage `json:"errors"`
}

// Fetch issues GET url with the bearer token and decodes the profile.
func (c *Client) Fetch(ctx context.Context, accessToken string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return Profile{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Profile{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return Profile{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	var body envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if hasError(body.Error) || len(body.Errors) > 0 {
		return Profile{}, ErrErrorBody
	}
	if body.UserID == "" {
		return Profile{}, fmt.Errorf("%w: missing id", ErrDecode)
	}
	return body.Profile, nil
}

func hasError(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s != "" && s != "null" && s != `""` && s != "false"
}
