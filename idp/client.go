package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrRejected is returned when the token endpoint answers with a non-2xx status.
	ErrRejected = errors.New("idp: refresh rejected")
	// ErrUnavailable is returned for transport failures and timeouts.
	ErrUnavailable = errors.New("idp: token endpoint unavailable")
	// ErrMalformed is returned when a 2xx response cannot be used.
	ErrMalformed = errors.New("idp: malformed token response")
)

// DefaultTimeout bounds a single token endpoint call.
const DefaultTimeout = 5 * time.Second

// Config describes the token endpoint and client credentials.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	HTTPClient   *http.Client
	Timeout      time.Duration
}

// Token is the subset of a token response the session layer consumes.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// RejectedError carries the status and OAuth2 error code of a rejected refresh.
type RejectedError struct {
	StatusCode int
	Code       string
}

func (e *RejectedError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("idp: token endpoint returned %d", e.StatusCode)
	}
	return fmt.Sprintf("idp: token endpoint returned %d (%s)", e.StatusCode, e.Code)
}

func (e *RejectedError) Unwrap() error { return ErrRejected }

// Client performs refresh-token grants.
type Client struct {
	oauth   oauth2.Config
	http    *http.Client
	timeout time.Duration
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.TokenURL) == "" {
		return nil, errors.New("idp: token url is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("idp: client id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		http:    httpClient,
		timeout: cfg.Timeout,
	}, nil
}

// Exchange trades refreshToken for a new token. The call is bounded by the client
// timeout in addition to any deadline on ctx.
func (c *Client) Exchange(ctx context.Context, refreshToken string) (Token, error) {
	if refreshToken == "" {
		return Token{}, fmt.Errorf("%w: empty refresh token", ErrRejected)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	// An empty access token is never valid, so the source always hits the endpoint.
	src := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return Token{}, classify(ctx, err)
	}

	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: missing access_token", ErrMalformed)
	}
	if tok.Expiry.IsZero() {
		return Token{}, fmt.Errorf("%w: missing expires_in", ErrMalformed)
	}
	expiresIn := time.Until(tok.Expiry).Round(time.Second)
	if expiresIn <= 0 {
		return Token{}, fmt.Errorf("%w: non-positive expires_in", ErrMalformed)
	}

	return Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn,
	}, nil
}

func classify(ctx context.Context, err error) error {
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) {
		status := 0
		if retrieve.Response != nil {
			status = retrieve.Response.StatusCode
		}
		if status >= 200 && status < 300 {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return &RejectedError{StatusCode: status, Code: retrieve.ErrorCode}
	}
	if ctx.Err() != nil || isTransport(err) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

func isTransport(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
