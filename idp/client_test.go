package idp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func tokenServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, url string, timeout time.Duration) *Client {
	t.Helper()
	c, err := NewClient(Config{TokenURL: url, ClientID: "portal", ClientSecret: "s3cret", Timeout: timeout})
	require.NoError(t, err)
	return c
}

func TestExchangeSendsRefreshGrant(t *testing.T) {
	srv := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(t, "rt-1", r.PostForm.Get("refresh_token"))
		require.Equal(t, "portal", r.PostForm.Get("client_id"))
		require.Equal(t, "s3cret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","refresh_token":"rt-2","token_type":"Bearer","expires_in":3600}`))
	})

	tok, err := newTestClient(t, srv.URL, time.Second).Exchange(context.Background(), "rt-1")
	require.NoError(t, err)
	require.Equal(t, "at-2", tok.AccessToken)
	require.Equal(t, "rt-2", tok.RefreshToken)
	require.InDelta(t, 3600, tok.ExpiresIn.Seconds(), 1)
}

func TestExchangeWithoutRotation(t *testing.T) {
	srv := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-2","token_type":"Bearer","expires_in":300}`))
	})

	tok, err := newTestClient(t, srv.URL, time.Second).Exchange(context.Background(), "rt-1")
	require.NoError(t, err)
	require.Equal(t, "at-2", tok.AccessToken)
	// The coordinator falls back to the prior refresh token when this is empty or equal.
	require.Contains(t, []string{"", "rt-1"}, tok.RefreshToken)
}

func TestExchangeRejected(t *testing.T) {
	srv := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	})

	_, err := newTestClient(t, srv.URL, time.Second).Exchange(context.Background(), "rt-1")
	require.ErrorIs(t, err, ErrRejected)

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, http.StatusBadRequest, rejected.StatusCode)
	require.Equal(t, "invalid_grant", rejected.Code)
}

func TestExchangeMalformed(t *testing.T) {
	bodies := map[string]string{
		"not json":       `<html>oops</html>`,
		"no access":      `{"token_type":"Bearer","expires_in":60}`,
		"no expires_in":  `{"access_token":"at-2","token_type":"Bearer"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			srv := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			})

			_, err := newTestClient(t, srv.URL, time.Second).Exchange(context.Background(), "rt-1")
			require.Error(t, err)
			require.False(t, errors.Is(err, ErrUnavailable))
		})
	}
}

func TestExchangeTimeout(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	srv := tokenServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	start := time.Now()
	_, err := newTestClient(t, srv.URL, 50*time.Millisecond).Exchange(context.Background(), "rt-1")
	require.ErrorIs(t, err, ErrUnavailable)
	require.Less(t, time.Since(start), 2*time.Second)
	require.Equal(t, int32(1), calls.Load())
}

func TestExchangeUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newTestClient(t, url, time.Second).Exchange(context.Background(), "rt-1")
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{ClientID: "portal"})
	require.Error(t, err)
	_, err = NewClient(Config{TokenURL: "https://idp.example/token"})
	require.Error(t, err)
}
