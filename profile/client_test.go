package profile

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func backend(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch(t *testing.T) {
	srv := backend(t, http.StatusOK, `{"id":"u-1","email":"hr@example.com","name":"HR Admin","roles":["hr_admin","employee"]}`)
	c, err := NewClient(srv.URL, nil, time.Second)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	p, err := c.Fetch(context.Background(), "at-1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if p.UserID != "u-1" || p.Email != "hr@example.com" || len(p.Roles) != 2 {
		t.Fatalf("unexpected profile %+v", p)
	}
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		token  string
		want   error
	}{
		{name: "unauthorized", status: http.StatusOK, body: `{}`, token: "wrong", want: ErrUnexpectedStatus},
		{name: "server error", status: http.StatusBadGateway, body: `bad gateway`, token: "at-1", want: ErrUnexpectedStatus},
		{name: "error object", status: http.StatusOK, body: `{"error":{"code":"USER_NOT_FOUND"}}`, token: "at-1", want: ErrErrorBody},
		{name: "error string", status: http.StatusOK, body: `{"id":"u-1","error":"stale"}`, token: "at-1", want: ErrErrorBody},
		{name: "errors list", status: http.StatusOK, body: `{"errors":[{"message":"x"}]}`, token: "at-1", want: ErrErrorBody},
		{name: "not json", status: http.StatusOK, body: `<html>`, token: "at-1", want: ErrDecode},
		{name: "missing id", status: http.StatusOK, body: `{"email":"x@example.com"}`, token: "at-1", want: ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := backend(t, tt.status, tt.body)
			c, err := NewClient(srv.URL, nil, time.Second)
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			if _, err := c.Fetch(context.Background(), tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFetchNullErrorIsNotFailure(t *testing.T) {
	srv := backend(t, http.StatusOK, `{"id":"u-1","error":null,"roles":[]}`)
	c, _ := NewClient(srv.URL, nil, time.Second)
	if _, err := c.Fetch(context.Background(), "at-1"); err != nil {
		t.Fatalf("expected null error field to be ignored: %v", err)
	}
}
