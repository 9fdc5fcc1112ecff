package middleware

import (
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/chunk"
)

// ForwardBearer replaces the Authorization header with the session access
// token so the wrapped handler (usually a reverse proxy to the REST gateway)
// calls upstream as the signed-in user. Requests without a session are passed
// through with the header removed.
//
// The session chunk cookies never leave the edge: every cookie belonging to
// the engine's cookie name is dropped from the forwarded Cookie header.
func ForwardBearer(engine *goSession.Engine, next http.Handler) http.Handler {
	base := ""
	if engine != nil {
		base = engine.Config().Cookie.Name
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.Clone(r.Context())
		r.Header.Del("Authorization")
		if env, ok := SessionFromContext(r.Context()); ok && env.AccessToken != "" {
			r.Header.Set("Authorization", "Bearer "+env.AccessToken)
		}
		stripSessionCookies(r, base)
		next.ServeHTTP(w, r)
	})
}

func stripSessionCookies(r *http.Request, base string) {
	if base == "" || r.Header.Get("Cookie") == "" {
		return
	}
	cookies := r.Cookies()
	r.Header.Del("Cookie")
	for _, c := range cookies {
		if _, _, err := chunk.ParseName(base, c.Name); !errors.Is(err, chunk.ErrNotChunk) {
			continue
		}
		r.AddCookie(c)
	}
}
