package middleware

import (
	"context"
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/session"
)

// SessionFromContext returns the envelope attached by Session or Gin.
func SessionFromContext(ctx context.Context) (session.Envelope, bool) {
	return goSession.EnvelopeFromContext(ctx)
}

// Session runs the pipeline for every request. Public paths pass through
// untouched; requests without a usable session are redirected to sign in;
// all others reach next with the envelope in their context.
func Session(engine *goSession.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			d, err := engine.Resolve(w, r)
			if err != nil || !d.Proceed {
				if errors.Is(err, goSession.ErrEngineNotReady) {
					http.Error(w, "service unavailable", http.StatusServiceUnavailable)
					return
				}
				engine.RedirectToSignIn(w, r)
				return
			}
			if d.State == goSession.StatePublic {
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(engine.WithSession(r.Context(), d.Envelope)))
		})
	}
}

// SignOut clears the session and redirects to the sign-in path.
func SignOut(engine *goSession.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if engine == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		engine.Clear(w, r)
		http.Redirect(w, r, engine.Config().Routes.SignInPath, http.StatusSeeOther)
	})
}
