package middleware

import (
	"errors"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
	"github.com/gin-gonic/gin"
)

// GinEnvelopeKey is the gin context key holding the session envelope.
const GinEnvelopeKey = "goSession.envelope"

// Gin is Session for gin-routed servers. The envelope is available both from
// the request context and from c.Get(GinEnvelopeKey).
func Gin(engine *goSession.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if engine == nil {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		d, err := engine.Resolve(c.Writer, c.Request)
		if err != nil || !d.Proceed {
			if errors.Is(err, goSession.ErrEngineNotReady) {
				c.AbortWithStatus(http.StatusServiceUnavailable)
				return
			}
			engine.RedirectToSignIn(c.Writer, c.Request)
			c.Abort()
			return
		}
		if d.State == goSession.StatePublic {
			c.Next()
			return
		}

		c.Request = c.Request.WithContext(engine.WithSession(c.Request.Context(), d.Envelope))
		c.Set(GinEnvelopeKey, d.Envelope)
		c.Next()
	}
}
