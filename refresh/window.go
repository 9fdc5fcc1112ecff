package refresh

import (
	"time"

	"github.com/MrEthical07/goSession/session"
)

// DefaultWindow is the lead time before access-token expiry at which a refresh
// is attempted.
const DefaultWindow = 60 * time.Second

// ShouldRefresh reports whether env must be refreshed at now.
func ShouldRefresh(env session.Envelope, now time.Time, window time.Duration) bool {
	return now.Unix() >= env.ExpiresAt-int64(window/time.Second)
}
