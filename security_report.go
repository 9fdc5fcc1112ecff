package goSession

import "time"

// SecurityReport summarizes the security-relevant settings of a running engine.
type SecurityReport struct {
	CookieName        string
	CookieSecure      bool
	CookieSameSite    string
	CookieMaxAge      time.Duration
	ChunkSize         int
	SigningAlgorithm  string
	EnvelopeEncrypted bool
	RefreshWindow     time.Duration
	RefreshTimeout    time.Duration
	DistributedGuard  bool
	AuditEnabled      bool
	ProfileSync       bool
	LintCodes         []string
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	sameSite := e.config.Cookie.SameSite
	if sameSite == "" {
		sameSite = "lax"
	}

	return SecurityReport{
		CookieName:        e.config.Cookie.Name,
		CookieSecure:      e.config.Cookie.SecureCookies(),
		CookieSameSite:    sameSite,
		CookieMaxAge:      e.config.Cookie.MaxAge,
		ChunkSize:         e.config.Cookie.ChunkSize(),
		SigningAlgorithm:  e.config.Envelope.SigningMethod,
		EnvelopeEncrypted: len(e.config.Envelope.EncryptionKey) > 0,
		RefreshWindow:     e.config.Refresh.Window,
		RefreshTimeout:    e.config.Refresh.Timeout,
		DistributedGuard:  e.redis != nil,
		AuditEnabled:      e.config.Audit.Enabled,
		ProfileSync:       e.profiles != nil,
		LintCodes:         e.config.Lint().Codes(),
	}
}
