package goSession

import "time"

// LintWarning is a non-fatal configuration finding.
type LintWarning struct {
	Code    string
	Message string
}

// LintResult is the ordered list of findings.
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// Lint reports settings that are valid but risky for a production portal.
// It never fails; call Validate for hard errors.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if !c.Cookie.SecureCookies() {
		add("cookie_insecure", "session cookies are sent without the Secure attribute")
	}
	if len(c.Envelope.EncryptionKey) == 0 {
		add("envelope_unencrypted", "session tokens are signed but not encrypted; access tokens are readable from the cookie value")
	}
	if c.Envelope.SigningMethod == "hs256" {
		add("hs256_signing", "hs256 shares the signing secret with every verifier; prefer ed25519")
	}
	if c.Refresh.Window < 10*time.Second {
		add("refresh_window_short", "requests may reach the gateway with an access token that expires in flight")
	}
	if c.Refresh.Timeout > c.Refresh.Window {
		add("refresh_timeout_exceeds_window", "a slow refresh can finish after the access token has expired")
	}
	if !c.Redis.Enabled {
		add("refresh_guard_local_only", "refresh de-duplication is per process; multiple edge instances may refresh the same token")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", "session lifecycle events are not audited")
	}
	if c.Cookie.MaxAge > 90*24*time.Hour {
		add("cookie_max_age_long", "session cookies outlive 90 days")
	}
	return ws
}
