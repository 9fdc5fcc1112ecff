package goSession

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/chunk"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the complete session edge configuration.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	Cookie   CookieConfig   `yaml:"cookie"`
	Envelope EnvelopeConfig `yaml:"envelope"`
	Refresh  RefreshConfig  `yaml:"refresh"`
	Provider ProviderConfig `yaml:"provider"`
	Backend  BackendConfig  `yaml:"backend"`
	Routes   RoutesConfig   `yaml:"routes"`
	Redis    RedisConfig    `yaml:"redis"`
	Audit    AuditConfig    `yaml:"audit"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

/*
====================================
COOKIE CONFIG
====================================
*/

// CookieConfig controls the session cookie chunks.
type CookieConfig struct {
	Name string `yaml:"name"`
	// BaseURL is the public origin of the portal. Its scheme decides Secure
	// when Secure is nil.
	BaseURL    string        `yaml:"base_url"`
	Secure     *bool         `yaml:"secure"`
	Path       string        `yaml:"path"`
	Domain     string        `yaml:"domain"`
	SameSite   string        `yaml:"same_site"` // "lax" (default), "strict" or "none"
	MaxAge     time.Duration `yaml:"max_age"`
	SizeBudget int           `yaml:"size_budget"`
	Overhead   int           `yaml:"overhead"`
}

// SecureCookies reports whether chunks carry the Secure attribute.
func (c CookieConfig) SecureCookies() bool {
	if c.Secure != nil {
		return *c.Secure
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return true
	}
	return !strings.EqualFold(u.Scheme, "http")
}

// Options returns the chunk transport attributes.
func (c CookieConfig) Options() chunk.Options {
	opts := chunk.DefaultOptions(c.MaxAge, c.SecureCookies())
	if c.Path != "" {
		opts.Path = c.Path
	}
	opts.Domain = c.Domain
	opts.SameSite = parseSameSite(c.SameSite)
	return opts
}

// ChunkSize returns the per-chunk value budget.
func (c CookieConfig) ChunkSize() int {
	return chunk.ChunkBudget(c.SizeBudget, c.Overhead)
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

/*
====================================
ENVELOPE CONFIG
====================================
*/

// EnvelopeConfig holds the keys that protect the serialized session token.
// Key material is never read from YAML.
type EnvelopeConfig struct {
	SigningMethod string `yaml:"signing_method"` // "ed25519" (default), "hs256" optional
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
	KeyID         string `yaml:"key_id"`
	SigningKey    []byte `yaml:"-"`
	PublicKey     []byte `yaml:"-"`
	EncryptionKey []byte `yaml:"-"`
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls when and how long refreshes run.
type RefreshConfig struct {
	Window  time.Duration `yaml:"window"`
	Timeout time.Duration `yaml:"timeout"`
}

/*
====================================
PROVIDER / BACKEND CONFIG
====================================
*/

// ProviderConfig describes the identity provider token endpoint.
type ProviderConfig struct {
	TokenURL     string        `yaml:"token_url"`
	ClientID     string        `yaml:"client_id"`
	ClientSecret string        `yaml:"client_secret"`
	Scopes       []string      `yaml:"scopes"`
	Timeout      time.Duration `yaml:"timeout"`
}

// BackendConfig describes the application session backend. An empty
// ProfileURL disables profile sync.
type BackendConfig struct {
	ProfileURL  string        `yaml:"profile_url"`
	Timeout     time.Duration `yaml:"timeout"`
	GatewayURL  string        `yaml:"gateway_url"`
	SyncOnLogin bool          `yaml:"sync_on_login"`
}

/*
====================================
ROUTES CONFIG
====================================
*/

// RoutesConfig decides which requests run the session pipeline.
type RoutesConfig struct {
	SignInPath     string   `yaml:"sign_in_path"`
	SignOutPath    string   `yaml:"sign_out_path"`
	CallbackParam  string   `yaml:"callback_param"`
	PublicPrefixes []string `yaml:"public_prefixes"`
}

/*
====================================
REDIS CONFIG
====================================
*/

// RedisConfig enables the cross-instance refresh guard.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	GuardTTL time.Duration `yaml:"guard_ttl"`
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool   `yaml:"enabled"`
	BufferSize int    `yaml:"buffer_size"`
	DropIfFull bool   `yaml:"drop_if_full"`
	DSN        string `yaml:"dsn"`
	// Retain lists event types that wait for buffer space instead of being
	// dropped. Defaults to the fail-closed events.
	Retain []string `yaml:"retain"`
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a configuration with every tunable set. Provider
// endpoint, client id and keys still have to be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Cookie: CookieConfig{
			Name:       "hr_session",
			Path:       "/",
			SameSite:   "lax",
			MaxAge:     30 * 24 * time.Hour,
			SizeBudget: chunk.DefaultSizeBudget,
			Overhead:   chunk.DefaultOverhead,
		},
		Envelope: EnvelopeConfig{
			SigningMethod: "ed25519",
			Issuer:        "hr-portal-edge",
			Audience:      "hr-portal",
		},
		Refresh: RefreshConfig{
			Window:  60 * time.Second,
			Timeout: 5 * time.Second,
		},
		Provider: ProviderConfig{
			Timeout: 5 * time.Second,
		},
		Backend: BackendConfig{
			Timeout: 3 * time.Second,
		},
		Routes: RoutesConfig{
			SignInPath:     "/auth/signin",
			SignOutPath:    "/auth/signout",
			CallbackParam:  "callbackUrl",
			PublicPrefixes: []string{"/_next/", "/static/", "/favicon.ico", "/api/public/"},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "127.0.0.1:6379",
			Prefix:   "gs",
			GuardTTL: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
			Retain:     []string{auditEventSessionRefreshFailed, auditEventSessionDecodeRejected},
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Envelope.SigningKey = cloneBytes(cfg.Envelope.SigningKey)
	out.Envelope.PublicKey = cloneBytes(cfg.Envelope.PublicKey)
	out.Envelope.EncryptionKey = cloneBytes(cfg.Envelope.EncryptionKey)
	out.Routes.PublicPrefixes = append([]string(nil), cfg.Routes.PublicPrefixes...)
	out.Provider.Scopes = append([]string(nil), cfg.Provider.Scopes...)
	out.Audit.Retain = append([]string(nil), cfg.Audit.Retain...)
	if cfg.Cookie.Secure != nil {
		v := *cfg.Cookie.Secure
		out.Cookie.Secure = &v
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// Cookie
	if !validCookieName(c.Cookie.Name) {
		return errors.New("Cookie Name must be a non-empty cookie token without '.'")
	}
	if c.Cookie.MaxAge <= 0 {
		return errors.New("Cookie MaxAge must be > 0")
	}
	if c.Cookie.SizeBudget <= 0 || c.Cookie.Overhead < 0 {
		return errors.New("Cookie SizeBudget must be > 0 and Overhead >= 0")
	}
	if c.Cookie.SizeBudget-c.Cookie.Overhead < 256 {
		return errors.New("Cookie SizeBudget leaves less than 256 bytes per chunk")
	}
	switch strings.ToLower(c.Cookie.SameSite) {
	case "", "lax", "strict":
	case "none":
		if !c.Cookie.SecureCookies() {
			return errors.New("Cookie SameSite=none requires Secure cookies")
		}
	default:
		return errors.New("Cookie SameSite must be 'lax', 'strict' or 'none'")
	}
	if c.Cookie.BaseURL != "" {
		if _, err := url.Parse(c.Cookie.BaseURL); err != nil {
			return fmt.Errorf("Cookie BaseURL: %w", err)
		}
	}

	// Envelope
	switch c.Envelope.SigningMethod {
	case "ed25519":
		if len(c.Envelope.SigningKey) == 0 || len(c.Envelope.PublicKey) == 0 {
			return errors.New("ed25519 requires SigningKey and PublicKey")
		}
	case "hs256":
		if len(c.Envelope.SigningKey) < 32 {
			return errors.New("hs256 requires a SigningKey of at least 32 bytes")
		}
	default:
		return errors.New("unsupported envelope signing method")
	}
	if n := len(c.Envelope.EncryptionKey); n > 0 && n < 32 {
		return errors.New("Envelope EncryptionKey must be at least 32 bytes")
	}

	// Refresh
	if c.Refresh.Window < 0 {
		return errors.New("Refresh Window must be >= 0")
	}
	if c.Refresh.Timeout <= 0 {
		return errors.New("Refresh Timeout must be > 0")
	}

	// Provider
	if strings.TrimSpace(c.Provider.TokenURL) == "" {
		return errors.New("Provider TokenURL is required")
	}
	if strings.TrimSpace(c.Provider.ClientID) == "" {
		return errors.New("Provider ClientID is required")
	}

	// Routes
	if !strings.HasPrefix(c.Routes.SignInPath, "/") {
		return errors.New("Routes SignInPath must start with '/'")
	}
	if c.Routes.SignOutPath != "" && !strings.HasPrefix(c.Routes.SignOutPath, "/") {
		return errors.New("Routes SignOutPath must start with '/'")
	}
	if strings.TrimSpace(c.Routes.CallbackParam) == "" {
		return errors.New("Routes CallbackParam is required")
	}
	for _, p := range c.Routes.PublicPrefixes {
		if p == "" || p == "/" {
			return errors.New("Routes PublicPrefixes must not contain '' or '/'")
		}
	}

	// Redis
	if c.Redis.Enabled && c.Redis.GuardTTL < c.Refresh.Timeout {
		return errors.New("Redis GuardTTL must be >= Refresh Timeout")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

func validCookieName(name string) bool {
	if name == "" || strings.Contains(name, ".") {
		return false
	}
	for _, r := range name {
		if r <= ' ' || r >= 0x7f || strings.ContainsRune("()<>@,;:\\\"/[]?={}", r) {
			return false
		}
	}
	return true
}

/*
====================================
LOADING
====================================
*/

// LoadConfig reads a YAML file over the defaults, then applies .env and
// SESSION_* environment overrides. A missing file is not an error.
func LoadConfig(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config yaml: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if val := os.Getenv("SESSION_COOKIE_NAME"); val != "" {
		cfg.Cookie.Name = val
	}
	if val := os.Getenv("SESSION_BASE_URL"); val != "" {
		cfg.Cookie.BaseURL = val
	}
	if val := os.Getenv("SESSION_COOKIE_SECURE"); val != "" {
		secure := val == "true"
		cfg.Cookie.Secure = &secure
	}
	if val := os.Getenv("SESSION_REFRESH_WINDOW"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Refresh.Window = d
		}
	}
	if val := os.Getenv("SESSION_REFRESH_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Refresh.Timeout = d
		}
	}
	if val := os.Getenv("SESSION_IDP_TOKEN_URL"); val != "" {
		cfg.Provider.TokenURL = val
	}
	if val := os.Getenv("SESSION_IDP_CLIENT_ID"); val != "" {
		cfg.Provider.ClientID = val
	}
	if val := os.Getenv("SESSION_IDP_CLIENT_SECRET"); val != "" {
		cfg.Provider.ClientSecret = val
	}
	if val := os.Getenv("SESSION_BACKEND_PROFILE_URL"); val != "" {
		cfg.Backend.ProfileURL = val
	}
	if val := os.Getenv("SESSION_GATEWAY_URL"); val != "" {
		cfg.Backend.GatewayURL = val
	}
	if val := os.Getenv("SESSION_REDIS_ADDR"); val != "" {
		cfg.Redis.Addr = val
		cfg.Redis.Enabled = true
	}
	if val := os.Getenv("SESSION_REDIS_PASSWORD"); val != "" {
		cfg.Redis.Password = val
	}
	if val := os.Getenv("SESSION_REDIS_DB"); val != "" {
		if db, err := strconv.Atoi(val); err == nil {
			cfg.Redis.DB = db
		}
	}
	if val := os.Getenv("SESSION_AUDIT_DSN"); val != "" {
		cfg.Audit.DSN = val
		cfg.Audit.Enabled = true
	}
	if val := os.Getenv("SESSION_SIGNING_METHOD"); val != "" {
		cfg.Envelope.SigningMethod = val
	}

	keys := []struct {
		env string
		dst *[]byte
	}{
		{"SESSION_SIGNING_KEY", &cfg.Envelope.SigningKey},
		{"SESSION_PUBLIC_KEY", &cfg.Envelope.PublicKey},
		{"SESSION_ENCRYPTION_KEY", &cfg.Envelope.EncryptionKey},
	}
	for _, k := range keys {
		val := os.Getenv(k.env)
		if val == "" {
			continue
		}
		b, err := base64.StdEncoding.DecodeString(val)
		if err != nil {
			return fmt.Errorf("%s: expected base64: %w", k.env, err)
		}
		*k.dst = b
	}
	return nil
}
