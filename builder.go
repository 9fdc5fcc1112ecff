package goSession

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/goSession/idp"
	"github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/flows"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/profile"
	"github.com/MrEthical07/goSession/refresh"
	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
)

// ProfileHook receives every successfully synced profile.
type ProfileHook func(ctx context.Context, p profile.Profile)

// Builder assembles an Engine. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger *slog.Logger

	auditSink   AuditSink
	profileHook ProfileHook
	httpClient  *http.Client

	sealer    session.Sealer
	exchanger refresh.Exchanger
	profiles  profile.Fetcher
	guard     refresh.Guard
	clock     func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis enables the cross-instance refresh guard on client.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithAuditSink sets the audit event consumer. Audit.Enabled must also be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithProfileHook registers fn for synced profiles.
func (b *Builder) WithProfileHook(fn ProfileHook) *Builder {
	b.profileHook = fn
	return b
}

// WithHTTPClient sets the client used for identity provider and backend calls.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithSealer replaces the key-derived envelope sealer.
func (b *Builder) WithSealer(s session.Sealer) *Builder {
	b.sealer = s
	return b
}

// WithExchanger replaces the identity provider client.
func (b *Builder) WithExchanger(ex refresh.Exchanger) *Builder {
	b.exchanger = ex
	return b
}

// WithProfileFetcher replaces the backend profile client.
func (b *Builder) WithProfileFetcher(f profile.Fetcher) *Builder {
	b.profiles = f
	return b
}

// WithGuard replaces the refresh guard chosen from the Redis setting.
func (b *Builder) WithGuard(g refresh.Guard) *Builder {
	b.guard = g
	return b
}

// WithClock sets the time source for refresh decisions.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the refresh latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Redis.Enabled && b.redis == nil && b.guard == nil {
		return nil, errors.New("Redis enabled requires redis client")
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	now := b.clock
	if now == nil {
		now = time.Now
	}

	// -------- ENVELOPE SEALER --------
	sealer := b.sealer
	if sealer == nil {
		jm, err := jwt.NewManager(jwt.Config{
			SigningMethod: jwt.SigningMethod(cfg.Envelope.SigningMethod),
			PrivateKey:    cloneBytes(cfg.Envelope.SigningKey),
			PublicKey:     cloneBytes(cfg.Envelope.PublicKey),
			Issuer:        cfg.Envelope.Issuer,
			Audience:      cfg.Envelope.Audience,
			KeyID:         cfg.Envelope.KeyID,
		})
		if err != nil {
			return nil, err
		}
		ts, err := session.NewSealer(jm, cloneBytes(cfg.Envelope.EncryptionKey))
		if err != nil {
			return nil, err
		}
		sealer = ts
	}

	// -------- IDENTITY PROVIDER --------
	exchanger := b.exchanger
	if exchanger == nil {
		client, err := idp.NewClient(idp.Config{
			TokenURL:     cfg.Provider.TokenURL,
			ClientID:     cfg.Provider.ClientID,
			ClientSecret: cfg.Provider.ClientSecret,
			Scopes:       cfg.Provider.Scopes,
			HTTPClient:   b.httpClient,
			Timeout:      cfg.Provider.Timeout,
		})
		if err != nil {
			return nil, err
		}
		exchanger = client
	}

	// -------- REFRESH COORDINATOR --------
	guard := b.guard
	if guard == nil {
		if b.redis != nil {
			guard = refresh.NewRedisGuard(b.redis, refresh.RedisGuardConfig{
				Prefix: cfg.Redis.Prefix,
				TTL:    cfg.Redis.GuardTTL,
				Logger: logger,
			})
		} else {
			guard = refresh.NewLocalGuard()
		}
	}
	coordinator, err := refresh.New(exchanger,
		refresh.WithGuard(guard),
		refresh.WithClock(now),
		refresh.WithTimeout(cfg.Refresh.Timeout),
		refresh.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	// -------- PROFILE SYNC --------
	profiles := b.profiles
	if profiles == nil && cfg.Backend.ProfileURL != "" {
		client, err := profile.NewClient(cfg.Backend.ProfileURL, b.httpClient, cfg.Backend.Timeout)
		if err != nil {
			return nil, err
		}
		profiles = client
	}

	engine := &Engine{
		config:       cloneConfig(cfg),
		profiles:     profiles,
		profileHook:  b.profileHook,
		profileCache: newProfileCache(0),
		redis:        b.redis,
		logger:       logger,
		now:          now,
	}
	engine.deps = flows.PipelineDeps{
		CookieName:    cfg.Cookie.Name,
		CookieOptions: cfg.Cookie.Options(),
		ChunkSize:     cfg.Cookie.ChunkSize(),
		Window:        cfg.Refresh.Window,
		Now:           now,
		Sealer:        sealer,
		Refresher:     coordinator,
	}
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewSlogSink(logger)
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Retain:     cfg.Audit.Retain,
	}, sink)
	engine.metrics = NewMetrics(cfg.Metrics)

	for _, w := range cfg.Lint() {
		logger.Warn("session.config_lint", "code", w.Code, "message", w.Message)
	}

	b.built = true

	return engine, nil
}
