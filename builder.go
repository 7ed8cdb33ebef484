package eduAuth

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/eduAuth/internal"
	"github.com/MrEthical07/eduAuth/jwt"
	"github.com/MrEthical07/eduAuth/password"
	"github.com/MrEthical07/eduAuth/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine]. Every collaborator is injected here; the
// Engine holds no globals. A Builder can be used once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts   AccountRepository
	notifier   NotificationSender
	recorder   AuditRecorder
	logger     *zap.Logger
	registerer prometheus.Registerer
	now        func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client behind the Session Store. Required.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAccountRepository sets durable account storage. Required.
func (b *Builder) WithAccountRepository(repo AccountRepository) *Builder {
	b.accounts = repo
	return b
}

// WithNotificationSender sets the email channel. Without one, notifications
// are skipped.
func (b *Builder) WithNotificationSender(sender NotificationSender) *Builder {
	b.notifier = sender
	return b
}

// WithAuditRecorder sets the audit sink. Without one, entries are discarded.
func (b *Builder) WithAuditRecorder(recorder AuditRecorder) *Builder {
	b.recorder = recorder
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsRegisterer registers the engine's collectors on reg.
func (b *Builder) WithMetricsRegisterer(reg prometheus.Registerer) *Builder {
	b.registerer = reg
	return b
}

// WithClock overrides the wall clock used for expiries and lockouts.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
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
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.accounts == nil {
		return nil, errors.New("account repository required")
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("eduauth")

	now := b.now
	if now == nil {
		now = time.Now
	}

	metrics, err := NewMetrics(b.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	ph, err := password.NewArgon2(password.Config{
		Memory:           cfg.Password.Memory,
		Time:             cfg.Password.Time,
		Parallelism:      cfg.Password.Parallelism,
		SaltLength:       cfg.Password.SaltLength,
		KeyLength:        cfg.Password.KeyLength,
		MaxPasswordBytes: maxPasswordBytes,
	})
	if err != nil {
		return nil, err
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	// Login hashes against this when the email is unknown so that both paths
	// pay one argon2id derivation.
	decoy, err := internal.NewOpaqueToken(internal.OpaqueTokenSize)
	if err != nil {
		return nil, err
	}
	dummyHash, err := ph.Hash(decoy)
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:    cfg,
		accounts:  b.accounts,
		sessions:  session.NewStore(b.redis),
		limiter:   session.NewLimiter(b.redis),
		hasher:    password.NewPool(ph, cfg.Password.MaxConcurrent),
		tokens:    jm,
		totp:      newTOTPManager(cfg.TwoFactor),
		notifier:  b.notifier,
		metrics:   metrics,
		logger:    logger,
		validate:  newValidator(),
		now:       now,
		dummyHash: dummyHash,
	}
	engine.audit = newAuditDispatcher(cfg.Audit, b.recorder, logger, metrics)

	b.built = true

	return engine, nil
}
