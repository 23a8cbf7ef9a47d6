// Package mpinclient is the root package of the M-Pin client SDK: it wires
// every component package into one Client facade, collecting all
// collaborators the way a service constructor would, and builds it in the
// same order an HTTP API's startup sequence would (logger → sentry →
// storage/transport → services).
package mpinclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/time/rate"

	"github.com/mpin-labs/mpinclient/internal/audit"
	"github.com/mpin-labs/mpinclient/internal/authentication"
	"github.com/mpin-labs/mpinclient/internal/cryptoprovider"
	"github.com/mpin-labs/mpinclient/internal/cryptoprovider/fake"
	"github.com/mpin-labs/mpinclient/internal/pin"
	"github.com/mpin-labs/mpinclient/internal/registration"
	"github.com/mpin-labs/mpinclient/internal/session"
	"github.com/mpin-labs/mpinclient/internal/session/deeplink"
	"github.com/mpin-labs/mpinclient/internal/signing"
	"github.com/mpin-labs/mpinclient/internal/transport"
	"github.com/mpin-labs/mpinclient/internal/userstore"
	"github.com/mpin-labs/mpinclient/internal/verification"
	pkglogger "github.com/mpin-labs/mpinclient/pkg/logger"
)

// Client is the single entry point a host application embeds: one per
// configured project, holding every component wired against a shared
// Transport, CryptoProvider and UserStore.
type Client struct {
	cfg Config

	Verificator   *verification.Verificator
	Registrator   *registration.Registrator
	Authenticator *authentication.Authenticator
	Signer        *signing.Signer
	Session       *session.Coordinator
	DeepLinks     *deeplink.Router

	store  userstore.Store
	logger *slog.Logger
}

// New builds a Client from cfg: UserStore/Transport are used verbatim when
// the caller sets them, wiring real infrastructure only when New has to
// build a default itself. ctx bounds the initial Postgres pool connect
// and ping when DatabaseURL is used to build the default UserStore.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ProjectID == "" {
		return nil, ErrEmptyProjectID
	}

	env := cfg.Environment
	if env == "" {
		env = "development"
	}
	logger := pkglogger.Setup(env, cfg.LoggingLevel).With("project_id", cfg.ProjectID, "device_name", cfg.DeviceName)
	logger.Info("mpinclient_startup", "env", env)

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.SentryDSN, TracesSampleRate: 1.0}); err != nil {
			logger.Error("sentry_init_failed", "error", err)
		} else {
			logger.Info("sentry_initialized")
		}
	} else {
		logger.Warn("sentry_dsn_missing", "details", "skipping_init")
	}

	store, err := defaultUserStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	tport := cfg.Transport
	if tport == nil {
		if cfg.PlatformURL == "" {
			return nil, errors.New("mpinclient: PlatformURL must be set when Transport is not supplied")
		}
		var limiter *transport.IdentityLimiter
		if cfg.RateLimitPerSecond > 0 {
			burst := cfg.RateLimitBurst
			if burst <= 0 {
				burst = 1
			}
			limiter = transport.NewIdentityLimiter(rate.Limit(cfg.RateLimitPerSecond), burst)
			logger.Info("identity_rate_limit_enabled", "rps", cfg.RateLimitPerSecond, "burst", burst)
		}
		tport = transport.NewHTTPTransport(cfg.PlatformURL, limiter)
	}

	// No production cryptoprovider.Provider ships with this module (the
	// pairing-curve engine is a Non-goal); callers needing real M-Pin
	// cryptography supply their own Provider by constructing the
	// component packages directly instead of going through Client.
	var crypto cryptoprovider.Provider = fake.New()

	auditSvc := audit.NewWithLogger(logger)

	verificator := verification.New(tport, logger)
	registrator := registration.New(tport, crypto, store, logger, auditSvc)
	authenticator := authentication.New(tport, crypto, store, registrator, logger, auditSvc)
	signer := signing.New(tport, crypto, store, authenticator, logger, auditSvc)
	coordinator := session.New(tport)
	router := deeplink.NewRouter(coordinator)

	return &Client{
		cfg:           cfg,
		Verificator:   verificator,
		Registrator:   registrator,
		Authenticator: authenticator,
		Signer:        signer,
		Session:       coordinator,
		DeepLinks:     router,
		store:         store,
		logger:        logger,
	}, nil
}

// defaultUserStore builds cfg.UserStore verbatim when set, else a
// PostgresStore from DatabaseURL/TokenEncryptionKey, else an in-memory
// store as a last resort for callers with no durable backend configured.
func defaultUserStore(ctx context.Context, cfg Config, logger *slog.Logger) (userstore.Store, error) {
	if cfg.UserStore != nil {
		return cfg.UserStore, nil
	}
	if cfg.DatabaseURL == "" {
		logger.Warn("userstore_default", "details", "using in-memory store, data will not survive a restart")
		return userstore.NewMemoryStore(), nil
	}

	sealer, err := userstore.NewTokenSealer(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("mpinclient: building token sealer: %w", err)
	}
	pool, err := userstore.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("mpinclient: connecting to postgres: %w", err)
	}
	logger.Info("userstore_postgres", "details", "using postgres-backed store")
	return userstore.NewPostgresStore(pool, sealer), nil
}

// Close flushes any pending Sentry events before shutdown.
func (c *Client) Close() {
	if c.cfg.SentryDSN != "" {
		sentry.Flush(2 * time.Second)
	}
}

// Register runs the full registration pipeline for userId against this
// Client's configured project, a thin pass-through to Registrator.Register
// using the Client's DeviceName.
func (c *Client) Register(ctx context.Context, userID, activationToken string, pinProvider pin.Provider) (userstore.UserRecord, error) {
	c.logger.Debug("client_register", "user_id", userID, "project_id", c.cfg.ProjectID)
	return c.Registrator.Register(ctx, userID, c.cfg.ProjectID, activationToken, pinProvider, c.cfg.DeviceName)
}

// Authenticate runs a full two-pass authentication for the stored record
// matching userId/projectId, a pass-through to Authenticator.Authenticate.
func (c *Client) Authenticate(ctx context.Context, userID string, scope authentication.Scope, accessID string, pinProvider pin.Provider) (authentication.Result, error) {
	c.logger.Debug("client_authenticate", "user_id", userID, "project_id", c.cfg.ProjectID, "scope", scope)
	rec, err := c.store.Get(ctx, userID, c.cfg.ProjectID)
	if err != nil {
		return authentication.Result{}, err
	}
	return c.Authenticator.Authenticate(ctx, rec, scope, accessID, pinProvider, c.cfg.DeviceName)
}

// Sign produces a designated-verifier signature over message for userId,
// reusing the authentication Authenticator already wired into Signer.
func (c *Client) Sign(ctx context.Context, userID string, message []byte, pinProvider pin.Provider, sess *signing.SessionDetails) (signing.Signature, error) {
	rec, err := c.store.Get(ctx, userID, c.cfg.ProjectID)
	if err != nil {
		return signing.Signature{}, err
	}
	return c.Signer.Sign(ctx, rec, message, pinProvider, c.cfg.DeviceName, sess)
}
