package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.pilab.hu/authcore"
	"go.pilab.hu/authcore/authcode"
	"go.pilab.hu/authcore/cache"
	rediscache "go.pilab.hu/authcore/cache/redis"
	"go.pilab.hu/authcore/client"
	"go.pilab.hu/authcore/config"
	"go.pilab.hu/authcore/domain"
	"go.pilab.hu/authcore/event"
	"go.pilab.hu/authcore/grant"
	"go.pilab.hu/authcore/internal/audit"
	"go.pilab.hu/authcore/internal/auth"
	"go.pilab.hu/authcore/internal/memstore"
	"go.pilab.hu/authcore/internal/metrics"
	"go.pilab.hu/authcore/internal/random"
	"go.pilab.hu/authcore/internal/server"
	"go.pilab.hu/authcore/log"
	"go.pilab.hu/authcore/middleware"
	"go.pilab.hu/authcore/mongodb"
	"go.pilab.hu/authcore/resource"
	"go.pilab.hu/authcore/tracing"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		stdLog := zerolog.New(os.Stdout).With().Timestamp().Logger()
		stdLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	logger := log.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(ctx, cfg, logger, reg)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize authcore", err)
	}

	logger.Info(ctx, "authcore started", log.Fields{
		"store_backend":     cfg.StoreBackend,
		"directory_backend": cfg.DirectoryBackend,
		"rotation":          cfg.RefreshTokenRotation,
	})

	runErr := a.run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.close(shutdownCtx)
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "TracerProvider shutdown error", err)
	}

	if runErr != nil {
		logger.Fatal(shutdownCtx, "authcore stopped with error", runErr)
	}

	logger.Info(shutdownCtx, "authcore gracefully stopped")
}

type app struct {
	service  *authcore.OAuthService
	metadata *resource.MetadataSource
	tokens   domain.TokenStore
	server   *server.HTTPServer
	bus      *event.RedisBus
	logger   log.Logger
	closers  []func(ctx context.Context) error
}

func newApp(ctx context.Context, cfg *config.ServerConfig, logger log.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{logger: logger}
	built := false
	defer func() {
		if !built {
			a.close(context.Background())
		}
	}()

	m := metrics.New(reg)
	checks := map[string]server.Check{}

	codes, tokens, publisher, subscriber, err := a.stores(ctx, cfg, checks)
	if err != nil {
		return nil, err
	}
	a.tokens = tokens

	clients, users, resources, err := a.directories(ctx, cfg, publisher, checks)
	if err != nil {
		return nil, err
	}

	a.metadata, err = resource.NewMetadataSource(ctx, resources,
		resource.WithLogger(logger), resource.WithMetrics(m))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, noErr(resource.NewListener(a.metadata, logger).Attach(subscriber)))

	hasher := auth.NewBcryptPasswordHasher(cfg.BcryptCost)

	codeManager := authcode.NewManager(codes,
		authcode.WithTTL(cfg.AuthCodeTTL),
		authcode.WithGenerator(random.New(cfg.AuthCodeLength)),
		authcode.WithLogger(logger),
		authcode.WithMetrics(m),
	)

	minter := grant.NewMinter(tokens,
		grant.WithTokenGenerator(random.New(cfg.TokenLength)),
		grant.WithDefaultTTLs(cfg.AccessTokenTTL, cfg.RefreshTokenTTL),
	)

	policy, err := grant.ParseRotationPolicy(cfg.RefreshTokenRotation)
	if err != nil {
		return nil, err
	}

	refresh, err := grant.NewRefreshTokenIssuer(tokens, minter, policy, logger)
	if err != nil {
		return nil, err
	}

	dispatcher, err := grant.NewDispatcher(
		grant.NewAuthorizationCodeIssuer(codeManager, minter, logger),
		grant.NewClientCredentialsIssuer(minter),
		grant.NewPasswordIssuer(auth.NewUserAuthenticator(users, hasher, logger), minter),
		refresh,
	)
	if err != nil {
		return nil, err
	}

	a.service, err = authcore.NewOAuthService(authcore.ServiceConfig{
		Clients:       clients,
		Authenticator: client.NewAuthenticator(clients, hasher, logger, m),
		Codes:         codeManager,
		Dispatcher:    dispatcher.WithLogger(logger).WithMetrics(m),
		Tokens:        tokens,
		Metadata:      a.metadata,
		Logger:        logger,
		Audit:         audit.New(os.Stdout),
	})
	if err != nil {
		return nil, err
	}

	checks["metadata"] = func(context.Context) error {
		if a.metadata.LoadedAt().IsZero() {
			return errors.New("secured resource metadata not loaded")
		}
		return nil
	}

	gatherer, ok := reg.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	a.server = server.NewHTTPServer(":"+cfg.HTTPPort, logger, gatherer, checks)

	api := a.server.Group("/api",
		middleware.BearerAuth(a.service, logger),
		middleware.Authorize(a.metadata, logger),
	)
	api.GET("/tokeninfo", tokenInfo, middleware.RequireToken)

	built = true

	return a, nil
}

// stores builds the code and token stores and the commit-event bus.
func (a *app) stores(ctx context.Context, cfg *config.ServerConfig, checks map[string]server.Check) (
	domain.AuthCodeStore, domain.TokenStore, domain.EventPublisher, domain.EventSubscriber, error,
) {
	if cfg.StoreBackend == config.BackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, func(context.Context) error { return rdb.Close() })

		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		a.bus = event.NewRedisBus(rdb, cfg.RedisEventChannel, a.logger)

		return rediscache.NewCodeStore(rdb, cfg.RedisKeyPrefix),
			rediscache.NewTokenStore(rdb, cfg.RedisKeyPrefix),
			a.bus, a.bus, nil
	}

	codes := cache.NewMemoryCodeStore()
	tokens := cache.NewMemoryTokenStore()
	a.closers = append(a.closers,
		func(context.Context) error { return codes.Close() },
		func(context.Context) error { return tokens.Close() },
	)

	bus := event.NewBus(a.logger)

	return codes, tokens, bus, bus, nil
}

// directories builds the client, user and secured resource directories.
func (a *app) directories(ctx context.Context, cfg *config.ServerConfig, publisher domain.EventPublisher,
	checks map[string]server.Check,
) (domain.ClientDirectory, domain.UserDirectory, domain.ResourceDirectory, error) {
	if cfg.DirectoryBackend == config.BackendMongo {
		mc, db, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, mc.Disconnect)

		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			return nil, nil, nil, err
		}
		checks["mongo"] = func(ctx context.Context) error { return mongodb.Ping(ctx, mc) }

		return mongodb.NewClientDirectory(db),
			mongodb.NewUserDirectory(db),
			mongodb.NewResourceRepository(db, publisher, a.logger),
			nil
	}

	a.logger.Warn(ctx, "using in-memory directories, registered clients and users do not persist")

	return memstore.NewClientDirectory(),
		memstore.NewUserDirectory(),
		memstore.NewResourceDirectory(publisher, a.logger),
		nil
}

// run serves until ctx is cancelled or a component fails.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(a.server.Start)

	if a.bus != nil {
		g.Go(func() error { return a.bus.Run(ctx) })
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case <-a.bus.Ready():
			}
			// Changes committed before the subscription was live would be missed otherwise.
			if err := a.metadata.Reload(ctx); err != nil {
				a.logger.Error(ctx, "failed to reload secured resources", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type tokenInfoResponse struct {
	ClientID  string `json:"client_id"`
	Subject   string `json:"sub,omitempty"`
	Scope     string `json:"scope,omitempty"`
	ExpiresAt int64  `json:"exp"`
}

// tokenInfo describes the bearer token of the request.
func tokenInfo(c echo.Context) error {
	token, _ := middleware.TokenFromContext(c)

	return c.JSON(http.StatusOK, &tokenInfoResponse{
		ClientID:  token.ClientID,
		Subject:   token.Subject,
		Scope:     grant.JoinScopes(token.Scopes),
		ExpiresAt: token.ExpiresAt.Unix(),
	})
}

func (a *app) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn(ctx, "error while closing", log.Fields{"error": err.Error()})
		}
	}
	a.closers = nil
}

func noErr(fn func()) func(context.Context) error {
	return func(context.Context) error {
		fn()
		return nil
	}
}
