package main

import (
	"context"
	crypto_rand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/medcenter/medcenter/internal/config"
	"github.com/medcenter/medcenter/internal/domain/advice"
	"github.com/medcenter/medcenter/internal/domain/clinical"
	"github.com/medcenter/medcenter/internal/domain/hospital"
	"github.com/medcenter/medcenter/internal/domain/identity"
	"github.com/medcenter/medcenter/internal/domain/imaging"
	"github.com/medcenter/medcenter/internal/domain/pathology"
	"github.com/medcenter/medcenter/internal/platform/auth"
	"github.com/medcenter/medcenter/internal/platform/db"
	"github.com/medcenter/medcenter/internal/platform/middleware"
	"github.com/medcenter/medcenter/internal/platform/notification"
	"github.com/medcenter/medcenter/internal/platform/orthanc"
)

const version = "0.1.0"

// uploadRoute gets the larger body limit and no request timeout.
const uploadRoute = "/api/v1/hospitals/:id/imaging/instances"

type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// serverDeps carries everything newEcho needs beyond config.
type serverDeps struct {
	signingKey  []byte
	devAuth     bool
	revocations auth.RevocationStore
	dbHealth    echo.HandlerFunc
	routes      []routeRegistrar
}

func newLogger(env string, w io.Writer) zerolog.Logger {
	if env == "development" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// resolveSigningKey returns JWT_SECRET, or a random key in development when
// none is set. The second return value is true when a key was generated.
func resolveSigningKey(cfg *config.Config) ([]byte, bool, error) {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret), false, nil
	}
	if !cfg.IsDev() {
		return nil, false, errors.New("JWT_SECRET is required outside development")
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("failed to generate signing key: %w", err)
	}
	return key, true, nil
}

func newRevocationStore(ctx context.Context, cfg *config.Config) (auth.RevocationStore, func(), error) {
	if cfg.RedisURL == "" {
		store := auth.NewMemoryRevocationStore(time.Minute)
		return store, store.Close, nil
	}
	client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRedisRevocationStore(client), func() { client.Close() }, nil
}

func newEmailSender(cfg *config.Config, logger zerolog.Logger) notification.EmailSender {
	if !cfg.SMTPEnabled() {
		return notification.LogSender{Logger: logger}
	}
	return notification.NewSMTPSender(notification.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
	})
}

func newDirectory(cfg *config.Config, hospitals *hospital.Service) (imaging.Directory, error) {
	if cfg.ArchivesFile == "" {
		return hospitals, nil
	}
	return hospital.LoadFileDirectory(cfg.ArchivesFile)
}

func authMiddleware(deps serverDeps, cfg *config.Config, logger zerolog.Logger) []echo.MiddlewareFunc {
	jwtCfg := auth.JWTConfig{
		Issuer:      cfg.JWTIssuer,
		SigningKey:  deps.signingKey,
		Revocations: deps.revocations,
		Skipper:     auth.AuthSkipper,
		Logger:      logger,
	}
	if !deps.devAuth {
		return []echo.MiddlewareFunc{auth.JWTMiddleware(jwtCfg)}
	}
	// Requests without a token act as the dev admin; tokens are still checked.
	jwtCfg.Skipper = func(c echo.Context) bool {
		return auth.AuthSkipper(c) || c.Request().Header.Get("Authorization") == ""
	}
	return []echo.MiddlewareFunc{auth.DevAuthMiddleware(), auth.JWTMiddleware(jwtCfg)}
}

func newEcho(cfg *config.Config, logger zerolog.Logger, deps serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.Sanitize(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.UploadLimit, uploadRoute))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, uploadRoute))
	e.Use(middleware.Audit(logger))
	e.Use(authMiddleware(deps, cfg, logger)...)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if deps.dbHealth != nil {
		e.GET("/health/db", deps.dbHealth)
	}

	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	for _, r := range deps.routes {
		r.RegisterRoutes(apiV1)
	}
	return e
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"), os.Stdout)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode: requests without a token act as an admin user")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Auth
	signingKey, generated, err := resolveSigningKey(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve signing key")
	}
	if generated {
		logger.Warn().Msg("JWT_SECRET not set: using a random signing key, tokens will not survive a restart")
	}
	revocations, closeRevocations, err := newRevocationStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeRevocations()

	// Hospitals and imaging
	hospitalSvc := hospital.NewService(hospital.NewRepo(pool), pool)
	directory, err := newDirectory(cfg, hospitalSvc)
	if err != nil {
		logger.Fatal().Err(err).Str("file", cfg.ArchivesFile).Msg("failed to load archive directory")
	}
	archiveClient := orthanc.NewClient(orthanc.Config{
		Timeout:             cfg.ArchiveTimeout,
		MaxIdleConnsPerHost: cfg.ArchiveMaxIdleConns,
	}, logger)
	aggregator := imaging.NewAggregator(directory, archiveClient, cfg.ArchiveMaxConcurrency, logger)

	// Identity
	tokens := auth.NewTokenIssuer(cfg.JWTIssuer, signingKey, cfg.JWTTTL)
	identitySvc := identity.NewService(identity.NewUserRepo(pool), tokens, revocations, logger)

	// Clinical records, pathology catalog and advice
	clinicalSvc := clinical.NewService(clinical.NewPatientRepo(pool), clinical.NewPractitionerRepo(pool), clinical.NewConsultationRepo(pool), pool)
	pathologySvc := pathology.NewService(pathology.NewCategoryRepo(pool), pathology.NewPathologyRepo(pool), pool)
	adviceSvc := advice.NewService(advice.NewRepo(pool), pathologySvc, clinicalSvc, pool)

	// Email
	emailMgr := notification.NewManager(newEmailSender(cfg, logger), notification.NewStore(pool), cfg.MailFrom, logger)
	defer emailMgr.Wait()

	e := newEcho(cfg, logger, serverDeps{
		signingKey:  signingKey,
		devAuth:     cfg.IsDev() && cfg.JWTSecret == "",
		revocations: revocations,
		dbHealth:    db.HealthHandler(pool, logger),
		routes: []routeRegistrar{
			identity.NewHandler(identitySvc),
			auth.NewRevocationHandler(revocations),
			hospital.NewHandler(hospitalSvc),
			imaging.NewHandler(aggregator),
			clinical.NewHandler(clinicalSvc),
			pathology.NewHandler(pathologySvc),
			advice.NewHandler(adviceSvc),
			notification.NewHandler(emailMgr),
		},
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("version", version).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
