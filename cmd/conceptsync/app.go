package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ehr/conceptsync/internal/config"
	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/domain/conceptsync"
	"github.com/ehr/conceptsync/internal/domain/fhirlist"
	"github.com/ehr/conceptsync/internal/domain/observationdefinition"
	"github.com/ehr/conceptsync/internal/domain/questionnaire"
	"github.com/ehr/conceptsync/internal/domain/valueset"
	"github.com/ehr/conceptsync/internal/platform/auth"
	"github.com/ehr/conceptsync/internal/platform/db"
	"github.com/ehr/conceptsync/internal/platform/fhir"
	"github.com/ehr/conceptsync/internal/platform/locker"
	"github.com/ehr/conceptsync/internal/platform/middleware"
)

const version = "0.1.0"

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// app holds the services shared by the server and the CLI commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client

	store          concept.Store
	valueSets      *valueset.Service
	syncer         *conceptsync.Syncer
	questionnaires *questionnaire.Service
	observations   *observationdefinition.Service
	lists          *fhirlist.Service
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var vsRepo valueset.ValueSetRepository
	switch cfg.Store {
	case config.StorePostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.store = concept.NewConceptRepoPG(pool)
		vsRepo = valueset.NewValueSetRepoPG(pool)
		logger.Info().Msg("connected to database")
	default:
		a.store = concept.NewMemoryStore()
		vsRepo = valueset.NewValueSetRepoMem()
		logger.Warn().Msg("using the in-memory store; concepts are lost on exit")
	}

	var l locker.Locker
	if cfg.RedisURL != "" {
		client, err := locker.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.redis = client
		l = locker.NewRedisLocker(client, cfg.ImportLockTTL)
		logger.Info().Msg("import lock shared through redis")
	}

	a.valueSets = valueset.NewService(vsRepo, logger)
	engine := conceptsync.NewEngine(conceptsync.DepsFromStore(a.store, a.valueSets), logger)
	a.syncer = conceptsync.NewSyncer(a.store, l, logger)
	a.questionnaires = questionnaire.NewService(engine, a.syncer, logger)
	a.observations = observationdefinition.NewService(engine, a.syncer, logger)
	a.lists = fhirlist.NewService(engine, a.syncer, logger)
	return a, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// healthChecks lists the backing services /health probes.
func (a *app) healthChecks() []db.Check {
	var checks []db.Check
	if a.pool != nil {
		checks = append(checks, db.PoolCheck(a.pool))
	}
	if a.redis != nil {
		checks = append(checks, db.Check{Name: "redis", Ping: func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		}})
	}
	return checks
}

func (a *app) newServer() (*echo.Echo, error) {
	locales, err := a.cfg.Locales()
	if err != nil {
		return nil, err
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Locale(locales...))
	e.Use(middleware.Logger(a.logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  a.cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept-Language", "If-Match", "Prefer", middleware.RequestIDHeader},
		ExposeHeaders: []string{"ETag", "Location", "Warning", "Content-Language"},
	}))
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit))

	e.GET("/health", db.HealthHandler(a.cfg.Store, a.healthChecks()...))

	capBuilder := fhir.NewCapabilityBuilder("conceptsync", fmt.Sprintf("http://localhost:%s/fhir", a.cfg.Port), version)
	fhirGroup := e.Group("/fhir")
	fhirGroup.GET("/metadata", fhir.MetadataHandler(capBuilder))

	if a.cfg.IsDev() {
		fhirGroup.Use(auth.DevAuthMiddleware())
	} else {
		fhirGroup.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     a.cfg.AuthIssuer,
			Audience:   a.cfg.AuthAudience,
			JWKSURL:    a.cfg.AuthJWKSURL,
			SigningKey: []byte(a.cfg.AuthSigningKey),
		}))
	}

	byName := fhir.SearchParam{Name: "name", Type: "string"}
	byID := fhir.SearchParam{Name: "_id", Type: "token"}

	questionnaire.NewHandler(a.questionnaires).RegisterRoutes(fhirGroup)
	capBuilder.AddResource("Questionnaire", fhir.DefaultInteractions(), []fhir.SearchParam{byID, byName})

	observationdefinition.NewHandler(a.observations).RegisterRoutes(fhirGroup)
	capBuilder.AddResource("ObservationDefinition", fhir.DefaultInteractions(), []fhir.SearchParam{
		byID, byName, {Name: "code", Type: "token"},
	})

	fhirlist.NewHandler(a.lists).RegisterRoutes(fhirGroup)
	capBuilder.AddResource("List", fhir.DefaultInteractions(), []fhir.SearchParam{{Name: "title", Type: "string"}})

	valueset.NewHandler(a.valueSets).RegisterRoutes(fhirGroup)
	capBuilder.AddResource("ValueSet", fhir.DefaultInteractions(), nil)

	return e, nil
}
