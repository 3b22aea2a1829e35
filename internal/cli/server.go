package cli

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"negopro-questionnaire/internal/app"
	"negopro-questionnaire/internal/config"
	"negopro-questionnaire/internal/form"
	"negopro-questionnaire/internal/infra/file"
	"negopro-questionnaire/internal/infra/httpclient"
	"negopro-questionnaire/internal/infra/memory"
	"negopro-questionnaire/internal/infra/postgres"
	redisstore "negopro-questionnaire/internal/infra/redis"
	"negopro-questionnaire/internal/infra/sqlite"
	"negopro-questionnaire/internal/logging"
	"negopro-questionnaire/internal/payload"
	"negopro-questionnaire/internal/schema"
	transport "negopro-questionnaire/internal/transport/http"
	"negopro-questionnaire/internal/visibility"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the questionnaire server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	zlog.Logger = log

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	service, closer, err := buildService(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closer.Close()

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     transport.NewRouter(service, log),
		ReadTimeout: 15 * time.Second,
		// Finalize waits on the report service, so writes get the report timeout plus slack.
		WriteTimeout: config.TTLDuration(cfg.Report.Timeout, 120*time.Second) + 15*time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Str("source", cfg.Schema.Source).Msg("starting questionnaire service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type closers []func() error

func (c closers) Close() error {
	var first error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// buildService wires loaders, caches, stores and the report client from cfg.
// Redis wins over SQLite for persistence; without either, state lives in memory.
func buildService(ctx context.Context, cfg config.Config, log zerolog.Logger) (*app.QuestionnaireService, io.Closer, error) {
	var cleanup closers

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		cleanup = append(cleanup, redisClient.Close)
	}
	stateTTL := config.TTLDuration(cfg.Redis.TTL, 30*24*time.Hour)

	files := file.NewSchemaLoader(cfg.Schema.Root)
	router := schema.NewRouter(files)
	router.Handle("file", files)
	web := httpclient.NewSchemaLoader(nil)
	router.Handle("http", web)
	router.Handle("https", web)

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup.Close()
			return nil, nil, err
		}
		cleanup = append(cleanup, func() error { pool.Close(); return nil })
		router.Handle("db", postgres.NewSchemaLoader(pool))
	}

	schemaTTL := config.TTLDuration(cfg.Schema.TTL, 10*time.Minute)
	var loader app.SchemaLoader
	if redisClient != nil {
		loader = redisstore.NewSchemaRepository(redisClient, router, schemaTTL, log)
	} else {
		loader = memory.NewSchemaRepository(router, schemaTTL)
	}

	idle := config.TTLDuration(cfg.Questionnaire.SessionIdleTTL, 30*time.Minute)
	var store app.StateStore
	var sessions app.SessionRepository
	switch {
	case redisClient != nil:
		store = redisstore.NewStateStore(redisClient, stateTTL, log)
		sessions = redisstore.NewSessionRegistry(redisClient, stateTTL, idle)
	case cfg.SQLite.Path != "":
		db, err := sqlite.Open(cfg.SQLite.Path, log)
		if err != nil {
			cleanup.Close()
			return nil, nil, err
		}
		cleanup = append(cleanup, db.Close)
		store = db
		sessions = memory.NewSessionRegistry(idle)
	default:
		store = memory.NewStateStore()
		sessions = memory.NewSessionRegistry(idle)
	}

	if janitor, ok := sessions.(interface{ Run(context.Context, time.Duration) }); ok && idle > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		go janitor.Run(ctx, idle/4)
		cleanup = append(cleanup, func() error { cancel(); return nil })
	}

	vis := visibility.NewEvaluator(log)
	deps := app.Deps{
		Loader:         loader,
		Store:          store,
		Reporter:       httpclient.NewReportClient(cfg.Report.Endpoint, config.TTLDuration(cfg.Report.Timeout, 120*time.Second), log),
		Engine:         form.NewEngine(form.NewRegistry(), form.DefaultCoercionRules(), vis),
		Builder:        payload.NewBuilder(payload.DefaultAliases(), vis),
		Log:            log,
		StrictRequired: cfg.Questionnaire.StrictRequired,
	}
	return app.NewQuestionnaireService(sessions, deps, cfg.Schema.Source, cfg.Schema.AllowedSources...), cleanup, nil
}
