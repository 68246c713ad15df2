package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/99designs/gqlgen/graphql/handler"
	"github.com/99designs/gqlgen/graphql/handler/transport"
	"github.com/rs/cors"

	"github.com/rpattn/propspec/internal/config"
	"github.com/rpattn/propspec/internal/db"
	"github.com/rpattn/propspec/internal/graphql"
	"github.com/rpattn/propspec/internal/logger"
	"github.com/rpattn/propspec/internal/middleware"
	"github.com/rpattn/propspec/internal/repository"
	"github.com/rpattn/propspec/internal/search"
	"github.com/rpattn/propspec/migrations"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	cfg, fromFile, err := config.Load(*configPath)
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if fromFile {
		log.Info().Str("path", *configPath).Msg("loaded config.yaml")
	} else {
		log.Info().Msg("no config.yaml found, using defaults and env vars")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := db.NewConnection(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.Database, migrations.FS, log); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	entityRepo := repository.NewEntityRepository(conn.Pool, conn)
	searchService := search.NewService(entityRepo, search.Options{
		FilterPrefix: cfg.Search.FilterPrefix,
		DefaultLimit: cfg.Search.DefaultLimit,
		MaxLimit:     cfg.Search.MaxLimit,
	})

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})
	logging := middleware.LoggingMiddleware(log)

	srv := handler.New(graphql.NewExecutableSchema(graphql.NewResolver(searchService, log)))
	srv.AddTransport(transport.Options{})
	srv.AddTransport(transport.GET{})
	srv.AddTransport(transport.POST{})
	srv.Use(&middleware.ResolverLoggerExtension{Log: log})
	graphqlHandler := logging(middleware.DataLoaderMiddleware(searchService)(srv))

	mux := http.NewServeMux()
	entities := search.NewHTTPHandler(searchService, log)
	mux.Handle("/entities", corsHandler.Handler(logging(entities)))
	mux.Handle("/entities/", corsHandler.Handler(logging(entities)))
	mux.Handle("/query", corsHandler.Handler(graphqlHandler))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := conn.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ShutdownTimeout * 2,
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting entity search server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server exited")
}
