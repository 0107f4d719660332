package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"photostudio/internal/http/handlers"
	httpapi "photostudio/internal/http/httpapi"
	"photostudio/internal/infra"
	"photostudio/internal/providers"
	"photostudio/internal/session"
	"photostudio/internal/templates"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	catalog, err := templates.Load(cfg.TemplatesPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load templates")
	}

	editorLogger := infra.Component(logger, "editor")
	editor, editorName, err := providers.NewEditor(cfg, &editorLogger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure editor")
	}

	sessionLogger := infra.Component(logger, "session")
	registry := session.NewRegistry(editor, catalog, cfg.SessionTTL,
		session.WithLogger(&sessionLogger),
		session.WithTimeout(cfg.EditorTimeout),
	)
	stopSweeper, err := registry.StartSweeper(cfg.SessionSweepSpec)
	if err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.SessionSweepSpec).Msg("invalid session sweep schedule")
	}
	defer stopSweeper()

	httpLogger := infra.Component(logger, "http")
	app := handlers.NewApp(registry, catalog, cfg.MaxUploadBytes, &httpLogger)
	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          httpLogger,
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().
			Str("addr", server.Addr()).
			Str("editor", editorName).
			Int("templates", catalog.Len()).
			Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
