package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	"github.com/joho/godotenv"

	"photostudio/internal/infra"
	"photostudio/internal/providers"
	"photostudio/internal/session"
	"photostudio/internal/telegram"
	"photostudio/internal/templates"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	if cfg.TelegramBotToken == "" {
		logger.Fatal().Msg("TELEGRAM_BOT_TOKEN is required")
	}

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

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to telegram")
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := api.GetUpdatesChan(u)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to subscribe to updates")
	}

	botLogger := infra.Component(logger, "telegram")
	bot := telegram.New(api, registry, telegram.Options{
		Logger:         &botLogger,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		api.StopReceivingUpdates()
	}()

	logger.Info().Str("bot", api.Self.UserName).Str("editor", editorName).Msg("telegram bot started")
	bot.Run(ctx, updates)
	logger.Info().Msg("telegram bot stopped")
}
