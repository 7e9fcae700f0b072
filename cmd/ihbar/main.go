package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/ihbar/internal/api"
	"github.com/MikeSquared-Agency/ihbar/internal/config"
	"github.com/MikeSquared-Agency/ihbar/internal/conversation"
	"github.com/MikeSquared-Agency/ihbar/internal/dedup"
	"github.com/MikeSquared-Agency/ihbar/internal/hermes"
	"github.com/MikeSquared-Agency/ihbar/internal/questions"
	"github.com/MikeSquared-Agency/ihbar/internal/report"
	"github.com/MikeSquared-Agency/ihbar/internal/reporter"
	"github.com/MikeSquared-Agency/ihbar/internal/review"
	"github.com/MikeSquared-Agency/ihbar/internal/session"
	"github.com/MikeSquared-Agency/ihbar/internal/slack"
	"github.com/MikeSquared-Agency/ihbar/internal/store"
	"github.com/MikeSquared-Agency/ihbar/internal/telegram"
)

const webhookPath = "/telegram/webhook"

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)
	logger := slog.Default()

	slog.Info("ihbar starting", "port", cfg.Port, "mode", cfg.Mode())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create schema", "error", err)
		os.Exit(1)
	}
	slog.Info("database connected")

	// Question tree
	tree := questions.Default()
	if cfg.QuestionTreePath != "" {
		tree, err = questions.Load(cfg.QuestionTreePath)
		if err != nil {
			slog.Error("failed to load question tree", "path", cfg.QuestionTreePath, "error", err)
			os.Exit(1)
		}
		slog.Info("question tree loaded", "path", cfg.QuestionTreePath, "leaves", len(tree.Leaves()))
	}

	// Telegram
	if cfg.TelegramToken == "" {
		slog.Error("TELEGRAM_TOKEN is required")
		os.Exit(1)
	}
	// long polls hold the request open for the poll timeout
	tg, err := telegram.NewClient(cfg.TelegramToken, cfg.TelegramAPIURL, cfg.PollTimeout()+15*time.Second, logger)
	if err != nil {
		slog.Error("failed to reach telegram", "error", err)
		os.Exit(1)
	}
	bot := telegram.NewBot(tg)

	sessions := session.NewStore()
	directory := reporter.NewDirectory(db, logger)
	index := dedup.NewIndex()
	assembler := report.NewAssembler(db, directory, tg, index, logger)

	monitors := []conversation.Monitor{&conversation.ChannelMonitor{Chat: bot, ChatID: cfg.GroupChatID}}
	if cfg.GroupChatID == 0 {
		slog.Warn("GROUP_CHAT_ID not set, monitoring group disabled")
	}

	// NATS/Hermes (optional, publishes submissions and carries Slack reactions)
	var hermesClient *hermes.Client
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer hermesClient.Close()
		monitors = append(monitors, hermesClient)
	} else {
		slog.Warn("NATS_URL not set, running without event bus")
	}

	// Slack review mirror (optional)
	var reviewer *review.Reviewer
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		poster := slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		if hermesClient != nil {
			reviewer = review.New(db, poster, hermesClient, logger)
			if err := hermesClient.Subscribe(hermes.SubjectSlackReaction, reviewer.HandleReaction); err != nil {
				slog.Error("failed to subscribe to slack reactions", "error", err)
				os.Exit(1)
			}
		} else {
			reviewer = review.New(db, poster, nil, logger)
			slog.Warn("slack reactions need NATS, review verdicts only via API")
		}
		monitors = append(monitors, reviewer)
		slog.Info("slack mirror ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, running without review loop")
	}

	engine := conversation.NewEngine(tree, sessions, directory, assembler, bot, logger, monitors...)
	dispatcher := telegram.NewDispatcher(tg, engine, logger)

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.Mode(), sessions)
	srv.Report("dedup", func() any { return index.Stats() })
	if reviewer != nil {
		srv.EnableReviews(cfg.APIToken, reviewer)
		srv.Report("pending_reviews", func() any { return reviewer.Pending() })
	}

	if cfg.Webhook() {
		if cfg.AppURL == "" {
			slog.Error("APP_URL is required in production")
			os.Exit(1)
		}
		srv.Mount(webhookPath, telegram.WebhookHandler(dispatcher, cfg.TelegramWebhookSecret, logger))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx) })

	if cfg.Webhook() {
		if err := tg.SetWebhook(ctx, cfg.AppURL+webhookPath, cfg.TelegramWebhookSecret); err != nil {
			slog.Error("failed to register webhook", "error", err)
			os.Exit(1)
		}
		slog.Info("webhook registered", "url", cfg.AppURL+webhookPath)
	} else {
		poller := telegram.NewPoller(tg, dispatcher, cfg.PollTimeout(), logger)
		g.Go(func() error { return poller.Run(ctx) })
	}

	if hermesClient != nil {
		if err := hermesClient.Publish("swarm.agent.ihbar.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"mode":      cfg.Mode(),
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("ihbar ready", "port", cfg.Port, "mode", cfg.Mode())

	if err := g.Wait(); err != nil {
		slog.Error("ihbar stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("ihbar stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
