// Helpi - Conversational IT Helpdesk Server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/helpibot/helpi/internal/api"
	"github.com/helpibot/helpi/internal/bot"
	"github.com/helpibot/helpi/internal/channel"
	"github.com/helpibot/helpi/internal/config"
	"github.com/helpibot/helpi/internal/dialog"
	"github.com/helpibot/helpi/internal/identity"
	"github.com/helpibot/helpi/internal/intent"
	"github.com/helpibot/helpi/internal/kb"
	"github.com/helpibot/helpi/internal/ledger"
	"github.com/helpibot/helpi/internal/mail"
	"github.com/helpibot/helpi/internal/messages"
	"github.com/helpibot/helpi/internal/middleware"
	"github.com/helpibot/helpi/internal/store"
	"github.com/helpibot/helpi/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	led, err := ledger.NewSQLite(cfg.LedgerPath)
	if err != nil {
		slog.Error("Failed to initialize ticket ledger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := led.Close(); closeErr != nil {
			slog.Error("Failed to close ticket ledger", "error", closeErr)
		}
	}()
	slog.Info("Ticket ledger ready")

	catalog, err := messages.Load(cfg.MessagesPath)
	if err != nil {
		slog.Error("Failed to load message catalog", "error", err)
		os.Exit(1)
	}

	kbClient, err := kb.NewHTTPClient(kb.HTTPClientConfig{
		Endpoint:        cfg.KB.Endpoint,
		KnowledgeBaseID: cfg.KB.KnowledgeBaseID,
		AuthKey:         cfg.KB.AuthKey,
		Top:             cfg.KB.Top,
		RequestTimeout:  cfg.KB.RequestTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize knowledge base client", "error", err)
		os.Exit(1)
	}

	// The classifier is optional; without it every utterance goes to
	// the knowledge base.
	var classifier intent.Classifier
	if cfg.Intent.Endpoint != "" {
		classifier, err = intent.NewHTTPClient(intent.HTTPClientConfig{
			Endpoint:        cfg.Intent.Endpoint,
			AppID:           cfg.Intent.AppID,
			SubscriptionKey: cfg.Intent.SubscriptionKey,
			RequestTimeout:  cfg.Intent.RequestTimeout,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize intent classifier", "error", err)
			os.Exit(1)
		}
		slog.Info("Intent classifier enabled", "endpoint", cfg.Intent.Endpoint)
	} else {
		slog.Info("Intent classifier disabled (INTENT_ENDPOINT not set)")
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		SSL:      cfg.SMTP.SSL,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		Timeout:  cfg.SMTP.Timeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize mailer", "error", err)
		os.Exit(1)
	}

	// Initialize services.
	engine := dialog.NewEngine(kbClient, mailer, led, catalog, dialog.Config{
		MaxRetries:        cfg.Dialog.MaxRetries,
		MaxInvalidAnswers: cfg.Dialog.MaxInvalidAnswers,
		AnswerDelay:       cfg.Dialog.AnswerDelay,
		MailFrom:          cfg.Mail.From,
		MailTo:            cfg.Mail.To,
	}, logger)

	orch := bot.New(engine, classifier, repo, catalog, bot.Config{
		IntentThreshold: cfg.Intent.Threshold,
	}, logger)

	sm := channel.NewSessionManager()

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo, 5*time.Second)
	connectorHandler := api.NewConnectorHandler(orch)
	wsHandler := channel.NewWebSocketHandler(orch, sm, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	// Public routes.
	healthHandler.RegisterHealth(r)
	connectorHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // WebSocket chat sessions stay open indefinitely
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartCleanupWorker(ctx, repo, cfg.ConversationTTL)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
