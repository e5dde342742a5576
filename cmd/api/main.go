// Package main is the entry point for the chat proxy.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/chat-proxy/internal/config"
	"github.com/capitalize-ai/chat-proxy/internal/decisionlog"
	"github.com/capitalize-ai/chat-proxy/internal/handler"
	"github.com/capitalize-ai/chat-proxy/internal/middleware"
	"github.com/capitalize-ai/chat-proxy/internal/moderation"
	natsclient "github.com/capitalize-ai/chat-proxy/internal/nats"
	"github.com/capitalize-ai/chat-proxy/internal/upstream"
	"github.com/capitalize-ai/chat-proxy/pkg/logger"
	"github.com/capitalize-ai/chat-proxy/pkg/tracing"
)

const serviceName = "chat-proxy"

func main() {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewFromEnv(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.Log.Dir, 0o755); err != nil {
		log.Fatal("failed to create log directory", zap.String("dir", cfg.Log.Dir), zap.Error(err))
	}
	diag, err := logger.NewFile(filepath.Join(cfg.Log.Dir, "debug_chat.log"), "debug")
	if err != nil {
		log.Fatal("failed to open diagnostic log", zap.Error(err))
	}
	defer diag.Sync()

	log.Info("starting chat proxy",
		zap.String("port", cfg.Server.Port),
		zap.String("moderation_provider", cfg.Moderation.Provider),
	)

	ctx := context.Background()
	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.Tracing.Endpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	recorders := decisionlog.Multi{decisionlog.NewFileLog(cfg.Log.Dir)}

	// Optional decision stream
	var natsClient *natsclient.Client
	var readiness handler.ConnChecker
	if cfg.NATS.URL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATS.URL,
			CAFile:   cfg.NATS.CAFile,
			CertFile: cfg.NATS.CertFile,
			KeyFile:  cfg.NATS.KeyFile,
			Token:    cfg.NATS.Token,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		if err := natsclient.EnsureStream(ctx, natsClient.JetStream()); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}

		recorders = append(recorders, natsclient.NewStreamManager(natsClient.JetStream()))
		readiness = natsClient
	}

	checker, err := newChecker(cfg.Moderation)
	if err != nil {
		log.Fatal("failed to create moderation checker", zap.Error(err))
	}
	gate := moderation.NewGate(checker, cfg.Moderation.Timeout, log)

	upstreamClient := upstream.NewClient(
		upstream.WithHTTPClient(newUpstreamHTTPClient()),
		upstream.WithTimeout(cfg.Upstream.Timeout),
	)
	relay := upstream.NewRelayer(upstreamClient, log, diag)

	chatHandler := handler.NewChatHandler(cfg.Upstream, gate, relay, recorders, log)
	healthHandler := handler.NewHealthHandler(readiness)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	chat := otelhttp.NewHandler(
		middleware.LimitBody(middleware.DefaultMaxBodyBytes)(http.HandlerFunc(chatHandler.Chat)),
		"chat",
	)
	r.Method(http.MethodPost, "/api/v1/chat", chat)
	r.Method(http.MethodPost, "/chat", chat)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// newChecker returns the configured moderation backend, or nil when
// moderation is disabled.
func newChecker(cfg config.ModerationConfig) (moderation.Checker, error) {
	switch cfg.Provider {
	case config.ModerationHTTP:
		return moderation.NewHTTPChecker(cfg.URL, nil), nil
	case config.ModerationOpenAI:
		client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
		return moderation.NewOpenAIChecker(cfg.OpenAIAPIKey, cfg.OpenAIURL, client), nil
	case config.ModerationNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown moderation provider %q", cfg.Provider)
	}
}

// newUpstreamHTTPClient keeps a warm pool to the single chat API host. Only
// connection setup is bounded; the stream itself is not.
func newUpstreamHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{Transport: otelhttp.NewTransport(transport)}
}
