package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/functiomed/voice-agent/internal/api/router"
	"github.com/functiomed/voice-agent/internal/booking"
	appconfig "github.com/functiomed/voice-agent/internal/config"
	"github.com/functiomed/voice-agent/internal/conversation"
	"github.com/functiomed/voice-agent/internal/http/handlers"
	"github.com/functiomed/voice-agent/internal/knowledge"
	"github.com/functiomed/voice-agent/internal/notify"
	"github.com/functiomed/voice-agent/internal/webchat"
	"github.com/functiomed/voice-agent/pkg/logging"
)

func main() {
	// Load .env in development; ignore when absent.
	_ = godotenv.Load()

	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting voice-agent API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = redisClient.Close() }()
	} else {
		logger.Warn("REDIS_ADDR not set, transcript history disabled")
	}

	closed := conversation.ClosedWeekdaySet(cfg.ClosedWeekdays)

	store := booking.NewStore(db, logger)
	if cfg.SeedSlots {
		inserted, err := store.SeedSlots(ctx, cfg.ClinicServices, cfg.SeedDays, time.Now(), closed)
		if err != nil {
			logger.Error("failed to seed slots", "error", err)
			os.Exit(1)
		}
		logger.Info("seeded availability", "inserted", inserted, "days", cfg.SeedDays)
	}

	catalog := conversation.NewServiceCatalog(cfg.ClinicServices)
	registry := conversation.NewRegistry(cfg.DefaultLanguage, logger,
		conversation.WithIdleTimeout(cfg.SessionIdleTimeout))
	metrics := conversation.NewMetrics(prometheus.DefaultRegisterer)
	transcript := conversation.NewTranscriptStore(redisClient)

	var kb conversation.KnowledgeBase
	if answerer := buildAnswerer(ctx, cfg, logger); answerer != nil {
		kb = answerer
	}

	var notifier conversation.Notifier
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender != nil {
		notifier = notify.NewBookingNotifier(sender, cfg.ClinicName, logger)
	} else {
		logger.Warn("SENDGRID_API_KEY not set, booking confirmation email disabled")
	}

	bookingAdapter := conversation.NewBookingStoreAdapter(store)
	engine := conversation.NewEngine(conversation.EngineConfig{
		Registry:       registry,
		Catalog:        catalog,
		Availability:   bookingAdapter,
		Reservations:   bookingAdapter,
		Knowledge:      kb,
		Notifier:       notifier,
		Transcript:     transcript,
		Metrics:        metrics,
		Logger:         logger,
		ClinicName:     cfg.ClinicName,
		ClosedWeekdays: cfg.ClosedWeekdays,
	})

	webchatHandler := webchat.NewHandler(engine, transcript, logger)
	adminHandler := handlers.NewAdminAppointmentsHandler(store, logger)

	r := router.New(&router.Config{
		Logger:             logger,
		Webchat:            webchatHandler,
		AdminAppointments:  adminHandler,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	defer stopSweeper()
	go registry.RunSweeper(sweepCtx, cfg.SweepInterval)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // WebSocket connections stay open indefinitely
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// buildAnswerer wires the knowledge base for the configured LLM provider.
// Returns nil when no provider is usable, which disables clinic Q&A.
func buildAnswerer(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *knowledge.Answerer {
	var (
		llm     knowledge.LLMClient
		modelID string
	)

	switch cfg.LLMProvider {
	case "bedrock":
		if cfg.BedrockModelID == "" {
			logger.Warn("BEDROCK_MODEL_ID not set, knowledge base disabled")
			return nil
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			return nil
		}
		llm = knowledge.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
		modelID = cfg.BedrockModelID
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			logger.Warn("GEMINI_API_KEY not set, knowledge base disabled")
			return nil
		}
		client, err := knowledge.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create Gemini client", "error", err)
			return nil
		}
		llm = client
		modelID = cfg.GeminiModelID
	default:
		logger.Warn("unknown LLM provider, knowledge base disabled", "provider", cfg.LLMProvider)
		return nil
	}

	var retriever knowledge.Retriever
	if cfg.RetrieverURL != "" {
		retriever = knowledge.NewHTTPRetriever(cfg.RetrieverURL)
	}

	answerer, err := knowledge.NewAnswerer(knowledge.AnswererConfig{
		LLM:        llm,
		Retriever:  retriever,
		Logger:     logger,
		ModelID:    modelID,
		ClinicName: cfg.ClinicName,
		TopK:       cfg.RetrieverTopK,
		MaxTokens:  int32(cfg.AnswerMaxTokens),
	})
	if err != nil {
		logger.Error("failed to create answerer", "error", err)
		return nil
	}
	logger.Info("knowledge base enabled", "provider", cfg.LLMProvider, "model", modelID)
	return answerer
}
