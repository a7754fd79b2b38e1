package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pathwise/internal/app"
	"pathwise/internal/config"
	"pathwise/internal/jobs"
	"pathwise/internal/lease"
	"pathwise/internal/ratelimit"
	"pathwise/internal/server"
	"pathwise/internal/usertoken"
	"pathwise/internal/util"
	"pathwise/pkg/ai"
	"pathwise/pkg/billing"
	"pathwise/pkg/mail"
	"pathwise/pkg/render"
	"pathwise/pkg/storage"
	"pathwise/pkg/store"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := util.InitLogger(cfg.LogLevel)

	st, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		logger.Error("connect database", "error", err)
		os.Exit(1)
	}

	var llm ai.TextGenerator
	switch cfg.LLMProvider {
	case "compat":
		llm = ai.NewCompatGenerator(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel)
	default:
		gen, err := ai.NewOpenAIGenerator(cfg.LLMAPIKey, cfg.LLMModel)
		if err != nil {
			logger.Error("init llm provider", "error", err)
			os.Exit(1)
		}
		llm = gen
	}

	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		logger.Error("init token verifier", "error", err)
		os.Exit(1)
	}

	leaseTTL := 60 * time.Second
	if cfg.LeaseTTLSeconds > 0 {
		leaseTTL = time.Duration(cfg.LeaseTTLSeconds) * time.Second
	}
	leases, err := lease.NewManager(cfg.RedisAddr, cfg.RedisPassword, "pathwise:lease", leaseTTL)
	if err != nil {
		logger.Error("connect redis", "error", err)
		os.Exit(1)
	}

	runner := jobs.NewRunner()
	runner.OnFailure(func(name string, err error) {
		logger.Error("background job failed", "job", name, "error", err)
	})

	var renderer render.Renderer
	if cfg.RenderServiceURL != "" {
		r, err := render.Dial(cfg.RenderServiceURL)
		if err != nil {
			logger.Error("connect render service", "error", err)
			os.Exit(1)
		}
		renderer = r
	} else {
		logger.Warn("render service not configured, pdf export disabled")
	}

	var objects storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		objects, err = storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			logger.Error("connect object storage", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("object storage not configured, pdf export disabled")
	}

	var mailer mail.Sender
	if cfg.MailProviderURL != "" {
		// Mail credentials are read per send so key rotation does not need a
		// process restart.
		mailer, err = mail.NewClient(cfg.MailProviderURL, func(context.Context) (mail.Credentials, error) {
			return mail.Credentials{APIKey: os.Getenv("MAIL_API_KEY"), From: cfg.MailFrom}, nil
		})
		if err != nil {
			logger.Error("init mail client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Warn("mail provider not configured, delivery emails disabled")
	}

	var billingClient *billing.Client
	if cfg.BillingURL != "" {
		billingClient, err = billing.NewClient(cfg.BillingURL, cfg.BillingAPIKey, cfg.BillingPriceKey)
		if err != nil {
			logger.Error("init billing client", "error", err)
			os.Exit(1)
		}
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.ChatRateLimit > 0 {
		window := time.Duration(cfg.ChatRateWindowSeconds) * time.Second
		if window <= 0 {
			window = time.Minute
		}
		limiter, err = ratelimit.NewFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "pathwise:rl", cfg.ChatRateLimit, window)
		if err != nil {
			logger.Error("init rate limiter", "error", err)
			os.Exit(1)
		}
	}

	application, err := app.New(st, llm, runner, leases, renderer, objects, mailer, app.Config{
		AppBaseURL: cfg.AppBaseURL,
	})
	if err != nil {
		logger.Error("init application", "error", err)
		os.Exit(1)
	}

	srv, err := server.New(server.Config{
		App:           application,
		Store:         st,
		TokenVerifier: verifier,
		Limiter:       limiter,
		Billing:       billingClient,
	})
	if err != nil {
		logger.Error("init server", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Error("job runner shutdown", "error", err)
	}
	if renderer != nil {
		_ = renderer.Close()
	}
}
