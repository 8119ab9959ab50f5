package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wave-api/internal/application/account"
	"github.com/wave-api/internal/application/chat"
	"github.com/wave-api/internal/application/country"
	"github.com/wave-api/internal/application/identity"
	"github.com/wave-api/internal/application/verification"
	"github.com/wave-api/internal/config"
	"github.com/wave-api/internal/infrastructure/attest"
	"github.com/wave-api/internal/infrastructure/dynamo"
	jwtinfra "github.com/wave-api/internal/infrastructure/jwt"
	redisinfra "github.com/wave-api/internal/infrastructure/redis"
	s3infra "github.com/wave-api/internal/infrastructure/s3"
	"github.com/wave-api/internal/infrastructure/sns"
	transporthttp "github.com/wave-api/internal/transport/http"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, reading from environment")
	}

	cfg, err := config.Load()
	if err != nil {
		fatal("load config", err)
	}
	if cfg.IsProduction() {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
	}

	// ctx stops background work (registry sweep, limiter cleanup) at shutdown.
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Bootstrap DynamoDB tables (creates them if they don't exist).
	dynamoClient, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		fatal("dynamodb client", err)
	}
	dynamo.Bootstrap(ctx, dynamoClient, cfg.DynamoTables)

	jwtProvider, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		fatal("jwt provider", err)
	}

	attestation, err := attest.Select(cfg, jwtProvider)
	if err != nil {
		fatal("attestation", err)
	}

	// SNS SMS sender (optional, falls back to logging codes).
	var smsSender sns.SMSSender = sns.LogSender{}
	if cfg.OTPDevMode {
		slog.Warn("OTP dev mode: every code is 123456 and SMS is not sent")
	} else if sender, err := sns.NewSender(ctx, cfg); err == nil {
		smsSender = sender
	} else {
		slog.Warn("SNS sender not available, logging codes instead", "err", err)
	}

	// Redis (optional, falls back to in-process hints and no OTP rate limit).
	redisClient, err := redisinfra.NewClient(ctx, cfg)
	if err != nil {
		slog.Warn("redis not available", "err", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	catalog := loadCatalog(ctx, cfg)

	accounts := dynamo.NewAccountRepo(dynamoClient, cfg.DynamoTables.Accounts)
	messages := dynamo.NewMessageRepo(dynamoClient, cfg.DynamoTables.Messages)

	identitySvc := identity.NewService(identity.ServiceDeps{
		Verifications: dynamo.NewVerificationRepo(dynamoClient, cfg.DynamoTables.Verifications),
		Identities:    dynamo.NewIdentityRepo(dynamoClient, cfg.DynamoTables.Identities),
		Accounts:      accounts,
		SMS:           smsSender,
		Limiter:       redisinfra.NewOTPRateLimiter(redisClient, cfg.OTPRateWindow, cfg.OTPRateMax),
		Signer:        jwtProvider,
		CodeTTL:       cfg.OTPExpiry,
		MaxAttempts:   cfg.OTPMaxAttempts,
		DevMode:       cfg.OTPDevMode,
	})

	registry := verification.NewRegistry(
		identitySvc,
		catalog,
		redisinfra.NewHintStore(redisClient, cfg.OTPExpiry),
		cfg.DeviceIdleTimeout,
	)
	go registry.Run(ctx)

	deps := &transporthttp.Deps{
		Identity:    identitySvc,
		Chat:        chat.NewService(messages),
		Account:     account.NewService(identitySvc, accounts, messages),
		Registry:    registry,
		Countries:   catalog,
		Attestation: attestation,
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      transporthttp.NewRouter(ctx, cfg, deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "attestation", attestation.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "err", err)
	}
	slog.Info("server stopped")
}

// loadCatalog fetches the country catalog from S3 when configured, falling
// back to the embedded copy.
func loadCatalog(ctx context.Context, cfg *config.Config) *country.Catalog {
	if cfg.CountryCatalogKey == "" {
		return country.Default()
	}
	s3Client, err := s3infra.NewClient(ctx, cfg)
	if err != nil {
		slog.Warn("s3 client not available, using embedded country catalog", "err", err)
		return country.Default()
	}
	c, err := country.LoadFromStore(ctx, s3infra.NewStore(s3Client, cfg.S3BucketName), cfg.CountryCatalogKey)
	if err != nil {
		slog.Warn("country catalog download failed, using embedded copy", "key", cfg.CountryCatalogKey, "err", err)
		return country.Default()
	}
	slog.Info("country catalog loaded", "key", cfg.CountryCatalogKey, "entries", len(c.All()))
	return c
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
