package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/phoneotp/server/internal/auth"
	"github.com/phoneotp/server/internal/config"
	"github.com/phoneotp/server/internal/db"
	httphandler "github.com/phoneotp/server/internal/http"
	"github.com/phoneotp/server/internal/http/handlers"
	"github.com/phoneotp/server/internal/logger"
	"github.com/phoneotp/server/internal/metrics"
	"github.com/phoneotp/server/internal/phone"
	"github.com/phoneotp/server/internal/ratelimit"
	"github.com/phoneotp/server/internal/repo"
	"github.com/phoneotp/server/internal/sms"
)

const (
	limitWindow     = 10 * time.Minute
	sendIPLimit     = 10
	verifyIPLimit   = 20
	phoneSendLimit  = 3
	shutdownTimeout = 10 * time.Second
)

func main() {
	// Load .env from CWD (env vars override)
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, !cfg.IsProduction())
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server error", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Open(ctx, cfg.DatabaseURL, zlog)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	m := metrics.New()

	userRepo := repo.NewUserRepo(database, cfg.DBTimeout)
	otpRepo := repo.NewOtpRepo(database, cfg.DBTimeout)

	sender := newSender(cfg, zlog)

	lim, err := newLimiters(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer lim.close()

	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	issuer := auth.NewIssuer(otpRepo, sender, zlog.Named("issuer"), m)
	verifier := auth.NewVerifier(userRepo, otpRepo, tokens, lim.phoneVerify, cfg.OTPSingleUse, zlog.Named("verifier"), m)
	authService := auth.NewAuthService(
		phone.NewNormalizer(cfg.DefaultCountryCode),
		userRepo,
		otpRepo,
		issuer,
		verifier,
		lim.phoneSend,
		zlog.Named("auth"),
		m,
	)

	authHandler := handlers.NewAuthHandler(authService, cfg.DevMode, zlog.Named("http"))

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Auth:          authHandler,
		Tokens:        tokens,
		Users:         userRepo,
		SendLimiter:   lim.sendIP,
		VerifyLimiter: lim.verifyIP,
		Metrics:       m,
		Log:           zlog.Named("http"),
		AllowedOrigin: cfg.CORSAllowedOrigins,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.SMSTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server starting",
			zap.String("port", cfg.Port),
			zap.Bool("dev_mode", cfg.DevMode),
			zap.Bool("otp_single_use", cfg.OTPSingleUse),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	zlog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	zlog.Info("server exited")
	return nil
}

func newSender(cfg *config.Config, zlog *zap.Logger) sms.Sender {
	if cfg.DevMode {
		zlog.Warn("DEV_MODE enabled: SMS is logged, not sent, and codes are echoed in responses")
		return sms.NewLogSender(zlog.Named("sms"))
	}
	twilio := sms.NewTwilioSender(
		cfg.TwilioAccountSID,
		cfg.TwilioAuthToken,
		cfg.TwilioPhoneNumber,
		cfg.TwilioBaseURL,
		cfg.SMSTimeout,
	)
	return sms.NewBreakerSender(twilio, sms.BreakerSettings{}, zlog.Named("sms"))
}

// limiters groups the rate limiters the server wires in. phoneSend is nil
// without redis; the service then counts from the otps table.
type limiters struct {
	sendIP      ratelimit.Limiter
	verifyIP    ratelimit.Limiter
	phoneSend   ratelimit.Limiter
	phoneVerify ratelimit.Limiter
	close       func()
}

// newLimiters builds the limiters on redis when REDIS_URL is set and in
// memory otherwise.
func newLimiters(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (*limiters, error) {
	if cfg.RedisURL == "" {
		s := ratelimit.NewMemoryLimiter(limitWindow, sendIPLimit)
		v := ratelimit.NewMemoryLimiter(limitWindow, verifyIPLimit)
		a := ratelimit.NewMemoryLimiter(auth.VerifyAttemptWindow, auth.VerifyAttemptMax)
		return &limiters{
			sendIP:      s,
			verifyIP:    v,
			phoneVerify: a,
			close: func() {
				s.Close()
				v.Close()
				a.Close()
			},
		}, nil
	}

	client, err := ratelimit.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	zlog.Info("rate limits backed by redis")

	return &limiters{
		sendIP:      ratelimit.NewRedisLimiter(client, "otp:ip:send", limitWindow, sendIPLimit),
		verifyIP:    ratelimit.NewRedisLimiter(client, "otp:ip:verify", limitWindow, verifyIPLimit),
		phoneSend:   ratelimit.NewRedisLimiter(client, "otp:send", limitWindow, phoneSendLimit),
		phoneVerify: ratelimit.NewRedisLimiter(client, "otp:attempts", auth.VerifyAttemptWindow, auth.VerifyAttemptMax),
		close: func() {
			if err := client.Close(); err != nil {
				zlog.Warn("close redis", zap.Error(err))
			}
		},
	}, nil
}
