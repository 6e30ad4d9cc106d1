package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

const (
	defaultPort           = "5001"
	defaultCountryCode    = "+91"
	defaultTokenTTL       = 1000 * time.Hour
	defaultDBTimeout      = 5 * time.Second
	defaultSMSTimeout     = 10 * time.Second
	defaultTwilioBaseURL  = "https://api.twilio.com"
	defaultLogLevel       = "info"
	productionEnvironment = "production"
)

// Config holds the application configuration
type Config struct {
	DatabaseURL string
	Port        string
	JWTSecret   string
	TokenTTL    time.Duration

	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string
	TwilioBaseURL     string

	DefaultCountryCode string
	OTPSingleUse       bool

	RedisURL string

	DBTimeout  time.Duration
	SMSTimeout time.Duration

	CORSAllowedOrigins []string

	LogLevel string
	AppEnv   string
	DevMode  bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:               defaultPort,
		TokenTTL:           defaultTokenTTL,
		TwilioBaseURL:      defaultTwilioBaseURL,
		DefaultCountryCode: defaultCountryCode,
		OTPSingleUse:       true,
		DBTimeout:          defaultDBTimeout,
		SMSTimeout:         defaultSMSTimeout,
		CORSAllowedOrigins: []string{"*"},
		LogLevel:           defaultLogLevel,
	}

	// DATABASE_URL (required)
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if _, err := url.Parse(databaseURL); err != nil {
		return nil, fmt.Errorf("DATABASE_URL is not a valid URL: %w", err)
	}
	cfg.DatabaseURL = databaseURL

	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// JWT_SECRET_KEY (required); JWT_SECRET is accepted as a fallback name
	jwtSecret := os.Getenv("JWT_SECRET_KEY")
	if jwtSecret == "" {
		jwtSecret = os.Getenv("JWT_SECRET")
	}
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is required")
	}
	cfg.JWTSecret = jwtSecret

	cfg.AppEnv = strings.ToLower(os.Getenv("APP_ENV"))
	cfg.DevMode = os.Getenv("DEV_MODE") == "true"
	if cfg.DevMode && cfg.AppEnv == productionEnvironment {
		return nil, fmt.Errorf("DEV_MODE must not be true when APP_ENV=production")
	}

	cfg.TwilioAccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.TwilioAuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.TwilioPhoneNumber = os.Getenv("TWILIO_PHONE_NUMBER")
	if base := os.Getenv("TWILIO_BASE_URL"); base != "" {
		cfg.TwilioBaseURL = strings.TrimRight(base, "/")
	}
	if !cfg.DevMode {
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioPhoneNumber == "" {
			return nil, fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER are required unless DEV_MODE=true")
		}
	}

	if cc := strings.TrimSpace(os.Getenv("DEFAULT_COUNTRY_CODE")); cc != "" {
		if !strings.HasPrefix(cc, "+") {
			cc = "+" + cc
		}
		cfg.DefaultCountryCode = cc
	}

	if v := os.Getenv("OTP_SINGLE_USE"); v != "" {
		cfg.OTPSingleUse = v != "false"
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")

	var err error
	if cfg.TokenTTL, err = durationEnv("TOKEN_TTL", cfg.TokenTTL); err != nil {
		return nil, err
	}
	if cfg.DBTimeout, err = durationEnv("DB_TIMEOUT", cfg.DBTimeout); err != nil {
		return nil, err
	}
	if cfg.SMSTimeout, err = durationEnv("SMS_TIMEOUT", cfg.SMSTimeout); err != nil {
		return nil, err
	}

	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		cfg.CORSAllowedOrigins = splitList(origins)
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs with APP_ENV=production
func (c *Config) IsProduction() bool {
	return c.AppEnv == productionEnvironment
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration (e.g. 5s, 1000h): %q", key, raw)
	}
	return d, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
