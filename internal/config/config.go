// Package config loads runtime configuration from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAppName        = "Bazaar"
	defaultAppEnv         = "development"
	defaultPort           = "8080"
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
	defaultShutdownDelay  = 10 * time.Second
	defaultIdempotencyTTL = 24 * time.Hour
	defaultIssuer         = "bazaar"
	defaultAccessTTLMin   = 30
	defaultRefreshTTLDays = 7
	defaultOTPTTLMin      = 5
	defaultOTPRatePerMin  = 5
	defaultPhoneRegion    = "IR"
	defaultDuplicateWin   = 5 * time.Minute
)

// Config captures application runtime configuration. It is built once at
// process start and handed to the components that need it.
type Config struct {
	AppName        string        `mapstructure:"APP_NAME"`
	Env            string        `mapstructure:"APP_ENV"`
	Port           string        `mapstructure:"PORT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
	LogFormat      string        `mapstructure:"LOG_FORMAT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	AutoMigrate    bool          `mapstructure:"AUTO_MIGRATE"`
	ShutdownPeriod time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	IdempotencyTTL time.Duration `mapstructure:"IDEMPOTENCY_TTL"`

	AccessSecret          string `mapstructure:"JWT_ACCESS_SECRET"`
	RefreshSecret         string `mapstructure:"JWT_REFRESH_SECRET"`
	Issuer                string `mapstructure:"JWT_ISSUER"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	RefreshTokenTTLDays   int    `mapstructure:"REFRESH_TOKEN_TTL_DAYS"`

	OTPTTLMinutes    int    `mapstructure:"OTP_TTL_MINUTES"`
	OTPRatePerMinute int    `mapstructure:"OTP_RATE_LIMIT_PER_MINUTE"`
	OTPHashCost      int    `mapstructure:"OTP_HASH_COST"`
	PhoneRegion      string `mapstructure:"PHONE_DEFAULT_REGION"`

	DuplicateWindow      time.Duration `mapstructure:"WALLET_DUPLICATE_WINDOW"`
	SessionSweepInterval time.Duration `mapstructure:"SESSION_SWEEP_INTERVAL"`
}

// Load reads .env (if present) and the process environment, applies defaults
// and validates the result. Environment variables override .env values.
func Load() (Config, error) {
	cfg, err := read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOperator reads the same sources as Load for offline operator tasks.
// Those tasks never mint tokens, so the JWT settings are not validated.
func LoadOperator() (Config, error) {
	return read()
}

func read() (Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil && !missingConfig(err) {
		return Config{}, fmt.Errorf("config: read .env: %w", err)
	}

	v.AutomaticEnv()

	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", defaultPort)
	v.SetDefault("LOG_LEVEL", defaultLogLevel)
	v.SetDefault("LOG_FORMAT", defaultLogFormat)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("AUTO_MIGRATE", false)
	v.SetDefault("SHUTDOWN_TIMEOUT", defaultShutdownDelay)
	v.SetDefault("IDEMPOTENCY_TTL", defaultIdempotencyTTL)
	v.SetDefault("JWT_ACCESS_SECRET", "")
	v.SetDefault("JWT_REFRESH_SECRET", "")
	v.SetDefault("JWT_ISSUER", defaultIssuer)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", defaultAccessTTLMin)
	v.SetDefault("REFRESH_TOKEN_TTL_DAYS", defaultRefreshTTLDays)
	v.SetDefault("OTP_TTL_MINUTES", defaultOTPTTLMin)
	v.SetDefault("OTP_RATE_LIMIT_PER_MINUTE", defaultOTPRatePerMin)
	v.SetDefault("OTP_HASH_COST", bcrypt.DefaultCost)
	v.SetDefault("PHONE_DEFAULT_REGION", defaultPhoneRegion)
	v.SetDefault("WALLET_DUPLICATE_WINDOW", defaultDuplicateWin)
	v.SetDefault("SESSION_SWEEP_INTERVAL", time.Duration(0))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.PhoneRegion = strings.ToUpper(cfg.PhoneRegion)
	return cfg, nil
}

func missingConfig(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

// Validate checks invariants that the rest of the service relies on.
func (c Config) Validate() error {
	if c.AccessSecret == "" || c.RefreshSecret == "" {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must be set")
	}
	if c.AccessSecret == c.RefreshSecret {
		return errors.New("config: JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if c.AccessTokenTTLMinutes <= 0 {
		return errors.New("config: ACCESS_TOKEN_TTL_MINUTES must be positive")
	}
	if c.RefreshTokenTTLDays <= 0 {
		return errors.New("config: REFRESH_TOKEN_TTL_DAYS must be positive")
	}
	if c.OTPTTLMinutes <= 0 {
		return errors.New("config: OTP_TTL_MINUTES must be positive")
	}
	if c.OTPHashCost < bcrypt.MinCost || c.OTPHashCost > bcrypt.MaxCost {
		return fmt.Errorf("config: OTP_HASH_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	if c.DuplicateWindow < 0 {
		return errors.New("config: WALLET_DUPLICATE_WINDOW must not be negative")
	}
	if !c.IsDev() {
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: DATABASE_URL must be set when APP_ENV=%s", c.Env)
		}
		if c.RedisURL == "" {
			return fmt.Errorf("config: REDIS_URL must be set when APP_ENV=%s", c.Env)
		}
	}
	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service may fall back to in-memory backends.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// AccessTokenTTL is the lifetime of access tokens.
func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

// RefreshTokenTTL is the lifetime of refresh tokens and therefore of sessions.
func (c Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLDays) * 24 * time.Hour
}

// OTPTTL is how long an issued one-time code stays valid.
func (c Config) OTPTTL() time.Duration {
	return time.Duration(c.OTPTTLMinutes) * time.Minute
}
