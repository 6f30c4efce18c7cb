package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSecret string        `mapstructure:"JWT_SECRET"`
	JWTIssuer string        `mapstructure:"JWT_ISSUER"`
	JWTTTL    time.Duration `mapstructure:"JWT_TTL"`

	RateLimitRPS   float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	BodyLimit      string        `mapstructure:"BODY_LIMIT"`
	UploadLimit    string        `mapstructure:"UPLOAD_LIMIT"`

	// Archive client tuning.
	ArchiveTimeout        time.Duration `mapstructure:"ARCHIVE_TIMEOUT"`
	ArchiveMaxConcurrency int           `mapstructure:"ARCHIVE_MAX_CONCURRENCY"`
	ArchiveMaxIdleConns   int           `mapstructure:"ARCHIVE_MAX_IDLE_CONNS"`
	// ArchivesFile, when set, replaces the database hospital directory
	// with a static YAML file.
	ArchivesFile string `mapstructure:"ARCHIVES_FILE"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	MailFrom     string `mapstructure:"MAIL_FROM"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "CORS_ORIGINS",
	"JWT_SECRET", "JWT_ISSUER", "JWT_TTL",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "BODY_LIMIT", "UPLOAD_LIMIT",
	"ARCHIVE_TIMEOUT", "ARCHIVE_MAX_CONCURRENCY", "ARCHIVE_MAX_IDLE_CONNS", "ARCHIVES_FILE",
	"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD", "MAIL_FROM",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_ISSUER", "medcenter")
	v.SetDefault("JWT_TTL", "1h")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)
	v.SetDefault("REQUEST_TIMEOUT", "60s")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_LIMIT", "256M")
	v.SetDefault("ARCHIVE_TIMEOUT", "10s")
	v.SetDefault("ARCHIVE_MAX_CONCURRENCY", 16)
	v.SetDefault("ARCHIVE_MAX_IDLE_CONNS", 16)
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM", "no-reply@medcenter.local")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	for i, o := range cfg.CORSOrigins {
		cfg.CORSOrigins[i] = strings.TrimSpace(o)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// SMTPEnabled reports whether outgoing mail goes to a real SMTP relay.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != ""
}

// Validate checks that the configuration is safe to run. Outside
// development a JWT secret of at least 32 bytes is required, because the
// development auth bypass is disabled and tokens must be verifiable.
func (c *Config) Validate() error {
	if !c.IsDev() {
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET must be set when ENV=%q", c.Env)
		}
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
		}
	}
	if c.JWTTTL <= 0 {
		return fmt.Errorf("JWT_TTL must be positive, got %s", c.JWTTTL)
	}
	if c.ArchiveTimeout <= 0 {
		return fmt.Errorf("ARCHIVE_TIMEOUT must be positive, got %s", c.ArchiveTimeout)
	}
	if c.ArchiveMaxConcurrency == 0 || c.ArchiveMaxConcurrency < -1 {
		return fmt.Errorf("ARCHIVE_MAX_CONCURRENCY must be positive or -1 for unbounded, got %d", c.ArchiveMaxConcurrency)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		// A zero-size bucket rejects every request.
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1 when RATE_LIMIT_RPS is set, got %d", c.RateLimitBurst)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.SMTPEnabled() && c.MailFrom == "" {
		return fmt.Errorf("MAIL_FROM is required when SMTP_HOST is set")
	}
	return nil
}
