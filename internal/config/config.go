// Package config loads monuguard settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"monuguard/internal/detection"
	"monuguard/internal/logger"
	"monuguard/internal/pipeline"
	"monuguard/internal/telegram"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	defaultHTTPEndpoint = "http://localhost:8081"
	defaultGRPCEndpoint = "localhost:50051"
)

// Config holds all runtime settings
type Config struct {
	// Detection sidecar
	DetectorKind     string
	DetectorEndpoint string
	DetectorTimeout  time.Duration
	Model            string

	// Analysis
	Interval    int
	Confidence  float64
	SequenceFPS float64
	LogLevel    string

	// Server
	HTTPAddr        string
	DBPath          string
	UploadDir       string
	MaxUploadMB     int
	AnalysisTimeout time.Duration

	// Auth
	AuthEnabled  bool
	AuthUsername string
	AuthPassword string
	JWTSecret    string
	JWTExpiry    time.Duration

	// Alert notifications
	TelegramEnabled  bool
	TelegramBotToken string
	TelegramChatID   string
	TelegramCooldown time.Duration
}

// Load reads the given env files (".env" when none are named) and then the
// process environment. Missing env files are not an error; malformed values are.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
		logger.Debug("Config", "No .env file found, using environment variables")
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables with defaults.
// Every variable that is set but cannot be parsed is reported, wrapped in
// ErrInvalidConfig.
func FromEnv() (*Config, error) {
	var env envReader
	cfg := &Config{
		DetectorKind:     env.str("MONUGUARD_DETECTOR", detection.KindHTTP),
		DetectorEndpoint: env.str("MONUGUARD_DETECTOR_ENDPOINT", ""),
		DetectorTimeout:  env.duration("MONUGUARD_DETECTOR_TIMEOUT", detection.DefaultTimeout),
		Model:            env.str("MONUGUARD_MODEL", "yolov8n.pt"),

		Interval:    env.int("MONUGUARD_INTERVAL", pipeline.DefaultInterval),
		Confidence:  env.float("MONUGUARD_CONFIDENCE", pipeline.DefaultConfidence),
		SequenceFPS: env.float("MONUGUARD_SEQUENCE_FPS", pipeline.DefaultFPS),
		LogLevel:    env.str("MONUGUARD_LOG_LEVEL", "info"),

		HTTPAddr:        env.str("MONUGUARD_HTTP_ADDR", ":5000"),
		DBPath:          env.str("MONUGUARD_DB_PATH", "monuguard.db"),
		UploadDir:       env.str("MONUGUARD_UPLOAD_DIR", "uploads"),
		MaxUploadMB:     env.int("MONUGUARD_MAX_UPLOAD_MB", 500),
		AnalysisTimeout: env.duration("MONUGUARD_ANALYSIS_TIMEOUT", 5*time.Minute),

		AuthEnabled:  env.bool("AUTH_ENABLED", false),
		AuthUsername: env.str("AUTH_USERNAME", "admin"),
		AuthPassword: env.str("AUTH_PASSWORD", ""),
		JWTSecret:    env.str("JWT_SECRET", ""),
		JWTExpiry:    env.duration("JWT_EXPIRY", 24*time.Hour),

		TelegramEnabled:  env.bool("TELEGRAM_ENABLED", false),
		TelegramBotToken: env.str("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   env.str("TELEGRAM_CHAT_ID", ""),
		TelegramCooldown: env.duration("TELEGRAM_COOLDOWN", telegram.DefaultCooldown),
	}
	if err := env.err(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Endpoint returns the configured detector endpoint, or the default for its kind
func (c *Config) Endpoint() string {
	if c.DetectorEndpoint != "" {
		return c.DetectorEndpoint
	}
	if c.DetectorKind == detection.KindGRPC {
		return defaultGRPCEndpoint
	}
	return defaultHTTPEndpoint
}

// DetectorConfig returns the settings for detection.New
func (c *Config) DetectorConfig() detection.Config {
	return detection.Config{
		Kind:     c.DetectorKind,
		Endpoint: c.Endpoint(),
		Model:    c.Model,
		Timeout:  c.DetectorTimeout,
	}
}

// Options returns the pipeline options for one run
func (c *Config) Options() pipeline.Options {
	return pipeline.Options{
		Interval:   c.Interval,
		Confidence: c.Confidence,
	}
}

// TelegramConfig returns the alert notifier settings
func (c *Config) TelegramConfig() telegram.Config {
	return telegram.Config{
		Enabled:  c.TelegramEnabled,
		BotToken: c.TelegramBotToken,
		ChatID:   c.TelegramChatID,
		Cooldown: c.TelegramCooldown,
	}
}

// Validate checks the settings shared by the CLI and the server
func (c *Config) Validate() error {
	if err := c.Options().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	switch c.DetectorKind {
	case detection.KindHTTP, detection.KindGRPC:
	default:
		return fmt.Errorf("%w: detector must be %q or %q, got %q", ErrInvalidConfig, detection.KindHTTP, detection.KindGRPC, c.DetectorKind)
	}
	if c.SequenceFPS <= 0 {
		return fmt.Errorf("%w: sequence fps must be positive, got %v", ErrInvalidConfig, c.SequenceFPS)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := telegram.ValidateConfig(c.TelegramConfig()); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("%w: max upload size must be positive, got %d", ErrInvalidConfig, c.MaxUploadMB)
	}
	return nil
}

// envReader reads typed variables and remembers every value it rejected
type envReader struct {
	errs []error
}

func (r *envReader) str(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (r *envReader) int(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		r.reject(key, value, "an integer")
		return defaultValue
	}
	return n
}

func (r *envReader) float(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		r.reject(key, value, "a number")
		return defaultValue
	}
	return f
}

func (r *envReader) bool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		r.reject(key, value, "a boolean")
		return defaultValue
	}
	return b
}

func (r *envReader) duration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		r.reject(key, value, "a duration")
		return defaultValue
	}
	return d
}

func (r *envReader) reject(key, value, want string) {
	r.errs = append(r.errs, fmt.Errorf("%s=%q is not %s", key, value, want))
}

func (r *envReader) err() error {
	if len(r.errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(r.errs...))
}
