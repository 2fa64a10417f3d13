// Package config reads server settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/pkg/errors"
)

type Config struct {
	Host           string   `env:"HOST" env-default:"0.0.0.0"`
	Port           string   `env:"PORT" env-default:"8080"`
	DataDir        string   `env:"DATA_DIR" env-default:"./data"`
	StoreBackend   string   `env:"STORE_BACKEND" env-default:"json"`
	DatabaseURL    string   `env:"DATABASE_URL"`
	StorageQuota   int64    `env:"STORAGE_QUOTA_BYTES" env-default:"5242880"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" env-default:"*" env-separator:","`
	LogFormat      string   `env:"LOG_FORMAT" env-default:"text"`
	LogLevel       string   `env:"LOG_LEVEL" env-default:"info"`

	Admin    AdminConfig
	Images   ImagesConfig
	Email    EmailConfig
	Telegram TelegramConfig
	Payment  PaymentConfig
}

type AdminConfig struct {
	Username     string        `env:"ADMIN_USERNAME" env-default:"admin"`
	PasswordHash string        `env:"ADMIN_PASSWORD_HASH"`
	TokenSecret  string        `env:"ADMIN_TOKEN_SECRET"`
	TokenTTL     time.Duration `env:"ADMIN_TOKEN_TTL" env-default:"12h"`
}

type ImagesConfig struct {
	// Storage is inline (data URIs), memory (served from /blobs) or s3.
	Storage string `env:"IMAGE_STORAGE" env-default:"inline"`
	S3      S3Config
}

type S3Config struct {
	Endpoint        string `env:"AWS_S3_ENDPOINT"`
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	Bucket          string `env:"AWS_S3_BUCKET"`
	Region          string `env:"AWS_S3_REGION" env-default:"eu-west-2"`
	UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	PublicBaseURL   string `env:"AWS_S3_PUBLIC_URL"`
}

type EmailConfig struct {
	RelayURL        string `env:"EMAIL_RELAY_URL"`
	ServiceID       string `env:"EMAIL_SERVICE_ID"`
	UserID          string `env:"EMAIL_USER_ID"`
	OrderTemplate   string `env:"EMAIL_ORDER_TEMPLATE" env-default:"template_order"`
	BookingTemplate string `env:"EMAIL_BOOKING_TEMPLATE" env-default:"template_booking"`
	RestaurantEmail string `env:"RESTAURANT_EMAIL" env-default:"hello@chuchostacos.co.uk"`
}

type TelegramConfig struct {
	Token  string `env:"TELEGRAM_BOT_TOKEN"`
	ChatID int64  `env:"TELEGRAM_CHAT_ID"`
}

type PaymentConfig struct {
	APIBaseURL string `env:"PAYMENT_API_URL"`
	PublicKey  string `env:"PAYMENT_PUBLIC_KEY"`
}

// Load reads envFile when it exists, then the process environment. Variables
// already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "could not read %s", envFile)
		}
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "could not read configuration")
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StoreBackend {
	case "json", "sqlite", "memory":
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("STORE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return errors.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.Images.Storage {
	case "inline", "memory":
	case "s3":
		if c.Images.S3.Bucket == "" {
			return errors.New("IMAGE_STORAGE=s3 requires AWS_S3_BUCKET")
		}
	default:
		return errors.Errorf("unknown IMAGE_STORAGE %q", c.Images.Storage)
	}
	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		return errors.New("TELEGRAM_BOT_TOKEN requires TELEGRAM_CHAT_ID")
	}
	return nil
}

func (c Config) Addr() string { return fmt.Sprintf("%s:%s", c.Host, c.Port) }

// Origins trims the configured CORS origins.
func (c Config) Origins() []string {
	out := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// NewLogger returns a JSON logger for format "json" and a colored console
// logger otherwise.
func NewLogger(w io.Writer, format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
		NoColor:    w != os.Stderr && w != os.Stdout,
	}))
}
