package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr              string        `env:"APP_ADDR" envDefault:":8080"`
	DBPath            string        `env:"APP_DB_PATH" envDefault:"./data/vitals.db"`
	LogLevel          string        `env:"APP_LOG_LEVEL" envDefault:"info"`
	InstanceID        string        `env:"APP_INSTANCE_ID"`
	SampleInterval    time.Duration `env:"APP_SAMPLE_INTERVAL" envDefault:"5s"`
	SampleOnStart     bool          `env:"APP_SAMPLE_ON_START" envDefault:"true"`
	TopProcessLimit   int           `env:"APP_TOP_PROCESS_LIMIT" envDefault:"5"`
	DiskPath          string        `env:"APP_DISK_PATH" envDefault:"/"`
	RetentionDays     int           `env:"APP_RETENTION_DAYS" envDefault:"30"`
	RetentionSchedule string        `env:"APP_RETENTION_SCHEDULE" envDefault:"0 3 * * *"`
	ShutdownTimeout   time.Duration `env:"APP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	CORSOrigins       []string      `env:"APP_CORS_ORIGINS" envDefault:"*"`
	TelegramBotToken  string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID    string        `env:"TELEGRAM_CHAT_ID"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SampleInterval <= 0 {
		return Config{}, fmt.Errorf("APP_SAMPLE_INTERVAL must be positive, got %s", cfg.SampleInterval)
	}
	if cfg.TopProcessLimit <= 0 {
		return Config{}, fmt.Errorf("APP_TOP_PROCESS_LIMIT must be positive, got %d", cfg.TopProcessLimit)
	}
	if cfg.RetentionDays <= 0 {
		return Config{}, fmt.Errorf("APP_RETENTION_DAYS must be positive, got %d", cfg.RetentionDays)
	}
	return cfg, nil
}
