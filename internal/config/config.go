package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`
	DBDSN         string `mapstructure:"DB_DSN"`
	Environment   string `mapstructure:"ENV"`
	Storage       string `mapstructure:"STORAGE"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	SlotGranularity    time.Duration `mapstructure:"SLOT_GRANULARITY_MINUTES"`
	ReservationTimeout time.Duration `mapstructure:"RESERVATION_TIMEOUT"`
	ReservationWait    time.Duration `mapstructure:"RESERVATION_WAIT"`
	SyncInterval       time.Duration `mapstructure:"SYNC_INTERVAL"`
	SyncConcurrency    int           `mapstructure:"SYNC_CONCURRENCY"`

	GoogleCredentialsFile string `mapstructure:"GOOGLE_CREDENTIALS_FILE"`

	Defaults PolicyDefaults
}

// PolicyDefaults политика провайдера, который ещё не сохранил свой шаблон
type PolicyDefaults struct {
	Timezone             string `mapstructure:"DEFAULT_TIMEZONE"`
	BufferMinutes        int    `mapstructure:"DEFAULT_BUFFER_MINUTES"`
	MaxDailyAppointments int    `mapstructure:"DEFAULT_MAX_DAILY"`
	AdvanceBookingDays   int    `mapstructure:"DEFAULT_ADVANCE_DAYS"`
	MinNoticeHours       int    `mapstructure:"DEFAULT_MIN_NOTICE_HOURS"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	} else {
		log.Println("Loaded configuration from .env file")
	}

	p := &parser{}

	cfg := &Config{
		DBDSN:                 os.Getenv("DB_DSN"),
		TelegramToken:         os.Getenv("TELEGRAM_TOKEN"),
		Environment:           stringOr("ENV", "development"),
		Storage:               stringOr("STORAGE", StoragePostgres),
		MigrationsDir:         stringOr("MIGRATIONS_DIR", "migrations"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               p.getInt("REDIS_DB", 0),
		SlotGranularity:       time.Duration(p.getInt("SLOT_GRANULARITY_MINUTES", 15)) * time.Minute,
		ReservationTimeout:    p.getDuration("RESERVATION_TIMEOUT", 5*time.Second),
		ReservationWait:       p.getDuration("RESERVATION_WAIT", 10*time.Second),
		SyncInterval:          p.getDuration("SYNC_INTERVAL", 5*time.Minute),
		SyncConcurrency:       p.getInt("SYNC_CONCURRENCY", 4),
		GoogleCredentialsFile: os.Getenv("GOOGLE_CREDENTIALS_FILE"),
		Defaults: PolicyDefaults{
			Timezone:             stringOr("DEFAULT_TIMEZONE", "UTC"),
			BufferMinutes:        p.getInt("DEFAULT_BUFFER_MINUTES", 0),
			MaxDailyAppointments: p.getInt("DEFAULT_MAX_DAILY", 8),
			AdvanceBookingDays:   p.getInt("DEFAULT_ADVANCE_DAYS", 60),
			MinNoticeHours:       p.getInt("DEFAULT_MIN_NOTICE_HOURS", 24),
		},
	}

	if p.err != nil {
		return nil, p.err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Printf("Config loaded (storage=%s, env=%s)\n", cfg.Storage, cfg.Environment)

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		// Проверяем обязательные поля
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required but not set")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StoragePostgres, StorageMemory, c.Storage)
	}

	if c.SlotGranularity <= 0 {
		return fmt.Errorf("SLOT_GRANULARITY_MINUTES must be positive")
	}
	if c.ReservationTimeout <= 0 || c.ReservationWait <= 0 {
		return fmt.Errorf("RESERVATION_TIMEOUT and RESERVATION_WAIT must be positive")
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("SYNC_INTERVAL must be positive")
	}
	if c.SyncConcurrency <= 0 {
		return fmt.Errorf("SYNC_CONCURRENCY must be positive")
	}
	if _, err := time.LoadLocation(c.Defaults.Timezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}

	return nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

func stringOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser запоминает первую ошибку разбора
type parser struct {
	err error
}

func (p *parser) getInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}

func (p *parser) getDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil && p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
	return v
}
