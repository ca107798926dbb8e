package config

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v6"

	"github.com/luchan-pos/avocado-bonus/internal/model"
)

type Config struct {
	RunAddr        string        `env:"RUN_ADDRESS"     envDefault:"localhost:8080"`
	DatabaseURI    string        `env:"DATABASE_URI"    envDefault:""`
	RedisURI       string        `env:"REDIS_URI"       envDefault:""`
	SecretKey      string        `env:"SECRET_KEY"      envDefault:""`
	LogLevel       string        `env:"LOG_LEVEL"       envDefault:"info"`
	BonusTTL       time.Duration `env:"BONUS_TTL"       envDefault:"8760h"`
	ExpiryInterval time.Duration `env:"EXPIRY_INTERVAL" envDefault:"24h"`
	UsePagination  bool          `env:"USE_PAGINATION"  envDefault:"false"`
}

type Builder struct {
	cfg *Config
	log *slog.Logger
}

func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{
		cfg: &Config{},
		log: log,
	}
}

func (b *Builder) FromEnv() *Builder {
	if err := env.Parse(b.cfg); err != nil {
		b.log.LogAttrs(context.Background(),
			slog.LevelError, "Failed to parse config", slog.Any(model.KeyLoggerError, err))
	}
	return b
}

func (b *Builder) FromFlags() *Builder {
	flag.StringVar(&b.cfg.RunAddr, "a", b.cfg.RunAddr, "Run address")
	flag.StringVar(&b.cfg.DatabaseURI, "d", b.cfg.DatabaseURI, "Database URI")
	flag.StringVar(&b.cfg.RedisURI, "r", b.cfg.RedisURI, "Redis URI")
	flag.StringVar(&b.cfg.SecretKey, "k", b.cfg.SecretKey, "Secret key")
	flag.StringVar(&b.cfg.LogLevel, "l", b.cfg.LogLevel, "Log level")
	flag.DurationVar(&b.cfg.BonusTTL, "t", b.cfg.BonusTTL, "Bonus points TTL")
	flag.DurationVar(&b.cfg.ExpiryInterval, "i", b.cfg.ExpiryInterval,
		"Expiry sweep interval")
	flag.BoolVar(&b.cfg.UsePagination, "p", b.cfg.UsePagination, "Use pagination")

	flag.Parse()
	return b
}

func (b *Builder) GetConfig() *Config {
	return b.cfg
}
