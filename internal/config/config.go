// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type BotConfig struct {
	Token    string `yaml:"token"`
	Username string `yaml:"username"`
	Workers  int    `yaml:"workers"` // polling workers
	AdminID  int64  `yaml:"admin_id"`
	GroupID  int64  `yaml:"group_id"` // gated group chat id
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	StateTTL time.Duration `yaml:"state_ttl"`
}

type MpesaConfig struct {
	BaseURL           string `yaml:"base_url"`
	ConsumerKey       string `yaml:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret"`
	BusinessShortCode string `yaml:"business_short_code"`
	PassKey           string `yaml:"pass_key"`
	CallbackURL       string `yaml:"callback_url"`
}

type PricingConfig struct {
	Short  float64 `yaml:"short"`
	Medium float64 `yaml:"medium"`
	Long   float64 `yaml:"long"`
}

type WebConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type SchedulerConfig struct {
	ExpirySweep       time.Duration `yaml:"expiry_sweep"`
	PendingReconcile  time.Duration `yaml:"pending_reconcile"`
	StaleCleanup      time.Duration `yaml:"stale_cleanup"`
	ExpiryNotice      time.Duration `yaml:"expiry_notice"`
	GroupJobDrain     time.Duration `yaml:"group_job_drain"`
	NoticeWindowHours int           `yaml:"notice_window_hours"`
}

type Config struct {
	Bot       BotConfig       `yaml:"bot"`
	Log       LogConfig       `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Mpesa     MpesaConfig     `yaml:"mpesa"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Web       WebConfig       `yaml:"web"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path and applies env overrides for
// secrets. A .env file next to the binary is loaded first when present.
func LoadConfig(path string, dev bool) (*Config, error) {
	_ = godotenv.Load() // optional; real env always wins

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Runtime.Dev = dev
	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Bot.Token = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("MPESA_CONSUMER_KEY"); v != "" {
		cfg.Mpesa.ConsumerKey = v
	}
	if v := os.Getenv("MPESA_CONSUMER_SECRET"); v != "" {
		cfg.Mpesa.ConsumerSecret = v
	}
	if v := os.Getenv("MPESA_PASS_KEY"); v != "" {
		cfg.Mpesa.PassKey = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		cfg.Web.JWTSecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Workers <= 0 {
		cfg.Bot.Workers = 8
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Mpesa.BaseURL == "" {
		cfg.Mpesa.BaseURL = "https://sandbox.safaricom.co.ke"
	}
	if cfg.Redis.StateTTL <= 0 {
		cfg.Redis.StateTTL = 15 * time.Minute
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8080
	}
	s := &cfg.Scheduler
	if s.ExpirySweep <= 0 {
		s.ExpirySweep = 10 * time.Minute
	}
	if s.PendingReconcile <= 0 {
		s.PendingReconcile = 2 * time.Minute
	}
	if s.StaleCleanup <= 0 {
		s.StaleCleanup = 2 * time.Hour
	}
	if s.ExpiryNotice <= 0 {
		s.ExpiryNotice = time.Hour
	}
	if s.GroupJobDrain <= 0 {
		s.GroupJobDrain = time.Minute
	}
	if s.NoticeWindowHours <= 0 {
		s.NoticeWindowHours = 24
	}
}

func validate(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return errors.New("bot.token is required")
	}
	if cfg.Bot.GroupID == 0 {
		return errors.New("bot.group_id is required")
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Mpesa.ConsumerKey == "" || cfg.Mpesa.ConsumerSecret == "" {
		return errors.New("mpesa credentials are required")
	}
	if cfg.Mpesa.BusinessShortCode == "" || cfg.Mpesa.PassKey == "" {
		return errors.New("mpesa.business_short_code and mpesa.pass_key are required")
	}
	if cfg.Mpesa.CallbackURL == "" {
		return errors.New("mpesa.callback_url is required")
	}
	if cfg.Pricing.Short <= 0 || cfg.Pricing.Medium <= 0 || cfg.Pricing.Long <= 0 {
		return errors.New("pricing for all package tiers must be positive")
	}
	return nil
}
