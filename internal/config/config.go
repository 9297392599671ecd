// File: internal/config/config.go
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvFast    = "fast"
	EnvRelease = "release"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	ListenAddr     string        `yaml:"listen_addr"`
	OperatorToken  string        `yaml:"operator_token"`
	JWTSecret      string        `yaml:"jwt_secret"`
	WebhookSecret  string        `yaml:"webhook_secret"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type GitHubConfig struct {
	AppID          int64  `yaml:"app_id"`
	InstallationID int64  `yaml:"installation_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	APIBase        string `yaml:"api_base"`
	IntakeLabel    string `yaml:"intake_label"` // webhook label that triggers intake
}

type AIConfig struct {
	Provider        string `yaml:"provider"` // openai | gemini (release mode)
	OpenAIKey       string `yaml:"openai_key"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	GeminiKey       string `yaml:"gemini_key"`
	ConcurrentLimit int    `yaml:"concurrent_limit"` // max concurrent model calls
}

type TelegramConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Token          string `yaml:"token"`
	OperatorChatID int64  `yaml:"operator_chat_id"`
}

type QueueConfig struct {
	MaxParallel  int             `yaml:"max_parallel"`
	RetryMax     int             `yaml:"retry_max"` // retries after the first try
	RetryBackoff []time.Duration `yaml:"retry_backoff"`
	JobTimeout   time.Duration   `yaml:"job_timeout"`
	PollInterval time.Duration   `yaml:"poll_interval"`
	// StaleAfter is how long a running job may go without a heartbeat before
	// the reaper assumes its worker died and requeues it.
	StaleAfter time.Duration `yaml:"stale_after"`
}

type JobCapsConfig struct {
	MaxUSD        float64 `yaml:"max_usd"`
	MaxMinutes    int     `yaml:"max_minutes"`
	MaxIterations int     `yaml:"max_iterations"`
}

type CapsConfig struct {
	Job        JobCapsConfig `yaml:"job"`
	DailyUSD   float64       `yaml:"daily_usd"`
	MonthlyUSD float64       `yaml:"monthly_usd"`
}

type ApprovalConfig struct {
	// Timeout fails jobs stuck in awaiting_approval. Zero disables the check.
	Timeout time.Duration `yaml:"timeout"`
}

type IncidentConfig struct {
	Window    time.Duration `yaml:"window"`
	Threshold int           `yaml:"threshold"`
}

type IntakeConfig struct {
	RateLimit  int           `yaml:"rate_limit"` // webhook intakes per repo per window
	RateWindow time.Duration `yaml:"rate_window"`
}

type PolicyConfig struct {
	Path string `yaml:"path"`
}

type ReposConfig struct {
	Path string `yaml:"path"`
}

type ArtifactsConfig struct {
	Root string `yaml:"root"`
}

type Config struct {
	Env       string          `yaml:"env"` // fast | release
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	GitHub    GitHubConfig    `yaml:"github"`
	AI        AIConfig        `yaml:"ai"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Queue     QueueConfig     `yaml:"queue"`
	Caps      CapsConfig      `yaml:"caps"`
	Approval  ApprovalConfig  `yaml:"approval"`
	Incident  IncidentConfig  `yaml:"incident"`
	Intake    IntakeConfig    `yaml:"intake"`
	Policy    PolicyConfig    `yaml:"policy"`
	Repos     ReposConfig     `yaml:"repos"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	Runtime RuntimeConfig `yaml:"-"`
}

// ReleaseMode reports whether external writes (GitHub issues, PRs, real model
// calls) are permitted. Everything else is fast mode.
func (c *Config) ReleaseMode() bool { return c.Env == EnvRelease }

func LoadConfig() (*Config, error) {
	var configPath string = ""
	var dev bool
	flag.StringVar(&configPath, "config", "config.yaml", "path to config yaml")
	flag.BoolVar(&dev, "dev", false, "development mode")
	flag.Parse()

	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	cfg.Runtime.Dev = dev
	return cfg, nil
}

// Parse decodes and validates a config document. Split out of LoadConfig so
// tests can feed yaml without touching flags or the filesystem.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Env == "" {
		cfg.Env = EnvFast
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = 30 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 5
	}
	if cfg.GitHub.APIBase == "" {
		cfg.GitHub.APIBase = "https://api.github.com"
	}
	if cfg.GitHub.IntakeLabel == "" {
		cfg.GitHub.IntakeLabel = "agent-ready"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.ConcurrentLimit <= 0 {
		cfg.AI.ConcurrentLimit = 4
	}
	if cfg.Queue.MaxParallel <= 0 {
		cfg.Queue.MaxParallel = 1
	}
	// retry_max: -1 disables retries, 0 means unset
	if cfg.Queue.RetryMax < 0 {
		cfg.Queue.RetryMax = 0
	} else if cfg.Queue.RetryMax == 0 {
		cfg.Queue.RetryMax = 2
	}
	if len(cfg.Queue.RetryBackoff) == 0 {
		cfg.Queue.RetryBackoff = []time.Duration{30 * time.Second, 120 * time.Second}
	}
	if cfg.Queue.JobTimeout <= 0 {
		cfg.Queue.JobTimeout = 3600 * time.Second
	}
	if cfg.Queue.PollInterval <= 0 {
		cfg.Queue.PollInterval = 2 * time.Second
	}
	if cfg.Queue.StaleAfter <= 0 {
		cfg.Queue.StaleAfter = 10 * time.Minute
	}
	if cfg.Caps.Job.MaxUSD <= 0 {
		cfg.Caps.Job.MaxUSD = 3.0
	}
	if cfg.Caps.Job.MaxMinutes <= 0 {
		cfg.Caps.Job.MaxMinutes = 45
	}
	if cfg.Caps.Job.MaxIterations <= 0 {
		cfg.Caps.Job.MaxIterations = 8
	}
	if cfg.Caps.DailyUSD <= 0 {
		cfg.Caps.DailyUSD = 40.0
	}
	if cfg.Caps.MonthlyUSD <= 0 {
		cfg.Caps.MonthlyUSD = 900.0
	}
	if cfg.Incident.Window <= 0 {
		cfg.Incident.Window = 30 * time.Minute
	}
	if cfg.Incident.Threshold <= 0 {
		cfg.Incident.Threshold = 3
	}
	if cfg.Intake.RateLimit <= 0 {
		cfg.Intake.RateLimit = 10
	}
	if cfg.Intake.RateWindow <= 0 {
		cfg.Intake.RateWindow = time.Minute
	}
	if cfg.Artifacts.Root == "" {
		cfg.Artifacts.Root = "./artifacts"
	}
}

func validate(cfg *Config) error {
	if cfg.Env != EnvFast && cfg.Env != EnvRelease {
		return fmt.Errorf("env must be %q or %q, got %q", EnvFast, EnvRelease, cfg.Env)
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if cfg.ReleaseMode() {
		if cfg.GitHub.AppID == 0 || cfg.GitHub.InstallationID == 0 || cfg.GitHub.PrivateKeyPath == "" {
			return errors.New("release mode requires github.app_id, github.installation_id and github.private_key_path")
		}
	}
	return nil
}
