package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the top-level configuration for the advisor.
type Config struct {
	MarketDataConfig   MarketDataConfig   `json:"market_data"`
	PolicyConfig       PolicyConfig       `json:"policy"`
	ScanConfig         ScanConfig         `json:"scan"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	NotificationConfig NotificationConfig `json:"notification"`
	ServerConfig       ServerConfig       `json:"server"`
	VaultConfig        VaultConfig        `json:"vault"`
	LoggingConfig      LoggingConfig      `json:"logging"`
}

// MarketDataConfig holds provider settings for the market data gateway.
type MarketDataConfig struct {
	FinnhubAPIKey   string        `json:"finnhub_api_key"`
	FinnhubBaseURL  string        `json:"finnhub_base_url"`
	CallTimeout     time.Duration `json:"call_timeout"`
	MarketHoursTTL  time.Duration `json:"market_hours_ttl"`
	OffHoursTTL     time.Duration `json:"off_hours_ttl"`
	BreakerFailures uint32        `json:"breaker_failures"`
	BreakerCooldown time.Duration `json:"breaker_cooldown"`
}

// PolicyConfig holds the tunable knobs of the recommendation policy.
// Defaults match the documented policy; they rarely need changing.
type PolicyConfig struct {
	WeeklyDeltaTarget     float64 `json:"weekly_delta_target"`      // 0.10 = Delta-10 for income rolls
	EscapeDeltaTarget     float64 `json:"escape_delta_target"`      // 0.30 = Delta-30 for escapes
	MaxWeeksOut           int     `json:"max_weeks_out"`            // zero-cost search horizon
	PullBackCostFraction  float64 `json:"pull_back_cost_fraction"`  // fraction of original premium
	CompressITMMaxPercent float64 `json:"compress_itm_max_percent"` // slight-ITM band for compress
	CompressSameStrikeMax float64 `json:"compress_same_strike_max"` // per-share debit cap
	CompressMoveOTMMax    float64 `json:"compress_move_otm_max"`    // per-share debit cap
	ProfitCapturedMin     float64 `json:"profit_captured_min"`      // percent, weekly/compress gate
	NearITMWarnPercent    float64 `json:"near_itm_warn_percent"`    // distance-to-strike warning band
	NearITMWarnDays       int     `json:"near_itm_warn_days"`
	FarDatedDays          int     `json:"far_dated_days"` // beyond this, be patient
}

// ScanConfig configures the daily scan schedule and dedup behavior.
type ScanConfig struct {
	Enabled          bool          `json:"enabled"`
	Timezone         string        `json:"timezone"`
	MorningTime      string        `json:"morning_time"`
	PostOpenTime     string        `json:"post_open_time"`
	MiddayTime       string        `json:"midday_time"`
	PreCloseTime     string        `json:"pre_close_time"`
	EveningTime      string        `json:"evening_time"`
	WorkerCount      int           `json:"worker_count"`
	PositionTimeout  time.Duration `json:"position_timeout"`
	DeeperITMTrigger float64       `json:"deeper_itm_trigger"` // percentage points
	SkipWeekends     bool          `json:"skip_weekends"`
	PositionsFile    string        `json:"positions_file"` // snapshot feed path
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis connection settings for the scan-state store.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// NotificationConfig holds notification provider settings.
type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   string `json:"chat_id"`
}

// DiscordConfig holds Discord webhook settings.
type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`
	WriteTimeout    int    `json:"write_timeout"`
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// VaultConfig holds optional HashiCorp Vault settings for secrets.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	SecretPath string `json:"secret_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `json:"level"`   // debug, info, warn, error
	Console bool   `json:"console"` // pretty console output instead of JSON
}

// Load reads config.json (if present), then applies environment overrides.
// A .env file in the working directory is loaded first so local development
// does not need exported variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Credentials always come from the environment (or Vault) so they never
// have to live in config.json.
func applyEnvOverrides(cfg *Config) {
	cfg.MarketDataConfig.FinnhubAPIKey = getEnvOrDefault("FINNHUB_API_KEY", cfg.MarketDataConfig.FinnhubAPIKey)
	cfg.MarketDataConfig.FinnhubBaseURL = getEnvOrDefault("FINNHUB_BASE_URL", cfg.MarketDataConfig.FinnhubBaseURL)

	cfg.ScanConfig.Enabled = getEnvOrDefault("SCAN_ENABLED", "true") == "true"
	cfg.ScanConfig.Timezone = getEnvOrDefault("SCAN_TIMEZONE", cfg.ScanConfig.Timezone)
	cfg.ScanConfig.WorkerCount = getEnvIntOrDefault("SCAN_WORKER_COUNT", cfg.ScanConfig.WorkerCount)
	cfg.ScanConfig.PositionsFile = getEnvOrDefault("POSITIONS_FILE", cfg.ScanConfig.PositionsFile)

	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", cfg.DatabaseConfig.Port)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", cfg.DatabaseConfig.SSLMode)

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolString(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", cfg.RedisConfig.Addr)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)

	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", boolString(cfg.NotificationConfig.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", boolString(cfg.NotificationConfig.Telegram.Enabled)) == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvOrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", boolString(cfg.NotificationConfig.Discord.Enabled)) == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)

	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", cfg.ServerConfig.Port)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", cfg.ServerConfig.Host)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", cfg.ServerConfig.AllowedOrigins)

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", boolString(cfg.VaultConfig.Enabled)) == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", cfg.VaultConfig.Address)
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", cfg.VaultConfig.SecretPath)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", cfg.LoggingConfig.Level)
	cfg.LoggingConfig.Console = getEnvOrDefault("LOG_CONSOLE", boolString(cfg.LoggingConfig.Console)) == "true"
}

func applyDefaults(cfg *Config) {
	md := &cfg.MarketDataConfig
	if md.FinnhubBaseURL == "" {
		md.FinnhubBaseURL = "https://finnhub.io/api/v1"
	}
	if md.CallTimeout == 0 {
		md.CallTimeout = 10 * time.Second
	}
	if md.MarketHoursTTL == 0 {
		md.MarketHoursTTL = 1 * time.Minute
	}
	if md.OffHoursTTL == 0 {
		md.OffHoursTTL = 15 * time.Minute
	}
	if md.BreakerFailures == 0 {
		md.BreakerFailures = 5
	}
	if md.BreakerCooldown == 0 {
		md.BreakerCooldown = 2 * time.Minute
	}

	p := &cfg.PolicyConfig
	if p.WeeklyDeltaTarget == 0 {
		p.WeeklyDeltaTarget = 0.10
	}
	if p.EscapeDeltaTarget == 0 {
		p.EscapeDeltaTarget = 0.30
	}
	if p.MaxWeeksOut == 0 {
		p.MaxWeeksOut = 52
	}
	if p.PullBackCostFraction == 0 {
		p.PullBackCostFraction = 0.20
	}
	if p.CompressITMMaxPercent == 0 {
		p.CompressITMMaxPercent = 5.0
	}
	if p.CompressSameStrikeMax == 0 {
		p.CompressSameStrikeMax = 1.0
	}
	if p.CompressMoveOTMMax == 0 {
		p.CompressMoveOTMMax = 5.0
	}
	if p.ProfitCapturedMin == 0 {
		p.ProfitCapturedMin = 60.0
	}
	if p.NearITMWarnPercent == 0 {
		p.NearITMWarnPercent = 2.0
	}
	if p.NearITMWarnDays == 0 {
		p.NearITMWarnDays = 7
	}
	if p.FarDatedDays == 0 {
		p.FarDatedDays = 60
	}

	s := &cfg.ScanConfig
	if s.Timezone == "" {
		s.Timezone = "America/New_York"
	}
	if s.MorningTime == "" {
		s.MorningTime = "08:30"
	}
	if s.PostOpenTime == "" {
		s.PostOpenTime = "09:45"
	}
	if s.MiddayTime == "" {
		s.MiddayTime = "12:30"
	}
	if s.PreCloseTime == "" {
		s.PreCloseTime = "15:30"
	}
	if s.EveningTime == "" {
		s.EveningTime = "19:00"
	}
	if s.WorkerCount == 0 {
		s.WorkerCount = 4
	}
	if s.PositionTimeout == 0 {
		s.PositionTimeout = 30 * time.Second
	}
	if s.DeeperITMTrigger == 0 {
		s.DeeperITMTrigger = 10.0
	}
	if s.PositionsFile == "" {
		s.PositionsFile = "positions.json"
	}

	db := &cfg.DatabaseConfig
	if db.Host == "" {
		db.Host = "localhost"
	}
	if db.Port == 0 {
		db.Port = 5432
	}
	if db.User == "" {
		db.User = "advisor"
	}
	if db.Database == "" {
		db.Database = "advisor"
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}

	if cfg.RedisConfig.Addr == "" {
		cfg.RedisConfig.Addr = "localhost:6379"
	}

	srv := &cfg.ServerConfig
	if srv.Port == 0 {
		srv.Port = 8088
	}
	if srv.Host == "" {
		srv.Host = "0.0.0.0"
	}
	if srv.AllowedOrigins == "" {
		srv.AllowedOrigins = "*"
	}
	if srv.ReadTimeout == 0 {
		srv.ReadTimeout = 30
	}
	if srv.WriteTimeout == 0 {
		srv.WriteTimeout = 30
	}
	if srv.ShutdownTimeout == 0 {
		srv.ShutdownTimeout = 10
	}

	if cfg.LoggingConfig.Level == "" {
		cfg.LoggingConfig.Level = "info"
	}
}

func (cfg *Config) validate() error {
	if _, err := time.LoadLocation(cfg.ScanConfig.Timezone); err != nil {
		return fmt.Errorf("invalid scan timezone %q: %w", cfg.ScanConfig.Timezone, err)
	}
	for _, ts := range []string{
		cfg.ScanConfig.MorningTime, cfg.ScanConfig.PostOpenTime,
		cfg.ScanConfig.MiddayTime, cfg.ScanConfig.PreCloseTime,
		cfg.ScanConfig.EveningTime,
	} {
		if _, err := time.Parse("15:04", ts); err != nil {
			return fmt.Errorf("invalid scan time %q: %w", ts, err)
		}
	}
	if cfg.PolicyConfig.MaxWeeksOut < 1 {
		return fmt.Errorf("policy max_weeks_out must be at least 1")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
