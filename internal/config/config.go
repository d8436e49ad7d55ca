package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultStoreFile   = "bot_data.db"
	DefaultConfigSheet = "Config"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Google    GoogleConfig    `yaml:"google"`
	Store     StoreConfig     `yaml:"store"`
	Redis     RedisConfig     `yaml:"redis"`
	Backup    BackupConfig    `yaml:"backup"`
	Logging   LoggingConfig   `yaml:"logging"`
	HTTP      HTTPConfig      `yaml:"http"`
	GRPC      GRPCConfig      `yaml:"grpc"`
	Exports   ExportConfig    `yaml:"exports"`
	Bot       BotConfig       `yaml:"bot"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type TelegramConfig struct {
	BotToken       string  `yaml:"bot_token"`
	Debug          bool    `yaml:"debug"`
	SendRatePerSec float64 `yaml:"send_rate_per_sec"`
	SendBurst      int     `yaml:"send_burst"`
}

type GoogleConfig struct {
	CredentialsJSON string `yaml:"credentials_json"`
	CredentialsFile string `yaml:"credentials_file"`
	SheetKey        string `yaml:"sheet_key"`
	SheetGID        int64  `yaml:"sheet_gid"`
	ConfigSheet     string `yaml:"config_sheet"`
}

// StoreConfig points at the local SQLite file. MountPath is a persistent volume when deployed.
type StoreConfig struct {
	MountPath string `yaml:"mount_path"`
	FileName  string `yaml:"file_name"`
}

// Path returns the full database path.
func (s StoreConfig) Path() string {
	return filepath.Join(s.MountPath, s.FileName)
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type HTTPConfig struct {
	Enabled bool    `yaml:"enabled"`
	Port    int     `yaml:"port"`
	APIKey  string  `yaml:"api_key"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// GRPCConfig serves the standard gRPC health service. Auth and rate limits follow HTTPConfig.
type GRPCConfig struct {
	Enabled         bool `yaml:"enabled"`
	Port            int  `yaml:"port"`
	Reflection      bool `yaml:"reflection"`
	IntervalSeconds int  `yaml:"interval_seconds"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type BotConfig struct {
	BossID            int64 `yaml:"boss_id"`
	RateLimitMessages int   `yaml:"rate_limit_messages"`
	RateLimitWindow   int   `yaml:"rate_limit_window"`
	StateTTLHours     int   `yaml:"state_ttl_hours"`
	MyApplicationsMax int   `yaml:"my_applications_max"`
}

type SchedulerConfig struct {
	Enabled          bool `yaml:"enabled"`
	DailySummaryHour int  `yaml:"daily_summary_hour"`
	WeeklyHour       int  `yaml:"weekly_hour"`
	WeeklyWeekday    int  `yaml:"weekly_weekday"`
	ReminderHour     int  `yaml:"reminder_hour"`
	InactiveDays     int  `yaml:"inactive_days"`
	TickSeconds      int  `yaml:"tick_seconds"`
}

// Load reads an optional YAML file, then applies environment overrides.
// A missing .env or YAML file is not an error: the bot is usually configured through env alone.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	config := Config{Scheduler: defaultScheduler()}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			expandedData := []byte(os.ExpandEnv(string(data)))
			if err := yaml.Unmarshal(expandedData, &config); err != nil {
				return nil, fmt.Errorf("parse %s: %w", configPath, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	setString(&c.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.Google.CredentialsJSON, "GOOGLE_CREDS_JSON")
	setString(&c.Google.CredentialsFile, "GOOGLE_CREDS_FILE")
	setString(&c.Google.SheetKey, "GOOGLE_SHEET_KEY")
	setString(&c.Store.MountPath, "STORE_MOUNT_PATH")
	setString(&c.Redis.Address, "REDIS_ADDR")
	setString(&c.Logging.Level, "LOG_LEVEL")

	if v := strings.TrimSpace(os.Getenv("SHEET_GID")); v != "" {
		gid, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("SHEET_GID: %w", err)
		}
		c.Google.SheetGID = gid
	}

	if v := strings.TrimSpace(os.Getenv("BOSS_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("BOSS_ID: %w", err)
		}
		c.Bot.BossID = id
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "loyaltybot"
	}
	if c.Store.FileName == "" {
		c.Store.FileName = DefaultStoreFile
	}
	if c.Store.MountPath == "" {
		if wd, err := os.Getwd(); err == nil {
			c.Store.MountPath = wd
		} else {
			c.Store.MountPath = "."
		}
	}
	if c.Google.ConfigSheet == "" {
		c.Google.ConfigSheet = DefaultConfigSheet
	}
	if c.Telegram.SendRatePerSec == 0 {
		c.Telegram.SendRatePerSec = 25
	}
	if c.Telegram.SendBurst == 0 {
		c.Telegram.SendBurst = 5
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = filepath.Join(c.Store.MountPath, "backups")
	}
	if c.Exports.Path == "" {
		c.Exports.Path = filepath.Join(c.Store.MountPath, "exports")
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RPS == 0 {
		c.HTTP.RPS = 5
	}
	if c.HTTP.Burst == 0 {
		c.HTTP.Burst = 10
	}

	// Bot defaults
	if c.Bot.RateLimitMessages == 0 {
		c.Bot.RateLimitMessages = 20
	}
	if c.Bot.RateLimitWindow == 0 {
		c.Bot.RateLimitWindow = 60
	}
	if c.Bot.StateTTLHours == 0 {
		c.Bot.StateTTLHours = 24
	}
	if c.Bot.MyApplicationsMax == 0 {
		c.Bot.MyApplicationsMax = 10
	}

	if c.GRPC.Port == 0 {
		c.GRPC.Port = 9090
	}
	if c.GRPC.IntervalSeconds <= 0 {
		c.GRPC.IntervalSeconds = 15
	}

	// hours and the weekday are preset in defaultScheduler: zero is a real value for them
	if c.Scheduler.InactiveDays <= 0 {
		c.Scheduler.InactiveDays = 30
	}
	if c.Scheduler.TickSeconds <= 0 {
		c.Scheduler.TickSeconds = 60
	}
}

func defaultScheduler() SchedulerConfig {
	return SchedulerConfig{
		Enabled:          true,
		DailySummaryHour: 9,
		WeeklyHour:       10,
		WeeklyWeekday:    int(time.Monday),
		ReminderHour:     12,
		InactiveDays:     30,
		TickSeconds:      60,
	}
}

func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" || c.Telegram.BotToken == "YOUR_BOT_TOKEN_HERE" {
		return errors.New("telegram bot token is required")
	}
	if c.Bot.BossID == 0 {
		return errors.New("boss id is required")
	}
	if c.Google.SheetKey == "" {
		return errors.New("google sheet key is required")
	}
	if c.Google.CredentialsJSON == "" && c.Google.CredentialsFile == "" {
		return errors.New("google credentials are required")
	}
	if c.Google.SheetGID < 0 {
		return fmt.Errorf("invalid sheet gid %d", c.Google.SheetGID)
	}
	for name, hour := range map[string]int{
		"daily_summary_hour": c.Scheduler.DailySummaryHour,
		"weekly_hour":        c.Scheduler.WeeklyHour,
		"reminder_hour":      c.Scheduler.ReminderHour,
	} {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("scheduler.%s out of range: %d", name, hour)
		}
	}
	if c.Scheduler.WeeklyWeekday < 0 || c.Scheduler.WeeklyWeekday > 6 {
		return fmt.Errorf("scheduler.weekly_weekday out of range: %d", c.Scheduler.WeeklyWeekday)
	}
	return nil
}

// CredentialsBytes returns the service-account JSON, reading the file when no inline blob is set.
func (g GoogleConfig) CredentialsBytes() ([]byte, error) {
	if g.CredentialsJSON != "" {
		return []byte(g.CredentialsJSON), nil
	}
	data, err := os.ReadFile(g.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}
	return data, nil
}
