package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "test_token")
	t.Setenv("GOOGLE_CREDS_JSON", `{"type":"service_account"}`)
	t.Setenv("GOOGLE_SHEET_KEY", "sheet_key")
	t.Setenv("BOSS_ID", "777")
}

func TestLoadConfig_EnvOnly(t *testing.T) {
	setRequiredEnv(t)
	mount := t.TempDir()
	t.Setenv("STORE_MOUNT_PATH", mount)
	t.Setenv("SHEET_GID", "123456")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "test_token", cfg.Telegram.BotToken)
	assert.Equal(t, int64(777), cfg.Bot.BossID)
	assert.Equal(t, int64(123456), cfg.Google.SheetGID)
	assert.Equal(t, filepath.Join(mount, DefaultStoreFile), cfg.Store.Path())
	assert.Equal(t, DefaultConfigSheet, cfg.Google.ConfigSheet)
}

func TestLoadConfig_YAMLWithExpansion(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TEST_REDIS_ADDR", "localhost:6380")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	yamlContent := `
app:
  name: "loyalty-test"
redis:
  address: "${TEST_REDIS_ADDR}"
scheduler:
  enabled: false
  daily_summary_hour: 8
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "loyalty-test", cfg.App.Name)
	assert.Equal(t, "localhost:6380", cfg.Redis.Address)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 8, cfg.Scheduler.DailySummaryHour)
	assert.Equal(t, 10, cfg.Scheduler.WeeklyHour)
}

func TestLoadConfig_MissingFileIsIgnored(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestLoadConfig_BadBossID(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("BOSS_ID", "boss")

	_, err := Load("")
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Telegram: TelegramConfig{BotToken: "token"},
			Google:   GoogleConfig{SheetKey: "key", CredentialsJSON: "{}"},
			Bot:      BotConfig{BossID: 1},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"missing token", func(c *Config) { c.Telegram.BotToken = "" }, true},
		{"missing boss", func(c *Config) { c.Bot.BossID = 0 }, true},
		{"missing sheet", func(c *Config) { c.Google.SheetKey = "" }, true},
		{"missing credentials", func(c *Config) { c.Google.CredentialsJSON = "" }, true},
		{"credentials file", func(c *Config) { c.Google.CredentialsJSON = ""; c.Google.CredentialsFile = "creds.json" }, false},
		{"bad hour", func(c *Config) { c.Scheduler.ReminderHour = 24 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.Equal(t, tt.wantErr, err != nil, "Validate() error = %v", err)
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	assert.Equal(t, DefaultStoreFile, cfg.Store.FileName)
	assert.Equal(t, 20, cfg.Bot.RateLimitMessages)
	assert.Equal(t, 24, cfg.Bot.StateTTLHours)
	assert.Equal(t, 30, cfg.Scheduler.InactiveDays)
	assert.Equal(t, 60, cfg.Scheduler.TickSeconds)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 9090, cfg.GRPC.Port)
	assert.Equal(t, 15, cfg.GRPC.IntervalSeconds)

	// zero hours and Sunday are valid settings and survive defaults
	assert.Zero(t, cfg.Scheduler.DailySummaryHour)
	assert.Zero(t, cfg.Scheduler.WeeklyWeekday)
}

func TestLoadConfig_SchedulerDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 9, cfg.Scheduler.DailySummaryHour)
	assert.Equal(t, 10, cfg.Scheduler.WeeklyHour)
	assert.Equal(t, 1, cfg.Scheduler.WeeklyWeekday)
	assert.Equal(t, 12, cfg.Scheduler.ReminderHour)
	assert.False(t, cfg.GRPC.Enabled)
}

func TestLoadConfig_ZeroScheduleValues(t *testing.T) {
	setRequiredEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yamlContent := `
scheduler:
  daily_summary_hour: 0
  weekly_hour: 0
  weekly_weekday: 0
  reminder_hour: 0
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 0, cfg.Scheduler.DailySummaryHour)
	assert.Equal(t, 0, cfg.Scheduler.WeeklyHour)
	assert.Equal(t, 0, cfg.Scheduler.WeeklyWeekday, "sunday")
	assert.Equal(t, 0, cfg.Scheduler.ReminderHour)
	assert.Equal(t, 30, cfg.Scheduler.InactiveDays)
}

func TestCredentialsBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"a":1}`), 0o600))

	data, err := GoogleConfig{CredentialsFile: path}.CredentialsBytes()
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	data, err = GoogleConfig{CredentialsJSON: "inline", CredentialsFile: path}.CredentialsBytes()
	require.NoError(t, err)
	assert.Equal(t, "inline", string(data))

	_, err = GoogleConfig{CredentialsFile: filepath.Join(t.TempDir(), "none")}.CredentialsBytes()
	assert.Error(t, err)
}
