package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	// 清除环境变量
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证默认值
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "postgres", cfg.Database.Password)
	assert.Equal(t, "netmon", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "netmon:metric:", cfg.Alert.Cache.SampleKeyPrefix)
	assert.Equal(t, ":latest", cfg.Alert.Cache.SampleSuffix)
	assert.Equal(t, "netmon:device:", cfg.Alert.Cache.AlertKeyPrefix)
	assert.Equal(t, ":alerts", cfg.Alert.Cache.AlertSuffix)
	assert.Equal(t, 30, cfg.Alert.Cache.AlertTTL)
	assert.Equal(t, "alert:state:", cfg.Alert.Cache.StateKeyPrefix)
	assert.Equal(t, "alert:lock:", cfg.Alert.Cache.LockKeyPrefix)

	assert.Equal(t, 5, cfg.Alert.PollInterval)
	assert.Equal(t, 10, cfg.Alert.Evaluation.BatchSize)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	// 通知配置文件未配置时为空配置
	assert.NotNil(t, cfg.Notifications)
	assert.False(t, cfg.Notifications.Enabled)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	// 设置环境变量
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_USER", "test-user")
	os.Setenv("DB_PASSWORD", "test-password")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("REDIS_PASSWORD", "test-redis-password")
	os.Setenv("POLL_INTERVAL", "15")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// 验证环境变量覆盖
	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-user", cfg.Database.User)
	assert.Equal(t, "test-password", cfg.Database.Password)
	assert.Equal(t, "test-db", cfg.Database.Database)

	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "test-redis-password", cfg.Redis.Password)

	assert.Equal(t, 15, cfg.Alert.PollInterval)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	// 清理环境变量
	os.Clearenv()
}

func TestLoadNotifications_Success(t *testing.T) {
	content := `
enabled: true
event_stream: "test:alerts:events"
channels:
  - name: ops-email
    type: email
    enabled: true
    min_severity: warning
    smtp_host: smtp.example.com
    smtp_port: 587
    from: alerts@example.com
    to: ["ops@example.com"]
    recipients:
      standard: ["ops@example.com"]
      immediate: ["oncall@example.com"]
      escalation: ["lead@example.com"]
  - name: ops-webhook
    type: webhook
    enabled: true
    webhook_url: "https://hooks.example.com/alert"
    secret: "s3cret"
rules:
  - name: critical-alerts
    enabled: true
    event_types: ["alert_created"]
    condition:
      severity: critical
    channels: ["ops-email", "ops-webhook"]
`
	path := filepath.Join(t.TempDir(), "notifications.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadNotifications(path)
	require.NoError(t, err)

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "test:alerts:events", cfg.EventStream)
	require.Len(t, cfg.Channels, 2)
	assert.Equal(t, "ops-email", cfg.Channels[0].Name)
	assert.Equal(t, "email", cfg.Channels[0].Type)
	assert.Equal(t, []string{"oncall@example.com"}, cfg.Channels[0].Recipients.Immediate)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "critical", cfg.Rules[0].Condition["severity"])
}

func TestLoadNotifications_UnknownChannelType(t *testing.T) {
	content := `
enabled: true
channels:
  - name: bad
    type: pager
`
	path := filepath.Join(t.TempDir(), "notifications.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadNotifications(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel type")
}

func TestLoadNotifications_UnknownRuleChannel(t *testing.T) {
	content := `
enabled: true
channels:
  - name: ops-email
    type: email
rules:
  - name: r1
    enabled: true
    event_types: ["alert_created"]
    channels: ["missing"]
`
	path := filepath.Join(t.TempDir(), "notifications.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadNotifications(path)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown channel")
}

func TestGetEnv(t *testing.T) {
	// 测试默认值
	os.Clearenv()
	value := getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "default-value", value)

	// 测试环境变量存在
	os.Setenv("TEST_KEY", "env-value")
	value = getEnv("TEST_KEY", "default-value")
	assert.Equal(t, "env-value", value)

	// 清理
	os.Unsetenv("TEST_KEY")
}
