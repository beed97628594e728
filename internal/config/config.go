package config

import (
	"fmt"
	"os"
	"strconv"

	"netmon-alert/internal/models"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（MQTT 通知通道使用）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// NotificationsConfig 通知配置（从 yaml 文件加载）
type NotificationsConfig struct {
	Enabled     bool                         `yaml:"enabled"`
	EventStream string                       `yaml:"event_stream"` // 报警事件发布的 Redis Stream
	Channels    []models.NotificationChannel `yaml:"channels"`
	Rules       []models.NotificationRule    `yaml:"rules"`
}

// Config 报警服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 报警服务特定配置
	Alert struct {
		// Redis 缓存配置
		Cache struct {
			SampleKeyPrefix string // 指标实时采样键前缀，如 "netmon:metric:"
			SampleSuffix    string // 指标实时采样键后缀，如 ":latest"
			AlertKeyPrefix  string // 活跃报警缓存键前缀，如 "netmon:device:"
			AlertSuffix     string // 活跃报警缓存键后缀，如 ":alerts"
			AlertTTL        int    // 活跃报警缓存 TTL（秒）
			StateKeyPrefix  string // 评估状态键前缀，如 "alert:state:"
			LockKeyPrefix   string // 评估锁键前缀，如 "alert:lock:"
			LockTTL         int    // 评估锁 TTL（秒）
		}

		// 轮询配置
		PollInterval int // 轮询间隔（秒），默认 5秒

		// 评估配置
		Evaluation struct {
			BatchSize int // 批量评估指标数量，默认 10
		}
	}

	// 通知配置
	NotificationsFile string
	Notifications     *NotificationsConfig

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "netmon")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "netmon-alert")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 报警服务配置
	cfg.Alert.Cache.SampleKeyPrefix = getEnv("CACHE_SAMPLE_PREFIX", "netmon:metric:")
	cfg.Alert.Cache.SampleSuffix = ":latest"
	cfg.Alert.Cache.AlertKeyPrefix = getEnv("CACHE_ALERT_PREFIX", "netmon:device:")
	cfg.Alert.Cache.AlertSuffix = ":alerts"
	cfg.Alert.Cache.AlertTTL = 30 // 30秒
	cfg.Alert.Cache.StateKeyPrefix = getEnv("CACHE_STATE_PREFIX", "alert:state:")
	cfg.Alert.Cache.LockKeyPrefix = getEnv("CACHE_LOCK_PREFIX", "alert:lock:")
	cfg.Alert.Cache.LockTTL = 30 // 30秒，评估方崩溃后锁自动过期

	cfg.Alert.PollInterval = getEnvInt("POLL_INTERVAL", 5) // 5秒轮询一次
	cfg.Alert.Evaluation.BatchSize = getEnvInt("EVALUATION_BATCH_SIZE", 10)

	cfg.NotificationsFile = getEnv("NOTIFICATIONS_FILE", "")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	// 加载通知配置文件（未配置时使用空配置，通知整体关闭）
	if cfg.NotificationsFile != "" {
		notifications, err := LoadNotifications(cfg.NotificationsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load notifications config: %w", err)
		}
		cfg.Notifications = notifications
	} else {
		cfg.Notifications = &NotificationsConfig{}
	}

	return cfg, nil
}

// LoadNotifications 从 yaml 文件加载通知通道和规则
func LoadNotifications(path string) (*NotificationsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications file: %w", err)
	}

	var cfg NotificationsConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse notifications file: %w", err)
	}

	if cfg.EventStream == "" {
		cfg.EventStream = "netmon:alerts:events"
	}

	// 校验通道类型和规则引用
	channelNames := make(map[string]bool)
	for _, ch := range cfg.Channels {
		switch ch.Type {
		case "email", "webhook", "slack", "mqtt":
		default:
			return nil, fmt.Errorf("unknown channel type: %s (channel %s)", ch.Type, ch.Name)
		}
		channelNames[ch.Name] = true
	}
	for _, rule := range cfg.Rules {
		for _, name := range rule.Channels {
			if !channelNames[name] {
				return nil, fmt.Errorf("rule %s references unknown channel: %s", rule.Name, name)
			}
		}
	}

	return &cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
