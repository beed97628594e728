package models

import (
	"time"
)

// NotificationStatus 通知状态（pending → sent|error，不会回退）
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationError   NotificationStatus = "error"
)

// 通知事件类型（报警生命周期的各个转换）
const (
	EventAlertCreated       = "alert_created"
	EventAlertAcknowledged  = "alert_acknowledged"
	EventAlertResolved      = "alert_resolved"
	EventAlertClosed        = "alert_closed"
	EventAlertFalsePositive = "alert_false_positive"
)

// Notification 通知记录（对应 notifications 表，每次通道投递尝试一条）
type Notification struct {
	NotificationID string             `json:"notification_id" db:"notification_id"`
	ChannelName    string             `json:"channel_name" db:"channel_name"`
	AlertID        *string            `json:"alert_id,omitempty" db:"alert_id"`
	EventType      string             `json:"event_type" db:"event_type"`
	Message        string             `json:"message" db:"message"`
	Status         NotificationStatus `json:"status" db:"status"`
	Recipients     []string           `json:"recipients" db:"recipients"`
	Error          *string            `json:"error,omitempty" db:"error"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	SentAt         *time.Time         `json:"sent_at,omitempty" db:"sent_at"`
}

// DispatchResult 一次事件分发的结果汇总
// Success 表示至少有一个通道投递成功
type DispatchResult struct {
	EventType string   `json:"event_type"`
	Success   bool     `json:"success"`
	Matched   []string `json:"matched"` // 命中规则的通道名
	Sent      []string `json:"sent"`
	Failed    []string `json:"failed"`
}

// RecipientGroups 按级别选择的接收人分组
type RecipientGroups struct {
	Standard   []string `yaml:"standard"`
	Immediate  []string `yaml:"immediate"`
	Escalation []string `yaml:"escalation"`
}

// NotificationChannel 通知通道配置（从 yaml 配置文件加载）
type NotificationChannel struct {
	Name        string          `yaml:"name"`
	Type        string          `yaml:"type"` // email, webhook, slack, mqtt
	Enabled     bool            `yaml:"enabled"`
	MinSeverity Severity        `yaml:"min_severity"`
	Recipients  RecipientGroups `yaml:"recipients"`

	// email
	SMTPHost     string   `yaml:"smtp_host"`
	SMTPPort     int      `yaml:"smtp_port"`
	SMTPUser     string   `yaml:"smtp_user"`
	SMTPPassword string   `yaml:"smtp_password"`
	From         string   `yaml:"from"`
	To           []string `yaml:"to"`

	// webhook
	WebhookURL string            `yaml:"webhook_url"`
	Secret     string            `yaml:"secret"`
	Headers    map[string]string `yaml:"headers"`

	// slack
	SlackWebhookURL string `yaml:"slack_webhook_url"`

	// mqtt
	Topic string `yaml:"topic"`
	QoS   byte   `yaml:"qos"`
}

// NotificationRule 通知规则（按事件类型 + 可选条件过滤匹配通道）
// Condition 是字段等值过滤，可用键：severity, device_id, metric_id
type NotificationRule struct {
	Name       string            `yaml:"name"`
	Enabled    bool              `yaml:"enabled"`
	EventTypes []string          `yaml:"event_types"`
	Condition  map[string]string `yaml:"condition"`
	Channels   []string          `yaml:"channels"`
}
