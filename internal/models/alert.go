package models

import (
	"time"
)

// AlertStatus 报警状态
type AlertStatus string

const (
	StatusActive        AlertStatus = "active"
	StatusAcknowledged  AlertStatus = "acknowledged"
	StatusResolved      AlertStatus = "resolved"
	StatusClosed        AlertStatus = "closed"
	StatusFalsePositive AlertStatus = "false_positive"
)

// Terminal 是否终态（终态不再自动回到 active）
func (s AlertStatus) Terminal() bool {
	return s == StatusClosed || s == StatusFalsePositive
}

// AlertCandidate 报警候选（阈值评估的瞬态产物，不直接落库）
type AlertCandidate struct {
	DeviceID string
	MetricID string
	Severity Severity
	Value    float64
	Message  string
}

// Alert 报警（对应 alerts 表）
// MetricID 与 ServiceCheckID 至多一个非空
// 去重约束：同一 (device_id, metric_id) 至多一条 status=active 的报警，
// 由 reconciler 检查 + schema.sql 中的部分唯一索引共同保证
type Alert struct {
	AlertID          string      `json:"alert_id" db:"alert_id"`
	DeviceID         string      `json:"device_id" db:"device_id"`
	MetricID         *string     `json:"metric_id,omitempty" db:"metric_id"`
	ServiceCheckID   *string     `json:"service_check_id,omitempty" db:"service_check_id"`
	Severity         Severity    `json:"severity" db:"severity"`
	Status           AlertStatus `json:"status" db:"status"`
	Message          string      `json:"message" db:"message"`
	OccurrenceCount  int         `json:"occurrence_count" db:"occurrence_count"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	LastOccurrence   time.Time   `json:"last_occurrence" db:"last_occurrence"`
	AcknowledgedBy   *string     `json:"acknowledged_by,omitempty" db:"acknowledged_by"`
	AcknowledgedAt   *time.Time  `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	ResolvedBy       *string     `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt       *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolutionReason *string     `json:"resolution_reason,omitempty" db:"resolution_reason"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// 历史记录 action 值
const (
	HistoryActionCreated       = "created"
	HistoryActionUpdated       = "updated"
	HistoryActionAcknowledged  = "acknowledged"
	HistoryActionResolved      = "resolved"
	HistoryActionClosed        = "closed"
	HistoryActionFalsePositive = "false_positive"
	HistoryActionDeleted       = "deleted"
)

// 自动解除的 resolution_reason 值
const ResolutionReasonAutoResolved = "auto_resolved"

// AlertHistoryEntry 报警历史记录（对应 alert_history 表，只追加，不可变）
// 每次状态变更恰好写入一条
type AlertHistoryEntry struct {
	HistoryID string    `json:"history_id" db:"history_id"`
	AlertID   string    `json:"alert_id" db:"alert_id"`
	Action    string    `json:"action" db:"action"`
	UserID    *string   `json:"user_id,omitempty" db:"user_id"`
	OldValue  string    `json:"old_value" db:"old_value"`
	NewValue  string    `json:"new_value" db:"new_value"`
	Comment   *string   `json:"comment,omitempty" db:"comment"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
}
