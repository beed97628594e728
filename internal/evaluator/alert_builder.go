package evaluator

import (
	"fmt"
	"time"

	"netmon-alert/internal/models"

	"github.com/google/uuid"
)

// BuildCandidate 根据评估结果构建报警候选
func BuildCandidate(def *models.MetricDefinition, sample *models.MetricSample, severity models.Severity) *models.AlertCandidate {
	name := def.Name
	if name == "" {
		name = def.MetricID
	}

	message := fmt.Sprintf("%s is %g%s (%s)", name, sample.Value, def.Unit, severity)

	return &models.AlertCandidate{
		DeviceID: def.DeviceID,
		MetricID: def.MetricID,
		Severity: severity,
		Value:    sample.Value,
		Message:  message,
	}
}

// NewAlertFromCandidate 候选转报警记录（首次触发）
func NewAlertFromCandidate(c *models.AlertCandidate, occurredAt time.Time) *models.Alert {
	metricID := c.MetricID
	return &models.Alert{
		AlertID:         uuid.New().String(),
		DeviceID:        c.DeviceID,
		MetricID:        &metricID,
		Severity:        c.Severity,
		Status:          models.StatusActive,
		Message:         c.Message,
		OccurrenceCount: 1,
		CreatedAt:       occurredAt,
		LastOccurrence:  occurredAt,
		UpdatedAt:       occurredAt,
	}
}

// NewHistoryEntry 构建历史记录
func NewHistoryEntry(alertID, action string, oldValue, newValue string, at time.Time) *models.AlertHistoryEntry {
	return &models.AlertHistoryEntry{
		HistoryID: uuid.New().String(),
		AlertID:   alertID,
		Action:    action,
		OldValue:  oldValue,
		NewValue:  newValue,
		Timestamp: at,
	}
}
