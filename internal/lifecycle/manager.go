package lifecycle

import (
	"context"
	"fmt"
	"time"

	"netmon-alert/internal/models"
	"netmon-alert/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 状态转换表
// closed 和 false_positive 是终态，同一指标再次越限会新建报警而不是复活旧报警
var allowedTransitions = map[models.AlertStatus][]models.AlertStatus{
	models.StatusActive:       {models.StatusAcknowledged, models.StatusResolved, models.StatusFalsePositive},
	models.StatusAcknowledged: {models.StatusResolved, models.StatusFalsePositive},
	models.StatusResolved:     {models.StatusClosed, models.StatusFalsePositive},
	models.StatusClosed:       {models.StatusFalsePositive},
}

// CanTransition 检查状态转换是否合法
func CanTransition(from, to models.AlertStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Manager 报警生命周期管理器
// 每次状态转换与历史记录写入在同一事务内完成
type Manager struct {
	alerts *repository.AlertsRepository
	logger *zap.Logger
}

// NewManager 创建生命周期管理器
func NewManager(alerts *repository.AlertsRepository, logger *zap.Logger) *Manager {
	return &Manager{
		alerts: alerts,
		logger: logger,
	}
}

// newHistory 构建状态转换历史记录
func newHistory(alertID, action string, userID *string, from, to models.AlertStatus, comment *string, at time.Time) *models.AlertHistoryEntry {
	return &models.AlertHistoryEntry{
		HistoryID: uuid.New().String(),
		AlertID:   alertID,
		Action:    action,
		UserID:    userID,
		OldValue:  string(from),
		NewValue:  string(to),
		Comment:   comment,
		Timestamp: at,
	}
}

// checkTransition 加载报警并校验转换合法性
func (m *Manager) checkTransition(ctx context.Context, alertID string, to models.AlertStatus) (*models.Alert, error) {
	alert, err := m.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if !CanTransition(alert.Status, to) {
		return nil, fmt.Errorf("%w: cannot transition from %s to %s",
			models.ErrInvalidTransition, alert.Status, to)
	}

	return alert, nil
}

// Acknowledge 确认报警（active → acknowledged），comment 可选，记入历史
func (m *Manager) Acknowledge(ctx context.Context, alertID, userID, comment string) (*models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	alert, err := m.checkTransition(ctx, alertID, models.StatusAcknowledged)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":          models.StatusAcknowledged,
		"acknowledged_by": userID,
		"acknowledged_at": now,
	}
	var commentPtr *string
	if comment != "" {
		commentPtr = &comment
	}
	history := newHistory(alertID, models.HistoryActionAcknowledged, &userID,
		alert.Status, models.StatusAcknowledged, commentPtr, now)

	if err := m.alerts.TransitionStatus(ctx, alertID, alert.Status, updates, history); err != nil {
		return nil, err
	}

	alert.Status = models.StatusAcknowledged
	alert.AcknowledgedBy = &userID
	alert.AcknowledgedAt = &now
	alert.UpdatedAt = now

	m.logger.Info("Alert acknowledged",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID))

	return alert, nil
}

// Resolve 解除报警（active|acknowledged → resolved）
func (m *Manager) Resolve(ctx context.Context, alertID, userID, reason string) (*models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	alert, err := m.checkTransition(ctx, alertID, models.StatusResolved)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":      models.StatusResolved,
		"resolved_by": userID,
		"resolved_at": now,
	}
	var reasonPtr *string
	if reason != "" {
		updates["resolution_reason"] = reason
		reasonPtr = &reason
	}
	history := newHistory(alertID, models.HistoryActionResolved, &userID,
		alert.Status, models.StatusResolved, reasonPtr, now)

	if err := m.alerts.TransitionStatus(ctx, alertID, alert.Status, updates, history); err != nil {
		return nil, err
	}

	alert.Status = models.StatusResolved
	alert.ResolvedBy = &userID
	alert.ResolvedAt = &now
	alert.ResolutionReason = reasonPtr
	alert.UpdatedAt = now

	m.logger.Info("Alert resolved",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID),
		zap.String("reason", reason))

	return alert, nil
}

// Close 关闭报警（resolved → closed，终态）
func (m *Manager) Close(ctx context.Context, alertID, userID string) (*models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	alert, err := m.checkTransition(ctx, alertID, models.StatusClosed)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status": models.StatusClosed,
	}
	history := newHistory(alertID, models.HistoryActionClosed, &userID,
		alert.Status, models.StatusClosed, nil, now)

	if err := m.alerts.TransitionStatus(ctx, alertID, alert.Status, updates, history); err != nil {
		return nil, err
	}

	alert.Status = models.StatusClosed
	alert.UpdatedAt = now

	m.logger.Info("Alert closed",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID))

	return alert, nil
}

// MarkFalsePositive 标记误报（任意非终态或 closed → false_positive，终态）
func (m *Manager) MarkFalsePositive(ctx context.Context, alertID, userID, comment string) (*models.Alert, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	alert, err := m.checkTransition(ctx, alertID, models.StatusFalsePositive)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	// 误报同样记录处理人和时间
	updates := map[string]interface{}{
		"status":      models.StatusFalsePositive,
		"resolved_by": userID,
		"resolved_at": now,
	}
	var commentPtr *string
	if comment != "" {
		commentPtr = &comment
	}
	history := newHistory(alertID, models.HistoryActionFalsePositive, &userID,
		alert.Status, models.StatusFalsePositive, commentPtr, now)

	if err := m.alerts.TransitionStatus(ctx, alertID, alert.Status, updates, history); err != nil {
		return nil, err
	}

	alert.Status = models.StatusFalsePositive
	alert.ResolvedBy = &userID
	alert.ResolvedAt = &now
	alert.UpdatedAt = now

	m.logger.Info("Alert marked as false positive",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID))

	return alert, nil
}

// AutoResolve 自动解除 (device_id, metric_id) 的活跃报警
// 没有活跃报警时返回 (nil, false, nil)，resolution_reason 固定为 auto_resolved
func (m *Manager) AutoResolve(ctx context.Context, deviceID, metricID string) (*models.Alert, bool, error) {
	alert, err := m.alerts.GetActiveAlert(ctx, deviceID, metricID)
	if err != nil {
		return nil, false, err
	}
	if alert == nil {
		return nil, false, nil
	}

	now := time.Now()
	reason := models.ResolutionReasonAutoResolved
	updates := map[string]interface{}{
		"status":            models.StatusResolved,
		"resolved_at":       now,
		"resolution_reason": reason,
	}
	history := newHistory(alert.AlertID, models.HistoryActionResolved, nil,
		alert.Status, models.StatusResolved, &reason, now)

	if err := m.alerts.TransitionStatus(ctx, alert.AlertID, alert.Status, updates, history); err != nil {
		return nil, false, err
	}

	alert.Status = models.StatusResolved
	alert.ResolvedAt = &now
	alert.ResolutionReason = &reason
	alert.UpdatedAt = now

	return alert, true, nil
}
