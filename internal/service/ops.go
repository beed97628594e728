package service

import (
	"context"
	"fmt"
	"time"

	"netmon-alert/internal/lifecycle"
	"netmon-alert/internal/models"
	"netmon-alert/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventDispatcher 生命周期事件的通知分发
type EventDispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert, eventType string) (*models.DispatchResult, error)
}

// AlertOpsService 报警运维操作
// 面向 API/CLI 的人工操作入口：确认、解除、关闭、误报、查询、删除
type AlertOpsService struct {
	alerts        *repository.AlertsRepository
	history       *repository.AlertHistoryRepository
	notifications *repository.NotificationsRepository
	lifecycle     *lifecycle.Manager
	dispatcher    EventDispatcher
	logger        *zap.Logger
}

// NewAlertOpsService 创建运维操作服务
func NewAlertOpsService(
	alerts *repository.AlertsRepository,
	history *repository.AlertHistoryRepository,
	notifications *repository.NotificationsRepository,
	lifecycleManager *lifecycle.Manager,
	dispatcher EventDispatcher,
	logger *zap.Logger,
) *AlertOpsService {
	return &AlertOpsService{
		alerts:        alerts,
		history:       history,
		notifications: notifications,
		lifecycle:     lifecycleManager,
		dispatcher:    dispatcher,
		logger:        logger,
	}
}

// notify 分发生命周期事件（失败只记日志，不影响操作结果）
func (s *AlertOpsService) notify(ctx context.Context, alert *models.Alert, eventType string) {
	if s.dispatcher == nil {
		return
	}
	if _, err := s.dispatcher.Dispatch(ctx, alert, eventType); err != nil {
		s.logger.Warn("Failed to dispatch lifecycle event",
			zap.String("alert_id", alert.AlertID),
			zap.String("event_type", eventType),
			zap.Error(err))
	}
}

// ============================================
// 生命周期操作
// ============================================

// Acknowledge 确认报警（comment 可选，记入历史）
func (s *AlertOpsService) Acknowledge(ctx context.Context, alertID, userID, comment string) (*models.Alert, error) {
	alert, err := s.lifecycle.Acknowledge(ctx, alertID, userID, comment)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, alert, models.EventAlertAcknowledged)
	return alert, nil
}

// Resolve 解除报警
func (s *AlertOpsService) Resolve(ctx context.Context, alertID, userID, reason string) (*models.Alert, error) {
	alert, err := s.lifecycle.Resolve(ctx, alertID, userID, reason)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, alert, models.EventAlertResolved)
	return alert, nil
}

// Close 关闭报警
func (s *AlertOpsService) Close(ctx context.Context, alertID, userID string) (*models.Alert, error) {
	alert, err := s.lifecycle.Close(ctx, alertID, userID)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, alert, models.EventAlertClosed)
	return alert, nil
}

// MarkFalsePositive 标记误报
func (s *AlertOpsService) MarkFalsePositive(ctx context.Context, alertID, userID, comment string) (*models.Alert, error) {
	alert, err := s.lifecycle.MarkFalsePositive(ctx, alertID, userID, comment)
	if err != nil {
		return nil, err
	}
	s.notify(ctx, alert, models.EventAlertFalsePositive)
	return alert, nil
}

// ============================================
// 服务检查报警
// ============================================

// CreateServiceCheckAlert 创建服务检查报警（HTTP/TCP 探测失败等非指标类报警）
// 与指标报警同样去重：同一 (device_id, service_check_id) 的活跃报警只累加次数
func (s *AlertOpsService) CreateServiceCheckAlert(
	ctx context.Context,
	deviceID, serviceCheckID string,
	severity models.Severity,
	message string,
) (*models.Alert, bool, error) {
	if deviceID == "" {
		return nil, false, fmt.Errorf("device_id is required")
	}
	if serviceCheckID == "" {
		return nil, false, fmt.Errorf("service_check_id is required")
	}
	if severity.Rank() == 0 {
		return nil, false, fmt.Errorf("invalid severity: %s", severity)
	}
	if message == "" {
		return nil, false, fmt.Errorf("message is required")
	}

	now := time.Now()

	existing, err := s.alerts.GetActiveAlertByServiceCheck(ctx, deviceID, serviceCheckID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		history := &models.AlertHistoryEntry{
			HistoryID: uuid.New().String(),
			AlertID:   existing.AlertID,
			Action:    models.HistoryActionUpdated,
			OldValue:  string(existing.Severity),
			NewValue:  string(severity),
			Timestamp: now,
		}
		if err := s.alerts.RecordOccurrence(ctx, existing.AlertID, severity, message, now, history); err != nil {
			return nil, false, err
		}
		existing.OccurrenceCount++
		existing.Severity = severity
		existing.Message = message
		existing.LastOccurrence = now
		existing.UpdatedAt = now
		return existing, false, nil
	}

	alert := &models.Alert{
		AlertID:         uuid.New().String(),
		DeviceID:        deviceID,
		ServiceCheckID:  &serviceCheckID,
		Severity:        severity,
		Status:          models.StatusActive,
		Message:         message,
		OccurrenceCount: 1,
		CreatedAt:       now,
		LastOccurrence:  now,
		UpdatedAt:       now,
	}
	history := &models.AlertHistoryEntry{
		HistoryID: uuid.New().String(),
		AlertID:   alert.AlertID,
		Action:    models.HistoryActionCreated,
		NewValue:  string(models.StatusActive),
		Timestamp: now,
	}

	if err := s.alerts.CreateAlert(ctx, alert, history); err != nil {
		return nil, false, err
	}

	s.logger.Info("Service check alert created",
		zap.String("alert_id", alert.AlertID),
		zap.String("device_id", deviceID),
		zap.String("service_check_id", serviceCheckID))

	s.notify(ctx, alert, models.EventAlertCreated)
	return alert, true, nil
}

// ============================================
// 查询操作
// ============================================

// GetAlert 获取单个报警
func (s *AlertOpsService) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	return s.alerts.GetAlert(ctx, alertID)
}

// ListAlerts 列表查询
func (s *AlertOpsService) ListAlerts(ctx context.Context, filters repository.AlertFilters, page, size int) ([]*models.Alert, int, error) {
	return s.alerts.ListAlerts(ctx, filters, page, size)
}

// CountAlerts 条件统计
func (s *AlertOpsService) CountAlerts(ctx context.Context, filters repository.AlertFilters) (int, error) {
	return s.alerts.CountAlerts(ctx, filters)
}

// CountByStatus 按状态统计
func (s *AlertOpsService) CountByStatus(ctx context.Context) (map[models.AlertStatus]int, error) {
	return s.alerts.CountByStatus(ctx)
}

// CountBySeverity 按级别统计活跃报警
func (s *AlertOpsService) CountBySeverity(ctx context.Context) (map[models.Severity]int, error) {
	return s.alerts.CountBySeverity(ctx)
}

// GetAlertHistory 获取报警的完整历史追溯链
func (s *AlertOpsService) GetAlertHistory(ctx context.Context, alertID string) ([]*models.AlertHistoryEntry, error) {
	return s.history.ListByAlert(ctx, alertID)
}

// GetAlertNotifications 获取报警的通知投递记录
func (s *AlertOpsService) GetAlertNotifications(ctx context.Context, alertID string) ([]*models.Notification, error) {
	return s.notifications.ListByAlert(ctx, alertID)
}

// ============================================
// 管理操作
// ============================================

// DeleteAlert 物理删除报警（管理员操作）
// 删除前先写审计历史记录，历史表不做级联，追溯链保留
func (s *AlertOpsService) DeleteAlert(ctx context.Context, alertID, userID string) error {
	if userID == "" {
		return fmt.Errorf("user_id is required")
	}

	alert, err := s.alerts.GetAlert(ctx, alertID)
	if err != nil {
		return err
	}

	entry := &models.AlertHistoryEntry{
		HistoryID: uuid.New().String(),
		AlertID:   alertID,
		Action:    models.HistoryActionDeleted,
		UserID:    &userID,
		OldValue:  string(alert.Status),
		Timestamp: time.Now(),
	}
	if err := s.history.CreateEntry(ctx, entry); err != nil {
		return err
	}

	if err := s.alerts.DeleteAlert(ctx, alertID); err != nil {
		return err
	}

	s.logger.Info("Alert deleted",
		zap.String("alert_id", alertID),
		zap.String("user_id", userID))

	return nil
}
