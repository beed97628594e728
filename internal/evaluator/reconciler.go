package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"netmon-alert/internal/models"
	"netmon-alert/internal/repository"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// Reconciler 报警去重
// 同一 (device_id, metric_id) 已有活跃报警时不再新建，改为累加 occurrence_count
type Reconciler struct {
	alerts *repository.AlertsRepository
	logger *zap.Logger
}

// NewReconciler 创建去重器
func NewReconciler(alerts *repository.AlertsRepository, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		alerts: alerts,
		logger: logger,
	}
}

// isUniqueViolation 判断是否命中活跃报警唯一索引
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// Reconcile 候选落库：新建或合并到已有活跃报警
// 返回值 created 表示是否新建了报警（新建才触发 alert_created 通知）
func (r *Reconciler) Reconcile(ctx context.Context, candidate *models.AlertCandidate, occurredAt time.Time) (*models.Alert, bool, error) {
	if candidate == nil {
		return nil, false, fmt.Errorf("candidate is required")
	}
	if candidate.DeviceID == "" || candidate.MetricID == "" {
		return nil, false, fmt.Errorf("candidate device_id and metric_id are required")
	}

	existing, err := r.alerts.GetActiveAlert(ctx, candidate.DeviceID, candidate.MetricID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check active alert: %w", err)
	}

	if existing != nil {
		return r.fold(ctx, existing, candidate, occurredAt)
	}

	alert := NewAlertFromCandidate(candidate, occurredAt)
	history := NewHistoryEntry(alert.AlertID, models.HistoryActionCreated,
		"", string(models.StatusActive), occurredAt)

	err = r.alerts.CreateAlert(ctx, alert, history)
	if err != nil {
		// 并发评估同一指标时唯一索引兜底，重查后合并
		if isUniqueViolation(err) {
			r.logger.Debug("Concurrent alert creation detected, folding into existing alert",
				zap.String("device_id", candidate.DeviceID),
				zap.String("metric_id", candidate.MetricID))

			existing, qerr := r.alerts.GetActiveAlert(ctx, candidate.DeviceID, candidate.MetricID)
			if qerr != nil {
				return nil, false, fmt.Errorf("failed to re-check active alert: %w", qerr)
			}
			if existing == nil {
				return nil, false, fmt.Errorf("failed to create alert: %w", err)
			}
			return r.fold(ctx, existing, candidate, occurredAt)
		}
		return nil, false, fmt.Errorf("failed to create alert: %w", err)
	}

	r.logger.Info("Alert created",
		zap.String("alert_id", alert.AlertID),
		zap.String("device_id", alert.DeviceID),
		zap.String("metric_id", candidate.MetricID),
		zap.String("severity", string(alert.Severity)))

	return alert, true, nil
}

// fold 合并到已有活跃报警
func (r *Reconciler) fold(ctx context.Context, existing *models.Alert, candidate *models.AlertCandidate, occurredAt time.Time) (*models.Alert, bool, error) {
	history := NewHistoryEntry(existing.AlertID, models.HistoryActionUpdated,
		string(existing.Severity), string(candidate.Severity), occurredAt)

	err := r.alerts.RecordOccurrence(ctx, existing.AlertID,
		candidate.Severity, candidate.Message, occurredAt, history)
	if err != nil {
		return nil, false, fmt.Errorf("failed to record occurrence: %w", err)
	}

	existing.OccurrenceCount++
	existing.Severity = candidate.Severity
	existing.Message = candidate.Message
	existing.LastOccurrence = occurredAt
	existing.UpdatedAt = occurredAt

	r.logger.Debug("Alert occurrence folded",
		zap.String("alert_id", existing.AlertID),
		zap.Int("occurrence_count", existing.OccurrenceCount))

	return existing, false, nil
}
