package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"netmon-alert/internal/models"

	"go.uber.org/zap"
)

// AutoResolver 自动解除（由生命周期管理器实现）
type AutoResolver interface {
	AutoResolve(ctx context.Context, deviceID, metricID string) (*models.Alert, bool, error)
}

// NotificationDispatcher 通知分发（由通知模块实现）
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, alert *models.Alert, eventType string) (*models.DispatchResult, error)
}

// Evaluator 指标评估器
// 单个采样值的完整处理链：阈值评估 → 去重落库 / 自动解除 → 通知分发
type Evaluator struct {
	reconciler *Reconciler
	resolver   AutoResolver
	dispatcher NotificationDispatcher
	logger     *zap.Logger
}

// NewEvaluator 创建评估器
func NewEvaluator(
	reconciler *Reconciler,
	resolver AutoResolver,
	dispatcher NotificationDispatcher,
	logger *zap.Logger,
) *Evaluator {
	return &Evaluator{
		reconciler: reconciler,
		resolver:   resolver,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// ProcessSample 处理单个采样值
// 非法采样值（NaN/Inf）返回 ErrInvalidMetricValue，调用方跳过该指标，不中断批次
func (e *Evaluator) ProcessSample(ctx context.Context, def *models.MetricDefinition, sample *models.MetricSample) error {
	if def == nil || sample == nil {
		return fmt.Errorf("metric definition and sample are required")
	}
	if def.Thresholds == nil {
		return nil // 未配置阈值，不参与报警
	}

	severity, breached, err := EvaluateThreshold(sample.Value, def.Thresholds)
	if err != nil {
		if errors.Is(err, models.ErrInvalidMetricValue) {
			e.logger.Warn("Invalid metric sample skipped",
				zap.String("device_id", def.DeviceID),
				zap.String("metric_id", def.MetricID),
				zap.Float64("value", sample.Value))
		}
		return err
	}

	occurredAt := time.Unix(sample.Timestamp, 0)
	if sample.Timestamp == 0 {
		occurredAt = time.Now()
	}

	if breached {
		candidate := BuildCandidate(def, sample, severity)
		alert, created, err := e.reconciler.Reconcile(ctx, candidate, occurredAt)
		if err != nil {
			return fmt.Errorf("failed to reconcile alert: %w", err)
		}

		// 只有新建报警触发通知，重复触发静默累加
		if created {
			e.dispatch(ctx, alert, models.EventAlertCreated)
		}
		return nil
	}

	// 数值回到恢复区间时自动解除活跃报警
	if RecoverySatisfied(sample.Value, def.Thresholds) {
		alert, resolved, err := e.resolver.AutoResolve(ctx, def.DeviceID, def.MetricID)
		if err != nil {
			return fmt.Errorf("failed to auto-resolve alert: %w", err)
		}
		if resolved {
			e.logger.Info("Alert auto-resolved",
				zap.String("alert_id", alert.AlertID),
				zap.String("device_id", def.DeviceID),
				zap.String("metric_id", def.MetricID),
				zap.Float64("value", sample.Value))
			e.dispatch(ctx, alert, models.EventAlertResolved)
		}
	}

	return nil
}

// dispatch 分发通知（失败只记录日志，不影响评估结果）
func (e *Evaluator) dispatch(ctx context.Context, alert *models.Alert, eventType string) {
	if e.dispatcher == nil {
		return
	}

	result, err := e.dispatcher.Dispatch(ctx, alert, eventType)
	if err != nil {
		e.logger.Error("Failed to dispatch notifications",
			zap.String("alert_id", alert.AlertID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return
	}
	if len(result.Failed) > 0 {
		e.logger.Warn("Some notification channels failed",
			zap.String("alert_id", alert.AlertID),
			zap.Strings("failed_channels", result.Failed))
	}
}
