package repository

import (
	"context"
	"database/sql"
	"fmt"

	"netmon-alert/internal/models"

	"go.uber.org/zap"
)

// MetricsRepository 指标定义仓库（阈值配置随指标一起加载）
type MetricsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMetricsRepository 创建指标定义仓库
func NewMetricsRepository(db *sql.DB, logger *zap.Logger) *MetricsRepository {
	return &MetricsRepository{
		db:     db,
		logger: logger,
	}
}

const metricColumns = `
		metric_id,
		device_id,
		name,
		unit,
		enabled,
		warning_value,
		critical_value,
		recovery_value,
		operator`

// scanMetric 扫描单行指标定义（operator 为空表示未配置阈值）
func scanMetric(row interface{ Scan(...interface{}) error }) (*models.MetricDefinition, error) {
	var m models.MetricDefinition
	var warningValue, criticalValue, recoveryValue sql.NullFloat64
	var operator sql.NullString

	err := row.Scan(
		&m.MetricID,
		&m.DeviceID,
		&m.Name,
		&m.Unit,
		&m.Enabled,
		&warningValue,
		&criticalValue,
		&recoveryValue,
		&operator,
	)
	if err != nil {
		return nil, err
	}

	if operator.Valid {
		thresholds := &models.ThresholdSet{
			Operator: models.ComparisonOperator(operator.String),
		}
		if warningValue.Valid {
			thresholds.WarningValue = &warningValue.Float64
		}
		if criticalValue.Valid {
			thresholds.CriticalValue = &criticalValue.Float64
		}
		if recoveryValue.Valid {
			thresholds.RecoveryValue = &recoveryValue.Float64
		}
		m.Thresholds = thresholds
	}

	return &m, nil
}

// ListEnabledMetrics 加载全部启用的指标定义（评估轮询的工作集）
func (r *MetricsRepository) ListEnabledMetrics(ctx context.Context) ([]*models.MetricDefinition, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM metrics
		WHERE enabled = true
		ORDER BY device_id, metric_id
	`, metricColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query enabled metrics: %w", err)
	}
	defer rows.Close()

	metrics := []*models.MetricDefinition{}
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate metrics: %w", err)
	}

	return metrics, nil
}

// GetMetric 获取单个指标定义
// 不存在时返回 (nil, nil)
func (r *MetricsRepository) GetMetric(ctx context.Context, deviceID, metricID string) (*models.MetricDefinition, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if metricID == "" {
		return nil, fmt.Errorf("metric_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM metrics
		WHERE device_id = $1
		  AND metric_id = $2
	`, metricColumns)

	m, err := scanMetric(r.db.QueryRowContext(ctx, query, deviceID, metricID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get metric: %w", err)
	}

	return m, nil
}
