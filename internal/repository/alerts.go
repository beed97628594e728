package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"netmon-alert/internal/models"

	"go.uber.org/zap"
)

// AlertsRepository 报警仓库
// 状态变更与历史记录写入在同一事务内完成，避免部分更新
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertsRepository 创建报警仓库
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
	}
}

// AlertFilters 报警过滤条件
type AlertFilters struct {
	// 时间段过滤
	StartTime *time.Time // created_at >= StartTime
	EndTime   *time.Time // created_at <= EndTime

	// 设备/指标过滤
	DeviceID *string
	MetricID *string

	// 级别过滤
	Severity   *models.Severity
	Severities []models.Severity // IN 查询

	// 状态过滤
	Status   *models.AlertStatus
	Statuses []models.AlertStatus // IN 查询

	// 处理人过滤
	AcknowledgedBy *string
}

const alertColumns = `
		alert_id,
		device_id,
		metric_id,
		service_check_id,
		severity,
		status,
		message,
		occurrence_count,
		created_at,
		last_occurrence,
		acknowledged_by,
		acknowledged_at,
		resolved_by,
		resolved_at,
		resolution_reason,
		updated_at`

// scanAlert 扫描单行报警（处理可空字段）
func scanAlert(row interface{ Scan(...interface{}) error }) (*models.Alert, error) {
	var alert models.Alert
	var metricID, serviceCheckID, ackBy, resolvedBy, resolutionReason sql.NullString
	var ackAt, resolvedAt sql.NullTime

	err := row.Scan(
		&alert.AlertID,
		&alert.DeviceID,
		&metricID,
		&serviceCheckID,
		&alert.Severity,
		&alert.Status,
		&alert.Message,
		&alert.OccurrenceCount,
		&alert.CreatedAt,
		&alert.LastOccurrence,
		&ackBy,
		&ackAt,
		&resolvedBy,
		&resolvedAt,
		&resolutionReason,
		&alert.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if metricID.Valid {
		alert.MetricID = &metricID.String
	}
	if serviceCheckID.Valid {
		alert.ServiceCheckID = &serviceCheckID.String
	}
	if ackBy.Valid {
		alert.AcknowledgedBy = &ackBy.String
	}
	if ackAt.Valid {
		alert.AcknowledgedAt = &ackAt.Time
	}
	if resolvedBy.Valid {
		alert.ResolvedBy = &resolvedBy.String
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = &resolvedAt.Time
	}
	if resolutionReason.Valid {
		alert.ResolutionReason = &resolutionReason.String
	}

	return &alert, nil
}

// ============================================
// 基础 CRUD 操作
// ============================================

// GetAlert 根据 alert_id 获取单个报警
func (r *AlertsRepository) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE alert_id = $1
	`, alertColumns)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: alert_id=%s", models.ErrAlertNotFound, alertID)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// GetActiveAlert 获取 (device_id, metric_id) 的活跃报警（去重检查使用）
// 没有活跃报警时返回 (nil, nil)
func (r *AlertsRepository) GetActiveAlert(ctx context.Context, deviceID, metricID string) (*models.Alert, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if metricID == "" {
		return nil, fmt.Errorf("metric_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE device_id = $1
		  AND metric_id = $2
		  AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`, alertColumns)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, deviceID, metricID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 没有活跃报警
		}
		return nil, fmt.Errorf("failed to query active alert: %w", err)
	}

	return alert, nil
}

// GetActiveAlertByServiceCheck 获取服务检查的活跃报警（服务检查报警去重）
// 没有活跃报警时返回 (nil, nil)
func (r *AlertsRepository) GetActiveAlertByServiceCheck(ctx context.Context, deviceID, serviceCheckID string) (*models.Alert, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}
	if serviceCheckID == "" {
		return nil, fmt.Errorf("service_check_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE device_id = $1
		  AND service_check_id = $2
		  AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1
	`, alertColumns)

	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, deviceID, serviceCheckID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active service check alert: %w", err)
	}

	return alert, nil
}

// CreateAlert 创建报警并写入 created 历史记录（同一事务）
func (r *AlertsRepository) CreateAlert(ctx context.Context, alert *models.Alert, history *models.AlertHistoryEntry) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if history == nil {
		return fmt.Errorf("history entry is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO alerts (
			alert_id,
			device_id,
			metric_id,
			service_check_id,
			severity,
			status,
			message,
			occurrence_count,
			created_at,
			last_occurrence,
			resolution_reason,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`

	_, err = tx.ExecContext(ctx,
		query,
		alert.AlertID,
		alert.DeviceID,
		alert.MetricID,
		alert.ServiceCheckID,
		alert.Severity,
		alert.Status,
		alert.Message,
		alert.OccurrenceCount,
		alert.CreatedAt,
		alert.LastOccurrence,
		alert.ResolutionReason,
		alert.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	if err := insertHistoryEntry(ctx, tx, history); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit alert creation: %w", err)
	}

	return nil
}

// RecordOccurrence 活跃报警重复触发：occurrence_count+1，刷新 last_occurrence，
// 级别和消息以最新观测为准，并写入 updated 历史记录（同一事务）
func (r *AlertsRepository) RecordOccurrence(
	ctx context.Context,
	alertID string,
	severity models.Severity,
	message string,
	occurredAt time.Time,
	history *models.AlertHistoryEntry,
) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if history == nil {
		return fmt.Errorf("history entry is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE alerts
		SET occurrence_count = occurrence_count + 1,
		    severity = $1,
		    message = $2,
		    last_occurrence = $3,
		    updated_at = CURRENT_TIMESTAMP
		WHERE alert_id = $4
		  AND status = 'active'
	`

	result, err := tx.ExecContext(ctx, query, severity, message, occurredAt, alertID)
	if err != nil {
		return fmt.Errorf("failed to record occurrence: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: no active alert with alert_id=%s", models.ErrAlertNotFound, alertID)
	}

	if err := insertHistoryEntry(ctx, tx, history); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit occurrence: %w", err)
	}

	return nil
}

// TransitionStatus 状态转换（部分更新）并写入历史记录（同一事务）
// updates 是一个 map，只允许状态转换涉及的字段
func (r *AlertsRepository) TransitionStatus(
	ctx context.Context,
	alertID string,
	fromStatus models.AlertStatus,
	updates map[string]interface{},
	history *models.AlertHistoryEntry,
) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if len(updates) == 0 {
		return fmt.Errorf("updates cannot be empty")
	}
	if history == nil {
		return fmt.Errorf("history entry is required")
	}

	// 允许更新的字段
	allowedFields := map[string]bool{
		"status":            true,
		"acknowledged_by":   true,
		"acknowledged_at":   true,
		"resolved_by":       true,
		"resolved_at":       true,
		"resolution_reason": true,
	}

	setParts := []string{}
	args := []interface{}{}
	argN := 1

	for field, value := range updates {
		if !allowedFields[field] {
			return fmt.Errorf("field '%s' is not allowed to update", field)
		}
		setParts = append(setParts, fmt.Sprintf("%s = $%d", field, argN))
		args = append(args, value)
		argN++
	}

	// 自动更新 updated_at
	setParts = append(setParts, "updated_at = CURRENT_TIMESTAMP")

	// WHERE 带上原状态，并发转换时只有一个提交生效
	args = append(args, alertID, fromStatus)
	query := fmt.Sprintf(`
		UPDATE alerts
		SET %s
		WHERE alert_id = $%d
		  AND status = $%d
	`, strings.Join(setParts, ", "), argN, argN+1)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition alert status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: alert_id=%s is no longer in status %s", models.ErrInvalidTransition, alertID, fromStatus)
	}

	if err := insertHistoryEntry(ctx, tx, history); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status transition: %w", err)
	}

	return nil
}

// DeleteAlert 物理删除报警（仅管理员显式操作）
func (r *AlertsRepository) DeleteAlert(ctx context.Context, alertID string) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE alert_id = $1`, alertID)
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: alert_id=%s", models.ErrAlertNotFound, alertID)
	}

	return nil
}

// ============================================
// 查询操作
// ============================================

// buildWhereClause 构建 WHERE 子句（ListAlerts / CountAlerts 共用）
func (r *AlertsRepository) buildWhereClause(filters AlertFilters, args *[]interface{}, argN *int) []string {
	where := []string{}

	// 时间段过滤
	if filters.StartTime != nil {
		where = append(where, fmt.Sprintf("created_at >= $%d", *argN))
		*args = append(*args, *filters.StartTime)
		*argN++
	}
	if filters.EndTime != nil {
		where = append(where, fmt.Sprintf("created_at <= $%d", *argN))
		*args = append(*args, *filters.EndTime)
		*argN++
	}

	// 设备/指标过滤
	if filters.DeviceID != nil {
		where = append(where, fmt.Sprintf("device_id = $%d", *argN))
		*args = append(*args, *filters.DeviceID)
		*argN++
	}
	if filters.MetricID != nil {
		where = append(where, fmt.Sprintf("metric_id = $%d", *argN))
		*args = append(*args, *filters.MetricID)
		*argN++
	}

	// 级别过滤
	if filters.Severity != nil {
		where = append(where, fmt.Sprintf("severity = $%d", *argN))
		*args = append(*args, *filters.Severity)
		*argN++
	}
	if len(filters.Severities) > 0 {
		placeholders := make([]string, len(filters.Severities))
		for i := range filters.Severities {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.Severities[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("severity IN (%s)", strings.Join(placeholders, ", ")))
	}

	// 状态过滤
	if filters.Status != nil {
		where = append(where, fmt.Sprintf("status = $%d", *argN))
		*args = append(*args, *filters.Status)
		*argN++
	}
	if len(filters.Statuses) > 0 {
		placeholders := make([]string, len(filters.Statuses))
		for i := range filters.Statuses {
			placeholders[i] = fmt.Sprintf("$%d", *argN)
			*args = append(*args, filters.Statuses[i])
			*argN++
		}
		where = append(where, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ", ")))
	}

	// 处理人过滤
	if filters.AcknowledgedBy != nil {
		where = append(where, fmt.Sprintf("acknowledged_by = $%d", *argN))
		*args = append(*args, *filters.AcknowledgedBy)
		*argN++
	}

	return where
}

// ListAlerts 列表查询（支持多条件过滤、分页）
func (r *AlertsRepository) ListAlerts(ctx context.Context, filters AlertFilters, page, size int) ([]*models.Alert, int, error) {
	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(filters, &args, &argN)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	// 计算总数
	queryCount := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM alerts
		%s
	`, whereClause)

	var total int
	err := r.db.QueryRowContext(ctx, queryCount, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	// 分页处理
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		%s
		ORDER BY last_occurrence DESC
		LIMIT $%d OFFSET $%d
	`, alertColumns, whereClause, argN, argN+1)

	args = append(args, size, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, total, nil
}

// CountAlerts 统计报警数量（按条件）
func (r *AlertsRepository) CountAlerts(ctx context.Context, filters AlertFilters) (int, error) {
	args := []interface{}{}
	argN := 1
	where := r.buildWhereClause(filters, &args, &argN)

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	query := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM alerts
		%s
	`, whereClause)

	var total int
	err := r.db.QueryRowContext(ctx, query, args...).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count alerts: %w", err)
	}

	return total, nil
}

// ============================================
// 统计查询（面板计数）
// ============================================

// CountByStatus 按状态统计报警数量
func (r *AlertsRepository) CountByStatus(ctx context.Context) (map[models.AlertStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM alerts
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AlertStatus]int)
	for rows.Next() {
		var status models.AlertStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", err)
	}

	return counts, nil
}

// CountBySeverity 按级别统计活跃报警数量
func (r *AlertsRepository) CountBySeverity(ctx context.Context) (map[models.Severity]int, error) {
	query := `
		SELECT severity, COUNT(*)
		FROM alerts
		WHERE status = 'active'
		GROUP BY severity
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by severity: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Severity]int)
	for rows.Next() {
		var severity models.Severity
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan severity count: %w", err)
		}
		counts[severity] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate severity counts: %w", err)
	}

	return counts, nil
}

// GetActiveAlertsByDevice 获取设备的全部活跃报警（刷新设备报警缓存用）
func (r *AlertsRepository) GetActiveAlertsByDevice(ctx context.Context, deviceID string) ([]*models.Alert, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE device_id = $1
		  AND status = 'active'
		ORDER BY last_occurrence DESC
	`, alertColumns)

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()

	alerts := []*models.Alert{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}
