package repository

import (
	"context"
	"database/sql"
	"fmt"

	"netmon-alert/internal/models"

	"go.uber.org/zap"
)

// execer 兼容 *sql.DB 和 *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// insertHistoryEntry 插入历史记录（与状态变更共用事务）
func insertHistoryEntry(ctx context.Context, ex execer, entry *models.AlertHistoryEntry) error {
	if entry.HistoryID == "" {
		return fmt.Errorf("history_id is required")
	}
	if entry.AlertID == "" {
		return fmt.Errorf("history alert_id is required")
	}
	if entry.Action == "" {
		return fmt.Errorf("history action is required")
	}

	query := `
		INSERT INTO alert_history (
			history_id,
			alert_id,
			action,
			user_id,
			old_value,
			new_value,
			comment,
			timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := ex.ExecContext(ctx,
		query,
		entry.HistoryID,
		entry.AlertID,
		entry.Action,
		entry.UserID,
		entry.OldValue,
		entry.NewValue,
		entry.Comment,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert history: %w", err)
	}

	return nil
}

// AlertHistoryRepository 报警历史仓库（只追加，不修改）
type AlertHistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertHistoryRepository 创建报警历史仓库
func NewAlertHistoryRepository(db *sql.DB, logger *zap.Logger) *AlertHistoryRepository {
	return &AlertHistoryRepository{
		db:     db,
		logger: logger,
	}
}

// CreateEntry 追加单条历史记录（独立于状态变更的场景，如删除审计）
func (r *AlertHistoryRepository) CreateEntry(ctx context.Context, entry *models.AlertHistoryEntry) error {
	if entry == nil {
		return fmt.Errorf("history entry is required")
	}
	return insertHistoryEntry(ctx, r.db, entry)
}

// ListByAlert 按报警查询历史记录（时间正序，完整追溯链）
func (r *AlertHistoryRepository) ListByAlert(ctx context.Context, alertID string) ([]*models.AlertHistoryEntry, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT
			history_id,
			alert_id,
			action,
			user_id,
			old_value,
			new_value,
			comment,
			timestamp
		FROM alert_history
		WHERE alert_id = $1
		ORDER BY timestamp ASC
	`

	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert history: %w", err)
	}
	defer rows.Close()

	entries := []*models.AlertHistoryEntry{}
	for rows.Next() {
		var entry models.AlertHistoryEntry
		var userID, oldValue, newValue, comment sql.NullString

		err := rows.Scan(
			&entry.HistoryID,
			&entry.AlertID,
			&entry.Action,
			&userID,
			&oldValue,
			&newValue,
			&comment,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}

		if userID.Valid {
			entry.UserID = &userID.String
		}
		entry.OldValue = oldValue.String
		entry.NewValue = newValue.String
		if comment.Valid {
			entry.Comment = &comment.String
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history entries: %w", err)
	}

	return entries, nil
}
