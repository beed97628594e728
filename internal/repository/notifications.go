package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"netmon-alert/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// NotificationsRepository 通知记录仓库
type NotificationsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationsRepository 创建通知记录仓库
func NewNotificationsRepository(db *sql.DB, logger *zap.Logger) *NotificationsRepository {
	return &NotificationsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateNotification 创建通知记录（状态 pending，投递前落库）
func (r *NotificationsRepository) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n == nil {
		return fmt.Errorf("notification is required")
	}
	if n.NotificationID == "" {
		return fmt.Errorf("notification_id is required")
	}
	if n.ChannelName == "" {
		return fmt.Errorf("channel_name is required")
	}
	if n.EventType == "" {
		return fmt.Errorf("event_type is required")
	}

	query := `
		INSERT INTO notifications (
			notification_id,
			channel_name,
			alert_id,
			event_type,
			message,
			status,
			recipients,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		n.NotificationID,
		n.ChannelName,
		n.AlertID,
		n.EventType,
		n.Message,
		n.Status,
		pq.Array(n.Recipients),
		n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

// MarkSent 标记通知投递成功
func (r *NotificationsRepository) MarkSent(ctx context.Context, notificationID string, sentAt time.Time) error {
	if notificationID == "" {
		return fmt.Errorf("notification_id is required")
	}

	query := `
		UPDATE notifications
		SET status = 'sent',
		    sent_at = $1,
		    error = NULL
		WHERE notification_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, sentAt, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("notification not found: notification_id=%s", notificationID)
	}

	return nil
}

// MarkError 标记通知投递失败并记录错误信息
func (r *NotificationsRepository) MarkError(ctx context.Context, notificationID string, errMsg string) error {
	if notificationID == "" {
		return fmt.Errorf("notification_id is required")
	}

	query := `
		UPDATE notifications
		SET status = 'error',
		    error = $1
		WHERE notification_id = $2
	`

	result, err := r.db.ExecContext(ctx, query, errMsg, notificationID)
	if err != nil {
		return fmt.Errorf("failed to mark notification error: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("notification not found: notification_id=%s", notificationID)
	}

	return nil
}

// ListByAlert 按报警查询通知记录（时间倒序）
func (r *NotificationsRepository) ListByAlert(ctx context.Context, alertID string) ([]*models.Notification, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT
			notification_id,
			channel_name,
			alert_id,
			event_type,
			message,
			status,
			recipients,
			error,
			created_at,
			sent_at
		FROM notifications
		WHERE alert_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, alertID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	notifications := []*models.Notification{}
	for rows.Next() {
		var n models.Notification
		var nAlertID, nErr sql.NullString
		var sentAt sql.NullTime

		err := rows.Scan(
			&n.NotificationID,
			&n.ChannelName,
			&nAlertID,
			&n.EventType,
			&n.Message,
			&n.Status,
			pq.Array(&n.Recipients),
			&nErr,
			&n.CreatedAt,
			&sentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		if nAlertID.Valid {
			n.AlertID = &nAlertID.String
		}
		if nErr.Valid {
			n.Error = &nErr.String
		}
		if sentAt.Valid {
			n.SentAt = &sentAt.Time
		}

		notifications = append(notifications, &n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}

	return notifications, nil
}

// CountByStatus 按状态统计通知数量（投递健康度）
func (r *NotificationsRepository) CountByStatus(ctx context.Context) (map[models.NotificationStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM notifications
		GROUP BY status
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.NotificationStatus]int)
	for rows.Next() {
		var status models.NotificationStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan notification count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification counts: %w", err)
	}

	return counts, nil
}
