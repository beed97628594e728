package evaluator

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"netmon-alert/internal/models"
	"netmon-alert/internal/repository"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupReconciler(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *Reconciler) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	alerts := repository.NewAlertsRepository(db, zap.NewNop())
	return db, mock, NewReconciler(alerts, zap.NewNop())
}

var alertColumnNames = []string{
	"alert_id", "device_id", "metric_id", "service_check_id",
	"severity", "status", "message", "occurrence_count",
	"created_at", "last_occurrence",
	"acknowledged_by", "acknowledged_at", "resolved_by", "resolved_at",
	"resolution_reason", "updated_at",
}

func activeAlertRow(alertID string, count int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(alertColumnNames).
		AddRow(alertID, "device-001", "cpu_usage", nil,
			"warning", "active", "cpu_usage above threshold", count,
			now, now, nil, nil, nil, nil, nil, now)
}

func testCandidate() *models.AlertCandidate {
	return &models.AlertCandidate{
		DeviceID: "device-001",
		MetricID: "cpu_usage",
		Severity: models.SeverityWarning,
		Value:    85.0,
		Message:  "CPU Usage is 85% (warning)",
	}
}

// 没有活跃报警时新建，occurrence_count 从 1 开始
func TestReconcile_CreatesNewAlert(t *testing.T) {
	db, mock, r := setupReconciler(t)
	defer db.Close()

	mock.ExpectQuery("SELECT(.+)FROM alerts(.+)status = 'active'").
		WithArgs("device-001", "cpu_usage").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO alerts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO alert_history").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	alert, created, err := r.Reconcile(context.Background(), testCandidate(), time.Now())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.StatusActive, alert.Status)
	assert.Equal(t, 1, alert.OccurrenceCount)
	assert.NotEmpty(t, alert.AlertID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// 已有活跃报警时合并：不新建，occurrence_count 累加
func TestReconcile_FoldsIntoActiveAlert(t *testing.T) {
	db, mock, r := setupReconciler(t)
	defer db.Close()

	alertID := uuid.New().String()
	mock.ExpectQuery("SELECT(.+)FROM alerts(.+)status = 'active'").
		WithArgs("device-001", "cpu_usage").
		WillReturnRows(activeAlertRow(alertID, 3))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE alerts(.+)occurrence_count = occurrence_count \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO alert_history").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	candidate := testCandidate()
	candidate.Severity = models.SeverityCritical
	candidate.Message = "CPU Usage is 97% (critical)"

	alert, created, err := r.Reconcile(context.Background(), candidate, time.Now())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, alertID, alert.AlertID)
	assert.Equal(t, 4, alert.OccurrenceCount)
	// 级别和消息以最新观测为准
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "CPU Usage is 97% (critical)", alert.Message)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// 并发新建命中唯一索引时重查并合并，不向上抛错
func TestReconcile_UniqueViolationFallsBackToFold(t *testing.T) {
	db, mock, r := setupReconciler(t)
	defer db.Close()

	// 第一次检查没有活跃报警
	mock.ExpectQuery("SELECT(.+)FROM alerts(.+)status = 'active'").
		WillReturnError(sql.ErrNoRows)

	// 插入命中唯一索引（另一个评估协程刚创建）
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO alerts").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uniq_alerts_active_device_metric"})
	mock.ExpectRollback()

	// 重查拿到并发创建的报警，合并
	alertID := uuid.New().String()
	mock.ExpectQuery("SELECT(.+)FROM alerts(.+)status = 'active'").
		WillReturnRows(activeAlertRow(alertID, 1))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE alerts").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO alert_history").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	alert, created, err := r.Reconcile(context.Background(), testCandidate(), time.Now())
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, alertID, alert.AlertID)
	assert.Equal(t, 2, alert.OccurrenceCount)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReconcile_MissingCandidateFields(t *testing.T) {
	db, _, r := setupReconciler(t)
	defer db.Close()

	_, _, err := r.Reconcile(context.Background(), &models.AlertCandidate{DeviceID: "device-001"}, time.Now())
	assert.Error(t, err)
}
