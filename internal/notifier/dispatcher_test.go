package notifier

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"netmon-alert/internal/config"
	"netmon-alert/internal/models"
	"netmon-alert/internal/repository"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testAlert(severity models.Severity) *models.Alert {
	metricID := "cpu_usage"
	now := time.Now()
	return &models.Alert{
		AlertID:         uuid.New().String(),
		DeviceID:        "device-001",
		MetricID:        &metricID,
		Severity:        severity,
		Status:          models.StatusActive,
		Message:         "CPU Usage is 97.5% (critical)",
		OccurrenceCount: 1,
		CreatedAt:       now,
		LastOccurrence:  now,
		UpdatedAt:       now,
	}
}

// newTestDispatcher 构建带 mock 通知仓库和 miniredis 的分发器
func newTestDispatcher(t *testing.T, cfg *config.NotificationsConfig) (*Dispatcher, sqlmock.Sqlmock, *redis.Client) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.MatchExpectationsInOrder(false)

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	notifications := repository.NewNotificationsRepository(db, zap.NewNop())
	d, err := NewDispatcher(cfg, notifications, redisClient, nil, zap.NewNop())
	require.NoError(t, err)

	return d, mock, redisClient
}

// expectNotificationSent 一次成功投递：pending 落库 + 标记 sent
func expectNotificationSent(mock sqlmock.Sqlmock) {
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE notifications(.+)status = 'sent'").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func webhookConfig(url string, secret string, eventTypes []string) *config.NotificationsConfig {
	return &config.NotificationsConfig{
		Enabled:     true,
		EventStream: "netmon:alerts:events",
		Channels: []models.NotificationChannel{
			{
				Name:       "ops-webhook",
				Type:       "webhook",
				Enabled:    true,
				WebhookURL: url,
				Secret:     secret,
				Recipients: models.RecipientGroups{
					Standard:   []string{"standard@example.com"},
					Immediate:  []string{"oncall@example.com"},
					Escalation: []string{"manager@example.com"},
				},
			},
		},
		Rules: []models.NotificationRule{
			{
				Name:       "all-alerts",
				Enabled:    true,
				EventTypes: eventTypes,
				Channels:   []string{"ops-webhook"},
			},
		},
	}
}

func TestDispatch_WebhookDelivery(t *testing.T) {
	received := make(chan *http.Request, 1)
	bodies := make(chan []byte, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- r
		bodies <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := webhookConfig(server.URL, "test-secret", []string{models.EventAlertCreated})
	d, mock, redisClient := newTestDispatcher(t, cfg)
	expectNotificationSent(mock)

	alert := testAlert(models.SeverityCritical)
	result, err := d.Dispatch(context.Background(), alert, models.EventAlertCreated)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops-webhook"}, result.Matched)
	assert.Equal(t, []string{"ops-webhook"}, result.Sent)
	assert.Empty(t, result.Failed)
	assert.True(t, result.Success)

	// 请求体和签名
	req := <-received
	body := <-bodies
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, Sign("test-secret", body), req.Header.Get("X-Signature"))

	var payload webhookPayload
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, models.EventAlertCreated, payload.EventType)
	assert.Equal(t, alert.AlertID, payload.Alert.AlertID)

	// 事件同时发布到 Redis Streams
	count, err := redisClient.XLen(context.Background(), "netmon:alerts:events").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// 所有命中通道都失败时返回 ErrChannelDispatch
func TestDispatch_AllChannelsFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := webhookConfig(server.URL, "", []string{models.EventAlertCreated})
	d, mock, _ := newTestDispatcher(t, cfg)
	mock.ExpectExec("INSERT INTO notifications").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE notifications(.+)status = 'error'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := d.Dispatch(context.Background(), testAlert(models.SeverityWarning), models.EventAlertCreated)
	assert.ErrorIs(t, err, models.ErrChannelDispatch)
	assert.Equal(t, []string{"ops-webhook"}, result.Failed)
	assert.Empty(t, result.Sent)
	assert.False(t, result.Success)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// 多通道部分失败：整体成功，成功/失败按通道区分，每个通道一条对应状态的记录
func TestDispatch_PartialChannelFailure(t *testing.T) {
	okServer1 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer1.Close()
	okServer2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okServer2.Close()
	failServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failServer.Close()

	cfg := &config.NotificationsConfig{
		Enabled:     true,
		EventStream: "netmon:alerts:events",
		Channels: []models.NotificationChannel{
			{Name: "webhook-a", Type: "webhook", Enabled: true, WebhookURL: okServer1.URL},
			{Name: "webhook-b", Type: "webhook", Enabled: true, WebhookURL: failServer.URL},
			{Name: "webhook-c", Type: "webhook", Enabled: true, WebhookURL: okServer2.URL},
		},
		Rules: []models.NotificationRule{
			{
				Name:       "all-channels",
				Enabled:    true,
				EventTypes: []string{models.EventAlertCreated},
				Channels:   []string{"webhook-a", "webhook-b", "webhook-c"},
			},
		},
	}

	d, mock, _ := newTestDispatcher(t, cfg)
	// 三条 pending 记录，两条 sent，一条 error
	for i := 0; i < 3; i++ {
		mock.ExpectExec("INSERT INTO notifications").
			WillReturnResult(sqlmock.NewResult(0, 1))
	}
	mock.ExpectExec("UPDATE notifications(.+)status = 'sent'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE notifications(.+)status = 'sent'").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE notifications(.+)status = 'error'").
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, err := d.Dispatch(context.Background(), testAlert(models.SeverityCritical), models.EventAlertCreated)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Len(t, result.Matched, 3)
	assert.ElementsMatch(t, []string{"webhook-a", "webhook-c"}, result.Sent)
	assert.Equal(t, []string{"webhook-b"}, result.Failed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// 低于通道最低级别的事件不投递
func TestDispatch_MinSeverityGate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("channel should not be called")
	}))
	defer server.Close()

	cfg := webhookConfig(server.URL, "", []string{models.EventAlertCreated})
	cfg.Channels[0].MinSeverity = models.SeverityCritical
	d, mock, _ := newTestDispatcher(t, cfg)

	result, err := d.Dispatch(context.Background(), testAlert(models.SeverityWarning), models.EventAlertCreated)
	require.NoError(t, err)
	assert.Equal(t, []string{"ops-webhook"}, result.Matched)
	assert.Empty(t, result.Sent)
	assert.Empty(t, result.Failed)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// 事件类型没有命中任何规则
func TestDispatch_NoRuleMatch(t *testing.T) {
	cfg := webhookConfig("http://unused.example.com", "", []string{models.EventAlertCreated})
	d, mock, _ := newTestDispatcher(t, cfg)

	result, err := d.Dispatch(context.Background(), testAlert(models.SeverityWarning), models.EventAlertClosed)
	require.NoError(t, err)
	assert.Empty(t, result.Matched)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// 通知总开关关闭时不做任何事
func TestDispatch_Disabled(t *testing.T) {
	cfg := webhookConfig("http://unused.example.com", "", []string{models.EventAlertCreated})
	cfg.Enabled = false
	d, mock, redisClient := newTestDispatcher(t, cfg)

	result, err := d.Dispatch(context.Background(), testAlert(models.SeverityCritical), models.EventAlertCreated)
	require.NoError(t, err)
	assert.Empty(t, result.Matched)

	count, _ := redisClient.XLen(context.Background(), "netmon:alerts:events").Result()
	assert.Equal(t, int64(0), count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMatchRule_ConditionFilter(t *testing.T) {
	rule := &models.NotificationRule{
		Name:       "critical-only",
		Enabled:    true,
		EventTypes: []string{models.EventAlertCreated},
		Condition:  map[string]string{"severity": "critical"},
		Channels:   []string{"ops-webhook"},
	}

	assert.True(t, matchRule(rule, testAlert(models.SeverityCritical), models.EventAlertCreated))
	assert.False(t, matchRule(rule, testAlert(models.SeverityWarning), models.EventAlertCreated))
	assert.False(t, matchRule(rule, testAlert(models.SeverityCritical), models.EventAlertResolved))

	rule.Enabled = false
	assert.False(t, matchRule(rule, testAlert(models.SeverityCritical), models.EventAlertCreated))
}

func TestSelectRecipients_BySeverity(t *testing.T) {
	ch := &models.NotificationChannel{
		Recipients: models.RecipientGroups{
			Standard:   []string{"standard@example.com"},
			Immediate:  []string{"oncall@example.com"},
			Escalation: []string{"manager@example.com"},
		},
	}

	// critical 走即时 + 升级组
	assert.Equal(t, []string{"oncall@example.com", "manager@example.com"},
		selectRecipients(ch, models.SeverityCritical))
	// high 只走即时组
	assert.Equal(t, []string{"oncall@example.com"}, selectRecipients(ch, models.SeverityHigh))
	// 其余走常规组
	assert.Equal(t, []string{"standard@example.com"}, selectRecipients(ch, models.SeverityWarning))
	assert.Equal(t, []string{"standard@example.com"}, selectRecipients(ch, models.SeverityInfo))
}

func TestFormatMessage(t *testing.T) {
	alert := testAlert(models.SeverityCritical)
	alert.OccurrenceCount = 3

	msg := formatMessage(alert, models.EventAlertCreated)
	assert.Contains(t, msg, "[CRITICAL]")
	assert.Contains(t, msg, "device-001/cpu_usage")
	assert.Contains(t, msg, "occurred 3 times")

	reason := models.ResolutionReasonAutoResolved
	alert.ResolutionReason = &reason
	msg = formatMessage(alert, models.EventAlertResolved)
	assert.Contains(t, msg, "[RESOLVED]")
	assert.Contains(t, msg, "auto_resolved")
}
