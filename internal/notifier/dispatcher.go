package notifier

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"netmon-alert/internal/config"
	"netmon-alert/internal/database"
	"netmon-alert/internal/models"
	"netmon-alert/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender 单个通知通道的发送接口
type Sender interface {
	Send(ctx context.Context, alert *models.Alert, eventType, message string, recipients []string) error
}

// Dispatcher 通知分发器
// 规则匹配 → 级别过滤 → 接收人选择 → 并发投递，每个通道一条通知记录
type Dispatcher struct {
	cfg           *config.NotificationsConfig
	channels      map[string]*models.NotificationChannel
	senders       map[string]Sender
	notifications *repository.NotificationsRepository
	redisClient   *redis.Client
	logger        *zap.Logger
}

// NewDispatcher 创建通知分发器
// mqttPublisher 可以为 nil（未配置 MQTT 通道时）
func NewDispatcher(
	cfg *config.NotificationsConfig,
	notifications *repository.NotificationsRepository,
	redisClient *redis.Client,
	mqttPublisher MQTTPublisher,
	logger *zap.Logger,
) (*Dispatcher, error) {
	d := &Dispatcher{
		cfg:           cfg,
		channels:      make(map[string]*models.NotificationChannel),
		senders:       make(map[string]Sender),
		notifications: notifications,
		redisClient:   redisClient,
		logger:        logger,
	}

	for i := range cfg.Channels {
		ch := &cfg.Channels[i]
		d.channels[ch.Name] = ch

		switch ch.Type {
		case "email":
			d.senders[ch.Name] = NewEmailSender(ch)
		case "webhook":
			d.senders[ch.Name] = NewWebhookSender(ch)
		case "slack":
			d.senders[ch.Name] = NewSlackSender(ch)
		case "mqtt":
			d.senders[ch.Name] = NewMQTTSender(mqttPublisher, ch)
		default:
			return nil, fmt.Errorf("unknown channel type: %s", ch.Type)
		}
	}

	return d, nil
}

// matchRule 规则是否命中该事件
func matchRule(rule *models.NotificationRule, alert *models.Alert, eventType string) bool {
	if !rule.Enabled {
		return false
	}

	eventMatched := false
	for _, et := range rule.EventTypes {
		if et == eventType {
			eventMatched = true
			break
		}
	}
	if !eventMatched {
		return false
	}

	// 条件为等值过滤，全部满足才命中
	for key, want := range rule.Condition {
		switch key {
		case "severity":
			if string(alert.Severity) != want {
				return false
			}
		case "device_id":
			if alert.DeviceID != want {
				return false
			}
		case "metric_id":
			if alert.MetricID == nil || *alert.MetricID != want {
				return false
			}
		default:
			return false
		}
	}

	return true
}

// selectRecipients 按级别选择接收人分组
// critical 走即时 + 升级组，high 走即时组，其余走常规组
func selectRecipients(ch *models.NotificationChannel, severity models.Severity) []string {
	switch severity {
	case models.SeverityCritical:
		recipients := append([]string{}, ch.Recipients.Immediate...)
		return append(recipients, ch.Recipients.Escalation...)
	case models.SeverityHigh:
		return ch.Recipients.Immediate
	default:
		return ch.Recipients.Standard
	}
}

// formatMessage 构建通知文本
func formatMessage(alert *models.Alert, eventType string) string {
	target := alert.DeviceID
	if alert.MetricID != nil {
		target = fmt.Sprintf("%s/%s", alert.DeviceID, *alert.MetricID)
	}

	switch eventType {
	case models.EventAlertResolved:
		reason := ""
		if alert.ResolutionReason != nil {
			reason = fmt.Sprintf(" (%s)", *alert.ResolutionReason)
		}
		return fmt.Sprintf("[RESOLVED] %s: %s%s", target, alert.Message, reason)
	case models.EventAlertAcknowledged:
		by := ""
		if alert.AcknowledgedBy != nil {
			by = fmt.Sprintf(" by %s", *alert.AcknowledgedBy)
		}
		return fmt.Sprintf("[ACKNOWLEDGED] %s: %s%s", target, alert.Message, by)
	default:
		return fmt.Sprintf("[%s] %s: %s (occurred %d times)",
			strings.ToUpper(string(alert.Severity)), target, alert.Message, alert.OccurrenceCount)
	}
}

// Dispatch 分发报警事件到全部命中的通道
// 所有命中通道都失败时返回 ErrChannelDispatch，部分失败只记入结果
func (d *Dispatcher) Dispatch(ctx context.Context, alert *models.Alert, eventType string) (*models.DispatchResult, error) {
	result := &models.DispatchResult{EventType: eventType}

	if !d.cfg.Enabled {
		return result, nil
	}

	// 收集命中规则的通道（去重）
	seen := make(map[string]bool)
	for i := range d.cfg.Rules {
		rule := &d.cfg.Rules[i]
		if !matchRule(rule, alert, eventType) {
			continue
		}
		for _, name := range rule.Channels {
			if !seen[name] {
				seen[name] = true
				result.Matched = append(result.Matched, name)
			}
		}
	}

	message := formatMessage(alert, eventType)

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, name := range result.Matched {
		ch := d.channels[name]
		if ch == nil || !ch.Enabled {
			continue
		}

		// 低于通道最低级别的事件不投递
		if ch.MinSeverity != "" && alert.Severity.Rank() < ch.MinSeverity.Rank() {
			d.logger.Debug("Channel skipped by min severity",
				zap.String("channel", name),
				zap.String("severity", string(alert.Severity)))
			continue
		}

		recipients := selectRecipients(ch, alert.Severity)

		wg.Add(1)
		go func(name string, ch *models.NotificationChannel, recipients []string) {
			defer wg.Done()

			sent := d.deliver(ctx, name, alert, eventType, message, recipients)

			mu.Lock()
			if sent {
				result.Sent = append(result.Sent, name)
			} else {
				result.Failed = append(result.Failed, name)
			}
			mu.Unlock()
		}(name, ch, recipients)
	}

	wg.Wait()

	result.Success = len(result.Sent) > 0

	d.publishEvent(ctx, alert, eventType, message)

	if len(result.Matched) > 0 && len(result.Sent) == 0 && len(result.Failed) > 0 {
		return result, fmt.Errorf("%w: all %d channels failed", models.ErrChannelDispatch, len(result.Failed))
	}

	return result, nil
}

// deliver 单通道投递：先落 pending 记录，投递后更新为 sent/error
func (d *Dispatcher) deliver(ctx context.Context, channelName string, alert *models.Alert, eventType, message string, recipients []string) bool {
	notification := &models.Notification{
		NotificationID: uuid.New().String(),
		ChannelName:    channelName,
		AlertID:        &alert.AlertID,
		EventType:      eventType,
		Message:        message,
		Status:         models.NotificationPending,
		Recipients:     recipients,
		CreatedAt:      time.Now(),
	}

	if err := d.notifications.CreateNotification(ctx, notification); err != nil {
		d.logger.Error("Failed to create notification record",
			zap.String("channel", channelName),
			zap.Error(err))
		return false
	}

	sender := d.senders[channelName]
	if err := sender.Send(ctx, alert, eventType, message, recipients); err != nil {
		d.logger.Warn("Notification delivery failed",
			zap.String("channel", channelName),
			zap.String("alert_id", alert.AlertID),
			zap.Error(err))

		if markErr := d.notifications.MarkError(ctx, notification.NotificationID, err.Error()); markErr != nil {
			d.logger.Error("Failed to mark notification error", zap.Error(markErr))
		}
		return false
	}

	if err := d.notifications.MarkSent(ctx, notification.NotificationID, time.Now()); err != nil {
		d.logger.Error("Failed to mark notification sent", zap.Error(err))
	}

	d.logger.Info("Notification sent",
		zap.String("channel", channelName),
		zap.String("alert_id", alert.AlertID),
		zap.String("event_type", eventType),
		zap.Int("recipients", len(recipients)))

	return true
}

// publishEvent 发布报警事件到 Redis Streams（面板聚合、审计消费）
func (d *Dispatcher) publishEvent(ctx context.Context, alert *models.Alert, eventType, message string) {
	if d.redisClient == nil || d.cfg.EventStream == "" {
		return
	}

	_, err := database.PublishJSONToStream(ctx, d.redisClient, d.cfg.EventStream, map[string]interface{}{
		"event_type": eventType,
		"alert_id":   alert.AlertID,
		"device_id":  alert.DeviceID,
		"metric_id":  alert.MetricID,
		"severity":   alert.Severity,
		"status":     alert.Status,
		"message":    message,
	})
	if err != nil {
		d.logger.Warn("Failed to publish alert event to stream",
			zap.String("stream", d.cfg.EventStream),
			zap.Error(err))
	}
}
