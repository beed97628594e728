package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"netmon-alert/internal/models"
)

// MQTTPublisher 解耦实际的 MQTT 连接（internal/mqtt.Client 实现）
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// MQTTSender MQTT 通知通道（发布到报警主题，网关/本地面板订阅）
type MQTTSender struct {
	publisher MQTTPublisher
	topic     string
	qos       byte
}

// NewMQTTSender 根据通道配置创建 MQTT 发送器
func NewMQTTSender(publisher MQTTPublisher, ch *models.NotificationChannel) *MQTTSender {
	return &MQTTSender{
		publisher: publisher,
		topic:     ch.Topic,
		qos:       ch.QoS,
	}
}

// Send 发布报警消息
func (s *MQTTSender) Send(ctx context.Context, alert *models.Alert, eventType, message string, recipients []string) error {
	if s.publisher == nil {
		return fmt.Errorf("mqtt publisher not configured")
	}

	payload, err := json.Marshal(map[string]interface{}{
		"event_type": eventType,
		"message":    message,
		"alert":      alert,
		"timestamp":  time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mqtt payload: %w", err)
	}

	if err := s.publisher.Publish(s.topic, s.qos, false, payload); err != nil {
		return fmt.Errorf("mqtt publish failed: %w", err)
	}

	return nil
}
