package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"netmon-alert/internal/models"
)

// 级别对应的 attachment 颜色
var severityColors = map[models.Severity]string{
	models.SeverityInfo:     "#36C5F0",
	models.SeverityWarning:  "#ECB22E",
	models.SeverityHigh:     "#E8912D",
	models.SeverityCritical: "#E01E5A",
}

// SlackSender Slack incoming webhook 通道
type SlackSender struct {
	webhookURL string
	client     *http.Client
}

// NewSlackSender 根据通道配置创建 Slack 发送器
func NewSlackSender(ch *models.NotificationChannel) *SlackSender {
	return &SlackSender{
		webhookURL: ch.SlackWebhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	Fields []slackField `json:"fields"`
	Ts     int64        `json:"ts"`
}

type slackMessage struct {
	Attachments []slackAttachment `json:"attachments"`
}

// Send 发送 Slack 消息
func (s *SlackSender) Send(ctx context.Context, alert *models.Alert, eventType, message string, recipients []string) error {
	color, ok := severityColors[alert.Severity]
	if !ok {
		color = "#CCCCCC"
	}

	fields := []slackField{
		{Title: "Device", Value: alert.DeviceID, Short: true},
		{Title: "Severity", Value: strings.ToUpper(string(alert.Severity)), Short: true},
		{Title: "Status", Value: string(alert.Status), Short: true},
		{Title: "Occurrences", Value: fmt.Sprintf("%d", alert.OccurrenceCount), Short: true},
	}
	if alert.MetricID != nil {
		fields = append(fields, slackField{Title: "Metric", Value: *alert.MetricID, Short: true})
	}

	msg := slackMessage{
		Attachments: []slackAttachment{
			{
				Color:  color,
				Title:  fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), eventType),
				Text:   message,
				Fields: fields,
				Ts:     time.Now().Unix(),
			},
		},
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}

	return nil
}
