package notifier

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"netmon-alert/internal/models"
)

// smtpSendFunc 便于测试时替换实际的 SMTP 发送
type smtpSendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailSender SMTP 邮件通道
type EmailSender struct {
	host     string
	port     int
	username string
	password string
	from     string

	send smtpSendFunc
}

// NewEmailSender 根据通道配置创建邮件发送器
func NewEmailSender(ch *models.NotificationChannel) *EmailSender {
	return &EmailSender{
		host:     ch.SMTPHost,
		port:     ch.SMTPPort,
		username: ch.SMTPUser,
		password: ch.SMTPPassword,
		from:     ch.From,
		send:     smtp.SendMail,
	}
}

// Send 发送报警邮件
func (s *EmailSender) Send(ctx context.Context, alert *models.Alert, eventType, message string, recipients []string) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients configured")
	}

	subject := fmt.Sprintf("[%s] Alert on %s", strings.ToUpper(string(alert.Severity)), alert.DeviceID)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", s.from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(recipients, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(message)
	b.WriteString("\r\n")

	var auth smtp.Auth
	if s.username != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	if err := s.send(addr, auth, s.from, recipients, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	return nil
}
