package notifier

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"

	"deal-ranker/internal/model"
)

// EmailConfig 邮件配置。
type EmailConfig struct {
	Host     string   `yaml:"host" json:"host"`
	Port     int      `yaml:"port" json:"port"`
	Username string   `yaml:"username" json:"username"`
	Password string   `yaml:"password" json:"password"`
	From     string   `yaml:"from" json:"from"`
	To       []string `yaml:"to" json:"to"`
	Subject  string   `yaml:"subject" json:"subject"`
	TopN     int      `yaml:"top_n" json:"top_n"`
}

// EmailMessage 表示一封邮件。
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// EmailSender 抽象发送接口，便于测试替换。
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// SMTPClient 封装 SMTP 发送。
type SMTPClient struct {
	addr string
	auth smtp.Auth
}

func NewSMTPClient(cfg EmailConfig) *SMTPClient {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return &SMTPClient{addr: addr, auth: auth}
}

// Send net/smtp 不支持 ctx，只在发送前检查是否已取消。
func (c *SMTPClient) Send(ctx context.Context, msg EmailMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("send mail: no recipients")
	}
	data := buildEmailData(msg)
	if err := smtp.SendMail(c.addr, c.auth, msg.From, msg.To, []byte(data)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// EmailNotifier 将排名靠前的结果汇总成一封邮件。
type EmailNotifier struct {
	cfg    EmailConfig
	sender EmailSender
}

// NewEmailNotifier 创建 EmailNotifier。
func NewEmailNotifier(cfg EmailConfig, sender EmailSender) *EmailNotifier {
	if sender == nil {
		sender = NewSMTPClient(cfg)
	}
	if cfg.Subject == "" {
		cfg.Subject = "Deal ranking"
	}
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &EmailNotifier{cfg: cfg, sender: sender}
}

// Notify 结果为空时跳过。
func (n EmailNotifier) Notify(ctx context.Context, d Digest) error {
	if len(d.Ranked) == 0 {
		return nil
	}

	msg := EmailMessage{
		From:    n.cfg.From,
		To:      n.cfg.To,
		Subject: fmt.Sprintf("%s: %s", n.cfg.Subject, d.Query),
		Body:    buildBody(d, n.cfg.TopN),
	}
	return n.sender.Send(ctx, msg)
}

func buildBody(d Digest, limit int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Top results for %q:\n", d.Query))
	if d.Fallback {
		b.WriteString("(ranking unavailable, sorted by price)\n")
	}
	for i, r := range top(d.Ranked, limit) {
		l := r.Listing
		b.WriteString(fmt.Sprintf("\n%d. %s\n   %s %.2f | score %.2f | %s\n   %s\n", i+1, l.Title, l.Price.Currency, l.Price.Value, r.ScoreTotal, l.Source, l.URL))
		for _, bullet := range r.ExplanationBullets {
			b.WriteString(fmt.Sprintf("   %s %s\n", bulletMark(bullet.Type), bullet.Text))
		}
	}
	return b.String()
}

func bulletMark(t model.BulletType) string {
	switch t {
	case model.BulletPositive:
		return "+"
	case model.BulletNegative:
		return "-"
	}
	return "*"
}

// buildEmailData 非 ASCII 主题按 RFC 2047 编码。
func buildEmailData(msg EmailMessage) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ",")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject)))
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
