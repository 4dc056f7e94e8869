package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPProvider struct {
	cfg  Config
	send SendFunc
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{cfg: cfg, send: smtp.SendMail}
}

func (p *SMTPProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if p.cfg.Username != "" {
		auth = smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", p.cfg.Host, p.cfg.Port)

	return p.send(addr, auth, p.cfg.From, to, buildMessage(p.cfg.From, to, subject, htmlBody))
}

func (p *SMTPProvider) SendTemplate(ctx context.Context, to []string, templateName string, data interface{}) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, templateName+".html", data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return p.Send(ctx, to, subjectFor(templateName, data), body.String())
}

func buildMessage(from string, to []string, subject, htmlBody string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
	msg.WriteString(htmlBody)
	return msg.Bytes()
}

func subjectFor(templateName string, data interface{}) string {
	if dataMap, ok := data.(map[string]interface{}); ok {
		if subj, ok := dataMap["subject"].(string); ok && subj != "" {
			return subj
		}
		switch templateName {
		case TemplateReferralCode:
			if company, ok := dataMap["company_name"].(string); ok && company != "" {
				return fmt.Sprintf("Your referral code from %s", company)
			}
		case TemplateReferralInvite:
			if company, ok := dataMap["company_name"].(string); ok && company != "" {
				return fmt.Sprintf("You were referred to %s", company)
			}
		case TemplateHomeownerWelcome:
			if company, ok := dataMap["company_name"].(string); ok && company != "" {
				return fmt.Sprintf("%s invited you to their referral program", company)
			}
		}
	}
	return "Your referral code"
}
