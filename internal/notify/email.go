package notify

import (
	"errors"
	"fmt"
	"net/smtp"
	"os"
	"strconv"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// EmailConfig selects and configures the outbound mail provider.
type EmailConfig struct {
	Provider    string // "smtp" or "sendgrid"
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
	APIKey      string
	Enabled     bool
}

// EmailConfigFromEnv reads the mail settings; email is disabled unless a
// provider is configured.
func EmailConfigFromEnv() EmailConfig {
	cfg := EmailConfig{
		Provider:    os.Getenv("WATEROPS_EMAIL_PROVIDER"),
		Host:        os.Getenv("WATEROPS_SMTP_HOST"),
		Username:    os.Getenv("WATEROPS_SMTP_USERNAME"),
		Password:    os.Getenv("WATEROPS_SMTP_PASSWORD"),
		FromAddress: os.Getenv("WATEROPS_EMAIL_FROM"),
		FromName:    os.Getenv("WATEROPS_EMAIL_FROM_NAME"),
		APIKey:      os.Getenv("WATEROPS_SENDGRID_API_KEY"),
	}
	if raw := os.Getenv("WATEROPS_SMTP_PORT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Port = v
		}
	}
	cfg.Enabled = cfg.Provider != ""
	return cfg
}

// Mailer sends transactional email (welcome mail, bill issued). Like the
// rest of the sink it is best effort; callers log and continue on error.
type Mailer struct {
	cfg EmailConfig
}

func NewMailer(cfg EmailConfig) *Mailer {
	return &Mailer{cfg: cfg}
}

func (m *Mailer) Send(to, subject, body string) error {
	if !m.cfg.Enabled {
		return errors.New("email not configured")
	}
	switch m.cfg.Provider {
	case "smtp":
		return m.sendSMTP(to, subject, body)
	case "sendgrid":
		return m.sendSendgrid(to, subject, body)
	default:
		return fmt.Errorf("unknown email provider: %s", m.cfg.Provider)
	}
}

func (m *Mailer) sendSMTP(to, subject, body string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	msg := []byte(fmt.Sprintf("To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=\"UTF-8\"\r\n"+
		"\r\n"+
		"%s\r\n", to, subject, body))

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	return smtp.SendMail(addr, auth, m.cfg.FromAddress, []string{to}, msg)
}

func (m *Mailer) sendSendgrid(to, subject, body string) error {
	from := mail.NewEmail(m.cfg.FromName, m.cfg.FromAddress)
	toEmail := mail.NewEmail("", to)
	message := mail.NewSingleEmail(from, subject, toEmail, body, body)
	client := sendgrid.NewSendClient(m.cfg.APIKey)
	resp, err := client.Send(message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid error: %d %s", resp.StatusCode, resp.Body)
	}
	return nil
}
