package alerts

import (
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"
	"os"
	"strings"
)

type smtpConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

var mailCfg smtpConfig

// ConfigureMailerFromEnv loads SMTP configuration from environment
// variables: SMTP_HOST, SMTP_PORT, SMTP_USERNAME, SMTP_PASSWORD,
// SMTP_FROM. With PLUNK_API_KEY set, delivery goes through Plunk and
// SMTP settings are not needed.
func ConfigureMailerFromEnv() error {
	mailCfg = smtpConfig{
		Host:     os.Getenv("SMTP_HOST"),
		Port:     os.Getenv("SMTP_PORT"),
		Username: os.Getenv("SMTP_USERNAME"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
	}
	if os.Getenv("PLUNK_API_KEY") != "" {
		return nil
	}
	if mailCfg.Host == "" || mailCfg.Port == "" || mailCfg.From == "" {
		return fmt.Errorf("mailer not configured: set SMTP_HOST, SMTP_PORT and SMTP_FROM, or PLUNK_API_KEY")
	}
	return nil
}

// SendEmail sends a plain text email. Prefers Plunk when configured,
// falls back to SMTP over TLS; with neither configured the mail is
// logged and dropped so dev environments keep working.
func SendEmail(to, subject, body string) error {
	if os.Getenv("PLUNK_API_KEY") != "" {
		return sendViaPlunk(to, subject, body)
	}
	if mailCfg.Host == "" {
		log.Printf("[mail][dev] to=%s subject=%q", to, subject)
		return nil
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", mailCfg.From, to, subject)
	msg += "MIME-Version: 1.0\r\n"
	contentType := "text/plain"
	if lb := strings.ToLower(body); strings.Contains(lb, "<html") || strings.Contains(lb, "<body") {
		contentType = "text/html"
	}
	msg += fmt.Sprintf("Content-Type: %s; charset=\"utf-8\"\r\n\r\n%s\r\n", contentType, body)

	addr := mailCfg.Host + ":" + mailCfg.Port
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: mailCfg.Host})
	if err != nil {
		return fmt.Errorf("smtp dial: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, mailCfg.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if mailCfg.Username != "" {
		auth := smtp.PlainAuth("", mailCfg.Username, mailCfg.Password, mailCfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(mailCfg.From); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err = wc.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	return c.Quit()
}
