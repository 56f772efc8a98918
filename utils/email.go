package utils

import (
	"Go_Sentinel/config"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"net/smtp"

	"github.com/jordan-wright/email"
)

// Mailer sends failure alerts through SMTP.
type Mailer struct {
	host, port string
	user, pass string
	from, to   string
	useTLS     bool
	startTLS   bool
}

// NewMailer returns nil when alert mail is not configured.
func NewMailer(cfg config.Config) *Mailer {
	if cfg.AlertEmail == "" || cfg.SMTPHost == "" {
		return nil
	}
	return &Mailer{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		pass:     cfg.SMTPPass,
		from:     cfg.SMTPFrom,
		to:       cfg.AlertEmail,
		useTLS:   cfg.SMTPTLS || cfg.SMTPPort == "465",
		startTLS: cfg.SMTPStartTLS,
	}
}

// FailureMail builds the alert for a dataset that could not be downloaded.
func FailureMail(from, to, guid, title, reason string) *email.Email {
	e := email.NewEmail()
	e.From = from
	e.To = []string{to}
	e.Subject = fmt.Sprintf("Sentinel download failed: %s", title)
	e.Text = []byte(fmt.Sprintf("Dataset %s (%s) failed permanently.\n\n%s\n", title, guid, reason))
	e.HTML = []byte(`
		<h2>Sentinel download failed</h2>
		<p>Dataset <b>` + html.EscapeString(title) + `</b> (` + html.EscapeString(guid) + `) failed permanently.</p>
		<pre>` + html.EscapeString(reason) + `</pre>
	`)
	return e
}

// SendFailureAlert mails the configured alert address.
func (m *Mailer) SendFailureAlert(guid, title, reason string) error {
	if m.host == "" || m.port == "" || m.from == "" {
		return errors.New("smtp config missing")
	}
	e := FailureMail(m.from, m.to, guid, title, reason)

	addr := m.host + ":" + m.port
	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}
	tlsConfig := &tls.Config{ServerName: m.host}
	if m.useTLS {
		return e.SendWithTLS(addr, auth, tlsConfig)
	}
	if m.startTLS {
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}
