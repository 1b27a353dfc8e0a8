package notify

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer sends notification emails. Implementations must truncate nothing
// the worker retry policy depends on; errors are retryable.
type Mailer interface {
	SendNewMessage(to, senderName, text string) error
}

// SMTPMailer sends mail through a plain SMTP endpoint with optional auth.
type SMTPMailer struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

var _ Mailer = (*SMTPMailer)(nil)

// SendNewMessage emails a new-chat-message notification to the recipient.
func (m *SMTPMailer) SendNewMessage(to, senderName, text string) error {
	if to == "" {
		return nil
	}

	preview := text
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}

	subject := fmt.Sprintf("New message from %s", senderName)
	body := fmt.Sprintf(
		"<div style=\"font-family: Arial, sans-serif; color: #333;\">"+
			"<h2>You have a new message</h2>"+
			"<p><strong>%s</strong> sent you a message:</p>"+
			"<blockquote>%s</blockquote>"+
			"<p style=\"font-size: 0.9em; color: #888;\">Open StudyVerse to reply.</p>"+
			"</div>",
		htmlEscape(senderName), htmlEscape(preview),
	)

	msg := strings.Join([]string{
		"From: " + m.From,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		body,
	}, "\r\n")

	addr := fmt.Sprintf("%s:%d", m.Host, m.Port)
	var auth smtp.Auth
	if m.User != "" {
		auth = smtp.PlainAuth("", m.User, m.Pass, m.Host)
	}
	return smtp.SendMail(addr, auth, envelopeAddress(m.From), []string{to}, []byte(msg))
}

// envelopeAddress strips a display name ("Name <a@b>" -> "a@b") for the
// SMTP MAIL FROM command.
func envelopeAddress(from string) string {
	if i := strings.LastIndex(from, "<"); i >= 0 {
		if j := strings.LastIndex(from, ">"); j > i {
			return from[i+1 : j]
		}
	}
	return from
}

func htmlEscape(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
	)
	return r.Replace(s)
}
