// Package mail sends notification emails through Postmark or plain SMTP.
package mail

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"github.com/keighl/postmark"
)

type Message struct {
	To      string
	Subject string
	Text    string
}

// Postmark sends through the Postmark API.
type Postmark struct {
	client *postmark.Client
	from   string
}

func NewPostmark(serverToken, from string) *Postmark {
	return &Postmark{client: postmark.NewClient(serverToken, ""), from: from}
}

func (p *Postmark) Send(_ context.Context, m Message) error {
	_, err := p.client.SendEmail(postmark.Email{
		From:     p.from,
		To:       m.To,
		Subject:  m.Subject,
		TextBody: m.Text,
		HtmlBody: "<p>" + strings.ReplaceAll(html.EscapeString(m.Text), "\n", "<br>") + "</p>",
		Tag:      "payments",
	})
	if err != nil {
		return fmt.Errorf("postmark send to %s: %w", m.To, err)
	}
	return nil
}

// SMTP sends with PLAIN auth against a relay.
type SMTP struct {
	addr     string
	host     string
	from     string
	password string
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTP(host, port, from, password string) *SMTP {
	return &SMTP{addr: host + ":" + port, host: host, from: from, password: password, send: smtp.SendMail}
}

func (s *SMTP) Send(_ context.Context, m Message) error {
	auth := smtp.PlainAuth("", s.from, s.password, s.host)
	message := []byte("Subject: " + headerSafe(m.Subject) + "\r\n" +
		"From: " + s.from + "\r\n" +
		"To: " + headerSafe(m.To) + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		m.Text + "\r\n")

	if err := s.send(s.addr, auth, s.from, []string{m.To}, message); err != nil {
		return fmt.Errorf("smtp send to %s: %w", m.To, err)
	}
	return nil
}

func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// Discard drops every message. Used when no mail transport is configured.
type Discard struct{}

func (Discard) Send(context.Context, Message) error { return nil }
