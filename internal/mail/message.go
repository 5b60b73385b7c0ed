// Package mail queues and delivers staff emails.
package mail

import (
	"bytes"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"text/template"
	"time"

	"github.com/veator13/mybeachtrivia.com-sub001/internal/application"
)

// Message is a rendered plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

var templates = template.Must(template.New("mail").Option("missingkey=error").Parse(`
{{define "invite"}}Hi {{.first_name}},

You have been invited to join the Beach Trivia staff portal.
Set your password here:

{{.setup_url}}

This link expires {{.expires_at}}.

See you at the beach!
{{end}}
{{define "password_reset"}}Hi {{.first_name}},

Use this link to choose a new Beach Trivia password:

{{.setup_url}}

This link expires {{.expires_at}}. If you did not ask for this, ignore this email.
{{end}}
`))

// Render turns a queued job into a message.
func Render(job application.OutboundEmail) (Message, error) {
	to, err := mail.ParseAddress(job.To)
	if err != nil {
		return Message{}, fmt.Errorf("invalid recipient %q: %w", job.To, err)
	}
	if templates.Lookup(job.Template) == nil {
		return Message{}, fmt.Errorf("unknown mail template %q", job.Template)
	}
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, job.Template, job.Data); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", job.Template, err)
	}
	return Message{
		To:      to.Address,
		Subject: strings.TrimSpace(job.Subject),
		Body:    strings.TrimLeft(body.String(), "\n"),
	}, nil
}

// Bytes formats the message as an RFC 5322 document.
func (m Message) Bytes(date time.Time) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", m.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mimeHeader(m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))
	return buf.Bytes()
}

func mimeHeader(value string) string {
	for _, r := range value {
		if r > 127 {
			return mime.QEncoding.Encode("UTF-8", value)
		}
	}
	return value
}
