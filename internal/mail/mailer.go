// Package mail renders and delivers the API's transactional email.
//
// Flows hand a Message to a Mailer. Which Mailer runs is a deployment
// choice: SMTPMailer talks to a relay directly, KafkaMailer publishes the
// rendered message for a separate mail worker, and LogMailer only records
// that a message would have been sent.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
)

const (
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"
)

var subjects = map[string]string{
	TemplateVerifyEmail:   "Email Verification",
	TemplateResetPassword: "Password Reset",
}

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Message is one email to one recipient. Vars feed the template.
type Message struct {
	Template string
	To       string
	Vars     map[string]string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Render returns the subject and HTML body for msg.
func Render(msg Message) (subject, body string, err error) {
	subject, ok := subjects[msg.Template]
	if !ok {
		return "", "", fmt.Errorf("mail: unknown template %q", msg.Template)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, msg.Template+".html", msg.Vars); err != nil {
		return "", "", fmt.Errorf("mail: rendering %s: %w", msg.Template, err)
	}
	return subject, buf.String(), nil
}
