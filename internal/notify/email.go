package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/ErlanBelekov/homebase/internal/email"
)

const defaultSubject = "Reminder"

var errNoRecipient = errors.New("no recipient: set payload recipient or EMAIL_TO")

var textTmpl = texttemplate.Must(texttemplate.New("text").Parse(
	`{{if .Title}}{{.Title}}

{{end}}{{if .Message}}{{.Message}}

{{end}}Sent {{.FiredAt.Format "Mon, 02 Jan 2006 15:04 MST"}}
`))

var htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(
	`<!DOCTYPE html>
<html><body>
{{- if .Title}}
<h2>{{.Title}}</h2>
{{- end}}
{{- if .Message}}
<p>{{.Message}}</p>
{{- end}}
<p style="color:#888">Sent {{.FiredAt.Format "Mon, 02 Jan 2006 15:04 MST"}}</p>
</body></html>
`))

// EmailNotifier renders a plaintext and an HTML body and hands both to an email.Sender.
type EmailNotifier struct {
	sender           email.Sender
	defaultRecipient string
}

func NewEmailNotifier(sender email.Sender, defaultRecipient string) *EmailNotifier {
	return &EmailNotifier{sender: sender, defaultRecipient: defaultRecipient}
}

func (e *EmailNotifier) Notify(ctx context.Context, msg Message) error {
	to := msg.Recipient
	if to == "" {
		to = e.defaultRecipient
	}
	if to == "" {
		return errNoRecipient
	}

	out, err := Render(msg)
	if err != nil {
		return err
	}
	out.To = to

	if err := e.sender.Send(ctx, out); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// Render produces the subject and both bodies for msg. The recipient is left empty.
func Render(msg Message) (email.Message, error) {
	var text, html bytes.Buffer
	if err := textTmpl.Execute(&text, msg); err != nil {
		return email.Message{}, fmt.Errorf("render text body: %w", err)
	}
	if err := htmlTmpl.Execute(&html, msg); err != nil {
		return email.Message{}, fmt.Errorf("render html body: %w", err)
	}

	subject := strings.TrimSpace(msg.Title)
	if subject == "" {
		subject = defaultSubject
	}
	return email.Message{Subject: subject, Text: text.String(), HTML: html.String()}, nil
}
