package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer turns queued email requests into deliverable messages.
type Renderer struct {
	appName     string
	frontendURL string
	reset       *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer(appName, frontendURL string) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/reset-password.html")
	if err != nil {
		return nil, fmt.Errorf("email: parse templates: %w", err)
	}
	return &Renderer{
		appName:     appName,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		reset:       tmpl,
	}, nil
}

// ResetLink builds the frontend URL carrying the reset token.
func (r *Renderer) ResetLink(token string) string {
	return r.frontendURL + "/reset-password?token=" + url.QueryEscape(token)
}

// ResetPassword renders the reset-password email.
func (r *Renderer) ResetPassword(msg ResetPasswordEmail) (Message, error) {
	var buf bytes.Buffer
	err := r.reset.Execute(&buf, map[string]string{
		"Name":            msg.Name,
		"ApplicationName": r.appName,
		"ResetLink":       r.ResetLink(msg.Token),
	})
	if err != nil {
		return Message{}, fmt.Errorf("email: render reset password: %w", err)
	}
	return Message{
		To:      []string{msg.Email},
		Subject: "Reset your password - " + r.appName,
		HTML:    buf.String(),
	}, nil
}

// Simple converts a plain-text request into a message.
func (r *Renderer) Simple(msg SimpleEmail) Message {
	return Message{
		To:      []string{msg.To},
		Cc:      msg.Cc,
		Bcc:     msg.Bcc,
		Subject: msg.Subject,
		Text:    msg.Text,
	}
}
