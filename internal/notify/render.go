// Package notify renders transactional emails and delivers them through a
// queue so a slow mail provider never holds up a status transition.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

type Template string

const (
	TemplateVideoReady           Template = "video_ready"
	TemplateRevisionInstructions Template = "revision_instructions"
	TemplateProjectComplete      Template = "project_complete"
	TemplateTokenAlert           Template = "token_alert"
)

// Message is the provider-neutral email the queue carries.
type Message struct {
	Template Template `json:"template"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	Text     string   `json:"text"`
}

// ProjectMail feeds the client-facing and editor-facing project templates.
type ProjectMail struct {
	Title        string
	OwnerEmail   string
	ProjectURL   string
	ReviewURL    string
	Instructions string
}

// AlertMail feeds the administrator token alert.
type AlertMail struct {
	Service   string
	Headline  string
	Key       string
	ExpiresAt string
	Remaining string
	Reason    string
	AuthURL   string
}

type Renderer struct {
	templates map[Template]*template.Template
}

func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[Template]*template.Template)}
	for _, name := range []Template{
		TemplateVideoReady,
		TemplateRevisionInstructions,
		TemplateProjectComplete,
		TemplateTokenAlert,
	} {
		t, err := template.New(string(name)).
			Option("missingkey=error").
			ParseFS(templateFS, "templates/"+string(name)+".tmpl")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		r.templates[name] = t
	}
	return r, nil
}

// Render executes the subject and body blocks of name.
func (r *Renderer) Render(name Template, to []string, data interface{}) (Message, error) {
	t, ok := r.templates[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown template %q", name)
	}

	var subject, body bytes.Buffer
	if err := t.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s subject: %w", name, err)
	}
	if err := t.ExecuteTemplate(&body, "body", data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s body: %w", name, err)
	}

	return Message{
		Template: name,
		To:       to,
		Subject:  strings.TrimSpace(subject.String()),
		Text:     body.String(),
	}, nil
}
