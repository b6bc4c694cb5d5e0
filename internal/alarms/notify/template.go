package notify

import (
	"bytes"
	"errors"
	"text/template"
)

const DefaultTemplate = `[Alarm {{.EventLabel}}] {{.Name}}
Ticket: {{.TicketNumber}}
Device: {{.DeviceID}}
Metric: {{.Metric}}
Value: {{.Value}}
{{- if .Threshold }}
Threshold: {{.Threshold}}
{{- end }}
Status: {{.Status}}
Priority: {{.Priority}}
Site: {{.Site}}
Assignee: {{.Assignee}}
Time: {{.OccurredAt}}
{{- if .Reason }}
Reason: {{.Reason}}
{{- end }}
{{- if .Comment }}
Comment: {{.Comment}}
{{- end }}
Suggestion: {{.Suggestion}}
`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	Event        string
	EventLabel   string
	TicketNumber string
	Name         string
	DeviceID     string
	Metric       string
	Value        string
	Threshold    string
	Status       string
	Priority     string
	Site         string
	Assignee     string
	Reason       string
	Comment      string
	OccurredAt   string
	Suggestion   string
}

// Template renders notification content.
type Template struct {
	tpl *template.Template
}

// NewTemplate parses a notification template, falling back to DefaultTemplate.
func NewTemplate(tpl string) (*Template, error) {
	if tpl == "" {
		tpl = DefaultTemplate
	}
	parsed, err := template.New("alarm-notification").Parse(tpl)
	if err != nil {
		return nil, err
	}
	return &Template{tpl: parsed}, nil
}

// Render applies the template to data.
func (t *Template) Render(data TemplateData) (string, error) {
	if t == nil || t.tpl == nil {
		return "", errors.New("alarm template: nil")
	}
	var buf bytes.Buffer
	if err := t.tpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
