package mailer

import (
	"errors"
	"fmt"
	"strings"
)

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// Either Template (+Data) or Subject with Text/HTML must be set.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // "welcome", "password_reset", "email_change"
	Data     map[string]any `json:"data,omitempty"`
}

// Normalize fills the recipient fields templates rely on and lower-cases the template name.
func (j *EmailJob) Normalize() {
	j.To = strings.TrimSpace(j.To)
	j.Template = strings.ToLower(strings.TrimSpace(j.Template))
	if j.Data == nil {
		j.Data = map[string]any{}
	}
	if v, ok := j.Data["Email"]; !ok || fmt.Sprintf("%v", v) == "" {
		j.Data["Email"] = j.To
	}
	if v, ok := j.Data["RecipientEmail"]; !ok || fmt.Sprintf("%v", v) == "" {
		j.Data["RecipientEmail"] = j.To
	}
	if j.Template != "" {
		if v, ok := j.Data["Type"]; !ok || fmt.Sprintf("%v", v) == "" {
			j.Data["Type"] = j.Template
		}
	}
}

func (j *EmailJob) Validate() error {
	if j.To == "" {
		return errors.New("email job: missing recipient")
	}
	if j.Template == "" && j.Subject == "" {
		return errors.New("email job: missing template or subject")
	}
	return nil
}
