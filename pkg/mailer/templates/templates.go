package templates

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	htmpl "html/template"
	"io"
	"reflect"
	"strings"
	"sync"
	texttpl "text/template"
	"time"
)

//go:embed *.tmpl
var FS embed.FS

// EmailData defines standard fields for email templates.
type EmailData struct {
	// Basic info
	Name           string `json:"Name"`
	FirstName      string `json:"FirstName"`
	Email          string `json:"Email"`
	RecipientEmail string `json:"RecipientEmail"`
	Type           string `json:"Type"`

	// Company info
	CompanyName    string `json:"CompanyName"`
	CompanyAddress string `json:"CompanyAddress"`
	AppName        string `json:"AppName"`

	// URLs
	LogoURL        string `json:"LogoURL"`
	SupportURL     string `json:"SupportURL"`
	PrivacyURL     string `json:"PrivacyURL"`
	UnsubscribeURL string `json:"UnsubscribeURL"`

	// Action
	ActionURL string `json:"ActionURL"`
	Token     string `json:"Token"`

	// Additional data
	ExpiresAt     time.Time `json:"ExpiresAt"`
	ExpiresAtText string    `json:"ExpiresAtText"`
	IP            string    `json:"IP"`
	Time          string    `json:"Time"`
	TimeAt        time.Time `json:"TimeAt"`
	Location      string    `json:"Location"`
}

// ToMap converts EmailData to a map[string]any for EmailJob.Data
func ToMap(d EmailData) map[string]any {
	b, _ := json.Marshal(d)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}

// defaultFn supports pipe usage: {{ .Value | default "Fallback" }}
func defaultFn(fallback any, value any) any {
	switch x := value.(type) {
	case string:
		if strings.TrimSpace(x) == "" {
			return fallback
		}
		return x
	case nil:
		return fallback
	default:
		rv := reflect.ValueOf(value)
		if !rv.IsValid() {
			return fallback
		}
		zero := reflect.Zero(rv.Type()).Interface()
		if reflect.DeepEqual(value, zero) {
			return fallback
		}
		return value
	}
}

func baseFuncs() map[string]any {
	return map[string]any{
		"now":     func() time.Time { return time.Now().UTC() },
		"upper":   strings.ToUpper,
		"default": defaultFn,
	}
}

var (
	htmlFuncMap = htmpl.FuncMap(baseFuncs())
	textFuncMap = texttpl.FuncMap(baseFuncs())
)

// Template names
const (
	Welcome       = "welcome"
	PasswordReset = "password_reset"
	EmailChange   = "email_change"
)

// Known reports whether a template set exists for name.
func Known(name string) bool {
	_, ok := loadSets()[name]
	return ok
}

// set is one parsed <name>.{subject,text,html}.tmpl triple.
type set struct {
	subject *texttpl.Template
	text    *texttpl.Template
	html    *htmpl.Template
}

var (
	setsOnce sync.Once
	sets     map[string]set
	setsErr  error
)

// loadSets parses every known triple from the embedded FS exactly once.
func loadSets() map[string]set {
	setsOnce.Do(func() {
		sets = make(map[string]set, 3)
		for _, name := range []string{Welcome, PasswordReset, EmailChange} {
			var st set
			if st.subject, setsErr = parseText(name + ".subject.tmpl"); setsErr != nil {
				return
			}
			if st.text, setsErr = parseText(name + ".text.tmpl"); setsErr != nil {
				return
			}
			if st.html, setsErr = htmpl.New(name + ".html.tmpl").Funcs(htmlFuncMap).ParseFS(FS, name+".html.tmpl"); setsErr != nil {
				setsErr = fmt.Errorf("parse html %q: %w", name, setsErr)
				return
			}
			sets[name] = st
		}
	})
	return sets
}

func parseText(filename string) (*texttpl.Template, error) {
	t, err := texttpl.New(filename).Funcs(textFuncMap).ParseFS(FS, filename)
	if err != nil {
		return nil, fmt.Errorf("parse text %q: %w", filename, err)
	}
	return t, nil
}

type executor interface {
	Execute(w io.Writer, data any) error
}

func exec(t executor, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Render renders subject, text and html for the given base name.
func Render(name string, data any) (subject string, text string, html string, err error) {
	all := loadSets()
	if setsErr != nil {
		return "", "", "", setsErr
	}
	st, ok := all[name]
	if !ok {
		return "", "", "", fmt.Errorf("unknown template %q", name)
	}
	if subject, err = exec(st.subject, data); err != nil {
		return "", "", "", fmt.Errorf("exec %s subject: %w", name, err)
	}
	if text, err = exec(st.text, data); err != nil {
		return "", "", "", fmt.Errorf("exec %s text: %w", name, err)
	}
	if html, err = exec(st.html, data); err != nil {
		return "", "", "", fmt.Errorf("exec %s html: %w", name, err)
	}
	return strings.TrimSpace(subject), text, html, nil
}
