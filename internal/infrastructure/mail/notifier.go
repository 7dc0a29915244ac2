// Package mail renders lifecycle e-mails and delivers them over SMTP.
package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell/account-service/internal/core/domain"
	"github.com/inkwell/account-service/internal/core/ports"
)

const (
	KindConfirmation = "confirmation"
	KindWelcome      = "welcome"
)

//go:embed templates/*.html
var templateFS embed.FS

// Enqueuer accepts rendered messages for asynchronous delivery.
type Enqueuer interface {
	Enqueue(msg ports.MailMessage) error
}

// NotifierConfig carries the branding used in rendered mails.
type NotifierConfig struct {
	AppName         string
	FrontendURL     string
	ConfirmationTTL time.Duration
}

// Notifier implements ports.Notifier by rendering a template and handing the
// result to the dispatcher. It never talks to SMTP directly.
type Notifier struct {
	queue Enqueuer
	tmpl  *template.Template
	cfg   NotifierConfig
	now   func() time.Time
}

func NewNotifier(queue Enqueuer, cfg NotifierConfig) (*Notifier, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse mail templates: %w", err)
	}
	if cfg.AppName == "" {
		cfg.AppName = "Inkwell"
	}
	if cfg.ConfirmationTTL <= 0 {
		cfg.ConfirmationTTL = 24 * time.Hour
	}
	cfg.FrontendURL = strings.TrimRight(cfg.FrontendURL, "/")
	return &Notifier{queue: queue, tmpl: tmpl, cfg: cfg, now: time.Now}, nil
}

type confirmationData struct {
	AppName    string
	Greeting   string
	Code       string
	ConfirmURL string
	ExpiresIn  string
	Year       int
}

type welcomeData struct {
	AppName  string
	Greeting string
	LoginURL string
	Year     int
}

func (n *Notifier) SendConfirmation(_ context.Context, acc *domain.Account, code string) error {
	data := confirmationData{
		AppName:   n.cfg.AppName,
		Greeting:  greeting(acc),
		Code:      code,
		ExpiresIn: humanDuration(n.cfg.ConfirmationTTL),
		Year:      n.now().Year(),
	}
	if n.cfg.FrontendURL != "" {
		data.ConfirmURL = n.cfg.FrontendURL + "/confirm-email?token=" + url.QueryEscape(code)
	}
	subject := fmt.Sprintf("Confirm your %s account", n.cfg.AppName)
	key := fmt.Sprintf("%s:%d:%s", KindConfirmation, acc.ID, code)
	return n.enqueue(KindConfirmation, key, acc.Email, subject, "confirmation.html", data)
}

func (n *Notifier) SendWelcome(_ context.Context, acc *domain.Account) error {
	data := welcomeData{
		AppName:  n.cfg.AppName,
		Greeting: greeting(acc),
		Year:     n.now().Year(),
	}
	if n.cfg.FrontendURL != "" {
		data.LoginURL = n.cfg.FrontendURL + "/login"
	}
	subject := fmt.Sprintf("Welcome to %s, your account is confirmed", n.cfg.AppName)
	key := fmt.Sprintf("%s:%d", KindWelcome, acc.ID)
	return n.enqueue(KindWelcome, key, acc.Email, subject, "welcome.html", data)
}

// enqueue renders the template and queues the result. key names the content:
// one per account and code for confirmations, one per account for welcome mail.
func (n *Notifier) enqueue(kind, key, to, subject, name string, data any) error {
	var body bytes.Buffer
	if err := n.tmpl.ExecuteTemplate(&body, name, data); err != nil {
		return fmt.Errorf("render %s mail: %w", kind, err)
	}
	return n.queue.Enqueue(ports.MailMessage{
		ID:       uuid.NewString(),
		Key:      key,
		Kind:     kind,
		To:       to,
		Subject:  subject,
		HTMLBody: body.String(),
	})
}

func greeting(acc *domain.Account) string {
	switch {
	case acc.Name != "":
		return acc.Name
	case acc.Username != "":
		return acc.Username
	default:
		return acc.Email
	}
}

func humanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	return d.String()
}
