package ports

import (
	"context"

	"github.com/inkwell/account-service/internal/core/domain"
)

// Notifier delivers lifecycle e-mails. Calls are best effort: the lifecycle
// service logs a returned error and carries on.
type Notifier interface {
	SendConfirmation(ctx context.Context, acc *domain.Account, code string) error
	SendWelcome(ctx context.Context, acc *domain.Account) error
}

// MailMessage is a rendered outbound e-mail. ID is unique per message and
// becomes the Message-ID header. Key identifies the content so the same mail
// is not delivered twice; it falls back to ID when empty.
type MailMessage struct {
	ID       string
	Key      string
	Kind     string
	To       string
	Subject  string
	HTMLBody string
}

// MailSender is the outbound e-mail transport.
type MailSender interface {
	Send(ctx context.Context, msg MailMessage) error
}
