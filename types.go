package passwordless

import (
	"context"

	"github.com/goliatone/go-logger/glog"
	"github.com/uptrace/bun"
)

// Logger is the structured logger used across the package.
type Logger = glog.Logger

// LoggerProvider hands out named loggers.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// TokenSender issues a callback token for a user alias and delivers it.
// It reports whether delivery succeeded; failures never surface as errors.
type TokenSender interface {
	SendTokenTx(ctx context.Context, tx bun.IDB, user *User, kind AliasKind, tokenType TokenType, tmpl MessageTemplates) bool
}

// TokenSenderFunc adapts a function to the TokenSender interface.
type TokenSenderFunc func(ctx context.Context, tx bun.IDB, user *User, kind AliasKind, tokenType TokenType, tmpl MessageTemplates) bool

// SendTokenTx implements TokenSender.
func (f TokenSenderFunc) SendTokenTx(ctx context.Context, tx bun.IDB, user *User, kind AliasKind, tokenType TokenType, tmpl MessageTemplates) bool {
	if f == nil {
		return false
	}
	return f(ctx, tx, user, kind, tokenType, tmpl)
}

// EmailMessage is a fully rendered email.
type EmailMessage struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// EmailSender delivers email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// SMSSender delivers text messages.
type SMSSender interface {
	SendSMS(ctx context.Context, from, to, body string) error
}

// KeyGenerator returns a new callback token key.
type KeyGenerator func() (string, error)
