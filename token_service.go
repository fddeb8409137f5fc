package passwordless

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/uptrace/bun"
)

// TokenService creates callback tokens for user aliases and delivers them.
type TokenService struct {
	repo     RepositoryManager
	cfg      Config
	generate KeyGenerator
	email    EmailSender
	sms      SMSSender
	renderer *TemplateRenderer
	activity ActivitySink
	logger   Logger
	provider LoggerProvider
	now      func() time.Time
}

var _ TokenSender = (*TokenService)(nil)

func NewTokenService(repo RepositoryManager, cfg Config) *TokenService {
	provider, logger := ResolveLogger("passwordless.token_service", nil, nil)
	return &TokenService{
		repo:     repo,
		cfg:      cfg,
		generate: NumericKeyGenerator(cfg.TokenLength),
		renderer: NewTemplateRenderer(cfg.TemplateDir),
		activity: noopActivitySink{},
		logger:   logger,
		provider: provider,
		now:      time.Now,
	}
}

func (s *TokenService) WithEmailSender(sender EmailSender) *TokenService {
	s.email = sender
	return s
}

func (s *TokenService) WithSMSSender(sender SMSSender) *TokenService {
	s.sms = sender
	return s
}

func (s *TokenService) WithKeyGenerator(generate KeyGenerator) *TokenService {
	if generate != nil {
		s.generate = generate
	}
	return s
}

func (s *TokenService) WithTemplateRenderer(renderer *TemplateRenderer) *TokenService {
	if renderer != nil {
		s.renderer = renderer
	}
	return s
}

func (s *TokenService) WithActivitySink(sink ActivitySink) *TokenService {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *TokenService) WithLogger(logger Logger) *TokenService {
	s.provider, s.logger = ResolveLogger("passwordless.token_service", nil, logger)
	return s
}

// WithLoggerProvider overrides the logger provider used by the service.
func (s *TokenService) WithLoggerProvider(provider LoggerProvider) *TokenService {
	s.provider, s.logger = ResolveLogger("passwordless.token_service", provider, nil)
	return s
}

// WithClock injects the clock used for token creation times.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		s.now = now
	}
	return s
}

// SendToken creates and delivers a token in its own transaction.
func (s *TokenService) SendToken(ctx context.Context, user *User, kind AliasKind, tokenType TokenType, tmpl MessageTemplates) bool {
	sent := false
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		sent = s.SendTokenTx(ctx, tx, user, kind, tokenType, tmpl)
		return nil
	})
	if err != nil {
		s.logger.Error("send token transaction failed", "error", err)
		return false
	}
	return sent
}

// SendTokenTx creates a callback token for the user alias using tx and
// delivers it. Any failure is logged and reported as false.
func (s *TokenService) SendTokenTx(ctx context.Context, tx bun.IDB, user *User, kind AliasKind, tokenType TokenType, tmpl MessageTemplates) bool {
	token, err := s.CreateTokenTx(ctx, tx, user, kind, tokenType)
	if err != nil {
		s.logger.Error("failed to create callback token", "error", err, "alias_type", kind)
		s.deliveryFailed(ctx, user, kind, nil, err)
		return false
	}

	if err := s.deliver(ctx, user, token, tmpl); err != nil {
		s.logger.Error("failed to deliver callback token",
			"error", err,
			"alias_type", kind,
			"details", print.MaybePrettyJSON(map[string]any{
				"user_id":  user.ID.String(),
				"to_alias": token.ToAlias,
				"type":     token.Type,
			}),
		)
		s.deliveryFailed(ctx, user, kind, token, err)
		return false
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventTokenIssued,
		UserID:    user.ID.String(),
		AliasType: kind,
		TokenID:   token.ID.String(),
		Metadata: map[string]any{
			"type": token.Type,
		},
		OccurredAt: s.now(),
	})

	return true
}

// CreateTokenTx builds a new active token bound to the user's current alias
// and saves it, which runs the callback token rules. The save runs in a nested
// transaction of tx so a failure leaves tx usable.
func (s *TokenService) CreateTokenTx(ctx context.Context, tx bun.IDB, user *User, kind AliasKind, tokenType TokenType) (*CallbackToken, error) {
	if user == nil {
		return nil, goerrors.New("user is required", goerrors.CategoryBadInput)
	}

	alias, err := s.aliasOf(user, kind)
	if err != nil {
		return nil, err
	}

	key, err := s.generate()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate callback token key")
	}

	now := s.now()
	token := &CallbackToken{
		UserID:      user.ID,
		Key:         key,
		ToAliasType: kind,
		ToAlias:     alias,
		Type:        tokenType,
		IsActive:    true,
		CreatedAt:   &now,
	}

	// savepoint, a failed insert must not abort the caller's transaction
	var saved *CallbackToken
	err = tx.RunInTx(ctx, nil, func(ctx context.Context, sp bun.Tx) error {
		var err error
		saved, err = s.repo.CallbackTokens().SaveTx(ctx, sp, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *TokenService) aliasOf(user *User, kind AliasKind) (string, error) {
	accessors, err := AliasAccessors(s.cfg)
	if err != nil {
		return "", err
	}

	acc, ok := accessors[kind]
	if !ok {
		return "", errAliasInvalid(kind, "")
	}

	alias := acc.Get(user)
	if alias == "" {
		return "", errAliasInvalid(kind, alias)
	}
	return alias, nil
}

func (s *TokenService) deliver(ctx context.Context, user *User, token *CallbackToken, tmpl MessageTemplates) error {
	if s.cfg.TestSuppression {
		s.logger.Debug("callback token delivery suppressed", "alias_type", token.ToAliasType, "user_id", user.ID)
		return nil
	}

	switch token.ToAliasType {
	case AliasEmail:
		return s.deliverEmail(ctx, token, tmpl)
	case AliasMobile:
		return s.deliverSMS(ctx, token, tmpl)
	}

	return errAliasInvalid(token.ToAliasType, token.ToAlias)
}

func (s *TokenService) deliverEmail(ctx context.Context, token *CallbackToken, tmpl MessageTemplates) error {
	if s.email == nil {
		return goerrors.New("no email sender configured", goerrors.CategoryOperation)
	}
	if s.cfg.EmailNoReplyAddress == "" {
		return goerrors.New("email noreply address is not configured", goerrors.CategoryOperation)
	}

	html, err := s.renderer.Render(tmpl.EmailHTML, token.Key)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render email template")
	}

	return s.email.SendEmail(ctx, EmailMessage{
		From:    s.cfg.EmailNoReplyAddress,
		To:      token.ToAlias,
		Subject: tmpl.EmailSubject,
		Text:    formatMessage(tmpl.EmailPlaintext, token.Key),
		HTML:    html,
	})
}

func (s *TokenService) deliverSMS(ctx context.Context, token *CallbackToken, tmpl MessageTemplates) error {
	if s.sms == nil {
		return goerrors.New("no sms sender configured", goerrors.CategoryOperation)
	}

	to, err := NormalizeAlias(AliasMobile, token.ToAlias, s.cfg.DefaultRegion)
	if err != nil {
		return err
	}

	return s.sms.SendSMS(ctx, s.cfg.MobileNoReplyNumber, to, formatMessage(tmpl.MobileMessage, token.Key))
}

func (s *TokenService) deliveryFailed(ctx context.Context, user *User, kind AliasKind, token *CallbackToken, err error) {
	event := ActivityEvent{
		EventType: ActivityEventTokenDeliveryFailed,
		AliasType: kind,
		Metadata: map[string]any{
			"error": err.Error(),
		},
		OccurredAt: s.now(),
	}
	if user != nil {
		event.UserID = user.ID.String()
	}
	if token != nil {
		event.TokenID = token.ID.String()
	}
	recordActivity(ctx, s.activity, s.logger, event)
}
