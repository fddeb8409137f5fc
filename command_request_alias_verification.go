package passwordless

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RequestAliasVerificationMessage struct {
	UserID     uuid.UUID `json:"user_id"`
	AliasType  AliasKind `json:"alias_type" example:"mobile"`
	OnResponse func(user *User)
}

func (e RequestAliasVerificationMessage) Type() string { return "passwordless.alias.verification.request" }

func (e RequestAliasVerificationMessage) Validate() error {
	if e.UserID == uuid.Nil {
		return goerrors.New("user id is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	if _, ok := ParseAliasKind(string(e.AliasType)); !ok {
		return errAliasInvalid(e.AliasType, "")
	}
	return nil
}

// RequestAliasVerificationHandler sends a VERIFY token to the current alias
// of an authenticated user.
type RequestAliasVerificationHandler struct {
	repo   RepositoryManager
	cfg    Config
	sender TokenSender
	logger Logger
}

func NewRequestAliasVerificationHandler(repo RepositoryManager, cfg Config, sender TokenSender) *RequestAliasVerificationHandler {
	_, logger := ResolveLogger("passwordless.verification_request", nil, nil)
	return &RequestAliasVerificationHandler{
		repo:   repo,
		cfg:    cfg,
		sender: sender,
		logger: logger,
	}
}

func (h *RequestAliasVerificationHandler) WithLogger(logger Logger) *RequestAliasVerificationHandler {
	_, h.logger = ResolveLogger("passwordless.verification_request", nil, logger)
	return h
}

func (h *RequestAliasVerificationHandler) Execute(ctx context.Context, event RequestAliasVerificationMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var user *User
	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = h.repo.Users().FindPersistedTx(ctx, tx, event.UserID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryNotFound, "user not found").
					WithTextCode(TextCodeUserNotFound).
					WithCode(goerrors.CodeNotFound)
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user")
		}

		if !user.IsActive {
			return ErrUserInactive
		}

		accessors, err := AliasAccessors(h.cfg)
		if err != nil {
			return err
		}

		if accessors[event.AliasType].Get(user) == "" {
			return errAliasInvalid(event.AliasType, "")
		}

		if !h.sender.SendTokenTx(ctx, tx, user, event.AliasType, TokenTypeVerify, h.cfg.VerificationTemplates(event.AliasType)) {
			return ErrTokenDeliveryFailed
		}
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "alias verification request failed")
	}

	h.logger.Debug("verification token sent", "alias_type", event.AliasType, "user_id", user.ID)

	if event.OnResponse != nil {
		event.OnResponse(user)
	}
	return nil
}
