package passwordless

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ObtainCallbackTokenMessage struct {
	AliasType  AliasKind `json:"alias_type" example:"email" doc:"Alias kind, email or mobile"`
	Alias      string    `json:"alias" example:"pepe.rone@example.com" doc:"Address the token is sent to"`
	OnResponse func(resp *ObtainCallbackTokenResponse)
}

func (e ObtainCallbackTokenMessage) Type() string { return "passwordless.token.obtain" }

type ObtainCallbackTokenResponse struct {
	User    *User
	Created bool
}

// ObtainCallbackTokenHandler sends a login token to an alias, registering
// a new user for it when enabled.
type ObtainCallbackTokenHandler struct {
	repo     RepositoryManager
	cfg      Config
	sender   TokenSender
	logger   Logger
	provider LoggerProvider
	userID   func(alias string) (uuid.UUID, error)
}

func NewObtainCallbackTokenHandler(repo RepositoryManager, cfg Config, sender TokenSender) *ObtainCallbackTokenHandler {
	provider, logger := ResolveLogger("passwordless.obtain_token", nil, nil)
	return &ObtainCallbackTokenHandler{
		repo:     repo,
		cfg:      cfg,
		sender:   sender,
		logger:   logger,
		provider: provider,
		userID:   func(alias string) (uuid.UUID, error) {
			return hashid.NewUUID(alias)
		},
	}
}

// WithUserIDGenerator replaces the deterministic id derivation used for
// registered users when UseHashID is set.
func (h *ObtainCallbackTokenHandler) WithUserIDGenerator(fn func(alias string) (uuid.UUID, error)) *ObtainCallbackTokenHandler {
	if fn != nil {
		h.userID = fn
	}
	return h
}

func (h *ObtainCallbackTokenHandler) WithLogger(logger Logger) *ObtainCallbackTokenHandler {
	h.provider, h.logger = ResolveLogger("passwordless.obtain_token", nil, logger)
	return h
}

func (h *ObtainCallbackTokenHandler) WithLoggerProvider(provider LoggerProvider) *ObtainCallbackTokenHandler {
	h.provider, h.logger = ResolveLogger("passwordless.obtain_token", provider, nil)
	return h
}

func (h *ObtainCallbackTokenHandler) Execute(ctx context.Context, event ObtainCallbackTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during callback token request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ObtainCallbackTokenHandler) execute(ctx context.Context, event ObtainCallbackTokenMessage) error {
	resp := &ObtainCallbackTokenResponse{}

	if !h.cfg.AuthTypeEnabled(event.AliasType) {
		return errAliasTypeDisabled(event.AliasType)
	}

	alias, err := NormalizeAlias(event.AliasType, event.Alias, h.cfg.DefaultRegion)
	if err != nil {
		return err
	}

	accessors, err := AliasAccessors(h.cfg)
	if err != nil {
		return err
	}
	acc := accessors[event.AliasType]

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		user, err := h.repo.Users().GetByAliasTx(ctx, tx, event.AliasType, alias)
		if err != nil {
			if !repository.IsRecordNotFound(err) {
				return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user for alias")
			}

			if !h.cfg.RegisterNewUsers {
				return errUserNotFound(event.AliasType, alias)
			}

			user = &User{IsActive: true}
			acc.Set(user, alias)
			if h.cfg.UseHashID {
				if id, err := h.userID(alias); err != nil {
					h.logger.Warn("failed to derive user id from alias, using random id",
						"error", err,
						"alias_type", event.AliasType,
					)
				} else {
					user.ID = id
				}
			}

			if user, err = h.repo.Users().SaveTx(ctx, tx, user); err != nil {
				return goerrors.Wrap(err, goerrors.CategoryConflict, "could not register user for alias")
			}
			resp.Created = true
		}

		if !user.IsActive {
			return ErrUserInactive
		}

		resp.User = user

		if !h.sender.SendTokenTx(ctx, tx, user, event.AliasType, TokenTypeAuth, h.cfg.AuthTemplates(event.AliasType)) {
			return ErrTokenDeliveryFailed
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "callback token request failed")
	}

	h.logger.Debug("callback token sent", "alias_type", event.AliasType, "user_id", resp.User.ID, "created", resp.Created)

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
