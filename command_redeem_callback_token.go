package passwordless

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RedeemCallbackTokenMessage redeems a key sent to an alias. UserID is
// required for VERIFY tokens and must match the token owner.
type RedeemCallbackTokenMessage struct {
	Key        string    `json:"token"`
	AliasType  AliasKind `json:"alias_type"`
	Alias      string    `json:"alias"`
	TokenType  TokenType `json:"type"`
	UserID     uuid.UUID `json:"user_id"`
	OnResponse func(user *User)
}

func (e RedeemCallbackTokenMessage) Type() string { return "passwordless.token.redeem" }

func (e RedeemCallbackTokenMessage) Validate() error {
	if strings.TrimSpace(e.Key) == "" {
		return ErrTokenInvalid
	}
	if _, ok := ParseAliasKind(string(e.AliasType)); !ok {
		return errAliasInvalid(e.AliasType, "")
	}
	if e.TokenType == TokenTypeVerify && e.UserID == uuid.Nil {
		return goerrors.New("user id is required to verify an alias", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}

type RedeemCallbackTokenHandler struct {
	repo     RepositoryManager
	cfg      Config
	activity ActivitySink
	logger   Logger
	now      func() time.Time
}

func NewRedeemCallbackTokenHandler(repo RepositoryManager, cfg Config) *RedeemCallbackTokenHandler {
	_, logger := ResolveLogger("passwordless.redeem_token", nil, nil)
	return &RedeemCallbackTokenHandler{
		repo:     repo,
		cfg:      cfg,
		activity: normalizeActivitySink(nil),
		logger:   logger,
		now:      time.Now,
	}
}

func (h *RedeemCallbackTokenHandler) WithLogger(logger Logger) *RedeemCallbackTokenHandler {
	_, h.logger = ResolveLogger("passwordless.redeem_token", nil, logger)
	return h
}

func (h *RedeemCallbackTokenHandler) WithActivitySink(sink ActivitySink) *RedeemCallbackTokenHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

func (h *RedeemCallbackTokenHandler) WithClock(now func() time.Time) *RedeemCallbackTokenHandler {
	if now != nil {
		h.now = now
	}
	return h
}

func (h *RedeemCallbackTokenHandler) Execute(ctx context.Context, event RedeemCallbackTokenMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during callback token redemption",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RedeemCallbackTokenHandler) execute(ctx context.Context, event RedeemCallbackTokenMessage) error {
	if event.TokenType == "" {
		event.TokenType = TokenTypeAuth
	}

	if err := event.Validate(); err != nil {
		return err
	}

	alias, err := NormalizeAlias(event.AliasType, event.Alias, h.cfg.DefaultRegion)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var (
		user    *User
		token   *CallbackToken
		expired bool
	)

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		token, err = h.repo.CallbackTokens().FindActiveTx(ctx, tx, strings.TrimSpace(event.Key), event.AliasType, alias)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrTokenInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up callback token")
		}

		if token.Type != event.TokenType {
			return ErrTokenInvalid
		}

		if event.UserID != uuid.Nil && token.UserID != event.UserID {
			return ErrTokenInvalid
		}

		token.IsActive = false

		// expired tokens are consumed before reporting the failure
		if token.IsExpired(h.now(), h.cfg.TokenExpiry) {
			expired = true
			_, err = h.repo.CallbackTokens().SaveTx(ctx, tx, token)
			return err
		}

		user, err = h.repo.Users().FindPersistedTx(ctx, tx, token.UserID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return ErrTokenInvalid
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load token owner")
		}

		if !user.IsActive {
			return ErrUserInactive
		}

		if _, err = h.repo.CallbackTokens().SaveTx(ctx, tx, token); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume callback token")
		}

		if !h.cfg.MarkVerified(event.AliasType) {
			return nil
		}

		accessors, err := AliasAccessors(h.cfg)
		if err != nil {
			return err
		}
		acc := accessors[event.AliasType]
		if acc.Verified(user) {
			return nil
		}

		acc.SetVerified(user, true)
		if user, err = h.repo.Users().SaveTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to mark alias verified")
		}

		recordActivity(ctx, h.activity, h.logger, ActivityEvent{
			EventType:  ActivityEventAliasVerified,
			UserID:     user.ID.String(),
			AliasType:  event.AliasType,
			TokenID:    token.ID.String(),
			OccurredAt: h.now(),
		})
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "callback token redemption failed")
	}

	if expired {
		h.logger.Debug("expired callback token consumed", "token_id", token.ID, "alias_type", event.AliasType)
		return ErrTokenExpired
	}

	recordActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventTokenRedeemed,
		UserID:    user.ID.String(),
		AliasType: event.AliasType,
		TokenID:   token.ID.String(),
		Metadata: map[string]any{
			"type": token.Type,
		},
		OccurredAt: h.now(),
	})

	if event.OnResponse != nil {
		event.OnResponse(user)
	}

	return nil
}
