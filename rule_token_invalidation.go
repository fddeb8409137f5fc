package passwordless

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenInvalidationStore is the storage TokenInvalidationRule needs.
type TokenInvalidationStore interface {
	ActiveForUserTx(ctx context.Context, tx bun.IDB, userID, exclude uuid.UUID) ([]*CallbackToken, error)
	DeactivateTx(ctx context.Context, tx bun.IDB, token *CallbackToken) error
	DeleteInactiveTx(ctx context.Context, tx bun.IDB, exclude uuid.UUID) (int64, error)
}

// TokenInvalidationRule keeps a single active token per user. Every other
// active token of the owner is deactivated before a token is saved.
type TokenInvalidationRule struct {
	ruleBase
	store          TokenInvalidationStore
	deleteInactive bool
}

var _ PreSaveHook[*CallbackToken] = (*TokenInvalidationRule)(nil)

func NewTokenInvalidationRule(store TokenInvalidationStore, cfg Config, opts ...RuleOption) *TokenInvalidationRule {
	return &TokenInvalidationRule{
		ruleBase:       newRuleBase(opts...),
		store:          store,
		deleteInactive: cfg.DeleteInactiveTokens,
	}
}

func (r *TokenInvalidationRule) BeforeSave(ctx context.Context, tx bun.IDB, token *CallbackToken) error {
	if token == nil {
		return nil
	}

	active, err := r.store.ActiveForUserTx(ctx, tx, token.UserID, token.ID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list active callback tokens")
	}

	// deactivation writes go straight to storage, they do not re-enter the hooks
	for _, previous := range active {
		if err := r.store.DeactivateTx(ctx, tx, previous); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to deactivate callback token").
				WithMetadata(map[string]any{
					"token_id": previous.ID.String(),
				})
		}

		r.record(ctx, ActivityEvent{
			EventType: ActivityEventTokenInvalidated,
			UserID:    previous.UserID.String(),
			AliasType: previous.ToAliasType,
			TokenID:   previous.ID.String(),
		})
	}

	if len(active) > 0 {
		r.logger.Debug("deactivated previous callback tokens", "user_id", token.UserID, "count", len(active))
	}

	if !r.deleteInactive {
		return nil
	}

	deleted, err := r.store.DeleteInactiveTx(ctx, tx, token.ID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete inactive callback tokens")
	}

	if deleted > 0 {
		r.logger.Debug("deleted inactive callback tokens", "count", deleted)
	}

	return nil
}
