package passwordless

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActiveKeyLookup reports whether an active token already uses a key.
type ActiveKeyLookup interface {
	ActiveKeyExistsTx(ctx context.Context, tx bun.IDB, key string, exclude uuid.UUID) (bool, error)
}

// TokenUniquenessRule regenerates a token key once when it collides with
// another active token. A second collision is accepted.
type TokenUniquenessRule struct {
	ruleBase
	lookup   ActiveKeyLookup
	generate KeyGenerator
}

var _ PreSaveHook[*CallbackToken] = (*TokenUniquenessRule)(nil)

func NewTokenUniquenessRule(lookup ActiveKeyLookup, generate KeyGenerator, opts ...RuleOption) *TokenUniquenessRule {
	if generate == nil {
		generate = GenerateNumericToken
	}
	return &TokenUniquenessRule{
		ruleBase: newRuleBase(opts...),
		lookup:   lookup,
		generate: generate,
	}
}

func (r *TokenUniquenessRule) BeforeSave(ctx context.Context, tx bun.IDB, token *CallbackToken) error {
	if token == nil {
		return nil
	}

	exists, err := r.lookup.ActiveKeyExistsTx(ctx, tx, token.Key, token.ID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check callback token key")
	}

	if !exists {
		return nil
	}

	key, err := r.generate()
	if err != nil {
		// keep the colliding key, uniqueness is best effort
		r.logger.Warn("could not regenerate colliding callback token key", "error", err)
		return nil
	}

	r.logger.Debug("regenerated colliding callback token key", "user_id", token.UserID)
	token.Key = key

	return nil
}
