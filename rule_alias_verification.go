package passwordless

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PersistedUserFinder loads the stored state of a user.
type PersistedUserFinder interface {
	FindPersistedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
}

type aliasCheck struct {
	accessor  AliasAccessor
	templates MessageTemplates
}

// AliasVerificationRule flags an alias as unverified when it changes and,
// if enabled, sends a verification token to the new value. Each alias kind
// is only checked when its mark-verified option is set.
type AliasVerificationRule struct {
	ruleBase
	users    PersistedUserFinder
	sender   TokenSender
	autoSend bool
	checks   []aliasCheck
}

var _ PreSaveHook[*User] = (*AliasVerificationRule)(nil)

// NewAliasVerificationRule resolves the alias accessors configured in cfg.
// It fails when a configured field name is unknown.
func NewAliasVerificationRule(users PersistedUserFinder, sender TokenSender, cfg Config, opts ...RuleOption) (*AliasVerificationRule, error) {
	accessors, err := AliasAccessors(cfg)
	if err != nil {
		return nil, err
	}

	rule := &AliasVerificationRule{
		ruleBase: newRuleBase(opts...),
		users:    users,
		sender:   sender,
		autoSend: cfg.AutoSendVerificationToken,
	}

	for _, kind := range []AliasKind{AliasEmail, AliasMobile} {
		if !cfg.MarkVerified(kind) {
			continue
		}
		rule.checks = append(rule.checks, aliasCheck{
			accessor:  accessors[kind],
			templates: cfg.VerificationTemplates(kind),
		})
	}

	return rule, nil
}

func (r *AliasVerificationRule) BeforeSave(ctx context.Context, tx bun.IDB, user *User) error {
	if user == nil || len(r.checks) == 0 {
		return nil
	}

	previous, err := r.previous(ctx, tx, user)
	if err != nil {
		return err
	}

	for _, check := range r.checks {
		acc := check.accessor

		// nothing to compare against, the record is being created
		if previous == nil {
			acc.SetVerified(user, true)
			continue
		}

		current := acc.Get(user)
		if current == acc.Get(previous) || current == "" {
			continue
		}

		acc.SetVerified(user, false)
		r.record(ctx, ActivityEvent{
			EventType: ActivityEventAliasUnverified,
			UserID:    user.ID.String(),
			AliasType: acc.Kind,
		})

		if !r.autoSend || r.sender == nil {
			continue
		}

		if r.sender.SendTokenTx(ctx, tx, user, acc.Kind, TokenTypeVerify, check.templates) {
			r.logger.Info("sent verification token to updated alias", "alias_type", acc.Kind, "alias", current)
		} else {
			r.logger.Info("failed to send verification token to updated alias", "alias_type", acc.Kind, "alias", current)
		}
	}

	return nil
}

func (r *AliasVerificationRule) previous(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user.ID == uuid.Nil {
		return nil, nil
	}

	previous, err := r.users.FindPersistedTx(ctx, tx, user.ID)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return nil, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load persisted user").
			WithMetadata(map[string]any{
				"user_id": user.ID.String(),
			})
	}

	return previous, nil
}
