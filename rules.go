package passwordless

import (
	"context"
)

// RuleOption customizes the lifecycle rules.
type RuleOption func(*ruleBase)

type ruleBase struct {
	logger   Logger
	provider LoggerProvider
	activity ActivitySink
}

func newRuleBase(opts ...RuleOption) ruleBase {
	base := ruleBase{activity: noopActivitySink{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&base)
		}
	}
	base.provider, base.logger = ResolveLogger("passwordless.rules", base.provider, base.logger)
	return base
}

// WithRuleLogger sets the logger used by a rule.
func WithRuleLogger(logger Logger) RuleOption {
	return func(b *ruleBase) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithRuleLoggerProvider resolves the rule logger from provider.
func WithRuleLoggerProvider(provider LoggerProvider) RuleOption {
	return func(b *ruleBase) {
		b.provider = provider
	}
}

// WithRuleActivitySink sets the sink receiving rule events.
func WithRuleActivitySink(sink ActivitySink) RuleOption {
	return func(b *ruleBase) {
		b.activity = normalizeActivitySink(sink)
	}
}

func (b ruleBase) record(ctx context.Context, event ActivityEvent) {
	recordActivity(ctx, b.activity, b.logger, event)
}

// RegisterRules builds the token and alias rules from cfg and registers them
// on the repositories held by repo. Token rules run invalidation first and
// uniqueness second.
func RegisterRules(repo RepositoryManager, cfg Config, sender TokenSender, opts ...RuleOption) error {
	if err := repo.Validate(); err != nil {
		return err
	}

	tokens := repo.CallbackTokens()
	tokens.Hooks().Register(
		NewTokenInvalidationRule(tokens, cfg, opts...),
		NewTokenUniquenessRule(tokens, NumericKeyGenerator(cfg.TokenLength), opts...),
	)

	aliasRule, err := NewAliasVerificationRule(repo.Users(), sender, cfg, opts...)
	if err != nil {
		return err
	}
	repo.Users().Hooks().Register(aliasRule)

	return nil
}
