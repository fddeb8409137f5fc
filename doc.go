// Package passwordless implements token based sign in over email and mobile
// aliases, backed by Bun repositories.
//
// Save rules:
//   - Repositories own a SaveHooks registry. RegisterRules installs the
//     callback token rules (invalidation, then uniqueness) and the alias
//     verification rule. Hooks run inside the same transaction as the write
//     they guard, so cascade updates commit or roll back with it.
//   - Cascade writes (deactivating sibling tokens, pruning inactive ones) go
//     straight to storage and never re-enter the hooks.
//
// Delivery:
//   - TokenService creates callback tokens and delivers them through an
//     EmailSender (SMTPMailer) or SMSSender (SNSSender). Delivery failures are
//     logged and reported as false, they never abort the triggering save.
//
// Commands and HTTP:
//   - ObtainCallbackTokenHandler, RequestAliasVerificationHandler and
//     RedeemCallbackTokenHandler follow the message/handler pattern and are
//     exposed over fiber by RegisterPasswordlessRoutes. Redeemed AUTH tokens
//     are exchanged for a session JWT signed by SessionIssuer.
package passwordless
