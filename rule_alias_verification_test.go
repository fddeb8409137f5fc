package passwordless_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-passwordless"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func aliasConfig() passwordless.Config {
	cfg := passwordless.DefaultConfig()
	cfg.MarkEmailVerified = true
	cfg.MarkMobileVerified = true
	cfg.AutoSendVerificationToken = true
	return cfg
}

func setupAliasRule(t *testing.T, cfg passwordless.Config) (passwordless.RepositoryManager, *recordingSender) {
	t.Helper()

	repo, _ := setupRepo(t, newStepClock())
	sender := &recordingSender{result: true}

	rule, err := passwordless.NewAliasVerificationRule(repo.Users(), sender, cfg, quiet())
	require.NoError(t, err)
	repo.Users().Hooks().Register(rule)

	return repo, sender
}

func TestAliasVerificationChangedEmailIsUnverified(t *testing.T) {
	cfg := aliasConfig()
	repo, sender := setupAliasRule(t, cfg)
	ctx := context.Background()

	user := createUser(t, repo, "a@x.com")
	require.True(t, user.EmailVerified)

	user.Email = "b@x.com"
	saved, err := repo.Users().Save(ctx, user)
	require.NoError(t, err)

	assert.False(t, saved.EmailVerified)

	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, passwordless.AliasEmail, calls[0].Kind)
	assert.Equal(t, passwordless.TokenTypeVerify, calls[0].TokenType)
	assert.Equal(t, "b@x.com", calls[0].Alias)
	assert.Equal(t, cfg.VerificationTemplates(passwordless.AliasEmail), calls[0].Templates)
	assert.Equal(t, "Your Verification Token", calls[0].Templates.EmailSubject)

	stored, err := repo.Users().GetByAlias(ctx, passwordless.AliasEmail, "b@x.com")
	require.NoError(t, err)
	assert.False(t, stored.EmailVerified)
}

func TestAliasVerificationSameEmailKeepsFlag(t *testing.T) {
	repo, sender := setupAliasRule(t, aliasConfig())
	ctx := context.Background()

	user := createUser(t, repo, "a@x.com")
	saved, err := repo.Users().Save(ctx, user)
	require.NoError(t, err)
	assert.True(t, saved.EmailVerified)

	saved.EmailVerified = false
	saved, err = repo.Users().Save(ctx, saved)
	require.NoError(t, err)
	assert.False(t, saved.EmailVerified)

	assert.Empty(t, sender.Calls())
}

func TestAliasVerificationNewUserIsVerified(t *testing.T) {
	repo, sender := setupAliasRule(t, aliasConfig())

	user := createUser(t, repo, "new@x.com")

	assert.True(t, user.EmailVerified)
	assert.True(t, user.MobileVerified)
	assert.Empty(t, sender.Calls())
}

func TestAliasVerificationNewUserWithPresetID(t *testing.T) {
	repo, sender := setupAliasRule(t, aliasConfig())

	user, err := repo.Users().Save(context.Background(), &passwordless.User{
		ID:       uuid.New(),
		Email:    "preset@x.com",
		IsActive: true,
	})
	require.NoError(t, err)

	assert.True(t, user.EmailVerified)
	assert.Empty(t, sender.Calls())
}

func TestAliasVerificationClearedAliasKeepsFlag(t *testing.T) {
	repo, sender := setupAliasRule(t, aliasConfig())

	user, err := repo.Users().Save(context.Background(), &passwordless.User{
		Email:    "a@x.com",
		Mobile:   "+14155550100",
		IsActive: true,
	})
	require.NoError(t, err)

	user.Mobile = ""
	saved, err := repo.Users().Save(context.Background(), user)
	require.NoError(t, err)

	assert.True(t, saved.MobileVerified)
	assert.Empty(t, sender.Calls())
}

func TestAliasVerificationChangedMobileUsesMobileTemplates(t *testing.T) {
	cfg := aliasConfig()
	cfg.MobileVerificationMessage = "Mobile code: %s"
	repo, sender := setupAliasRule(t, cfg)

	user, err := repo.Users().Save(context.Background(), &passwordless.User{
		Mobile:   "+14155550100",
		IsActive: true,
	})
	require.NoError(t, err)

	user.Mobile = "+14155550111"
	saved, err := repo.Users().Save(context.Background(), user)
	require.NoError(t, err)

	assert.False(t, saved.MobileVerified)
	calls := sender.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, passwordless.AliasMobile, calls[0].Kind)
	assert.Equal(t, "Mobile code: %s", calls[0].Templates.MobileMessage)
}

func TestAliasVerificationDisabledKindIsIgnored(t *testing.T) {
	cfg := aliasConfig()
	cfg.MarkEmailVerified = false
	repo, sender := setupAliasRule(t, cfg)

	user := createUser(t, repo, "a@x.com")
	assert.False(t, user.EmailVerified)

	user.Email = "b@x.com"
	saved, err := repo.Users().Save(context.Background(), user)
	require.NoError(t, err)

	assert.False(t, saved.EmailVerified)
	assert.Empty(t, sender.Calls())
}

func TestAliasVerificationWithoutAutoSend(t *testing.T) {
	cfg := aliasConfig()
	cfg.AutoSendVerificationToken = false
	repo, sender := setupAliasRule(t, cfg)

	user := createUser(t, repo, "a@x.com")
	user.Email = "b@x.com"
	saved, err := repo.Users().Save(context.Background(), user)
	require.NoError(t, err)

	assert.False(t, saved.EmailVerified)
	assert.Empty(t, sender.Calls())
}

func TestAliasVerificationDeliveryFailureKeepsSave(t *testing.T) {
	repo, sender := setupAliasRule(t, aliasConfig())
	sender.result = false

	user := createUser(t, repo, "a@x.com")
	user.Email = "b@x.com"
	saved, err := repo.Users().Save(context.Background(), user)
	require.NoError(t, err)

	assert.Equal(t, "b@x.com", saved.Email)
	assert.False(t, saved.EmailVerified)
	assert.Len(t, sender.Calls(), 1)
}

func TestAliasVerificationUnknownField(t *testing.T) {
	cfg := aliasConfig()
	cfg.EmailFieldName = "contact_email"

	_, err := passwordless.NewAliasVerificationRule(nil, nil, cfg)
	require.Error(t, err)
	assert.Equal(t, passwordless.TextCodeUnknownAliasField, passwordless.TextCode(err))
}

type failingUserFinder struct {
	err error
}

func (f failingUserFinder) FindPersistedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*passwordless.User, error) {
	return nil, f.err
}

func TestAliasVerificationPropagatesStorageErrors(t *testing.T) {
	boom := errors.New("storage down")
	rule, err := passwordless.NewAliasVerificationRule(failingUserFinder{err: boom}, nil, aliasConfig(), quiet())
	require.NoError(t, err)

	err = rule.BeforeSave(context.Background(), nil, &passwordless.User{ID: uuid.New(), Email: "a@x.com"})
	assert.ErrorIs(t, err, boom)
}
