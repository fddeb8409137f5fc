package passwordless_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-passwordless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) SendEmail(ctx context.Context, msg passwordless.EmailMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

type MockSMSSender struct {
	mock.Mock
}

func (m *MockSMSSender) SendSMS(ctx context.Context, from, to, body string) error {
	args := m.Called(ctx, from, to, body)
	return args.Error(0)
}

func fixedKey(key string) passwordless.KeyGenerator {
	return func() (string, error) { return key, nil }
}

func serviceConfig() passwordless.Config {
	cfg := passwordless.DefaultConfig()
	cfg.AuthTypes = []string{"email", "mobile"}
	cfg.EmailNoReplyAddress = "noreply@example.com"
	cfg.MobileNoReplyNumber = "+14155550199"
	return cfg
}

func TestTokenServiceSendsEmailToken(t *testing.T) {
	clock := newStepClock()
	repo, db := setupRepo(t, clock)
	cfg := serviceConfig()
	user := createUser(t, repo, "pepe@example.com")

	email := &MockEmailSender{}
	email.On("SendEmail", mock.Anything, mock.MatchedBy(func(msg passwordless.EmailMessage) bool {
		return msg.From == "noreply@example.com" &&
			msg.To == "pepe@example.com" &&
			msg.Subject == "Your Login Token" &&
			msg.Text == "Enter this token to sign in: 123456" &&
			strings.Contains(msg.HTML, "123456")
	})).Return(nil).Once()

	recorder := &activityRecorder{}
	service := passwordless.NewTokenService(repo, cfg).
		WithLogger(passwordless.NoopLogger()).
		WithEmailSender(email).
		WithKeyGenerator(fixedKey("123456")).
		WithActivitySink(recorder).
		WithClock(clock.Now)

	sent := service.SendToken(context.Background(), user, passwordless.AliasEmail, passwordless.TokenTypeAuth, cfg.AuthTemplates(passwordless.AliasEmail))
	require.True(t, sent)
	email.AssertExpectations(t)

	tokens := []*passwordless.CallbackToken{}
	require.NoError(t, db.NewSelect().Model(&tokens).Scan(context.Background()))
	require.Len(t, tokens, 1)
	assert.Equal(t, "123456", tokens[0].Key)
	assert.Equal(t, passwordless.TokenTypeAuth, tokens[0].Type)
	assert.Equal(t, passwordless.AliasEmail, tokens[0].ToAliasType)
	assert.Equal(t, "pepe@example.com", tokens[0].ToAlias)
	assert.True(t, tokens[0].IsActive)

	assert.Equal(t, []passwordless.ActivityEventType{passwordless.ActivityEventTokenIssued}, recorder.Types())
}

func TestTokenServiceSendsSMSToken(t *testing.T) {
	clock := newStepClock()
	repo, _ := setupRepo(t, clock)
	cfg := serviceConfig()

	user, err := repo.Users().Save(context.Background(), &passwordless.User{
		Mobile:   "+14155550100",
		IsActive: true,
	})
	require.NoError(t, err)

	sms := &MockSMSSender{}
	sms.On("SendSMS", mock.Anything, "+14155550199", "+14155550100", "Use this code to log in: 654321").
		Return(nil).Once()

	service := passwordless.NewTokenService(repo, cfg).
		WithLogger(passwordless.NoopLogger()).
		WithSMSSender(sms).
		WithKeyGenerator(fixedKey("654321"))

	ok := service.SendToken(context.Background(), user, passwordless.AliasMobile, passwordless.TokenTypeAuth, cfg.AuthTemplates(passwordless.AliasMobile))
	assert.True(t, ok)
	sms.AssertExpectations(t)
}

func TestTokenServiceReportsDeliveryFailure(t *testing.T) {
	clock := newStepClock()
	repo, _ := setupRepo(t, clock)
	cfg := serviceConfig()
	user := createUser(t, repo, "pepe@example.com")

	email := &MockEmailSender{}
	email.On("SendEmail", mock.Anything, mock.Anything).Return(errors.New("smtp down")).Once()

	recorder := &activityRecorder{}
	service := passwordless.NewTokenService(repo, cfg).
		WithLogger(passwordless.NoopLogger()).
		WithEmailSender(email).
		WithActivitySink(recorder)

	ok := service.SendToken(context.Background(), user, passwordless.AliasEmail, passwordless.TokenTypeAuth, cfg.AuthTemplates(passwordless.AliasEmail))
	assert.False(t, ok)
	assert.Equal(t, []passwordless.ActivityEventType{passwordless.ActivityEventTokenDeliveryFailed}, recorder.Types())
}

func TestTokenServiceRequiresNoReplyAddress(t *testing.T) {
	clock := newStepClock()
	repo, _ := setupRepo(t, clock)
	cfg := serviceConfig()
	cfg.EmailNoReplyAddress = ""
	user := createUser(t, repo, "pepe@example.com")

	email := &MockEmailSender{}
	service := passwordless.NewTokenService(repo, cfg).
		WithLogger(passwordless.NoopLogger()).
		WithEmailSender(email)

	ok := service.SendToken(context.Background(), user, passwordless.AliasEmail, passwordless.TokenTypeAuth, cfg.AuthTemplates(passwordless.AliasEmail))
	assert.False(t, ok)
	email.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)
}

func TestTokenServiceMissingAlias(t *testing.T) {
	clock := newStepClock()
	repo, db := setupRepo(t, clock)
	cfg := serviceConfig()
	user := createUser(t, repo, "pepe@example.com")

	service := passwordless.NewTokenService(repo, cfg).
		WithLogger(passwordless.NoopLogger()).
		WithSMSSender(&MockSMSSender{})

	ok := service.SendToken(context.Background(), user, passwordless.AliasMobile, passwordless.TokenTypeAuth, cfg.AuthTemplates(passwordless.AliasMobile))
	assert.False(t, ok)
	assert.Equal(t, 0, countTokens(t, db, true))
}

func TestTokenServiceTestSuppression(t *testing.T) {
	clock := newStepClock()
	repo, db := setupRepo(t, clock)
	cfg := serviceConfig()
	cfg.TestSuppression = true
	user := createUser(t, repo, "pepe@example.com")

	service := passwordless.NewTokenService(repo, cfg).WithLogger(passwordless.NoopLogger())

	ok := service.SendToken(context.Background(), user, passwordless.AliasEmail, passwordless.TokenTypeAuth, cfg.AuthTemplates(passwordless.AliasEmail))
	assert.True(t, ok)
	assert.Equal(t, 1, countTokens(t, db, true))
}

func TestTokenServiceRunsTokenRules(t *testing.T) {
	clock := newStepClock()
	repo, db := setupRepo(t, clock)
	cfg := serviceConfig()
	cfg.TestSuppression = true
	user := createUser(t, repo, "pepe@example.com")

	service := passwordless.NewTokenService(repo, cfg).WithLogger(passwordless.NoopLogger())
	require.NoError(t, passwordless.RegisterRules(repo, cfg, service, quiet()))

	ctx := context.Background()
	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for i := 0; i < 3; i++ {
			if !service.SendTokenTx(ctx, tx, user, passwordless.AliasEmail, passwordless.TokenTypeAuth, cfg.AuthTemplates(passwordless.AliasEmail)) {
				return errors.New("token not sent")
			}
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, countTokens(t, db, true))
	assert.Equal(t, 2, countTokens(t, db, false))
}

func TestTokenServiceFailedTokenSaveKeepsUserSave(t *testing.T) {
	clock := newStepClock()
	repo, db := setupRepo(t, clock)
	cfg := serviceConfig()
	cfg.TestSuppression = true
	cfg.MarkEmailVerified = true
	cfg.AutoSendVerificationToken = true

	service := passwordless.NewTokenService(repo, cfg).
		WithLogger(passwordless.NoopLogger()).
		WithClock(clock.Now)
	require.NoError(t, passwordless.RegisterRules(repo, cfg, service, quiet()))

	ctx := context.Background()
	user := createUser(t, repo, "pepe@example.com")
	require.True(t, user.EmailVerified)
	existing := createToken(t, repo, user, "111111", true)

	// runs after the invalidation rule has deactivated the existing token
	repo.CallbackTokens().Hooks().Register(passwordless.PreSaveHookFunc[*passwordless.CallbackToken](
		func(ctx context.Context, tx bun.IDB, token *passwordless.CallbackToken) error {
			return errors.New("insert rejected")
		},
	))

	user.Email = "nuevo@example.com"
	_, err := repo.Users().Save(ctx, user)
	require.NoError(t, err)

	stored, err := repo.Users().GetByAlias(ctx, passwordless.AliasEmail, "nuevo@example.com")
	require.NoError(t, err)
	assert.False(t, stored.EmailVerified)

	assert.True(t, loadToken(t, db, existing.ID).IsActive)
	assert.Equal(t, 1, countTokens(t, db, true))
	assert.Equal(t, 0, countTokens(t, db, false))
}
