package passwordless_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-passwordless"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type httpFixture struct {
	app        *fiber.App
	controller *passwordless.HTTPController
	clock      *stepClock
	repo     passwordless.RepositoryManager
	db       *bun.DB
	sessions *passwordless.SessionIssuer
}

func setupHTTP(t *testing.T) *httpFixture {
	t.Helper()

	clock := newStepClock()
	repo, db := setupRepo(t, clock)

	cfg := passwordless.DefaultConfig()
	cfg.TestSuppression = true
	cfg.SigningKey = "http-test-key"
	cfg.MarkEmailVerified = true

	service := passwordless.NewTokenService(repo, cfg).
		WithLogger(passwordless.NoopLogger()).
		WithKeyGenerator(fixedKey("123456")).
		WithClock(clock.Now)
	require.NoError(t, passwordless.RegisterRules(repo, cfg, service, quiet()))

	sessions := passwordless.NewSessionIssuer(cfg)

	app := fiber.New()
	controller := passwordless.RegisterPasswordlessRoutes(app,
		passwordless.WithControllerRepository(repo),
		passwordless.WithControllerConfig(cfg),
		passwordless.WithControllerSender(service),
		passwordless.WithControllerSessions(sessions),
		passwordless.WithControllerClock(clock.Now),
		passwordless.WithControllerLogger(passwordless.NoopLogger()),
	)

	return &httpFixture{app: app, controller: controller, clock: clock, repo: repo, db: db, sessions: sessions}
}

func (f *httpFixture) post(t *testing.T, path string, body any, bearer string) (int, map[string]any) {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := f.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (f *httpFixture) login(t *testing.T, email string) string {
	t.Helper()

	status, _ := f.post(t, "/auth/email/", map[string]string{"email": email}, "")
	require.Equal(t, http.StatusOK, status)

	status, body := f.post(t, "/auth/token/", map[string]string{"email": email, "token": "123456"}, "")
	require.Equal(t, http.StatusOK, status)

	token, ok := body["token"].(string)
	require.True(t, ok)
	return token
}

func TestHTTPLoginFlow(t *testing.T) {
	f := setupHTTP(t)

	status, body := f.post(t, "/auth/email/", map[string]string{"email": "pepe@example.com"}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "A login token has been sent to your email.", body["detail"])

	status, body = f.post(t, "/auth/token/", map[string]string{"email": "pepe@example.com", "token": "123456"}, "")
	require.Equal(t, http.StatusOK, status)

	claims, err := f.sessions.Parse(body["token"].(string))
	require.NoError(t, err)
	assert.Equal(t, "pepe@example.com", claims.Email)

	// tokens are single use
	status, body = f.post(t, "/auth/token/", map[string]string{"email": "pepe@example.com", "token": "123456"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, passwordless.TextCodeTokenInvalid, body["code"])
}

func TestHTTPRedeemUsesControllerClock(t *testing.T) {
	f := setupHTTP(t)

	status, _ := f.post(t, "/auth/email/", map[string]string{"email": "pepe@example.com"}, "")
	require.Equal(t, http.StatusOK, status)

	f.clock.Advance(16 * time.Minute)

	status, body := f.post(t, "/auth/token/", map[string]string{"email": "pepe@example.com", "token": "123456"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, passwordless.TextCodeTokenExpired, body["code"])
	assert.Equal(t, 0, countTokens(t, f.db, true))
}

func TestHTTPObtainValidation(t *testing.T) {
	f := setupHTTP(t)

	status, body := f.post(t, "/auth/email/", map[string]string{"email": "nope"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "errors")

	status, body = f.post(t, "/auth/mobile/", map[string]string{"mobile": "+14155550100"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, passwordless.TextCodeAliasTypeDisabled, body["code"])
}

func TestHTTPRedeemValidation(t *testing.T) {
	f := setupHTTP(t)

	status, _ := f.post(t, "/auth/token/", map[string]string{"token": "123456"}, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = f.post(t, "/auth/token/", map[string]string{"email": "pepe@example.com", "token": "abc"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHTTPVerificationRequiresSession(t *testing.T) {
	f := setupHTTP(t)

	status, _ := f.post(t, "/auth/verify/email/", map[string]string{}, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = f.post(t, "/auth/verify/email/", map[string]string{}, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHTTPVerificationFlow(t *testing.T) {
	f := setupHTTP(t)
	session := f.login(t, "pepe@example.com")

	status, body := f.post(t, "/auth/verify/email/", map[string]string{}, session)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "A verification token has been sent to your email.", body["detail"])

	status, body = f.post(t, "/auth/verify/", map[string]string{"email": "pepe@example.com", "token": "123456"}, session)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Alias verified.", body["detail"])

	assert.Equal(t, 0, countTokens(t, f.db, true))
}

func TestHTTPVerificationWithoutAlias(t *testing.T) {
	f := setupHTTP(t)
	session := f.login(t, "pepe@example.com")

	status, body := f.post(t, "/auth/verify/mobile/", map[string]string{}, session)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, passwordless.TextCodeAliasInvalid, body["code"])
}

func TestHTTPRequireSessionExposesClaims(t *testing.T) {
	f := setupHTTP(t)
	f.app.Post("/me", f.controller.RequireSession, func(c *fiber.Ctx) error {
		claims, ok := passwordless.SessionFromFiber(c)
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.JSON(fiber.Map{"email": claims.Email, "subject": claims.Subject})
	})

	session := f.login(t, "pepe@example.com")

	status, body := f.post(t, "/me", map[string]string{}, session)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pepe@example.com", body["email"])

	user, err := f.repo.Users().GetByAlias(context.Background(), passwordless.AliasEmail, "pepe@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), body["subject"])
}
