package passwordless_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-passwordless"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock() *stepClock {
	return &stepClock{
		now:  time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		step: time.Second,
	}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	require.NoError(t, passwordless.Migrate(context.Background(), db, "sqlite"))

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func setupRepo(t *testing.T, clock *stepClock) (passwordless.RepositoryManager, *bun.DB) {
	t.Helper()

	db := setupTestDB(t)
	repo := passwordless.NewRepositoryManager(db,
		passwordless.WithUsers(passwordless.NewUsersRepository(db,
			passwordless.WithUsersClock(clock.Now),
		)),
		passwordless.WithCallbackTokens(passwordless.NewCallbackTokensRepository(db,
			passwordless.WithCallbackTokensClock(clock.Now),
		)),
	)
	return repo, db
}

func quiet() passwordless.RuleOption {
	return passwordless.WithRuleLogger(passwordless.NoopLogger())
}

func createUser(t *testing.T, repo passwordless.RepositoryManager, email string) *passwordless.User {
	t.Helper()
	user, err := repo.Users().Save(context.Background(), &passwordless.User{
		Email:    email,
		IsActive: true,
	})
	require.NoError(t, err)
	return user
}

func createToken(t *testing.T, repo passwordless.RepositoryManager, user *passwordless.User, key string, active bool) *passwordless.CallbackToken {
	t.Helper()
	token, err := repo.CallbackTokens().Save(context.Background(), &passwordless.CallbackToken{
		UserID:      user.ID,
		Key:         key,
		ToAliasType: passwordless.AliasEmail,
		ToAlias:     user.Email,
		Type:        passwordless.TokenTypeAuth,
		IsActive:    active,
	})
	require.NoError(t, err)
	return token
}

func countTokens(t *testing.T, db *bun.DB, active bool) int {
	t.Helper()
	count, err := db.NewSelect().
		Model((*passwordless.CallbackToken)(nil)).
		Where("is_active = ?", active).
		Count(context.Background())
	require.NoError(t, err)
	return count
}

func loadToken(t *testing.T, db *bun.DB, id uuid.UUID) *passwordless.CallbackToken {
	t.Helper()
	token := &passwordless.CallbackToken{}
	err := db.NewSelect().Model(token).Where("id = ?", id).Scan(context.Background())
	require.NoError(t, err)
	return token
}

type sendCall struct {
	UserID    uuid.UUID
	Alias     string
	Kind      passwordless.AliasKind
	TokenType passwordless.TokenType
	Templates passwordless.MessageTemplates
}

// recordingSender captures SendTokenTx calls and returns result.
type recordingSender struct {
	mu     sync.Mutex
	result bool
	calls  []sendCall
}

func (s *recordingSender) SendTokenTx(ctx context.Context, tx bun.IDB, user *passwordless.User, kind passwordless.AliasKind, tokenType passwordless.TokenType, tmpl passwordless.MessageTemplates) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	alias := user.Email
	if kind == passwordless.AliasMobile {
		alias = user.Mobile
	}

	s.calls = append(s.calls, sendCall{
		UserID:    user.ID,
		Alias:     alias,
		Kind:      kind,
		TokenType: tokenType,
		Templates: tmpl,
	})
	return s.result
}

func (s *recordingSender) Calls() []sendCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sendCall(nil), s.calls...)
}

type activityRecorder struct {
	mu     sync.Mutex
	events []passwordless.ActivityEvent
}

func (r *activityRecorder) Record(ctx context.Context, event passwordless.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) Types() []passwordless.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]passwordless.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}
