package passwordless

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	CallbackTokens() CallbackTokens
}

type mngr struct {
	db             *bun.DB
	users          Users
	callbackTokens CallbackTokens
}

// ManagerOption customizes the repositories built by NewRepositoryManager.
type ManagerOption func(*mngr)

// WithUsers replaces the users repository.
func WithUsers(users Users) ManagerOption {
	return func(m *mngr) {
		if users != nil {
			m.users = users
		}
	}
}

// WithCallbackTokens replaces the callback tokens repository.
func WithCallbackTokens(tokens CallbackTokens) ManagerOption {
	return func(m *mngr) {
		if tokens != nil {
			m.callbackTokens = tokens
		}
	}
}

func NewRepositoryManager(db *bun.DB, opts ...ManagerOption) RepositoryManager {
	m := &mngr{
		db:             db,
		users:          NewUsersRepository(db),
		callbackTokens: NewCallbackTokensRepository(db),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.callbackTokens == nil {
		return errors.New("repository callbackTokens should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) CallbackTokens() CallbackTokens {
	return m.callbackTokens
}
