package passwordless

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Users interface {
	repository.Repository[*User]

	Hooks() *SaveHooks[*User]

	Save(ctx context.Context, user *User) (*User, error)
	SaveTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
	GetByAlias(ctx context.Context, kind AliasKind, value string) (*User, error)
	GetByAliasTx(ctx context.Context, tx bun.IDB, kind AliasKind, value string) (*User, error)
	FindPersistedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)
}

type users struct {
	repository.Repository[*User]
	db      *bun.DB
	hooks   *SaveHooks[*User]
	columns map[AliasKind]string
	now     func() time.Time
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

type UsersOption func(*users)

// WithUsersAliasColumns overrides the columns used to look users up by alias.
func WithUsersAliasColumns(columns map[AliasKind]string) UsersOption {
	return func(u *users) {
		for kind, column := range columns {
			if column != "" {
				u.columns[kind] = column
			}
		}
	}
}

// WithUsersClock injects the clock used for timestamps.
func WithUsersClock(now func() time.Time) UsersOption {
	return func(u *users) {
		if now != nil {
			u.now = now
		}
	}
}

func NewUsersRepository(db *bun.DB, opts ...UsersOption) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoUsers := &users{
		Repository: repo,
		db:         db,
		hooks:      &SaveHooks[*User]{},
		columns: map[AliasKind]string{
			AliasEmail:  "email",
			AliasMobile: "mobile",
		},
		now: time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repoUsers)
		}
	}

	return repoUsers
}

func (a *users) Hooks() *SaveHooks[*User] {
	return a.hooks
}

// Save runs the pre-save hooks and the write in a single transaction.
func (a *users) Save(ctx context.Context, user *User) (*User, error) {
	var saved *User
	err := a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		saved, err = a.SaveTx(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// SaveTx runs the pre-save hooks against the pending user and then
// inserts or updates it using tx.
func (a *users) SaveTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user == nil {
		return nil, errors.New("user is nil")
	}

	if err := a.hooks.Run(ctx, tx, user); err != nil {
		return nil, err
	}

	exists := false
	if user.ID != uuid.Nil {
		var err error
		exists, err = tx.NewSelect().
			Model((*User)(nil)).
			Where("?TableAlias.id = ?", user.ID).
			Exists(ctx)
		if err != nil {
			return nil, err
		}
	}

	now := a.now()
	user.UpdatedAt = &now

	if exists {
		_, err := tx.NewUpdate().
			Model(user).
			ExcludeColumn("id", "created_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return nil, err
		}
		return user, nil
	}

	prepareUserDefaults(user)
	if user.CreatedAt == nil {
		user.CreatedAt = &now
	}

	if _, err := tx.NewInsert().Model(user).Exec(ctx); err != nil {
		return nil, err
	}

	return user, nil
}

func (a *users) GetByAlias(ctx context.Context, kind AliasKind, value string) (*User, error) {
	return a.GetByAliasTx(ctx, a.db, kind, value)
}

func (a *users) GetByAliasTx(ctx context.Context, tx bun.IDB, kind AliasKind, value string) (*User, error) {
	column, ok := a.columns[kind]
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"alias_type": kind,
				"alias":      value,
			})
	}

	record := &User{}
	q := tx.NewSelect().Model(record)
	if kind == AliasEmail {
		q = q.Where("lower(?TableAlias.?) = ?", bun.Ident(column), strings.ToLower(value))
	} else {
		q = q.Where("?TableAlias.? = ?", bun.Ident(column), value)
	}
	err := q.Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"alias_type": kind,
					"alias":      value,
				})
		}
		return nil, err
	}

	return record, nil
}

// FindPersistedTx loads the stored state of a user, ignoring any pending changes
// held by the caller. It returns a not found error when the row does not exist.
func (a *users) FindPersistedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": id.String(),
				})
		}
		return nil, err
	}
	return record, nil
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.Username == "" {
		record.Username = getUsername(record.Email, record.Mobile)
	}
}

func getUsername(email, mobile string) string {
	if strings.Contains(email, "@") {
		return strings.Split(email, "@")[0]
	}
	return mobile
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || repository.IsRecordNotFound(err)
}
