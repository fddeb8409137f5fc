package passwordless

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CallbackTokens stores callback tokens and runs their pre-save rules.
type CallbackTokens interface {
	repository.Repository[*CallbackToken]

	Hooks() *SaveHooks[*CallbackToken]

	Save(ctx context.Context, token *CallbackToken) (*CallbackToken, error)
	SaveTx(ctx context.Context, tx bun.IDB, token *CallbackToken) (*CallbackToken, error)

	// ActiveForUserTx lists active tokens of a user, oldest first, skipping exclude.
	ActiveForUserTx(ctx context.Context, tx bun.IDB, userID, exclude uuid.UUID) ([]*CallbackToken, error)
	// DeactivateTx writes is_active=false for token without running hooks.
	DeactivateTx(ctx context.Context, tx bun.IDB, token *CallbackToken) error
	ActiveKeyExistsTx(ctx context.Context, tx bun.IDB, key string, exclude uuid.UUID) (bool, error)
	DeleteInactiveTx(ctx context.Context, tx bun.IDB, exclude uuid.UUID) (int64, error)
	FindActiveTx(ctx context.Context, tx bun.IDB, key string, kind AliasKind, alias string) (*CallbackToken, error)
}

type callbackTokens struct {
	repository.Repository[*CallbackToken]
	db    *bun.DB
	hooks *SaveHooks[*CallbackToken]
	now   func() time.Time
}

var _ CallbackTokens = (*callbackTokens)(nil)

type CallbackTokensOption func(*callbackTokens)

// WithCallbackTokensClock injects the clock used for creation timestamps.
func WithCallbackTokensClock(now func() time.Time) CallbackTokensOption {
	return func(c *callbackTokens) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCallbackTokensRepository(db *bun.DB, opts ...CallbackTokensOption) CallbackTokens {
	handlers := repository.ModelHandlers[*CallbackToken]{
		NewRecord: func() *CallbackToken {
			return &CallbackToken{}
		},
		GetID: func(record *CallbackToken) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *CallbackToken, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "key"
		},
	}

	repo := &callbackTokens{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
		hooks:      &SaveHooks[*CallbackToken]{},
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}

	return repo
}

func (r *callbackTokens) Hooks() *SaveHooks[*CallbackToken] {
	return r.hooks
}

func (r *callbackTokens) Save(ctx context.Context, token *CallbackToken) (*CallbackToken, error) {
	var saved *CallbackToken
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		saved, err = r.SaveTx(ctx, tx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (r *callbackTokens) SaveTx(ctx context.Context, tx bun.IDB, token *CallbackToken) (*CallbackToken, error) {
	if token == nil {
		return nil, errors.New("callback token is nil")
	}

	if err := r.hooks.Run(ctx, tx, token); err != nil {
		return nil, err
	}

	exists := false
	if token.ID != uuid.Nil {
		var err error
		exists, err = tx.NewSelect().
			Model((*CallbackToken)(nil)).
			Where("?TableAlias.id = ?", token.ID).
			Exists(ctx)
		if err != nil {
			return nil, err
		}
	}

	if exists {
		_, err := tx.NewUpdate().
			Model(token).
			ExcludeColumn("id", "created_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return nil, err
		}
		return token, nil
	}

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}
	if token.CreatedAt == nil {
		now := r.now()
		token.CreatedAt = &now
	}

	if _, err := tx.NewInsert().Model(token).Exec(ctx); err != nil {
		return nil, err
	}

	return token, nil
}

func (r *callbackTokens) ActiveForUserTx(ctx context.Context, tx bun.IDB, userID, exclude uuid.UUID) ([]*CallbackToken, error) {
	records := []*CallbackToken{}
	q := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.is_active = ?", true).
		Order("created_at ASC")

	if exclude != uuid.Nil {
		q = q.Where("?TableAlias.id <> ?", exclude)
	}

	if err := q.Scan(ctx); err != nil {
		if isNoRows(err) {
			return records, nil
		}
		return nil, err
	}
	return records, nil
}

func (r *callbackTokens) DeactivateTx(ctx context.Context, tx bun.IDB, token *CallbackToken) error {
	if token == nil {
		return nil
	}
	token.IsActive = false
	_, err := tx.NewUpdate().
		Model(token).
		Column("is_active").
		WherePK().
		Exec(ctx)
	return err
}

func (r *callbackTokens) ActiveKeyExistsTx(ctx context.Context, tx bun.IDB, key string, exclude uuid.UUID) (bool, error) {
	q := tx.NewSelect().
		Model((*CallbackToken)(nil)).
		Where("?TableAlias.key = ?", key).
		Where("?TableAlias.is_active = ?", true)

	if exclude != uuid.Nil {
		q = q.Where("?TableAlias.id <> ?", exclude)
	}

	return q.Exists(ctx)
}

func (r *callbackTokens) DeleteInactiveTx(ctx context.Context, tx bun.IDB, exclude uuid.UUID) (int64, error) {
	q := tx.NewDelete().
		Model((*CallbackToken)(nil)).
		Where("is_active = ?", false)

	if exclude != uuid.Nil {
		q = q.Where("id <> ?", exclude)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *callbackTokens) FindActiveTx(ctx context.Context, tx bun.IDB, key string, kind AliasKind, alias string) (*CallbackToken, error) {
	record := &CallbackToken{}
	q := tx.NewSelect().
		Model(record).
		Where("?TableAlias.key = ?", strings.TrimSpace(key)).
		Where("?TableAlias.to_alias_type = ?", kind).
		Where("?TableAlias.is_active = ?", true)
	if kind == AliasEmail {
		q = q.Where("lower(?TableAlias.to_alias) = ?", strings.ToLower(alias))
	} else {
		q = q.Where("?TableAlias.to_alias = ?", alias)
	}
	err := q.Order("created_at DESC").Limit(1).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"alias_type": kind,
					"alias":      alias,
				})
		}
		return nil, err
	}
	return record, nil
}
