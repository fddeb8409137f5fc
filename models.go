package passwordless

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenType tells what a callback token is used for
type TokenType = string

const (
	// TokenTypeAuth tokens log a user in
	TokenTypeAuth TokenType = "AUTH"
	// TokenTypeVerify tokens confirm ownership of an alias
	TokenTypeVerify TokenType = "VERIFY"
)

// User is the user model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Username       string     `bun:"username,nullzero" json:"username,omitempty"`
	Email          string     `bun:"email,nullzero,unique" json:"email,omitempty"`
	Mobile         string     `bun:"mobile,nullzero,unique" json:"mobile,omitempty"`
	EmailVerified  bool       `bun:"email_verified,notnull" json:"email_verified"`
	MobileVerified bool       `bun:"mobile_verified,notnull" json:"mobile_verified"`
	IsActive       bool       `bun:"is_active,notnull" json:"is_active"`
	CreatedAt      *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// CallbackToken is a one time code bound to a user alias
type CallbackToken struct {
	bun.BaseModel `bun:"table:callback_tokens,alias:cbt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Key           string     `bun:"key,notnull" json:"key,omitempty"`
	ToAliasType   AliasKind  `bun:"to_alias_type,notnull" json:"to_alias_type,omitempty"`
	ToAlias       string     `bun:"to_alias,notnull" json:"to_alias,omitempty"`
	Type          TokenType  `bun:"type,notnull" json:"type,omitempty"`
	IsActive      bool       `bun:"is_active,notnull" json:"is_active"`
	CreatedAt     *time.Time `bun:"created_at,nullzero" json:"created_at,omitempty"`
}

// IsExpired reports whether the token is older than ttl at the given time.
// Tokens without a creation time are treated as expired.
func (t *CallbackToken) IsExpired(now time.Time, ttl time.Duration) bool {
	if t == nil || t.CreatedAt == nil {
		return true
	}
	return now.Sub(*t.CreatedAt) > ttl
}
