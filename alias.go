package passwordless

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/nyaruka/phonenumbers"
)

// AliasKind is a user contact channel
type AliasKind string

const (
	AliasEmail  AliasKind = "email"
	AliasMobile AliasKind = "mobile"
)

// ParseAliasKind accepts either case of a known alias kind.
func ParseAliasKind(s string) (AliasKind, bool) {
	switch AliasKind(strings.ToLower(strings.TrimSpace(s))) {
	case AliasEmail:
		return AliasEmail, true
	case AliasMobile:
		return AliasMobile, true
	}
	return "", false
}

// AliasAccessor reads and writes one alias and its verified flag on a User.
// Accessors are resolved once from configured field names, see ResolveAliasAccessor.
type AliasAccessor struct {
	Kind        AliasKind
	Field       string
	Get         func(u *User) string
	Set         func(u *User, value string)
	Verified    func(u *User) bool
	SetVerified func(u *User, verified bool)
}

var aliasFields = map[string]struct {
	get func(u *User) string
	set func(u *User, value string)
}{
	"email": {
		get: func(u *User) string { return u.Email },
		set: func(u *User, v string) { u.Email = v },
	},
	"mobile": {
		get: func(u *User) string { return u.Mobile },
		set: func(u *User, v string) { u.Mobile = v },
	},
	"username": {
		get: func(u *User) string { return u.Username },
		set: func(u *User, v string) { u.Username = v },
	},
}

var verifiedFields = map[string]struct {
	get func(u *User) bool
	set func(u *User, v bool)
}{
	"email_verified": {
		get: func(u *User) bool { return u.EmailVerified },
		set: func(u *User, v bool) { u.EmailVerified = v },
	},
	"mobile_verified": {
		get: func(u *User) bool { return u.MobileVerified },
		set: func(u *User, v bool) { u.MobileVerified = v },
	},
}

// ResolveAliasAccessor maps configured column names to typed accessors.
func ResolveAliasAccessor(kind AliasKind, field, verifiedField string) (AliasAccessor, error) {
	alias, ok := aliasFields[field]
	if !ok {
		return AliasAccessor{}, errUnknownAliasField(kind, field)
	}

	verified, ok := verifiedFields[verifiedField]
	if !ok {
		return AliasAccessor{}, errUnknownAliasField(kind, verifiedField)
	}

	return AliasAccessor{
		Kind:        kind,
		Field:       field,
		Get:         alias.get,
		Set:         alias.set,
		Verified:    verified.get,
		SetVerified: verified.set,
	}, nil
}

// AliasAccessors resolves the accessors for both alias kinds from config.
func AliasAccessors(cfg Config) (map[AliasKind]AliasAccessor, error) {
	email, err := ResolveAliasAccessor(AliasEmail, cfg.EmailFieldName, cfg.EmailVerifiedFieldName)
	if err != nil {
		return nil, err
	}

	mobile, err := ResolveAliasAccessor(AliasMobile, cfg.MobileFieldName, cfg.MobileVerifiedFieldName)
	if err != nil {
		return nil, err
	}

	return map[AliasKind]AliasAccessor{
		AliasEmail:  email,
		AliasMobile: mobile,
	}, nil
}

// NormalizeAlias validates value for the alias kind and returns its canonical form.
// Emails are lower-cased. Mobile numbers are returned in E.164, using region when no country code is present.
func NormalizeAlias(kind AliasKind, value, region string) (string, error) {
	value = strings.TrimSpace(value)

	switch kind {
	case AliasEmail:
		if err := validation.Validate(value, validation.Required, is.Email); err != nil {
			return "", errAliasInvalid(kind, value)
		}
		return strings.ToLower(value), nil
	case AliasMobile:
		if value == "" {
			return "", errAliasInvalid(kind, value)
		}
		num, err := phonenumbers.Parse(value, region)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return "", errAliasInvalid(kind, value)
		}
		return phonenumbers.Format(num, phonenumbers.E164), nil
	}

	return "", errAliasInvalid(kind, value)
}
