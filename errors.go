package passwordless

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenInvalid        = "TOKEN_INVALID"
	TextCodeAliasInvalid        = "ALIAS_INVALID"
	TextCodeAliasTypeDisabled   = "ALIAS_TYPE_DISABLED"
	TextCodeUserNotFound        = "USER_NOT_FOUND"
	TextCodeUserInactive        = "USER_INACTIVE"
	TextCodeTokenDeliveryFailed = "TOKEN_DELIVERY_FAILED"
	TextCodeUnknownAliasField   = "UNKNOWN_ALIAS_FIELD"
)

// ErrTokenExpired is returned when redeeming a token older than the configured expiry.
var ErrTokenExpired = goerrors.New("callback token has expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenInvalid is returned when no active token matches the redemption request.
var ErrTokenInvalid = goerrors.New("invalid callback token", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenInvalid).
	WithCode(goerrors.CodeBadRequest)

// ErrUserInactive is returned for accounts that can not log in.
var ErrUserInactive = goerrors.New("user account is not active", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserInactive).
	WithCode(goerrors.CodeForbidden)

// ErrTokenDeliveryFailed is returned by commands when a token could not be sent.
var ErrTokenDeliveryFailed = goerrors.New("unable to send callback token", goerrors.CategoryOperation).
	WithTextCode(TextCodeTokenDeliveryFailed).
	WithCode(goerrors.CodeInternal)

func errAliasInvalid(kind AliasKind, value string) error {
	return goerrors.New("invalid alias for "+string(kind), goerrors.CategoryValidation).
		WithTextCode(TextCodeAliasInvalid).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"alias_type": kind,
			"alias":      value,
		})
}

func errAliasTypeDisabled(kind AliasKind) error {
	return goerrors.New("alias type is not enabled for authentication", goerrors.CategoryBadInput).
		WithTextCode(TextCodeAliasTypeDisabled).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"alias_type": kind,
		})
}

func errUserNotFound(kind AliasKind, value string) error {
	return goerrors.New("no user registered for alias", goerrors.CategoryNotFound).
		WithTextCode(TextCodeUserNotFound).
		WithCode(goerrors.CodeNotFound).
		WithMetadata(map[string]any{
			"alias_type": kind,
			"alias":      value,
		})
}

func errUnknownAliasField(kind AliasKind, field string) error {
	return goerrors.New("unknown alias field", goerrors.CategoryBadInput).
		WithTextCode(TextCodeUnknownAliasField).
		WithMetadata(map[string]any{
			"alias_type": kind,
			"field":      field,
		})
}

// TextCode returns the text code carried by a rich error, or an empty string.
func TextCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}
