package passwordless

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// Config holds every option the rules, services and handlers read.
// Build one with DefaultConfig or LoadConfig and pass it explicitly.
type Config struct {
	// AuthTypes lists the alias kinds that can be used to log in.
	AuthTypes []string `env:"PASSWORDLESS_AUTH_TYPES" envSeparator:"," envDefault:"email"`

	EmailNoReplyAddress   string `env:"PASSWORDLESS_EMAIL_NOREPLY_ADDRESS"`
	EmailSubject          string `env:"PASSWORDLESS_EMAIL_SUBJECT" envDefault:"Your Login Token"`
	EmailPlaintextMessage string `env:"PASSWORDLESS_EMAIL_PLAINTEXT_MESSAGE" envDefault:"Enter this token to sign in: %s"`
	EmailHTMLTemplateName string `env:"PASSWORDLESS_EMAIL_TOKEN_HTML_TEMPLATE_NAME" envDefault:"passwordless_default_token_email.html"`

	MobileMessage       string `env:"PASSWORDLESS_MOBILE_MESSAGE" envDefault:"Use this code to log in: %s"`
	MobileNoReplyNumber string `env:"PASSWORDLESS_MOBILE_NOREPLY_NUMBER"`

	EmailVerificationSubject          string `env:"PASSWORDLESS_EMAIL_VERIFICATION_SUBJECT" envDefault:"Your Verification Token"`
	EmailVerificationPlaintextMessage string `env:"PASSWORDLESS_EMAIL_VERIFICATION_PLAINTEXT_MESSAGE" envDefault:"Enter this verification code: %s"`
	EmailVerificationHTMLTemplateName string `env:"PASSWORDLESS_EMAIL_VERIFICATION_TOKEN_HTML_TEMPLATE_NAME" envDefault:"passwordless_default_verification_token_email.html"`
	MobileVerificationMessage         string `env:"PASSWORDLESS_MOBILE_VERIFICATION_MESSAGE" envDefault:"Enter this verification code: %s"`

	EmailFieldName          string `env:"PASSWORDLESS_USER_EMAIL_FIELD_NAME" envDefault:"email"`
	EmailVerifiedFieldName  string `env:"PASSWORDLESS_USER_EMAIL_VERIFIED_FIELD_NAME" envDefault:"email_verified"`
	MobileFieldName         string `env:"PASSWORDLESS_USER_MOBILE_FIELD_NAME" envDefault:"mobile"`
	MobileVerifiedFieldName string `env:"PASSWORDLESS_USER_MOBILE_VERIFIED_FIELD_NAME" envDefault:"mobile_verified"`

	MarkEmailVerified         bool `env:"PASSWORDLESS_USER_MARK_EMAIL_VERIFIED"`
	MarkMobileVerified        bool `env:"PASSWORDLESS_USER_MARK_MOBILE_VERIFIED"`
	AutoSendVerificationToken bool `env:"PASSWORDLESS_AUTO_SEND_VERIFICATION_TOKEN"`
	DeleteInactiveTokens      bool `env:"PASSWORDLESS_DELETE_INACTIVE_CALLBACK_TOKENS"`
	RegisterNewUsers          bool `env:"PASSWORDLESS_REGISTER_NEW_USERS" envDefault:"true"`
	// UseHashID derives ids of auto registered users from their alias.
	UseHashID bool `env:"PASSWORDLESS_USE_HASHID"`
	// TestSuppression skips delivery and reports success.
	TestSuppression bool `env:"PASSWORDLESS_TEST_SUPPRESSION"`

	TokenExpiry time.Duration `env:"PASSWORDLESS_TOKEN_EXPIRE_TIME" envDefault:"15m"`
	TokenLength int           `env:"PASSWORDLESS_TOKEN_LENGTH" envDefault:"6"`

	// TemplateDir overrides the embedded email templates when set.
	TemplateDir string `env:"PASSWORDLESS_TEMPLATE_DIR"`
	// DefaultRegion is used to parse mobile numbers without a country code.
	DefaultRegion string `env:"PASSWORDLESS_DEFAULT_REGION" envDefault:"US"`

	SigningKey string        `env:"PASSWORDLESS_SIGNING_KEY"`
	Issuer     string        `env:"PASSWORDLESS_ISSUER" envDefault:"passwordless"`
	Audience   []string      `env:"PASSWORDLESS_AUDIENCE" envSeparator:","`
	SessionTTL time.Duration `env:"PASSWORDLESS_SESSION_TTL" envDefault:"24h"`
}

// DefaultConfig returns the configuration used when no environment is set.
func DefaultConfig() Config {
	return Config{
		AuthTypes:                         []string{string(AliasEmail)},
		EmailSubject:                      "Your Login Token",
		EmailPlaintextMessage:             "Enter this token to sign in: %s",
		EmailHTMLTemplateName:             "passwordless_default_token_email.html",
		MobileMessage:                     "Use this code to log in: %s",
		EmailVerificationSubject:          "Your Verification Token",
		EmailVerificationPlaintextMessage: "Enter this verification code: %s",
		EmailVerificationHTMLTemplateName: "passwordless_default_verification_token_email.html",
		MobileVerificationMessage:         "Enter this verification code: %s",
		EmailFieldName:                    "email",
		EmailVerifiedFieldName:            "email_verified",
		MobileFieldName:                   "mobile",
		MobileVerifiedFieldName:           "mobile_verified",
		RegisterNewUsers:                  true,
		TokenExpiry:                       15 * time.Minute,
		TokenLength:                       6,
		DefaultRegion:                     "US",
		Issuer:                            "passwordless",
		SessionTTL:                        24 * time.Hour,
	}
}

// LoadConfig reads PASSWORDLESS_* variables from the environment.
func LoadConfig() (Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks option values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.AuthTypes, validation.By(validAuthTypes)),
		validation.Field(&c.EmailNoReplyAddress, is.Email),
		validation.Field(&c.EmailFieldName, validation.Required),
		validation.Field(&c.EmailVerifiedFieldName, validation.Required),
		validation.Field(&c.MobileFieldName, validation.Required),
		validation.Field(&c.MobileVerifiedFieldName, validation.Required),
		validation.Field(&c.TokenLength, validation.Required, validation.Min(4), validation.Max(12)),
		validation.Field(&c.TokenExpiry, validation.Required),
		validation.Field(&c.SessionTTL, validation.Required),
	)
}

// AuthTypeEnabled reports whether kind can be used to log in.
func (c Config) AuthTypeEnabled(kind AliasKind) bool {
	for _, k := range c.AuthTypes {
		if parsed, ok := ParseAliasKind(k); ok && parsed == kind {
			return true
		}
	}
	return false
}

// MarkVerified reports whether the verified flag of kind is managed.
func (c Config) MarkVerified(kind AliasKind) bool {
	switch kind {
	case AliasEmail:
		return c.MarkEmailVerified
	case AliasMobile:
		return c.MarkMobileVerified
	}
	return false
}

// AuthTemplates returns the login message templates for kind.
func (c Config) AuthTemplates(kind AliasKind) MessageTemplates {
	if kind == AliasMobile {
		return MessageTemplates{MobileMessage: c.MobileMessage}
	}
	return MessageTemplates{
		EmailSubject:   c.EmailSubject,
		EmailPlaintext: c.EmailPlaintextMessage,
		EmailHTML:      c.EmailHTMLTemplateName,
	}
}

// VerificationTemplates returns the alias verification templates for kind.
func (c Config) VerificationTemplates(kind AliasKind) MessageTemplates {
	if kind == AliasMobile {
		return MessageTemplates{MobileMessage: c.MobileVerificationMessage}
	}
	return MessageTemplates{
		EmailSubject:   c.EmailVerificationSubject,
		EmailPlaintext: c.EmailVerificationPlaintextMessage,
		EmailHTML:      c.EmailVerificationHTMLTemplateName,
	}
}

func validAuthTypes(value any) error {
	types, _ := value.([]string)
	for _, t := range types {
		if _, ok := ParseAliasKind(t); !ok {
			return fmt.Errorf("unsupported auth type %q", t)
		}
	}
	return nil
}
