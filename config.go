package keylio

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// SessionStrategy selects how an issued session is represented.
type SessionStrategy string

const (
	// StrategyJWT encodes the whole session in a signed, client-held token.
	StrategyJWT SessionStrategy = "jwt"
	// StrategyDatabase persists a session row referenced by an opaque token.
	StrategyDatabase SessionStrategy = "database"
)

// AuthMethod discriminates sign-up/sign-in inputs.
type AuthMethod string

const (
	MethodCredentials AuthMethod = "credentials"
	MethodOAuth       AuthMethod = "oAuth"
	MethodPhoneOTP    AuthMethod = "phoneOTP"
)

// Default values applied by the configuration normalizer.
const (
	DefaultCookieName = "keylio.session-token"
	DefaultSessionAge = 24 * time.Hour
	DefaultCookiePath = "/"

	DefaultPasswordMinLength = 8
)

// CookieOptions is the session cookie policy. HTTPOnly, Secure and
// RequireNumbers-style booleans are pointers so a caller can switch a
// default-on flag off without the zero value being mistaken for "unset".
type CookieOptions struct {
	Name     string
	HTTPOnly *bool
	Secure   *bool
	SameSite http.SameSite
	Path     string
	MaxAge   time.Duration
}

// SessionOptions configures session issuance. Secret has no default; New
// rejects a configuration without one.
type SessionOptions struct {
	Strategy SessionStrategy
	Secret   string
	MaxAge   time.Duration
	Cookie   *CookieOptions
}

// PasswordPolicy constrains passwords at sign-up.
type PasswordPolicy struct {
	MinLength      int
	RequireNumbers *bool
	RequireSymbols *bool
}

// CredentialsOptions configures the email/password method.
type CredentialsOptions struct {
	Enabled                  *bool
	RequireEmailVerification bool
	PasswordPolicy           *PasswordPolicy
}

// OAuthProvider is one configured OAuth identity provider. The flow itself
// is not implemented; the entry normalizes into an oauth2.Config so hosting
// apps can drive their own flow from the same configuration.
type OAuthProvider struct {
	Provider     string // "google", "github", "facebook", "linkedin"
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// PhoneOTPOptions configures the phone-OTP method (stubbed).
type PhoneOTPOptions struct {
	Enabled     bool
	SMSProvider string
}

// AuthMethods groups per-method settings.
type AuthMethods struct {
	Credentials *CredentialsOptions
	OAuth       []OAuthProvider
	PhoneOTP    *PhoneOTPOptions
}

// Callbacks are optional lifecycle hooks. They observe outcomes and can
// extend JWT claims; a callback failure never fails the operation.
type Callbacks struct {
	OnSignUp func(ctx context.Context, user *SessionUser)
	OnSignIn func(ctx context.Context, user *SessionUser)
	// JWT may amend the claim set before signing. Returning nil keeps the
	// claims unchanged.
	JWT func(claims jwt.MapClaims, user *SessionUser) jwt.MapClaims
}

// Features toggles optional subsystems. All default to off and none are
// implemented by the core; they exist so hosting apps share one config tree.
type Features struct {
	MultiFactorAuth      bool
	APIKeys              bool
	LoginAnalytics       bool
	CustomEmailTemplates bool
}

// Config is the user-supplied configuration. New merges it with secure
// defaults into an immutable tree owned by the Client.
type Config struct {
	Adapter   Adapter
	Session   SessionOptions
	Auth      AuthMethods
	Roles     map[string][]string
	Callbacks Callbacks
	Features  Features
}

// normalize validates required fields and fills defaults. The returned
// config is a deep copy; the caller's value is never retained or mutated.
func normalize(cfg Config) (*Config, error) {
	if cfg.Session.Secret == "" {
		return nil, ErrMissingSecret
	}

	out := cfg
	if out.Session.Strategy == "" {
		out.Session.Strategy = StrategyJWT
	}
	if out.Session.MaxAge <= 0 {
		out.Session.MaxAge = DefaultSessionAge
	}

	cookie := CookieOptions{}
	if cfg.Session.Cookie != nil {
		cookie = *cfg.Session.Cookie
	}
	if cookie.Name == "" {
		cookie.Name = DefaultCookieName
	}
	if cookie.HTTPOnly == nil {
		cookie.HTTPOnly = boolPtr(true)
	}
	if cookie.Secure == nil {
		cookie.Secure = boolPtr(true)
	}
	if cookie.SameSite == 0 {
		cookie.SameSite = http.SameSiteLaxMode
	}
	if cookie.Path == "" {
		cookie.Path = DefaultCookiePath
	}
	if cookie.MaxAge <= 0 {
		cookie.MaxAge = out.Session.MaxAge
	}
	out.Session.Cookie = &cookie

	creds := CredentialsOptions{}
	if cfg.Auth.Credentials != nil {
		creds = *cfg.Auth.Credentials
	}
	if creds.Enabled == nil {
		creds.Enabled = boolPtr(true)
	}
	policy := PasswordPolicy{}
	if creds.PasswordPolicy != nil {
		policy = *creds.PasswordPolicy
	}
	if policy.MinLength <= 0 {
		policy.MinLength = DefaultPasswordMinLength
	}
	if policy.RequireNumbers == nil {
		policy.RequireNumbers = boolPtr(true)
	}
	if policy.RequireSymbols == nil {
		policy.RequireSymbols = boolPtr(false)
	}
	creds.PasswordPolicy = &policy
	out.Auth.Credentials = &creds

	if out.Auth.OAuth == nil {
		out.Auth.OAuth = []OAuthProvider{}
	} else {
		out.Auth.OAuth = append([]OAuthProvider(nil), cfg.Auth.OAuth...)
	}

	otp := PhoneOTPOptions{SMSProvider: "twilio"}
	if cfg.Auth.PhoneOTP != nil {
		otp = *cfg.Auth.PhoneOTP
		if otp.SMSProvider == "" {
			otp.SMSProvider = "twilio"
		}
	}
	out.Auth.PhoneOTP = &otp

	if out.Roles == nil {
		out.Roles = map[string][]string{}
	} else {
		roles := make(map[string][]string, len(cfg.Roles))
		for role, perms := range cfg.Roles {
			roles[role] = append([]string(nil), perms...)
		}
		out.Roles = roles
	}

	return &out, nil
}

// OAuthConfig resolves a configured provider into an oauth2.Config with the
// provider's token/auth endpoints filled in. The second return is false when
// the provider is not configured or not a known endpoint.
func (c *Config) OAuthConfig(provider string) (*oauth2.Config, bool) {
	var endpoint oauth2.Endpoint
	switch provider {
	case "google":
		endpoint = endpoints.Google
	case "github":
		endpoint = endpoints.GitHub
	case "facebook":
		endpoint = endpoints.Facebook
	case "linkedin":
		endpoint = endpoints.LinkedIn
	default:
		return nil, false
	}
	for _, p := range c.Auth.OAuth {
		if p.Provider == provider {
			return &oauth2.Config{
				ClientID:     p.ClientID,
				ClientSecret: p.ClientSecret,
				RedirectURL:  p.RedirectURL,
				Scopes:       append([]string(nil), p.Scopes...),
				Endpoint:     endpoint,
			}, true
		}
	}
	return nil, false
}

// Permissions returns the permission list for a role, nil when the role is
// not mapped.
func (c *Config) Permissions(role string) []string {
	return c.Roles[role]
}

func boolPtr(b bool) *bool { return &b }
