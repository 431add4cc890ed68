package keylio

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// SessionUser is the non-secret user subset exposed by every operation.
// The password hash never leaves the adapter boundary.
type SessionUser struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// AuthResult is the outcome of a successful sign-up or sign-in. Token is
// set when the persisted strategy resumed an existing unexpired session.
type AuthResult struct {
	User  SessionUser `json:"user"`
	Token string      `json:"token,omitempty"`
}

// CredentialsData is the payload for the credentials method.
type CredentialsData struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// NormalizeEmail lowercases and trims an email address. Applied before
// every storage write and lookup so email uniqueness is case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (c *Client) signUpWithCredentials(ctx context.Context, data *CredentialsData, jar CookieJar) (*AuthResult, error) {
	if data == nil || data.Email == "" || data.Password == "" {
		return nil, NewAuthError(CodeMissingCredentials, "Email and password are required.")
	}

	if err := checkPasswordPolicy(c.config.Auth.Credentials.PasswordPolicy, data.Password); err != nil {
		return nil, err
	}

	email := NormalizeEmail(data.Email)
	adapter := c.config.Adapter

	existing, err := adapter.FindOne(ctx, ModelUser, []Where{
		{Field: "email", Operator: OpEq, Value: email},
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewAuthError(CodeUserExists, "User already exists!")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(data.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &SessionUser{
		ID:        uuid.NewString(),
		Email:     email,
		Role:      "user",
		CreatedAt: now,
	}
	if _, err := adapter.Create(ctx, ModelUser, Record{
		"id":           user.ID,
		"email":        user.Email,
		"passwordHash": string(hash),
		"role":         user.Role,
		"createdAt":    user.CreatedAt,
	}); err != nil {
		return nil, err
	}

	result, err := c.issueSession(ctx, user, jar)
	if err != nil {
		return nil, err
	}

	c.fireCallback(ctx, c.config.Callbacks.OnSignUp, user)
	return result, nil
}

func (c *Client) signInWithCredentials(ctx context.Context, data *CredentialsData, jar CookieJar) (*AuthResult, error) {
	if data == nil || data.Email == "" || data.Password == "" {
		return nil, NewAuthError(CodeMissingCredentials, "Email and password are required.")
	}

	email := NormalizeEmail(data.Email)
	adapter := c.config.Adapter

	rec, err := adapter.FindOne(ctx, ModelUser, []Where{
		{Field: "email", Operator: OpEq, Value: email},
	})
	if err != nil {
		return nil, err
	}
	// Unknown email and wrong password produce the same error so a caller
	// cannot probe which accounts exist.
	if rec == nil {
		return nil, NewAuthError(CodeInvalidCredentials, "Invalid email or password.")
	}
	hash := recordString(rec, "passwordHash")
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(data.Password)) != nil {
		return nil, NewAuthError(CodeInvalidCredentials, "Invalid email or password.")
	}

	user := userFromRecord(rec)
	result, err := c.issueSession(ctx, user, jar)
	if err != nil {
		return nil, err
	}

	c.fireCallback(ctx, c.config.Callbacks.OnSignIn, user)
	return result, nil
}

// issueSession issues or resumes a session for user per the configured
// strategy and delivers the token through jar.
//
// The persisted branch is a read-then-write sequence with no lock: two
// concurrent sign-ins for one user can both miss the existing-session check
// and each insert a row. Both rows are valid and each caller keeps the
// token it minted.
func (c *Client) issueSession(ctx context.Context, user *SessionUser, jar CookieJar) (*AuthResult, error) {
	session := &c.config.Session
	now := time.Now()

	switch session.Strategy {
	case StrategyJWT:
		claims := newSessionClaims(user, session.MaxAge, now)
		token, err := SignSessionToken(claims, session.Secret, c.claimsExtender(user))
		if err != nil {
			return nil, err
		}
		setSessionCookie(jar, token, session.Cookie)
		return &AuthResult{User: *user}, nil

	case StrategyDatabase:
		adapter := c.config.Adapter
		existing, err := adapter.FindOne(ctx, ModelSession, []Where{
			{Field: "userId", Operator: OpEq, Value: user.ID},
		})
		if err != nil {
			return nil, err
		}
		if existing != nil {
			token := recordString(existing, "sessionToken")
			if recordTime(existing, "expires").After(now) {
				// Unexpired session: re-deliver its token, never mint a
				// duplicate row for the same user.
				setSessionCookie(jar, token, session.Cookie)
				return &AuthResult{User: *user, Token: token}, nil
			}
			if err := adapter.Delete(ctx, ModelSession, []Where{
				{Field: "sessionToken", Operator: OpEq, Value: token},
			}); err != nil {
				return nil, err
			}
		}

		token := uuid.NewString()
		if _, err := adapter.Create(ctx, ModelSession, Record{
			"sessionToken": token,
			"userId":       user.ID,
			"expires":      now.Add(session.MaxAge),
			"createdAt":    now,
		}); err != nil {
			return nil, err
		}
		setSessionCookie(jar, token, session.Cookie)
		return &AuthResult{User: *user}, nil

	default:
		return nil, Errorf(CodeInvalidStrategy, "Invalid session strategy: %s", session.Strategy)
	}
}

func (c *Client) claimsExtender(user *SessionUser) func(jwt.MapClaims) jwt.MapClaims {
	hook := c.config.Callbacks.JWT
	if hook == nil {
		return nil
	}
	return func(claims jwt.MapClaims) jwt.MapClaims {
		return hook(claims, user)
	}
}

// fireCallback runs a lifecycle hook. Hooks observe outcomes only; a panic
// inside one is logged and does not fail the operation.
func (c *Client) fireCallback(ctx context.Context, fn func(context.Context, *SessionUser), user *SessionUser) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("lifecycle callback panicked", zap.Any("panic", r))
		}
	}()
	fn(ctx, user)
}

func checkPasswordPolicy(policy *PasswordPolicy, password string) error {
	if policy == nil {
		return nil
	}
	if len(password) < policy.MinLength {
		return Errorf(CodeWeakPassword, "Password must be at least %d characters.", policy.MinLength)
	}
	if policy.RequireNumbers != nil && *policy.RequireNumbers && !containsClass(password, unicode.IsDigit) {
		return NewAuthError(CodeWeakPassword, "Password must contain at least one number.")
	}
	if policy.RequireSymbols != nil && *policy.RequireSymbols && !containsClass(password, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	}) {
		return NewAuthError(CodeWeakPassword, "Password must contain at least one symbol.")
	}
	return nil
}

func containsClass(s string, class func(rune) bool) bool {
	for _, r := range s {
		if class(r) {
			return true
		}
	}
	return false
}

func userFromRecord(rec Record) *SessionUser {
	return &SessionUser{
		ID:        recordString(rec, "id"),
		Email:     recordString(rec, "email"),
		Role:      recordString(rec, "role"),
		CreatedAt: recordTime(rec, "createdAt"),
	}
}

func recordString(rec Record, key string) string {
	if rec == nil {
		return ""
	}
	s, _ := rec[key].(string)
	return s
}

// recordTime reads a timestamp field, tolerating the representations the
// adapter dialects hand back.
func recordTime(rec Record, key string) time.Time {
	if rec == nil {
		return time.Time{}
	}
	switch v := rec[key].(type) {
	case time.Time:
		return v
	case *time.Time:
		if v != nil {
			return *v
		}
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	case int64:
		return time.Unix(v, 0)
	case float64:
		return time.Unix(int64(v), 0)
	}
	return time.Time{}
}
