package keylio

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SignInput is the discriminated sign-up/sign-in input. Type selects the
// method; exactly one payload field matching it is read.
type SignInput struct {
	Type        AuthMethod       `json:"type"`
	Credentials *CredentialsData `json:"-"`
	OAuth       *OAuthData       `json:"-"`
	PhoneOTP    *PhoneOTPData    `json:"-"`
}

// OAuthData is the payload for the oAuth method (not implemented).
type OAuthData struct {
	Provider string `json:"provider"`
	Token    string `json:"token"`
}

// PhoneOTPData is the payload for the phoneOTP method (not implemented).
type PhoneOTPData struct {
	PhoneNumber string `json:"phoneNumber"`
	OTP         string `json:"otp"`
}

// UnmarshalJSON decodes the wire shape {"type": ..., "data": {...}} into
// the payload field selected by the type tag.
func (in *SignInput) UnmarshalJSON(b []byte) error {
	var wire struct {
		Type AuthMethod      `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return err
	}
	in.Type = wire.Type
	if len(wire.Data) == 0 {
		return nil
	}
	switch wire.Type {
	case MethodCredentials:
		in.Credentials = &CredentialsData{}
		return json.Unmarshal(wire.Data, in.Credentials)
	case MethodOAuth:
		in.OAuth = &OAuthData{}
		return json.Unmarshal(wire.Data, in.OAuth)
	case MethodPhoneOTP:
		in.PhoneOTP = &PhoneOTPData{}
		return json.Unmarshal(wire.Data, in.PhoneOTP)
	}
	return nil
}

// MarshalJSON writes the wire shape back out.
func (in SignInput) MarshalJSON() ([]byte, error) {
	var data any
	switch in.Type {
	case MethodCredentials:
		data = in.Credentials
	case MethodOAuth:
		data = in.OAuth
	case MethodPhoneOTP:
		data = in.PhoneOTP
	}
	return json.Marshal(map[string]any{"type": in.Type, "data": data})
}

// Session is the normalized session view returned by GetSession under
// either strategy.
type Session struct {
	Token   string      `json:"token"`
	User    SessionUser `json:"user"`
	Expires time.Time   `json:"expires"`
}

// SessionRequest carries the material GetSession may resolve a token from.
// Jar is checked first, then the Authorization header, then the Cookie
// header.
type SessionRequest struct {
	Jar    CookieJar
	Header http.Header
}

// Client is the authentication entry point. It binds a normalized,
// immutable configuration to behavior and holds no other runtime state.
type Client struct {
	config *Config
	logger *zap.Logger
}

// Option customizes a Client at construction time.
type Option func(*Client)

// WithLogger injects a structured logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New normalizes cfg against secure defaults and constructs a Client.
// A missing session secret fails here, at startup, not at first use.
func New(cfg Config, opts ...Option) (*Client, error) {
	normalized, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{config: normalized, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the normalized configuration. Callers must treat it as
// read-only.
func (c *Client) Config() *Config {
	return c.config
}

// SignUp registers a new account with the method selected by input and
// issues a session. Only the credentials method is implemented; oAuth and
// phoneOTP fail with PROVIDER_NOT_IMPLEMENTED as a stable contract.
func (c *Client) SignUp(ctx context.Context, input SignInput, jar CookieJar) (*AuthResult, error) {
	result, err := c.dispatch(ctx, input, jar, c.signUpWithCredentials, "signup")
	return result, WrapUnexpected(err)
}

// SignIn authenticates an existing account and issues or resumes a session.
func (c *Client) SignIn(ctx context.Context, input SignInput, jar CookieJar) (*AuthResult, error) {
	result, err := c.dispatch(ctx, input, jar, c.signInWithCredentials, "signin")
	return result, WrapUnexpected(err)
}

func (c *Client) dispatch(ctx context.Context, input SignInput, jar CookieJar,
	credentials func(context.Context, *CredentialsData, CookieJar) (*AuthResult, error), op string) (*AuthResult, error) {

	switch input.Type {
	case MethodCredentials:
		return credentials(ctx, input.Credentials, jar)
	case MethodOAuth:
		return nil, Errorf(CodeProviderNotImplemented, "oAuth %s not yet implemented", op)
	case MethodPhoneOTP:
		return nil, Errorf(CodeProviderNotImplemented, "Phone OTP %s not yet implemented", op)
	default:
		return nil, Errorf(CodeUnsupportedAuthType, "Unsupported auth type: %s", input.Type)
	}
}

// SignOut removes the session cookie. Under the persisted strategy it also
// deletes the session row matching the evicted token. A missing cookie is
// not an error.
func (c *Client) SignOut(ctx context.Context, jar CookieJar) error {
	token := deleteSessionCookie(jar, c.config.Session.Cookie)

	if c.config.Session.Strategy == StrategyDatabase && token != "" {
		if err := c.config.Adapter.Delete(ctx, ModelSession, []Where{
			{Field: "sessionToken", Operator: OpEq, Value: token},
		}); err != nil {
			return WrapUnexpected(err)
		}
	}

	c.logger.Debug("user signed out")
	return nil
}

// GetSession resolves the current session, returning (nil, nil) when there
// is none. Token verification failures and expired sessions are treated as
// absence; only store failures surface as errors.
func (c *Client) GetSession(ctx context.Context, req *SessionRequest) (*Session, error) {
	switch c.config.Session.Strategy {
	case StrategyJWT:
		token := c.resolveToken(req)
		if token == "" {
			return nil, nil
		}
		claims, err := VerifySessionToken(token, c.config.Session.Secret)
		if err != nil {
			c.logger.Debug("session token rejected", zap.Error(err))
			return nil, nil
		}
		return &Session{
			Token: token,
			User: SessionUser{
				ID:    claims.Subject,
				Email: claims.Email,
				Role:  claims.Role,
			},
			Expires: claims.Expires,
		}, nil

	case StrategyDatabase:
		token := c.resolveOpaqueToken(req)
		if token == "" {
			return nil, nil
		}
		adapter := c.config.Adapter
		rec, err := adapter.FindOne(ctx, ModelSession, []Where{
			{Field: "sessionToken", Operator: OpEq, Value: token},
		})
		if err != nil {
			return nil, WrapUnexpected(err)
		}
		if rec == nil || !recordTime(rec, "expires").After(time.Now()) {
			return nil, nil
		}
		userRec, err := adapter.FindOne(ctx, ModelUser, []Where{
			{Field: "id", Operator: OpEq, Value: recordString(rec, "userId")},
		}, "id", "email", "role", "createdAt")
		if err != nil {
			return nil, WrapUnexpected(err)
		}
		if userRec == nil {
			return nil, nil
		}
		return &Session{
			Token:   token,
			User:    *userFromRecord(userRec),
			Expires: recordTime(rec, "expires"),
		}, nil

	default:
		return nil, nil
	}
}

// resolveToken locates a stateless session token: injected jar first, then
// an Authorization bearer header, then the request Cookie header.
func (c *Client) resolveToken(req *SessionRequest) string {
	if req == nil {
		return ""
	}
	name := c.config.Session.Cookie.Name
	if req.Jar != nil {
		if v, ok := req.Jar.Get(name); ok && v != "" {
			return v
		}
	}
	if req.Header != nil {
		if auth := req.Header.Get("Authorization"); auth != "" {
			if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
				return token
			}
		}
		return cookieHeaderValue(req.Header, name)
	}
	return ""
}

// resolveOpaqueToken locates a persisted-session token from the jar or the
// request Cookie header.
func (c *Client) resolveOpaqueToken(req *SessionRequest) string {
	if req == nil {
		return ""
	}
	name := c.config.Session.Cookie.Name
	if req.Jar != nil {
		if v, ok := req.Jar.Get(name); ok && v != "" {
			return v
		}
	}
	if req.Header != nil {
		return cookieHeaderValue(req.Header, name)
	}
	return ""
}

// cookieHeaderValue extracts a named cookie from a raw Cookie header. A
// header holding a bare value with no name is taken as the token itself.
func cookieHeaderValue(header http.Header, name string) string {
	raw := header.Get("Cookie")
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "=") {
		return strings.TrimSpace(raw)
	}
	r := &http.Request{Header: http.Header{"Cookie": []string{raw}}}
	if cookie, err := r.Cookie(name); err == nil {
		return cookie.Value
	}
	return ""
}
