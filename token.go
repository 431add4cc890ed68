package keylio

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the claim set carried by a stateless session token.
type SessionClaims struct {
	Subject  string
	Email    string
	Role     string
	IssuedAt time.Time
	Expires  time.Time
}

// newSessionClaims builds the claim set for user with expiry iat+maxAge.
func newSessionClaims(user *SessionUser, maxAge time.Duration, now time.Time) *SessionClaims {
	return &SessionClaims{
		Subject:  user.ID,
		Email:    user.Email,
		Role:     user.Role,
		IssuedAt: now,
		Expires:  now.Add(maxAge),
	}
}

// SignSessionToken signs claims with secret using HS256. The JWT callback,
// when set, may extend the claim map before signing.
func SignSessionToken(claims *SessionClaims, secret string, extend func(jwt.MapClaims) jwt.MapClaims) (string, error) {
	mapped := jwt.MapClaims{
		"sub":   claims.Subject,
		"email": claims.Email,
		"role":  claims.Role,
		"iat":   claims.IssuedAt.Unix(),
		"exp":   claims.Expires.Unix(),
	}
	if extend != nil {
		if extended := extend(mapped); extended != nil {
			mapped = extended
		}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, mapped)
	return token.SignedString([]byte(secret))
}

// VerifySessionToken parses and verifies a session token. Any failure
// (wrong secret, expiry, malformed input) yields (nil, err); there is no
// partial decode.
func VerifySessionToken(tokenString, secret string) (*SessionClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || claims == nil {
		return nil, fmt.Errorf("claims is not a map")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("subject not found")
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("expiry not found")
	}
	iat, _ := claims.GetIssuedAt()

	out := &SessionClaims{Subject: sub, Expires: exp.Time}
	if iat != nil {
		out.IssuedAt = iat.Time
	}
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if role, ok := claims["role"].(string); ok {
		out.Role = role
	}
	return out, nil
}
