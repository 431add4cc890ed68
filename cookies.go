package keylio

import (
	"net/http"
	"time"
)

// CookieJar is the transport capability for the session cookie. A jar may be
// backed by an http response, a test double, or any framework's cookie API.
type CookieJar interface {
	// Get returns the cookie value and whether it was present.
	Get(name string) (string, bool)
	Set(name, value string, opts CookieOptions)
	Delete(name string)
}

// responseCookieJar is a request-scoped jar over a standard
// http.ResponseWriter / *http.Request pair.
type responseCookieJar struct {
	w http.ResponseWriter
	r *http.Request
}

// NewResponseCookieJar adapts a server request/response pair into a
// CookieJar. Reads come from the request, writes go to the response.
func NewResponseCookieJar(w http.ResponseWriter, r *http.Request) CookieJar {
	return &responseCookieJar{w: w, r: r}
}

func (j *responseCookieJar) Get(name string) (string, bool) {
	if j.r == nil {
		return "", false
	}
	c, err := j.r.Cookie(name)
	if err != nil || c == nil {
		return "", false
	}
	return c.Value, true
}

func (j *responseCookieJar) Set(name, value string, opts CookieOptions) {
	cookie := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		SameSite: opts.SameSite,
		MaxAge:   int(opts.MaxAge / time.Second),
		Expires:  time.Now().Add(opts.MaxAge),
	}
	if opts.HTTPOnly != nil {
		cookie.HttpOnly = *opts.HTTPOnly
	}
	if opts.Secure != nil {
		cookie.Secure = *opts.Secure
	}
	http.SetCookie(j.w, cookie)
}

func (j *responseCookieJar) Delete(name string) {
	http.SetCookie(j.w, &http.Cookie{
		Name:    name,
		Value:   "",
		Path:    "/",
		MaxAge:  -1,
		Expires: time.Now(),
	})
}

// setSessionCookie delivers token through the jar using the configured
// cookie policy.
func setSessionCookie(jar CookieJar, token string, opts *CookieOptions) {
	if jar == nil {
		return
	}
	jar.Set(opts.Name, token, *opts)
}

// deleteSessionCookie removes the session cookie and returns the value it
// held, so the persisted strategy can revoke the matching session row.
// A missing jar or cookie is a no-op.
func deleteSessionCookie(jar CookieJar, opts *CookieOptions) string {
	if jar == nil {
		return ""
	}
	token, _ := jar.Get(opts.Name)
	jar.Delete(opts.Name)
	return token
}
