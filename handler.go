package keylio

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Request is the transport-neutral request shape consumed by
// HandleRequest. Hosting frameworks adapt their own request type into it.
type Request struct {
	Method string
	Path   string
	Body   *SignInput
	Header http.Header
	Jar    CookieJar
}

// Response is the transport-neutral result of HandleRequest.
type Response struct {
	Status  int
	Body    any
	Headers map[string]string
}

func jsonResponse(body any, status int) *Response {
	return &Response{
		Status:  status,
		Body:    body,
		Headers: map[string]string{"Content-Type": "application/json"},
	}
}

// HandleRequest dispatches an auth API request by method and path
// substring: GET session/health lookups, POST signin/signup/signout.
func (c *Client) HandleRequest(ctx context.Context, req *Request) *Response {
	switch req.Method {
	case http.MethodGet:
		return c.handleGet(ctx, req)
	case http.MethodPost:
		return c.handlePost(ctx, req)
	default:
		return jsonResponse(map[string]any{"error": "Method Not Allowed"}, http.StatusMethodNotAllowed)
	}
}

func (c *Client) handleGet(ctx context.Context, req *Request) *Response {
	path := req.Path

	if strings.Contains(path, "session") {
		session, err := c.GetSession(ctx, &SessionRequest{Jar: req.Jar, Header: req.Header})
		if err != nil {
			c.logger.Error("session lookup failed", zap.Error(err))
			return jsonResponse(map[string]any{"error": errMessage(err)}, http.StatusInternalServerError)
		}
		if session == nil {
			return jsonResponse(map[string]any{
				"session": nil,
				"error":   "No active session or session expired!",
			}, http.StatusUnauthorized)
		}
		return jsonResponse(map[string]any{"session": session}, http.StatusOK)
	}

	if strings.HasSuffix(path, "/test") || strings.HasSuffix(path, "/") {
		return jsonResponse(map[string]any{"message": "Keylio API is running..."}, http.StatusOK)
	}

	return jsonResponse(map[string]any{"error": "Not Found"}, http.StatusNotFound)
}

func (c *Client) handlePost(ctx context.Context, req *Request) *Response {
	path := req.Path

	switch {
	case strings.Contains(path, "signin"):
		result, err := c.SignIn(ctx, bodyOrZero(req), req.Jar)
		if err != nil {
			return errorResponse(err)
		}
		return jsonResponse(result, http.StatusOK)

	case strings.Contains(path, "signup"):
		result, err := c.SignUp(ctx, bodyOrZero(req), req.Jar)
		if err != nil {
			return errorResponse(err)
		}
		return jsonResponse(result, http.StatusCreated)

	case strings.Contains(path, "signout"):
		if err := c.SignOut(ctx, req.Jar); err != nil {
			return errorResponse(err)
		}
		return jsonResponse(map[string]any{"message": "Signed out"}, http.StatusOK)

	default:
		return jsonResponse(map[string]any{"error": "Unknown route"}, http.StatusNotFound)
	}
}

func bodyOrZero(req *Request) SignInput {
	if req.Body == nil {
		return SignInput{}
	}
	return *req.Body
}

// errorResponse maps an AuthError code to a status. Anything unclassified
// is a 500 with the error message in the body and nothing else.
func errorResponse(err error) *Response {
	status := http.StatusInternalServerError
	if ae, ok := AsAuthError(err); ok {
		switch ae.Code {
		case CodeMissingCredentials, CodeUnsupportedAuthType, CodeWeakPassword:
			status = http.StatusBadRequest
		case CodeInvalidCredentials:
			status = http.StatusUnauthorized
		case CodeUserExists:
			status = http.StatusConflict
		case CodeProviderNotImplemented:
			status = http.StatusNotImplemented
		}
	}
	return jsonResponse(map[string]any{"error": errMessage(err)}, status)
}

func errMessage(err error) string {
	if ae, ok := AsAuthError(err); ok {
		return ae.Message
	}
	return err.Error()
}

// Handler mounts the dispatcher on a router for direct use with net/http.
// The returned handler serves the whole auth API under whatever prefix it
// is registered at.
func (c *Client) Handler() http.Handler {
	router := mux.NewRouter()
	router.PathPrefix("/").Methods(http.MethodGet, http.MethodPost).HandlerFunc(c.serveHTTP)
	return router
}

func (c *Client) serveHTTP(w http.ResponseWriter, r *http.Request) {
	req := &Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header,
		Jar:    NewResponseCookieJar(w, r),
	}

	if r.Method == http.MethodPost && r.Body != nil {
		var input SignInput
		if err := json.NewDecoder(r.Body).Decode(&input); err == nil {
			req.Body = &input
		}
	}

	resp := c.HandleRequest(r.Context(), req)
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.Status)
	if resp.Body != nil {
		if err := json.NewEncoder(w).Encode(resp.Body); err != nil {
			c.logger.Warn("error encoding response", zap.Error(err))
		}
	}
}
