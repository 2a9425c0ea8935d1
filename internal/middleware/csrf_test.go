package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/authflow/internal/model"
)

func csrfCookieFrom(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == csrfCookieName {
			return c
		}
	}
	return nil
}

func TestCSRFMiddleware_SafeMethods_PassThroughAndIssueCookie(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions} {
		t.Run(method, func(t *testing.T) {
			var ctxToken string
			handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctxToken = CSRFTokenFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			}))

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(method, "/sign-up", nil))

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
			cookie := csrfCookieFrom(w)
			if cookie == nil {
				t.Fatal("expected csrf_token cookie")
			}
			if cookie.HttpOnly {
				t.Error("csrf cookie must be readable from JavaScript")
			}
			if len(cookie.Value) != 64 {
				t.Errorf("token length = %d, want 64", len(cookie.Value))
			}
			if ctxToken != cookie.Value {
				t.Errorf("context token = %q, want cookie value", ctxToken)
			}
		})
	}
}

func TestCSRFMiddleware_ExistingCookie_IsReused(t *testing.T) {
	var ctxToken string
	handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxToken = CSRFTokenFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/sign-in", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-token"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if csrfCookieFrom(w) != nil {
		t.Error("existing cookie should not be replaced")
	}
	if ctxToken != "existing-token" {
		t.Errorf("context token = %q, want %q", ctxToken, "existing-token")
	}
}

func TestCSRFMiddleware_StateChangingRequests(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		cookie     string
		header     string
		formToken  string
		wantStatus int
	}{
		{"POST header match", http.MethodPost, "tok", "tok", "", http.StatusOK},
		{"POST form field match", http.MethodPost, "tok", "", "tok", http.StatusOK},
		{"DELETE header match", http.MethodDelete, "tok", "tok", "", http.StatusOK},
		{"POST no cookie", http.MethodPost, "", "tok", "", http.StatusForbidden},
		{"POST no submitted token", http.MethodPost, "tok", "", "", http.StatusForbidden},
		{"POST mismatch", http.MethodPost, "tok", "other", "", http.StatusForbidden},
		{"PUT no token", http.MethodPut, "", "", "", http.StatusForbidden},
		{"PATCH mismatch form", http.MethodPatch, "tok", "", "nope", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handlerCalled := false
			handler := NewCSRFMiddleware(CSRFConfig{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				handlerCalled = true
				w.WriteHeader(http.StatusOK)
			}))

			var req *http.Request
			if tt.formToken != "" {
				form := url.Values{CSRFFormField: {tt.formToken}, "email": {"a@example.com"}}
				req = httptest.NewRequest(tt.method, "/sign-in", strings.NewReader(form.Encode()))
				req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			} else {
				req = httptest.NewRequest(tt.method, "/api/actions/sign-in", strings.NewReader(`{}`))
				req.Header.Set("Content-Type", "application/json")
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("X-CSRF-Token", tt.header)
			}

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if handlerCalled != (tt.wantStatus == http.StatusOK) {
				t.Errorf("handlerCalled = %v", handlerCalled)
			}
			if tt.wantStatus == http.StatusForbidden {
				if body := decodeErrorBody(t, w); body.Code != model.ErrCodeCSRFFailed {
					t.Errorf("code = %q, want %q", body.Code, model.ErrCodeCSRFFailed)
				}
			}
		})
	}
}

func TestCSRFTokenHandler_IssuesAndReturnsToken(t *testing.T) {
	handler := NewCSRFTokenHandler(CSRFConfig{CookieSecure: true, CookieDomain: "example.com"})

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	cookie := csrfCookieFrom(w)
	if cookie == nil {
		t.Fatal("expected csrf_token cookie")
	}
	if body["token"] != cookie.Value {
		t.Errorf("token = %q, want cookie value %q", body["token"], cookie.Value)
	}
	if !cookie.Secure || cookie.Domain != "example.com" {
		t.Errorf("cookie = %+v, want Secure with domain", cookie)
	}
}

func TestCSRFTokenHandler_ExistingCookie_ReturnsSameToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "existing-token"})
	w := httptest.NewRecorder()
	NewCSRFTokenHandler(CSRFConfig{}).ServeHTTP(w, req)

	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["token"] != "existing-token" {
		t.Errorf("token = %q, want %q", body["token"], "existing-token")
	}
}
