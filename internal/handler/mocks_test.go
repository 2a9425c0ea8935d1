package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/authflow/internal/action"
	"github.com/hitoshi/authflow/internal/auth"
	"github.com/hitoshi/authflow/internal/metrics"
	"github.com/hitoshi/authflow/internal/middleware"
	"github.com/hitoshi/authflow/internal/model"
	"github.com/hitoshi/authflow/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
	getSessionFn     func(ctx context.Context, sessionID string) (*model.SessionView, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return ""
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

func (m *mockAuthService) GetSession(ctx context.Context, sessionID string) (*model.SessionView, error) {
	if m.getSessionFn != nil {
		return m.getSessionFn(ctx, sessionID)
	}
	return nil, nil
}

type mockActions struct {
	mu          sync.Mutex
	signInCalls int
	signUpCalls int
	signInFn    func(ctx context.Context, email, password string) action.Outcome
	signUpFn    func(ctx context.Context, email, password, username string) action.Outcome
}

func (m *mockActions) SignIn(ctx context.Context, email, password string) action.Outcome {
	m.mu.Lock()
	m.signInCalls++
	m.mu.Unlock()
	if m.signInFn != nil {
		return m.signInFn(ctx, email, password)
	}
	return action.Outcome{Result: model.AuthResult{Success: true, Message: action.MsgSignInSuccess}}
}

func (m *mockActions) SignUp(ctx context.Context, email, password, username string) action.Outcome {
	m.mu.Lock()
	m.signUpCalls++
	m.mu.Unlock()
	if m.signUpFn != nil {
		return m.signUpFn(ctx, email, password, username)
	}
	return action.Outcome{Result: model.AuthResult{Success: true, Message: action.MsgSignUpSuccess}}
}

type mockUserService struct {
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

type mockSessionFinder struct {
	sessions map[string]*model.Session
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return m.sessions[id], nil
}

type recordingMetrics struct {
	mu             sync.Mutex
	sessionLookups []bool
	statuses       []int
	rateLimited    []string
}

func (r *recordingMetrics) RecordAuthAttempt(action, outcome string) {}
func (r *recordingMetrics) RecordAuthLatency(action string, d time.Duration) {}
func (r *recordingMetrics) RecordExpiredSessionsDeleted(count int64) {}
func (r *recordingMetrics) RecordSessionLookup(found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessionLookups = append(r.sessionLookups, found)
}
func (r *recordingMetrics) RecordHTTPStatus(statusCode int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, statusCode)
}
func (r *recordingMetrics) RecordRateLimited(route string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimited = append(r.rateLimited, route)
}

// compile-time interface checks
var (
	_ AuthServiceInterface     = (*mockAuthService)(nil)
	_ SessionGetter            = (*mockAuthService)(nil)
	_ ActionRunner             = (*mockActions)(nil)
	_ metrics.MetricsCollector = (*recordingMetrics)(nil)

	_ AuthServiceInterface = (*auth.Service)(nil)
	_ SessionGetter        = (*auth.Service)(nil)
	_ StateIssuer          = (*auth.StateSigner)(nil)
	_ ActionRunner         = (*action.Actions)(nil)
	_ UserServiceInterface = (*user.Service)(nil)
)

// --- ヘルパー ---

const testCSRFToken = "test-csrf-token"

// withCSRF はCSRFトークンのCookieとヘッダーをリクエストに付与する。
func withCSRF(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: testCSRFToken})
	req.Header.Set("X-CSRF-Token", testCSRFToken)
	return req
}

func findCookie(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeAuthResult(t *testing.T, w *httptest.ResponseRecorder) model.AuthResult {
	t.Helper()
	var result model.AuthResult
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode AuthResult from %q: %v", w.Body.String(), err)
	}
	return result
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body from %q: %v", w.Body.String(), err)
	}
	return body
}

func successOutcome(sessionID, msg string) action.Outcome {
	return action.Outcome{
		Result:  model.AuthResult{Success: true, Message: msg},
		Session: &model.Session{ID: sessionID, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
	}
}

func failureOutcome(msg string) action.Outcome {
	return action.Outcome{Result: model.AuthResult{Success: false, Message: msg}}
}
