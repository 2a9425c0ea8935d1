// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authflow/internal/middleware"
	"github.com/hitoshi/authflow/internal/model"
)

const (
	oauthNonceCookie = "oauth_nonce"
	oauthNonceMaxAge = 600 // 10分（stateトークンの有効期限と同じ）
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// StateIssuer はOAuthのstateトークンを発行・検証する。*auth.StateSignerが満たす。
type StateIssuer interface {
	Issue(callbackURL string) (token, nonce string, err error)
	Verify(token, nonce string) (callbackURL string, err error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL            string // ログアウト後の遷移先
	DefaultCallbackURL string // callbackURL未指定時のログイン後の遷移先
	Cookies            CookieConfig
}

// AuthHandler はOAuth認証とセッション管理のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	states  StateIssuer
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, states StateIssuer, config AuthHandlerConfig) *AuthHandler {
	if config.DefaultCallbackURL == "" {
		config.DefaultCallbackURL = "/dashboard"
	}
	return &AuthHandler{
		service: service,
		states:  states,
		config:  config,
	}
}

// Login はGoogle OAuthフローを開始する。
// GET /auth/google/login?callbackURL=/dashboard
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	callbackURL := r.URL.Query().Get("callbackURL")
	if callbackURL == "" {
		callbackURL = h.config.DefaultCallbackURL
	}

	state, nonce, err := h.states.Issue(callbackURL)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	loginURL := h.service.GetLoginURL(state)
	if loginURL == "" {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewSocialSignInDisabledError("Google"))
		return
	}

	// nonceをCookieに保存（stateの持ち主の確認用）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthNonceCookie,
		Value:    nonce,
		Path:     "/auth/google",
		MaxAge:   oauthNonceMaxAge,
		HttpOnly: true,
		Secure:   h.config.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証
	var nonce string
	if c, err := r.Cookie(oauthNonceCookie); err == nil {
		nonce = c.Value
	}
	callbackURL, err := h.states.Verify(r.URL.Query().Get("state"), nonce)
	if err != nil {
		slog.Warn("oauth state verification failed", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("invalid state parameter"))
		return
	}

	// nonceクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthNonceCookie,
		Value:    "",
		Path:     "/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("missing authorization code"))
		return
	}

	// 3. 認証処理
	session, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	// 4. セッションCookieを設定してログイン後の画面へ
	setSessionCookie(w, h.config.Cookies, session.ID)
	http.Redirect(w, r, callbackURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionIDFromRequest(r); sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	clearSessionCookie(w, h.config.Cookies)
	http.Redirect(w, r, h.config.BaseURL, http.StatusSeeOther)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromRequest(r)
	if sessionID == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, model.UserInfo{
		ID:    user.ID,
		Email: user.Email,
		Name:  user.Name,
	})
}
