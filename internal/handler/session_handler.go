package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authflow/internal/middleware"
	"github.com/hitoshi/authflow/internal/model"
)

// SessionGetter はセッション取得に必要な認証サービスのインターフェース。
type SessionGetter interface {
	// GetSession はセッションとユーザー情報を返す。存在しない・期限切れの場合はnil, nil。
	GetSession(ctx context.Context, sessionID string) (*model.SessionView, error)
}

// SessionLookupRecorder はセッション検索の結果を記録する。
type SessionLookupRecorder interface {
	RecordSessionLookup(found bool)
}

// SessionHandler はセッション取得エンドポイントのハンドラー。
type SessionHandler struct {
	service  SessionGetter
	recorder SessionLookupRecorder
}

// NewSessionHandler はSessionHandlerを生成する。recorderはnilでもよい。
func NewSessionHandler(service SessionGetter, recorder SessionLookupRecorder) *SessionHandler {
	return &SessionHandler{service: service, recorder: recorder}
}

// GetSession は現在のセッションを返す。未ログインの場合はnullを返す。
// GET /api/auth/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetSession(r.Context(), middleware.SessionIDFromRequest(r))
	if err != nil {
		slog.Error("failed to get session", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordSessionLookup(view != nil)
	}

	middleware.WriteJSON(w, http.StatusOK, view)
}
