package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/authflow/internal/action"
	"github.com/hitoshi/authflow/internal/middleware"
	"github.com/hitoshi/authflow/internal/model"
	"github.com/hitoshi/authflow/internal/validation"
)

// maxActionBodyBytes はアクションリクエストボディの上限。
const maxActionBodyBytes = 64 << 10

// ActionRunner はサインイン・サインアップのアクション。*action.Actionsが満たす。
type ActionRunner interface {
	SignIn(ctx context.Context, email, password string) action.Outcome
	SignUp(ctx context.Context, email, password, username string) action.Outcome
}

// ActionHandler はクライアントから呼び出すアクションエンドポイントのハンドラー。
// 結果は常に200とAuthResultで返し、成功時のみセッションCookieを設定する。
type ActionHandler struct {
	actions ActionRunner
	cookies CookieConfig
}

// NewActionHandler はActionHandlerを生成する。
func NewActionHandler(actions ActionRunner, cookies CookieConfig) *ActionHandler {
	return &ActionHandler{actions: actions, cookies: cookies}
}

// SignIn はサインインアクションを実行する。
// POST /api/actions/sign-in
func (h *ActionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	if fe := validation.ValidateSignIn(creds); !fe.Valid() {
		writeAuthResult(w, model.AuthResult{Success: false, Message: fe.Error()})
		return
	}

	h.respond(w, h.actions.SignIn(r.Context(), creds.Email, creds.Password))
}

// SignUp はサインアップアクションを実行する。
// 未入力の項目がある場合はアクション側で"All fields are required."を返す。
// POST /api/actions/sign-up
func (h *ActionHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	creds, ok := decodeCredentials(w, r)
	if !ok {
		return
	}

	if hasAllFields(creds) {
		if fe := validation.ValidateSignUp(creds); !fe.Valid() {
			writeAuthResult(w, model.AuthResult{Success: false, Message: fe.Error()})
			return
		}
	}

	h.respond(w, h.actions.SignUp(r.Context(), creds.Email, creds.Password, creds.Username))
}

func (h *ActionHandler) respond(w http.ResponseWriter, out action.Outcome) {
	if out.Result.Success && out.Session != nil {
		setSessionCookie(w, h.cookies, out.Session.ID)
	}
	writeAuthResult(w, out.Result)
}

// decodeCredentials はJSONボディを読み込む。失敗した場合は400を書き込みfalseを返す。
func decodeCredentials(w http.ResponseWriter, r *http.Request) (model.Credentials, bool) {
	var creds model.Credentials
	r.Body = http.MaxBytesReader(w, r.Body, maxActionBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("malformed JSON body"))
		return creds, false
	}
	return creds, true
}

func hasAllFields(creds model.Credentials) bool {
	return creds.Email != "" && creds.Password != "" && creds.Username != ""
}

func writeAuthResult(w http.ResponseWriter, result model.AuthResult) {
	middleware.WriteJSON(w, http.StatusOK, result)
}
