package model

import "time"

// Credentials はサインアップ・サインインで受け取る入力値。
// 永続化されず、1回の呼び出しの間だけ存在する。
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

// AuthResult はサーバーアクションがクライアントに返す統一結果。
// Successは認証処理がエラーなく完了した場合に限りtrueとなる。
type AuthResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SessionView はセッション取得エンドポイントが返すセッションとユーザーの組。
type SessionView struct {
	Session SessionInfo `json:"session"`
	User    UserInfo    `json:"user"`
}

// SessionInfo はクライアントに公開するセッション情報。
// セッションIDはHttpOnly Cookieでのみ扱い、レスポンスボディには含めない。
type SessionInfo struct {
	UserID    string    `json:"userId"`
	ExpiresAt time.Time `json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserInfo はクライアントに公開するユーザー情報。
type UserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// NewSessionView はセッションとユーザーから公開用ビューを組み立てる。
func NewSessionView(session *Session, user *User) *SessionView {
	return &SessionView{
		Session: SessionInfo{
			UserID:    session.UserID,
			ExpiresAt: session.ExpiresAt,
			CreatedAt: session.CreatedAt,
		},
		User: UserInfo{
			ID:    user.ID,
			Email: user.Email,
			Name:  user.Name,
		},
	}
}
