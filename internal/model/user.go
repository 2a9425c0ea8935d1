// Package model はドメインモデルを定義する。
package model

import "time"

// ProviderCredential はメールアドレス・パスワード認証のidentityに使うプロバイダー名。
const ProviderCredential = "credential"

// ProviderGoogle はGoogleソーシャルログインのidentityに使うプロバイダー名。
const ProviderGoogle = "google"

// User はサービス利用ユーザーを表す。
type User struct {
	ID        string
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity はユーザーと認証手段の紐付け情報を表す。
// メール・パスワード認証はProviderCredentialとして保持し、PasswordHashを持つ。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	PasswordHash   string // credentialプロバイダーのみ（argon2id PHC形式）
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
