// Package action はクライアントから呼び出されるサインイン・サインアップのサーバーアクションを提供する。
//
// アクションは認証処理のエラーやpanicを外へ伝播させず、必ずmodel.AuthResultとして返す。
package action

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/authflow/internal/auth"
	"github.com/hitoshi/authflow/internal/metrics"
	"github.com/hitoshi/authflow/internal/model"
)

// 結果メッセージ
const (
	MsgSignInSuccess      = "Sign-in successful"
	MsgSignUpSuccess      = "Sign-up successful"
	MsgAllFieldsRequired  = "All fields are required."
	MsgSignInUnknownError = "Unknown error occurred"
	MsgSignUpUnknownError = "An unknown error occurred"
)

// メトリクスのactionラベル
const (
	actionSignIn = "sign_in"
	actionSignUp = "sign_up"
)

// Authenticator は資格情報の検証とセッション発行を行う認証処理のインターフェース。
type Authenticator interface {
	SignInEmail(ctx context.Context, email, password string) (*model.Session, error)
	SignUpEmail(ctx context.Context, in auth.SignUpInput) (*model.Session, error)
}

// Outcome はアクションの結果。
// Sessionは成功時のみ設定され、Cookie発行に使う。クライアントへはResultのみを返す。
type Outcome struct {
	Result  model.AuthResult
	Session *model.Session
}

// Actions はサインイン・サインアップのアクションを提供する。
type Actions struct {
	auth    Authenticator
	metrics metrics.MetricsCollector
}

// New はActionsを生成する。metricsがnilの場合は記録しない。
func New(authenticator Authenticator, collector metrics.MetricsCollector) *Actions {
	return &Actions{auth: authenticator, metrics: collector}
}

// SignIn はメールアドレスとパスワードでサインインする。
func (a *Actions) SignIn(ctx context.Context, email, password string) Outcome {
	return a.run(ctx, actionSignIn, MsgSignInSuccess, MsgSignInUnknownError, func() (*model.Session, error) {
		return a.auth.SignInEmail(ctx, email, password)
	})
}

// SignUp は新しいユーザーを登録する。
// いずれかの項目が空の場合は認証処理を呼び出さずに失敗を返す。
func (a *Actions) SignUp(ctx context.Context, email, password, username string) Outcome {
	if email == "" || password == "" || username == "" {
		a.record(actionSignUp, metrics.OutcomeFailure)
		return Outcome{Result: model.AuthResult{Success: false, Message: MsgAllFieldsRequired}}
	}

	return a.run(ctx, actionSignUp, MsgSignUpSuccess, MsgSignUpUnknownError, func() (*model.Session, error) {
		return a.auth.SignUpEmail(ctx, auth.SignUpInput{
			Email:    email,
			Password: password,
			Name:     username,
		})
	})
}

// run は認証処理を呼び出し、結果をOutcomeに変換する。
// 処理中のpanicは回復し、失敗として扱う。
func (a *Actions) run(ctx context.Context, action, successMsg, defaultMsg string, call func() (*model.Session, error)) (out Outcome) {
	start := time.Now()
	defer func() {
		if a.metrics != nil {
			a.metrics.RecordAuthLatency(action, time.Since(start))
		}
	}()

	defer func() {
		if rec := recover(); rec != nil {
			slog.ErrorContext(ctx, "panic in auth action",
				slog.String("action", action),
				slog.Any("panic", rec),
			)
			a.record(action, metrics.OutcomePanic)
			out = Outcome{Result: model.AuthResult{Success: false, Message: defaultMsg}}
		}
	}()

	session, err := call()
	if err != nil {
		msg := messageOrDefault(err, defaultMsg)
		if _, ok := model.AsAPIError(err); ok {
			slog.InfoContext(ctx, "auth action failed",
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
		} else {
			slog.ErrorContext(ctx, "auth action failed with internal error",
				slog.String("action", action),
				slog.String("error", err.Error()),
			)
		}
		a.record(action, metrics.OutcomeFailure)
		return Outcome{Result: model.AuthResult{Success: false, Message: msg}}
	}

	a.record(action, metrics.OutcomeSuccess)
	return Outcome{
		Result:  model.AuthResult{Success: true, Message: successMsg},
		Session: session,
	}
}

func (a *Actions) record(action, outcome string) {
	if a.metrics != nil {
		a.metrics.RecordAuthAttempt(action, outcome)
	}
}

// messageOrDefault はエラーからユーザー向けメッセージを取り出す。
// APIErrorのMessageのみをクライアントに返す。型のないエラーは内部エラーとしてdefaultMsgに置き換える。
func messageOrDefault(err error, defaultMsg string) string {
	if apiErr, ok := model.AsAPIError(err); ok && apiErr.Message != "" {
		return apiErr.Message
	}
	return defaultMsg
}
