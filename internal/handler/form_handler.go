package handler

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/hitoshi/authflow/internal/action"
	"github.com/hitoshi/authflow/internal/middleware"
	"github.com/hitoshi/authflow/internal/model"
	"github.com/hitoshi/authflow/internal/validation"
)

//go:embed templates/*.html
var templatesFS embed.FS

var formTemplate = template.Must(template.ParseFS(templatesFS, "templates/auth_form.html"))

// formMode はサインアップ・サインインのフォームの違いを表す。
type formMode struct {
	title                string
	action               string
	submitLabel          string
	loadingLabel         string
	showUsername         bool
	passwordAutocomplete string
	altLink              string
	altLabel             string
}

var (
	signUpForm = formMode{
		title:                "Sign Up",
		action:               "/sign-up",
		submitLabel:          "Create an account",
		loadingLabel:         "Creating account...",
		showUsername:         true,
		passwordAutocomplete: "new-password",
		altLink:              "/sign-in",
		altLabel:             "Already have an account? Sign in",
	}
	signInForm = formMode{
		title:                "Sign In",
		action:               "/sign-in",
		submitLabel:          "Sign in",
		loadingLabel:         "Signing in...",
		passwordAutocomplete: "current-password",
		altLink:              "/sign-up",
		altLabel:             "Don't have an account? Sign up",
	}
)

// formPage はフォームテンプレートに渡す値。
type formPage struct {
	Title                string
	Action               string
	SubmitLabel          string
	LoadingLabel         string
	ShowUsername         bool
	PasswordAutocomplete string
	AltLink              string
	AltLabel             string

	CSRFField string
	CSRFToken string

	Values model.Credentials // Passwordは再表示しない
	Errors validation.FieldErrors
	Toast  string

	GoogleEnabled bool
	CallbackURL   string
}

// FormHandlerConfig はフォームハンドラーの設定。
type FormHandlerConfig struct {
	SuccessPath   string // サインイン・サインアップ成功後の遷移先
	GoogleEnabled bool
	Cookies       CookieConfig
}

// FormHandler はサーバーサイドで描画するサインアップ・サインインフォームのハンドラー。
type FormHandler struct {
	actions ActionRunner
	config  FormHandlerConfig
}

// NewFormHandler はFormHandlerを生成する。
func NewFormHandler(actions ActionRunner, config FormHandlerConfig) *FormHandler {
	if config.SuccessPath == "" {
		config.SuccessPath = "/dashboard"
	}
	return &FormHandler{actions: actions, config: config}
}

// SignUpPage はサインアップフォームを表示する。
// GET /sign-up
func (h *FormHandler) SignUpPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, signUpForm, model.Credentials{}, nil, "")
}

// SignUpSubmit はサインアップフォームの送信を処理する。
// 入力が不正な場合はアクションを呼び出さずに422で再表示する。
// POST /sign-up
func (h *FormHandler) SignUpSubmit(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFromForm(r)

	if fe := validation.ValidateSignUp(creds); !fe.Valid() {
		h.render(w, r, http.StatusUnprocessableEntity, signUpForm, creds, fe, "")
		return
	}

	out := h.actions.SignUp(r.Context(), creds.Email, creds.Password, creds.Username)
	h.finish(w, r, signUpForm, creds, out)
}

// SignInPage はサインインフォームを表示する。
// GET /sign-in
func (h *FormHandler) SignInPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, signInForm, model.Credentials{}, nil, "")
}

// SignInSubmit はサインインフォームの送信を処理する。
// POST /sign-in
func (h *FormHandler) SignInSubmit(w http.ResponseWriter, r *http.Request) {
	creds := credentialsFromForm(r)
	creds.Username = ""

	if fe := validation.ValidateSignIn(creds); !fe.Valid() {
		h.render(w, r, http.StatusUnprocessableEntity, signInForm, creds, fe, "")
		return
	}

	out := h.actions.SignIn(r.Context(), creds.Email, creds.Password)
	h.finish(w, r, signInForm, creds, out)
}

// finish は成功時にセッションCookieを設定して遷移し、失敗時はトーストを表示する。
func (h *FormHandler) finish(w http.ResponseWriter, r *http.Request, mode formMode, creds model.Credentials, out action.Outcome) {
	if out.Result.Success {
		if out.Session != nil {
			setSessionCookie(w, h.config.Cookies, out.Session.ID)
		}
		http.Redirect(w, r, h.config.SuccessPath, http.StatusSeeOther)
		return
	}
	h.render(w, r, http.StatusOK, mode, creds, nil, out.Result.Message)
}

func (h *FormHandler) render(w http.ResponseWriter, r *http.Request, status int, mode formMode, creds model.Credentials, fe validation.FieldErrors, toast string) {
	creds.Password = ""
	page := formPage{
		Title:                mode.title,
		Action:               mode.action,
		SubmitLabel:          mode.submitLabel,
		LoadingLabel:         mode.loadingLabel,
		ShowUsername:         mode.showUsername,
		PasswordAutocomplete: mode.passwordAutocomplete,
		AltLink:              mode.altLink,
		AltLabel:             mode.altLabel,
		CSRFField:            middleware.CSRFFormField,
		CSRFToken:            middleware.CSRFTokenFromContext(r.Context()),
		Values:               creds,
		Errors:               fe,
		Toast:                toast,
		GoogleEnabled:        h.config.GoogleEnabled,
		CallbackURL:          h.config.SuccessPath,
	}

	var buf bytes.Buffer
	if err := formTemplate.Execute(&buf, page); err != nil {
		slog.Error("failed to render form", slog.String("form", mode.action), slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

func credentialsFromForm(r *http.Request) model.Credentials {
	return model.Credentials{
		Username: r.PostFormValue("username"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
	}
}
