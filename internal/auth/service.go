// Package auth はメールアドレス・パスワード認証、OAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hitoshi/authflow/internal/model"
	"github.com/hitoshi/authflow/internal/repository"
	"github.com/hitoshi/authflow/internal/security"
)

var tracer = otel.Tracer("authflow/auth")

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	Provider       string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// SignUpInput はメールアドレスによるサインアップの入力。
type SignUpInput struct {
	Email    string
	Password string
	Name     string
}

// Service は認証に関するビジネスロジックを提供する。
// oauthがnilの場合、ソーシャルログインは無効。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	hasher      PasswordHasher
	sanitizer   security.NameSanitizer
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		hasher:      NewArgon2idHasher(),
		sanitizer:   security.NewNameSanitizer(),
		config:      config,
		now:         time.Now,
	}
}

// SocialEnabled はソーシャルログインが利用可能かを返す。
func (s *Service) SocialEnabled() bool {
	return s.oauth != nil
}

// SignUpEmail はユーザーとcredential identityを作成し、セッションを発行する。
// メールアドレスが登録済みの場合はEMAIL_ALREADY_EXISTSのAPIErrorを返す。
func (s *Service) SignUpEmail(ctx context.Context, in SignUpInput) (_ *model.Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.sign_up_email")
	defer func() { endSpan(span, err) }()

	email := normalizeEmail(in.Email)
	name := s.sanitizer.Sanitize(in.Name)
	if email == "" || in.Password == "" {
		return nil, model.NewValidationError("Email and password are required")
	}
	if name == "" {
		return nil, model.NewValidationError("Username is required")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	identity := &model.Identity{
		ID:             uuid.New().String(),
		UserID:         user.ID,
		Provider:       model.ProviderCredential,
		ProviderUserID: email,
		PasswordHash:   hash,
		CreatedAt:      now,
	}

	if err := s.userRepo.CreateWithIdentity(ctx, user, identity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewEmailAlreadyExistsError()
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	span.SetAttributes(attribute.String("user.id", user.ID))

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "user signed up",
		slog.String("user_id", user.ID),
		slog.String("provider", model.ProviderCredential),
	)
	return session, nil
}

// SignInEmail はメールアドレスとパスワードを照合し、セッションを発行する。
// アカウントが存在しない場合もダミーハッシュで照合を行い、応答時間を揃える。
func (s *Service) SignInEmail(ctx context.Context, email, password string) (_ *model.Session, err error) {
	ctx, span := tracer.Start(ctx, "auth.sign_in_email")
	defer func() { endSpan(span, err) }()

	email = normalizeEmail(email)

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, model.ProviderCredential, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	if identity == nil || identity.PasswordHash == "" {
		_, _ = s.hasher.Verify(password, dummyHash)
		return nil, model.NewInvalidCredentialsError()
	}

	ok, err := s.hasher.Verify(password, identity.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify password: %w", err)
	}
	if !ok {
		return nil, model.NewInvalidCredentialsError()
	}
	span.SetAttributes(attribute.String("user.id", identity.UserID))

	session, err := s.createSession(ctx, identity.UserID)
	if err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "user signed in",
		slog.String("user_id", identity.UserID),
		slog.String("provider", model.ProviderCredential),
	)
	return session, nil
}

// GetSession はセッションIDから有効なセッションとユーザーを取得する。
// セッションが存在しない、期限切れ、またはユーザーが削除済みの場合はnil, nilを返す。
func (s *Service) GetSession(ctx context.Context, sessionID string) (_ *model.SessionView, err error) {
	if sessionID == "" {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "auth.get_session")
	defer func() { endSpan(span, err) }()

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, nil
	}

	return model.NewSessionView(session, user), nil
}

// GetLoginURL はOAuth認証URLを生成する。ソーシャルログインが無効な場合は空文字列を返す。
func (s *Service) GetLoginURL(state string) string {
	if s.oauth == nil {
		return ""
	}
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// identityが登録済みならそのユーザーでログインする。
// 未登録で、確認済みメールアドレスが既存ユーザーと一致する場合はそのユーザーにidentityを追加する。
// それ以外はusersレコードとidentitiesレコードを同時に作成する。
func (s *Service) HandleCallback(ctx context.Context, code string) (_ *model.Session, err error) {
	if s.oauth == nil {
		return nil, model.NewSocialSignInDisabledError("Google")
	}

	ctx, span := tracer.Start(ctx, "auth.handle_callback")
	defer func() { endSpan(span, err) }()

	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	span.SetAttributes(attribute.String("auth.provider", info.Provider))

	userID, err := s.resolveOAuthUser(ctx, info)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", userID))

	return s.createSession(ctx, userID)
}

func (s *Service) resolveOAuthUser(ctx context.Context, info *OAuthUserInfo) (string, error) {
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, info.Provider, info.ProviderUserID)
	if err != nil {
		return "", fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		slog.InfoContext(ctx, "existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", info.Provider),
		)
		return identity.UserID, nil
	}

	email := normalizeEmail(info.Email)
	now := s.now()
	newIdentity := &model.Identity{
		ID:             uuid.New().String(),
		Provider:       info.Provider,
		ProviderUserID: info.ProviderUserID,
		CreatedAt:      now,
	}

	if email != "" && info.EmailVerified {
		existing, err := s.userRepo.FindByEmail(ctx, email)
		if err != nil {
			return "", fmt.Errorf("failed to find user by email: %w", err)
		}
		if existing != nil {
			newIdentity.UserID = existing.ID
			if err := s.identRepo.Create(ctx, newIdentity); err != nil {
				return "", fmt.Errorf("failed to link identity: %w", err)
			}
			slog.InfoContext(ctx, "identity linked to existing user",
				slog.String("user_id", existing.ID),
				slog.String("provider", info.Provider),
			)
			return existing.ID, nil
		}
	}

	name := s.sanitizer.Sanitize(info.Name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	user := &model.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	newIdentity.UserID = user.ID

	if err := s.userRepo.CreateWithIdentity(ctx, user, newIdentity); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return "", model.NewEmailAlreadyExistsError()
		}
		return "", fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.InfoContext(ctx, "new user created",
		slog.String("user_id", user.ID),
		slog.String("provider", info.Provider),
	)
	return user.ID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) (err error) {
	if sessionID == "" {
		return model.NewSessionNotFoundError()
	}

	ctx, span := tracer.Start(ctx, "auth.logout")
	defer func() { endSpan(span, err) }()

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.InfoContext(ctx, "user logged out", slog.String("session", sessionIDPrefix(sessionID)))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (_ *model.User, err error) {
	if sessionID == "" {
		return nil, model.NewSessionNotFoundError()
	}

	ctx, span := tracer.Start(ctx, "auth.get_current_user")
	defer func() { endSpan(span, err) }()

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError()
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := s.now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全な64文字の16進セッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// sessionIDPrefix はログ出力用にセッションIDの先頭8文字だけを返す。
func sessionIDPrefix(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

// endSpan はエラーがあればスパンに記録してから終了する。
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
