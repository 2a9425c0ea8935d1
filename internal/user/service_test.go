package user

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/authflow/internal/model"
	"github.com/hitoshi/authflow/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn   func(ctx context.Context, id string) (*model.User, error)
	deleteByIDFn func(ctx context.Context, id string) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	return nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

var _ repository.UserRepository = (*mockUserRepo)(nil)

type mockSessionDeleter struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionDeleter) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}

func existingUser(ctx context.Context, id string) (*model.User, error) {
	return &model.User{ID: id, Email: "test@example.com"}, nil
}

// --- テスト ---

// TestService_Withdraw は退会処理がセッション、ユーザーの順に削除することを検証する。
func TestService_Withdraw(t *testing.T) {
	var calls []string

	userRepo := &mockUserRepo{
		findByIDFn: existingUser,
		deleteByIDFn: func(ctx context.Context, id string) error {
			calls = append(calls, "user:"+id)
			return nil
		},
	}
	sessions := &mockSessionDeleter{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			calls = append(calls, "sessions:"+userID)
			return nil
		},
	}

	svc := NewService(userRepo, sessions)
	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}

	want := []string{"sessions:user-1", "user:user-1"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

// TestService_Withdraw_UserNotFound はユーザーが存在しない場合にUSER_NOT_FOUNDを返すことを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	userRepo := &mockUserRepo{
		deleteByIDFn: func(ctx context.Context, id string) error {
			t.Fatal("DeleteByID should not be called")
			return nil
		},
	}

	svc := NewService(userRepo, nil)
	err := svc.Withdraw(context.Background(), "missing")

	apiErr, ok := model.AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeUserNotFound)
	}
}

// TestService_Withdraw_Errors は各段階のエラーがラップされて返ることを検証する。
func TestService_Withdraw_Errors(t *testing.T) {
	dbErr := errors.New("db error")

	tests := []struct {
		name          string
		findErr       error
		sessionErr    error
		deleteUserErr error
	}{
		{name: "find fails", findErr: dbErr},
		{name: "session delete fails", sessionErr: dbErr},
		{name: "user delete fails", deleteUserErr: dbErr},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userRepo := &mockUserRepo{
				findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
					if tt.findErr != nil {
						return nil, tt.findErr
					}
					return existingUser(ctx, id)
				},
				deleteByIDFn: func(ctx context.Context, id string) error {
					return tt.deleteUserErr
				},
			}
			sessions := &mockSessionDeleter{
				deleteByUserIDFn: func(ctx context.Context, userID string) error {
					return tt.sessionErr
				},
			}

			err := NewService(userRepo, sessions).Withdraw(context.Background(), "user-1")
			if !errors.Is(err, dbErr) {
				t.Errorf("error = %v, want wrapped db error", err)
			}
		})
	}
}
