// Package auth はメールアドレスとパスワードによる認証、トークン発行を提供する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/security"
)

// RegisterInput は利用者登録の入力。
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Result は登録・ログインの結果。
type Result struct {
	User      *model.User
	Token     string
	ExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	tokens    *TokenIssuer
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokens *TokenIssuer, sanitizer security.TextSanitizer) *Service {
	return &Service{
		userRepo:  userRepo,
		tokens:    tokens,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// TokenTTL はトークンの有効期間を返す。
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

// Register は学生または教員として利用者を登録し、トークンを発行する。
// 司書アカウントは司書による作成のみ許可する。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	role := model.RoleStudent
	if in.Role != "" {
		parsed, ok := model.ParseRole(in.Role)
		if !ok {
			return nil, model.NewValidationError("role が不正です")
		}
		role = parsed
	}
	if role == model.RoleLibrarian {
		return nil, model.NewForbiddenError("司書アカウントは司書のみが作成できます")
	}

	name := s.sanitizer.Sanitize(in.Name)
	if name == "" {
		return nil, model.NewValidationError("name は必須です")
	}
	if err := ValidatePassword(in.Password); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("メールアドレスの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyExistsError("このメールアドレスのユーザー")
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := model.NewUser(model.NewID(), name, email, role, hash, s.now())
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return s.issue(user)
}

// Login はメールアドレスとパスワードを検証し、トークンを発行する。
// 利用者が存在しない場合とパスワードが一致しない場合は同じエラーを返す。
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	user, err := s.userRepo.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		return nil, model.NewInvalidCredentialsError()
	}
	return s.issue(user)
}

// Authenticate はトークンを検証し、現在の利用者を返す。
// 削除済みの利用者のトークンは無効として扱う。
func (s *Service) Authenticate(ctx context.Context, token string) (*model.User, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, model.NewUnauthorizedError()
	}

	user, err := s.userRepo.FindByID(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUnauthorizedError()
	}
	return user, nil
}

// CurrentUser は利用者を取得する。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) issue(user *model.User) (*Result, error) {
	token, expiresAt, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Result{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
