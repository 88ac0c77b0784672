// Package user は利用者管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/bookman/internal/auth"
	"github.com/hitoshi/bookman/internal/model"
	"github.com/hitoshi/bookman/internal/repository"
	"github.com/hitoshi/bookman/internal/security"
)

// DefaultPassword は司書がパスワードを指定せずに利用者を作成した場合の初期パスワード。
const DefaultPassword = "password123"

// LoanCounter は貸出中件数の取得インターフェース。
type LoanCounter interface {
	CountBorrowedByUser(ctx context.Context, userID string) (int, error)
}

// ProfileUpdate は利用者本人によるプロフィール更新の入力。nilの項目は変更しない。
type ProfileUpdate struct {
	Name     *string
	Email    *string
	Password *string
}

// UserUpdate は司書による利用者更新の入力。nilの項目は変更しない。
type UserUpdate struct {
	ProfileUpdate
	Role *string
}

// CreateInput は司書による利用者作成の入力。
type CreateInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// Service は利用者管理のサービス層。
// 本人によるプロフィール操作と、司書による利用者管理を提供する。
type Service struct {
	userRepo  repository.UserRepository
	loans     LoanCounter
	sanitizer security.TextSanitizer
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, loans LoanCounter, sanitizer security.TextSanitizer) *Service {
	return &Service{
		userRepo:  userRepo,
		loans:     loans,
		sanitizer: sanitizer,
		now:       time.Now,
	}
}

// GetProfile は利用者のプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*model.User, error) {
	return s.find(ctx, userID)
}

// BorrowedCount は利用者の貸出中件数を返す。
func (s *Service) BorrowedCount(ctx context.Context, userID string) (int, error) {
	count, err := s.loans.CountBorrowedByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("貸出数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// UpdateProfile は利用者本人の氏名・メールアドレス・パスワードを更新する。
// Roleと貸出上限は本人が変更できない。
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (*model.User, error) {
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.applyProfile(ctx, user, in); err != nil {
		return nil, err
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// ChangePassword は現在のパスワードを確認したうえでパスワードを変更する。
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) (*model.User, error) {
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, currentPassword) {
		return nil, model.NewValidationError("現在のパスワードが正しくありません")
	}
	if err := s.setPassword(user, newPassword); err != nil {
		return nil, err
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("パスワードを変更しました", slog.String("user_id", userID))
	return user, nil
}

// List は全利用者を返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	if users == nil {
		users = []*model.User{}
	}
	return users, nil
}

// Create は利用者を作成する。司書アカウントも作成できる。
// パスワード省略時はDefaultPasswordを設定する。
func (s *Service) Create(ctx context.Context, in CreateInput) (*model.User, error) {
	role := model.RoleStudent
	if in.Role != "" {
		parsed, ok := model.ParseRole(in.Role)
		if !ok {
			return nil, model.NewValidationError("role が不正です")
		}
		role = parsed
	}

	name := s.sanitizer.Sanitize(in.Name)
	if name == "" {
		return nil, model.NewValidationError("name は必須です")
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}

	password := in.Password
	if password == "" {
		password = DefaultPassword
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := model.NewUser(model.NewID(), name, email, role, hash, s.now())
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	slog.Info("司書がユーザーを作成しました",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	return user, nil
}

// Update は利用者の情報を更新する。Roleを変更した場合は貸出上限も再計算する。
func (s *Service) Update(ctx context.Context, userID string, in UserUpdate) (*model.User, error) {
	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.applyProfile(ctx, user, in.ProfileUpdate); err != nil {
		return nil, err
	}
	if in.Role != nil {
		role, ok := model.ParseRole(*in.Role)
		if !ok {
			return nil, model.NewValidationError("role が不正です")
		}
		user.ChangeRole(role)
	}
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Delete は利用者を削除する。自分自身は削除できない。
func (s *Service) Delete(ctx context.Context, actorID, userID string) error {
	if actorID == userID {
		return model.NewForbiddenError("自分自身のアカウントは削除できません")
	}
	if _, err := s.find(ctx, userID); err != nil {
		return err
	}

	slog.Info("ユーザー削除を開始します",
		slog.String("user_id", userID),
		slog.String("actor_id", actorID),
	)

	// 貸出履歴は残し、アクティブな予約は取り消される
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("ユーザー削除が完了しました", slog.String("user_id", userID))
	return nil
}

// UpdateRole は利用者のRoleを変更し、貸出上限を再計算する。自分自身のRoleは変更できない。
func (s *Service) UpdateRole(ctx context.Context, actorID, userID, role string) (*model.User, error) {
	if actorID == userID {
		return nil, model.NewForbiddenError("自分自身のRoleは変更できません")
	}
	parsed, ok := model.ParseRole(role)
	if !ok {
		return nil, model.NewValidationError("role が不正です")
	}

	user, err := s.find(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.ChangeRole(parsed)
	if err := s.save(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("ユーザーのRoleを変更しました",
		slog.String("user_id", userID),
		slog.String("role", string(parsed)),
		slog.Int("max_borrow_limit", user.MaxBorrowLimit),
	)
	return user, nil
}

func (s *Service) find(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

func (s *Service) applyProfile(ctx context.Context, user *model.User, in ProfileUpdate) error {
	if in.Name != nil {
		name := s.sanitizer.Sanitize(*in.Name)
		if name == "" {
			return model.NewValidationError("name は空にできません")
		}
		user.Name = name
	}
	if in.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*in.Email))
		if email == "" {
			return model.NewValidationError("email は空にできません")
		}
		if err := s.ensureEmailFree(ctx, email, user.ID); err != nil {
			return err
		}
		user.Email = email
	}
	if in.Password != nil {
		if err := s.setPassword(user, *in.Password); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) setPassword(user *model.User, password string) error {
	if err := auth.ValidatePassword(password); err != nil {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	return nil
}

// ensureEmailFree はメールアドレスが他の利用者に使われていないことを確認する。
func (s *Service) ensureEmailFree(ctx context.Context, email, selfID string) error {
	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("メールアドレスの確認に失敗しました: %w", err)
	}
	if existing != nil && existing.ID != selfID {
		return model.NewAlreadyExistsError("このメールアドレスのユーザー")
	}
	return nil
}

func (s *Service) save(ctx context.Context, user *model.User) error {
	user.UpdatedAt = s.now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	return nil
}
