package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/bookman/internal/model"
)

// MinPasswordLength はパスワードの最小文字数。
const MinPasswordLength = 6

// HashPassword はパスワードのbcryptハッシュを生成する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword はパスワードがハッシュと一致するかを返す。
func CheckPassword(hash, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ValidatePassword はパスワードの長さを検証する。
func ValidatePassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return model.NewValidationError(fmt.Sprintf("パスワードは%d文字以上で指定してください", MinPasswordLength))
	}
	// bcryptは72バイトを超える入力を扱えない
	if len(password) > 72 {
		return model.NewValidationError("パスワードが長すぎます")
	}
	return nil
}
