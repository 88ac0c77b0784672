// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"
)

// Role は利用者の種別を表す。
type Role string

const (
	// RoleStudent は学生利用者。
	RoleStudent Role = "STUDENT"
	// RoleFaculty は教員利用者。
	RoleFaculty Role = "FACULTY"
	// RoleLibrarian は図書館職員。書籍と利用者の管理権限を持つ。
	RoleLibrarian Role = "LIBRARIAN"
)

// 種別ごとの同時貸出上限
const (
	StudentBorrowLimit   = 3
	FacultyBorrowLimit   = 5
	LibrarianBorrowLimit = 10
)

// ParseRole は文字列をRoleに変換する。大文字小文字は区別しない。
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, true
	case RoleFaculty:
		return RoleFaculty, true
	case RoleLibrarian:
		return RoleLibrarian, true
	default:
		return "", false
	}
}

// IsValid は定義済みのRoleかどうかを返す。
func (r Role) IsValid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// BorrowLimit はRoleに対応する同時貸出上限を返す。
// 未知のRoleは学生と同じ上限として扱う。
func (r Role) BorrowLimit() int {
	switch r {
	case RoleFaculty:
		return FacultyBorrowLimit
	case RoleLibrarian:
		return LibrarianBorrowLimit
	default:
		return StudentBorrowLimit
	}
}

// User は図書館の利用者を表す。
// MaxBorrowLimitはRoleから導出され、独立して永続化されない。
type User struct {
	ID             string
	Name           string
	Email          string
	Role           Role
	MaxBorrowLimit int
	PasswordHash   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewUser はRoleに応じた貸出上限を設定したUserを生成する。
func NewUser(id, name, email string, role Role, passwordHash string, now time.Time) *User {
	return &User{
		ID:             id,
		Name:           name,
		Email:          strings.ToLower(strings.TrimSpace(email)),
		Role:           role,
		MaxBorrowLimit: role.BorrowLimit(),
		PasswordHash:   passwordHash,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ChangeRole はRoleを変更し、貸出上限を再計算する。
func (u *User) ChangeRole(role Role) {
	u.Role = role
	u.MaxBorrowLimit = role.BorrowLimit()
}

// IsLibrarian は図書館職員かどうかを返す。
func (u *User) IsLibrarian() bool {
	return u.Role == RoleLibrarian
}
