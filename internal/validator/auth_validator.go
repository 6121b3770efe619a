package validator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"localshop/internal/repository"
	"localshop/internal/usecase"
)

var (
	// 入力が不正
	ErrInvalidInput = fmt.Errorf("invalid input: %w", usecase.ErrValidation)

	// emailが既に使用済み
	ErrEmailAlreadyUsed = fmt.Errorf("email already used: %w", usecase.ErrConflict)
)

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// パスワード最低文字数
const minPasswordLen = 8

type authValidator struct {
	users repository.UserRepository
}

// Usecaseは interface を依存注入
func NewAuthValidator(users repository.UserRepository) usecase.AuthValidator {
	return &authValidator{users: users}
}

// サインアップの入力を検証
func (v *authValidator) ValidateRegister(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	if email == "" || password == "" {
		return ErrInvalidInput
	}
	if !emailRe.MatchString(email) {
		return ErrInvalidInput
	}
	if len(password) < minPasswordLen {
		return ErrInvalidInput
	}

	// email重複チェック（DBが必要）
	u, err := v.users.FindByEmail(ctx, email)
	if err == nil && u != nil {
		return ErrEmailAlreadyUsed
	}

	return nil
}

// ログインの入力を検証
func (v *authValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	email = strings.TrimSpace(email)

	if email == "" || password == "" {
		return ErrInvalidInput
	}
	if !emailRe.MatchString(email) {
		return ErrInvalidInput
	}

	return nil
}
