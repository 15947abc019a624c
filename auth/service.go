package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Service 组合账号存储与令牌，供网关使用
type Service struct {
	store    *Store
	tokens   *Tokens
	validate *validator.Validate
}

type credentials struct {
	Username string `validate:"required,min=3,max=32,alphanum"`
	Password string `validate:"required,max=128"`
}

func NewService(store *Store, tokens *Tokens) *Service {
	return &Service{
		store:    store,
		tokens:   tokens,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register 成功返回 nil；错误信息可直接回给客户端
func (s *Service) Register(ctx context.Context, username, password string) error {
	if err := s.check(username, password); err != nil {
		return err
	}
	return s.store.Register(ctx, username, password)
}

// Authenticate 校验口令并签发令牌
func (s *Service) Authenticate(ctx context.Context, username, password string) (string, error) {
	if err := s.check(username, password); err != nil {
		return "", ErrInvalidCredentials
	}
	if err := s.store.Check(username, password); err != nil {
		return "", err
	}
	token, err := s.tokens.Issue(username)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Verify 令牌无效或过期返回 false
func (s *Service) Verify(token string) (string, bool) {
	username, err := s.tokens.Parse(token)
	if err != nil {
		return "", false
	}
	return username, true
}

func (s *Service) check(username, password string) error {
	err := s.validate.Struct(credentials{Username: username, Password: password})
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return fmt.Errorf("invalid %s: failed %q", strings.ToLower(fe.Field()), fe.Tag())
	}
	return err
}

