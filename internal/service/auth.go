package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"my-page/internal/logger"
	"my-page/internal/model"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("用户名或密码错误")

// AuthService checks a username against the users document (falling back to
// the built-in accounts) and the single shared password.
type AuthService struct {
	store        *Store
	passwordHash []byte
}

func NewAuthService(store *Store, passwordHash string) *AuthService {
	return &AuthService{store: store, passwordHash: []byte(passwordHash)}
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*model.User, error) {
	users, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	u, ok := users[username]
	if !ok {
		u, ok = model.BuiltinUsers()[username]
	}
	if !ok {
		return nil, fmt.Errorf("user not found: %w", ErrBadCredentials)
	}
	if bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)) != nil {
		return nil, fmt.Errorf("wrong password: %w", ErrBadCredentials)
	}
	if u.Username == "" {
		u.Username = username
	}
	return &u, nil
}

func (s *AuthService) users(ctx context.Context) (model.Users, error) {
	doc, err := s.store.Get(ctx, model.DocUsers)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	var users model.Users
	if err := json.Unmarshal(doc.Body, &users); err != nil {
		// 非对象格式的 users 文档按空处理
		logger.Warn("auth.users.decode", "err", err)
		return model.Users{}, nil
	}
	return users, nil
}
