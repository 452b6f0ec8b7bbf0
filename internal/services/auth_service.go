package services

import (
	"context"
	"fmt"
	"net/http"

	"storefront/internal/domain"
	"storefront/internal/infra"
	apperrors "storefront/pkg/errors"

	"go.uber.org/zap"
)

type AuthService struct {
	backend infra.Backend
	logger  *zap.Logger
}

func NewAuthService(b infra.Backend, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{backend: b, logger: logger}
}

func (s *AuthService) Login(ctx context.Context, creds domain.Credentials) (*domain.Tokens, error) {
	env, err := infra.Call[domain.Tokens](ctx, s.backend, infra.Request{
		Op:       "auth.login",
		Method:   http.MethodPost,
		Path:     "/auth/login",
		Body:     creds,
		Fallback: "Login failed",
	})
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if env.Data.AccessToken == "" {
		return nil, &apperrors.DecodeError{Op: "auth.login", Err: fmt.Errorf("missing accessToken")}
	}
	return &env.Data, nil
}

func (s *AuthService) Me(ctx context.Context) (*domain.UserProfile, error) {
	env, err := infra.Call[domain.UserProfile](ctx, s.backend, infra.Request{
		Op:       "auth.me",
		Method:   http.MethodGet,
		Path:     "/auth/me",
		Fallback: "Failed to load profile",
	})
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &env.Data, nil
}
