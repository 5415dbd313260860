package service

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/xtrafr/chatvercel/internal/config"
	"github.com/xtrafr/chatvercel/internal/domain"
	"github.com/xtrafr/chatvercel/pkg/errors"
	"github.com/xtrafr/chatvercel/pkg/jwt"
)

// TokenService выдает токен, который ссылается на сессию. Личность он не подтверждает.
type TokenService interface {
	Issue(identity domain.Identity) (string, error)
	Parse(token string) (uuid.UUID, error)
}

type tokenService struct {
	cfg config.JWTConfig
}

func NewTokenService(cfg config.JWTConfig) TokenService {
	return &tokenService{cfg: cfg}
}

func (s *tokenService) Issue(identity domain.Identity) (string, error) {
	token, err := jwt.GenerateSessionToken(identity.SessionID, identity.DisplayName, s.cfg.Secret, s.cfg.Issuer, s.cfg.TTL)
	if err != nil {
		return "", fmt.Errorf("issue session token: %w", err)
	}
	return token, nil
}

func (s *tokenService) Parse(token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, fmt.Errorf("missing token: %w", errors.ErrInvalidToken)
	}
	claims, err := jwt.ValidateSessionToken(token, s.cfg.Secret)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%v: %w", err, errors.ErrInvalidToken)
	}
	return claims.SessionID, nil
}
