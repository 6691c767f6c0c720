package services

import (
	"context"
	"fmt"

	"github.com/yungbote/sitechat-backend/internal/platform/ctxutil"
	"github.com/yungbote/sitechat-backend/internal/platform/logger"
	"github.com/yungbote/sitechat-backend/internal/platform/supabase"
)

// AuthService turns Supabase access tokens into request identity.
type AuthService interface {
	SetContextFromToken(ctx context.Context, token string) (context.Context, error)
}

type authService struct {
	log      *logger.Logger
	verifier *supabase.Verifier
}

func NewAuthService(baseLog *logger.Logger, verifier *supabase.Verifier) (AuthService, error) {
	if verifier == nil {
		return nil, fmt.Errorf("supabase verifier required")
	}
	return &authService{log: baseLog.With("service", "AuthService"), verifier: verifier}, nil
}

func (s *authService) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	id, err := s.verifier.Verify(token)
	if err != nil {
		s.log.Debug("token rejected", "error", err)
		return ctx, err
	}
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil {
		rd = &ctxutil.RequestData{}
	} else {
		cp := *rd
		rd = &cp
	}
	rd.UserID = id.UserID
	rd.Email = id.Email
	return ctxutil.WithRequestData(ctx, rd), nil
}
