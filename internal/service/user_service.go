package service

import (
	"context"
	"errors"
	"fmt"

	"ride-chat-go/internal/config"
	"ride-chat-go/internal/model"
	"ride-chat-go/internal/repository"
	"ride-chat-go/pkg/apperr"
	"ride-chat-go/pkg/hash"
	"ride-chat-go/pkg/log"
	"ride-chat-go/pkg/token"

	"gorm.io/gorm"
)

// TokenPair 是签发给客户端的一对 token。
type TokenPair struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

// QuotaUsage 描述身份在当前窗口内的用量。
type QuotaUsage struct {
	Used            int64    `json:"used"`
	Limit           int      `json:"limit"`
	WindowHours     int      `json:"windowHours"`
	AvailableModels []string `json:"availableModels"`
}

// UserService 接口定义了所有与用户相关的业务操作。
type UserService interface {
	Guest(ctx context.Context) (*model.User, *TokenPair, error)
	Register(ctx context.Context, username, password string) (*model.User, error)
	Login(ctx context.Context, username, password string) (*TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)
	Profile(ctx context.Context, identity *model.Identity) (*model.User, error)
	Usage(ctx context.Context, identity *model.Identity) (*QuotaUsage, error)
}

type userService struct {
	userRepo     repository.UserRepository
	quotaRepo    repository.QuotaRepository
	jwtManager   *token.JWTManager
	entitlements config.EntitlementsConfig
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo repository.UserRepository, quotaRepo repository.QuotaRepository, jwtManager *token.JWTManager, entitlements config.EntitlementsConfig) UserService {
	return &userService{
		userRepo:     userRepo,
		quotaRepo:    quotaRepo,
		jwtManager:   jwtManager,
		entitlements: entitlements,
	}
}

// Guest 创建一个访客用户并签发 token。
func (s *userService) Guest(ctx context.Context) (*model.User, *TokenPair, error) {
	user := &model.User{
		Username: "guest-" + token.GenerateRandomString(8),
		Type:     model.UserTypeGuest,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, nil, apperr.Internal(apperr.ScopeAuth, err)
	}
	pair, err := s.issue(user)
	if err != nil {
		return nil, nil, err
	}
	log.Infof("访客用户已创建: %s", user.Username)
	return user, pair, nil
}

// Register 处理用户注册的业务逻辑。
func (s *userService) Register(ctx context.Context, username, password string) (*model.User, error) {
	_, err := s.userRepo.FindByUsername(ctx, username)
	if err == nil {
		return nil, apperr.BadRequest(apperr.ScopeAuth, errors.New("用户名已存在"))
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal(apperr.ScopeAuth, err)
	}

	hashedPassword, err := hash.HashPassword(password)
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeAuth, err)
	}
	user := &model.User{
		Username: username,
		Password: hashedPassword,
		Type:     model.UserTypeRegular,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperr.Internal(apperr.ScopeAuth, err)
	}
	log.Infof("用户注册成功: %s", username)
	return user, nil
}

// Login 校验用户名与密码并签发 token。
func (s *userService) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	user, err := s.userRepo.FindByUsername(ctx, username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Unauthorized(apperr.ScopeAuth)
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeAuth, err)
	}
	if user.Type != model.UserTypeRegular || !hash.CheckPasswordHash(password, user.Password) {
		return nil, apperr.Unauthorized(apperr.ScopeAuth)
	}
	return s.issue(user)
}

// RefreshToken 用 refresh token 换取新的一对 token。
func (s *userService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.jwtManager.VerifyToken(refreshToken)
	if err != nil || !claims.Refresh {
		return nil, apperr.Unauthorized(apperr.ScopeAuth)
	}
	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperr.Unauthorized(apperr.ScopeAuth)
	}
	return s.issue(user)
}

func (s *userService) Profile(ctx context.Context, identity *model.Identity) (*model.User, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeAuth)
	}
	user, err := s.userRepo.FindByID(ctx, identity.UserID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound(apperr.ScopeAuth)
	}
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeAuth, err)
	}
	return user, nil
}

// Usage 返回当前窗口内已提交的回合数与上限。
func (s *userService) Usage(ctx context.Context, identity *model.Identity) (*QuotaUsage, error) {
	if identity == nil {
		return nil, apperr.Unauthorized(apperr.ScopeAuth)
	}
	ent := s.entitlements.EntitlementFor(string(identity.Type))
	used, err := s.quotaRepo.Count(ctx, identity.UserID, s.entitlements.Window())
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeAuth, err)
	}
	return &QuotaUsage{
		Used:            used,
		Limit:           ent.MaxMessagesPerDay,
		WindowHours:     int(s.entitlements.Window().Hours()),
		AvailableModels: ent.AvailableModels,
	}, nil
}

func (s *userService) issue(user *model.User) (*TokenPair, error) {
	access, err := s.jwtManager.GenerateToken(user.ID, user.Username, string(user.Type))
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeAuth, fmt.Errorf("generate token: %w", err))
	}
	refresh, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username, string(user.Type))
	if err != nil {
		return nil, apperr.Internal(apperr.ScopeAuth, fmt.Errorf("generate refresh token: %w", err))
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
