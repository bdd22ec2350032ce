package service

import (
	"context"
	"testing"
	"time"

	"ride-chat-go/internal/config"
	"ride-chat-go/internal/model"
	"ride-chat-go/internal/repository"
	"ride-chat-go/internal/repository/repotest"
	"ride-chat-go/pkg/token"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T) (UserService, repository.QuotaRepository, *token.JWTManager) {
	t.Helper()
	_, rdb := repotest.NewRedis(t)
	quota := repository.NewQuotaRepository(rdb)
	jwt := token.NewJWTManager("secret", 1, 7)
	ents := config.EntitlementsConfig{WindowHours: 24, Types: map[string]config.Entitlement{
		"guest":   {MaxMessagesPerDay: 20, AvailableModels: []string{"chat-model"}},
		"regular": {MaxMessagesPerDay: 100, AvailableModels: []string{"chat-model", "chat-model-reasoning"}},
	}}
	return NewUserService(repository.NewUserRepository(repotest.OpenDB(t)), quota, jwt, ents), quota, jwt
}

func TestGuestAndUsage(t *testing.T) {
	svc, quota, jwt := newUserService(t)
	ctx := context.Background()

	user, pair, err := svc.Guest(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.UserTypeGuest, user.Type)

	claims, err := jwt.VerifyToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "guest", claims.UserType)

	identity := &model.Identity{UserID: user.ID, Type: user.Type}
	_, err = quota.CheckAndRecord(ctx, *identity, 24*time.Hour, 20, "t1")
	require.NoError(t, err)

	usage, err := svc.Usage(ctx, identity)
	require.NoError(t, err)
	assert.EqualValues(t, 1, usage.Used)
	assert.Equal(t, 20, usage.Limit)
	assert.Equal(t, 24, usage.WindowHours)
}

func TestRegisterLoginRefresh(t *testing.T) {
	svc, _, _ := newUserService(t)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "pa55word")
	require.NoError(t, err)
	assert.Equal(t, model.UserTypeRegular, user.Type)

	_, err = svc.Register(ctx, "alice", "again")
	requireCode(t, err, "bad_request:auth")

	_, err = svc.Login(ctx, "alice", "wrong")
	requireCode(t, err, "unauthorized:auth")
	_, err = svc.Login(ctx, "bob", "pa55word")
	requireCode(t, err, "unauthorized:auth")

	pair, err := svc.Login(ctx, "alice", "pa55word")
	require.NoError(t, err)

	// access token 不能用来刷新
	_, err = svc.RefreshToken(ctx, pair.AccessToken)
	requireCode(t, err, "unauthorized:auth")

	refreshed, err := svc.RefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.AccessToken)

	profile, err := svc.Profile(ctx, &model.Identity{UserID: user.ID, Type: user.Type})
	require.NoError(t, err)
	assert.Equal(t, "alice", profile.Username)
}
