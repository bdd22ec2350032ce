package repository

import (
	"testing"

	"ride-chat-go/internal/repository/repotest"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	return repotest.OpenDB(t)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	return repotest.NewRedis(t)
}
