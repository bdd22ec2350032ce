package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ride-chat-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// QuotaDecision 是一次配额检查的结果。Count 为本次检查后窗口内的回合数。
type QuotaDecision struct {
	Allowed bool
	Count   int64
}

// QuotaRepository 在滑动时间窗口内统计每个身份提交的回合数。
type QuotaRepository interface {
	// CheckAndRecord 原子地检查并记录一次回合；被拒绝时不会记录。
	CheckAndRecord(ctx context.Context, identity model.Identity, window time.Duration, limit int, turnID string) (QuotaDecision, error)
	Count(ctx context.Context, userID uint, window time.Duration) (int64, error)
}

// 删除窗口外的记录、计数、在未超限时写入，三步在一个脚本里完成，保证同一身份的并发请求不会同时通过。
var checkAndRecordScript = redis.NewScript(`
local key = KEYS[1]
redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[2])
local count = redis.call('ZCARD', key)
if count >= tonumber(ARGV[3]) then
	return {0, count}
end
redis.call('ZADD', key, ARGV[1], ARGV[4])
redis.call('PEXPIRE', key, ARGV[5])
return {1, count + 1}
`)

type quotaRepository struct {
	rdb *redis.Client
	now func() time.Time
}

// NewQuotaRepository 创建基于 Redis 有序集合的配额账本。
func NewQuotaRepository(rdb *redis.Client) QuotaRepository {
	return &quotaRepository{rdb: rdb, now: time.Now}
}

func quotaKey(userID uint) string {
	return fmt.Sprintf("quota:turns:%d", userID)
}

func (r *quotaRepository) CheckAndRecord(ctx context.Context, identity model.Identity, window time.Duration, limit int, turnID string) (QuotaDecision, error) {
	now := r.now().UnixMilli()
	cutoff := now - window.Milliseconds()
	res, err := checkAndRecordScript.Run(ctx, r.rdb, []string{quotaKey(identity.UserID)},
		strconv.FormatInt(now, 10),
		strconv.FormatInt(cutoff, 10),
		strconv.Itoa(limit),
		turnID,
		strconv.FormatInt(window.Milliseconds(), 10),
	).Slice()
	if err != nil {
		return QuotaDecision{}, fmt.Errorf("quota check failed for user %d: %w", identity.UserID, err)
	}
	if len(res) != 2 {
		return QuotaDecision{}, fmt.Errorf("unexpected quota script reply: %v", res)
	}
	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)
	return QuotaDecision{Allowed: allowed == 1, Count: count}, nil
}

func (r *quotaRepository) Count(ctx context.Context, userID uint, window time.Duration) (int64, error) {
	cutoff := r.now().UnixMilli() - window.Milliseconds()
	n, err := r.rdb.ZCount(ctx, quotaKey(userID), "("+strconv.FormatInt(cutoff, 10), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("quota count failed for user %d: %w", userID, err)
	}
	return n, nil
}
