package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"ride-chat-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newChat(id string, userID uint) *model.Chat {
	return &model.Chat{ID: id, UserID: userID, Title: "New Chat", Visibility: model.VisibilityPrivate}
}

func TestConversationCreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(openTestDB(t))

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrConversationNotFound)

	require.NoError(t, repo.Create(ctx, newChat("c1", 7)))
	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint(7), got.UserID)
	assert.Equal(t, model.VisibilityPrivate, got.Visibility)

	err = repo.Create(ctx, newChat("c1", 8))
	assert.ErrorIs(t, err, ErrConversationExists)

	// 冲突的创建不能改变原有归属
	got, err = repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, uint(7), got.UserID)
}

func TestConversationAppendAndListOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(openTestDB(t))
	require.NoError(t, repo.Create(ctx, newChat("c1", 1)))

	for i := 0; i < 3; i++ {
		batch := []*model.Message{
			{ID: fmt.Sprintf("u%d", i), Role: model.RoleUser, Parts: []model.Part{model.TextPart(fmt.Sprintf("q%d", i))}},
			{ID: fmt.Sprintf("a%d", i), Role: model.RoleAssistant, Parts: []model.Part{model.TextPart(fmt.Sprintf("a%d", i))}},
		}
		require.NoError(t, repo.AppendMessages(ctx, "c1", batch))
	}

	msgs, err := repo.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 6)
	want := []string{"u0", "a0", "u1", "a1", "u2", "a2"}
	for i, m := range msgs {
		assert.Equal(t, want[i], m.ID)
		assert.Equal(t, "c1", m.ChatID)
	}
	assert.Equal(t, "q1", msgs[2].FirstText())

	last, err := repo.LastMessage(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "a2", last.ID)
}

func TestConversationAppendRequiresChat(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(openTestDB(t))

	err := repo.AppendMessages(ctx, "ghost", []*model.Message{{ID: "m1", Role: model.RoleUser}})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestConversationAppendIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(openTestDB(t))
	require.NoError(t, repo.Create(ctx, newChat("c1", 1)))
	require.NoError(t, repo.AppendMessages(ctx, "c1", []*model.Message{{ID: "dup", Role: model.RoleUser}}))

	// 第二条与已有消息 ID 冲突，整批都不应写入
	err := repo.AppendMessages(ctx, "c1", []*model.Message{
		{ID: "fresh", Role: model.RoleUser},
		{ID: "dup", Role: model.RoleAssistant},
	})
	require.Error(t, err)

	msgs, err := repo.ListMessages(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "dup", msgs[0].ID)
}

func TestConversationConcurrentAppendsStayOrdered(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(openTestDB(t))
	require.NoError(t, repo.Create(ctx, newChat("c1", 1)))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = repo.AppendMessages(ctx, "c1", []*model.Message{
				{ID: fmt.Sprintf("u%d", i), Role: model.RoleUser},
				{ID: fmt.Sprintf("a%d", i), Role: model.RoleAssistant},
			})
		}(i)
	}
	wg.Wait()

	msgs, err := repo.ListMessages(ctx, "c1")
	require.NoError(t, err)
	// 每批内部保持相邻，批与批之间不交错
	for i := 0; i+1 < len(msgs); i += 2 {
		assert.Equal(t, model.RoleUser, msgs[i].Role)
		assert.Equal(t, "a"+msgs[i].ID[1:], msgs[i+1].ID)
	}
}

func TestConversationDeleteAndVisibility(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(openTestDB(t))
	require.NoError(t, repo.Create(ctx, newChat("c1", 1)))
	require.NoError(t, repo.AppendMessages(ctx, "c1", []*model.Message{{ID: "m1", Role: model.RoleUser}}))
	require.NoError(t, repo.CreateStreamSession(ctx, "c1", "s1"))

	require.NoError(t, repo.UpdateVisibility(ctx, "c1", model.VisibilityPublic))
	got, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, model.VisibilityPublic, got.Visibility)
	assert.ErrorIs(t, repo.UpdateVisibility(ctx, "nope", model.VisibilityPublic), ErrConversationNotFound)

	require.NoError(t, repo.Delete(ctx, "c1"))
	_, err = repo.Get(ctx, "c1")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	msgs, err := repo.ListMessages(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
	_, err = repo.GetStreamSession(ctx, "s1")
	assert.ErrorIs(t, err, ErrStreamSessionNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "c1"), ErrConversationNotFound)
}

func TestConversationStreamSessions(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(openTestDB(t))

	assert.ErrorIs(t, repo.CreateStreamSession(ctx, "ghost", "s0"), ErrConversationNotFound)

	require.NoError(t, repo.Create(ctx, newChat("c1", 1)))
	_, err := repo.LatestStreamSession(ctx, "c1")
	assert.ErrorIs(t, err, ErrStreamSessionNotFound)

	require.NoError(t, repo.CreateStreamSession(ctx, "c1", "s1"))
	require.NoError(t, repo.CreateStreamSession(ctx, "c1", "s2"))

	latest, err := repo.LatestStreamSession(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "s2", latest.ID)

	s1, err := repo.GetStreamSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "c1", s1.ChatID)
}

func TestConversationListByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewConversationRepository(openTestDB(t))

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		chat := newChat(fmt.Sprintf("c%d", i), 1)
		chat.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repo.Create(ctx, chat))
	}
	require.NoError(t, repo.Create(ctx, newChat("other", 2)))

	page, hasMore, err := repo.ListByUser(ctx, 1, 2, "")
	require.NoError(t, err)
	assert.True(t, hasMore)
	require.Len(t, page, 2)
	assert.Equal(t, "c4", page[0].ID)
	assert.Equal(t, "c3", page[1].ID)

	page, hasMore, err = repo.ListByUser(ctx, 1, 10, "c3")
	require.NoError(t, err)
	assert.False(t, hasMore)
	require.Len(t, page, 3)
	assert.Equal(t, "c2", page[0].ID)
}
