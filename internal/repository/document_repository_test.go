package repository

import (
	"context"
	"testing"

	"ride-chat-go/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentVersions(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openTestDB(t))

	_, err := repo.Latest(ctx, "d1")
	assert.ErrorIs(t, err, ErrDocumentNotFound)

	require.NoError(t, repo.SaveVersion(ctx, &model.Document{ID: "d1", UserID: 1, Title: "Trip", Kind: model.DocumentKindText, Content: "v1"}))
	require.NoError(t, repo.SaveVersion(ctx, &model.Document{ID: "d1", UserID: 1, Title: "Trip", Kind: model.DocumentKindText, Content: "v2"}))

	latest, err := repo.Latest(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "v2", latest.Content)

	versions, err := repo.Versions(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, "v1", versions[0].Content)
}

func TestSuggestions(t *testing.T) {
	ctx := context.Background()
	repo := NewDocumentRepository(openTestDB(t))

	require.NoError(t, repo.SaveSuggestions(ctx, []*model.Suggestion{
		{ID: "s1", DocumentID: "d1", UserID: 1, OriginalText: "a", SuggestedText: "b"},
		{ID: "s2", DocumentID: "d1", UserID: 1, OriginalText: "c", SuggestedText: "d"},
	}))
	list, err := repo.ListSuggestions(ctx, "d1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
