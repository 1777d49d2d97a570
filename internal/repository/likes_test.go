package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestLikeRejectsCountsOutsideRange(t *testing.T) {
	repos, _, db := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")
	bob := mustUser(t, repos, "bob")
	notebook := mustNotebook(t, repos, alice, "Liked", VisibilityPublic)

	for _, count := range []int{-1, 0, 11, 100} {
		_, err := repos.Likes.Like(ctx, notebook.ID, bob.ID, count)
		require.ErrorIs(t, err, ErrInvalidLikeCount, "count %d", count)
		require.ErrorIs(t, err, ErrNotCreated)
	}

	var rows int64
	require.NoError(t, db.Model(&Like{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestLikeUpsertsSingleRow(t *testing.T) {
	repos, _, db := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")
	bob := mustUser(t, repos, "bob")
	notebook := mustNotebook(t, repos, alice, "Liked", VisibilityPublic)

	first, err := repos.Likes.Like(ctx, notebook.ID, bob.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Count)

	second, err := repos.Likes.Like(ctx, notebook.ID, bob.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, second.Count)

	var likes []Like
	require.NoError(t, db.Where("notebook_id = ?", notebook.ID).Find(&likes).Error)
	require.Len(t, likes, 1)
	assert.Equal(t, 3, likes[0].Count)

	assert.Equal(t, int64(3), likeTotal(t, db, notebook.ID))
}

func TestUnlikeRemovesRow(t *testing.T) {
	repos, _, db := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")
	bob := mustUser(t, repos, "bob")
	notebook := mustNotebook(t, repos, alice, "Liked", VisibilityPublic)

	require.ErrorIs(t, repos.Likes.Unlike(ctx, notebook.ID, bob.ID), ErrNotDeleted)

	_, err := repos.Likes.Like(ctx, notebook.ID, bob.ID, 10)
	require.NoError(t, err)
	require.NoError(t, repos.Likes.Unlike(ctx, notebook.ID, bob.ID))

	assert.Zero(t, likeTotal(t, db, notebook.ID))
}

func likeTotal(t *testing.T, db *gorm.DB, notebookID int64) int64 {
	t.Helper()
	var total int64
	require.NoError(t, db.Model(&Like{}).Select("COALESCE(SUM(count), 0)").Where("notebook_id = ?", notebookID).Scan(&total).Error)
	return total
}
