package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestNormalizeMetadata(t *testing.T) {
	cases := []struct {
		name     string
		raw      datatypes.JSON
		expected string
		invalid  bool
	}{
		{name: "absent", raw: nil, expected: "null"},
		{name: "blank", raw: datatypes.JSON("  "), expected: "null"},
		{name: "null", raw: datatypes.JSON(" null "), expected: "null"},
		{name: "object", raw: datatypes.JSON(`{"type":"table"}`), expected: `{"type":"table"}`},
		{name: "malformed", raw: datatypes.JSON(`{"type":`), invalid: true},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			normalized, err := NormalizeMetadata(testCase.raw)
			if testCase.invalid {
				require.ErrorIs(t, err, ErrInvalidBlock)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, string(normalized))
		})
	}
}

func TestBlockBatchLifecycle(t *testing.T) {
	repos, clock, _ := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")
	notebook := mustNotebook(t, repos, alice, "Blocks", VisibilityPrivate)
	other := mustNotebook(t, repos, alice, "Other", VisibilityPrivate)

	created, err := repos.Blocks.BatchCreate(ctx, notebook.ID, []NewBlock{
		{Content: "# title", Type: BlockTypeMarkdown, Position: 0},
		{Content: "select 1", Type: BlockTypeSQL, Position: 1, Metadata: datatypes.JSON(`{"chart":"bar"}`)},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)
	assert.NotZero(t, created[0].ID)
	assert.NotEqual(t, created[0].ID, created[1].ID)
	assert.Equal(t, "null", string(created[0].Metadata))

	clock.Advance(time.Minute)
	changed := created[1]
	changed.Content = "select 2"
	changed.Pinned = true
	changed.Position = 0
	updated, err := repos.Blocks.BatchUpdate(ctx, notebook.ID, []Block{changed})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "select 2", updated[0].Content)
	assert.True(t, updated[0].Pinned)
	assert.Equal(t, clock.Now().Unix(), updated[0].UpdatedAtSeconds)
	assert.JSONEq(t, `{"chart":"bar"}`, string(updated[0].Metadata))

	_, err = repos.Blocks.BatchUpdate(ctx, other.ID, []Block{changed})
	require.ErrorIs(t, err, ErrNotUpdated, "blocks cannot move across notebooks")

	retyped := changed
	retyped.Type = "python"
	_, err = repos.Blocks.BatchUpdate(ctx, notebook.ID, []Block{retyped})
	require.ErrorIs(t, err, ErrNotUpdated)
	require.ErrorIs(t, err, ErrInvalidBlockType)

	require.ErrorIs(t, repos.Blocks.BatchDelete(ctx, other.ID, []int64{created[0].ID}), ErrNotDeleted)
	require.NoError(t, repos.Blocks.BatchDelete(ctx, notebook.ID, []int64{created[0].ID}))

	remaining, err := repos.Blocks.List(ctx, notebook.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, created[1].ID, remaining[0].ID)
}

func TestBlockBatchCreateValidates(t *testing.T) {
	repos, _, _ := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")
	notebook := mustNotebook(t, repos, alice, "Blocks", VisibilityPrivate)

	_, err := repos.Blocks.BatchCreate(ctx, notebook.ID, []NewBlock{{Content: "x", Type: "python"}})
	require.ErrorIs(t, err, ErrNotCreated)
	require.ErrorIs(t, err, ErrInvalidBlockType)

	_, err = repos.Blocks.BatchCreate(ctx, notebook.ID, []NewBlock{{Content: "x", Type: BlockTypeMarkdown, Position: -1}})
	require.ErrorIs(t, err, ErrNotCreated)
	require.ErrorIs(t, err, ErrInvalidBlock)

	_, err = repos.Blocks.BatchCreate(ctx, notebook.ID, []NewBlock{{Content: "x", Type: BlockTypeMarkdown, Metadata: datatypes.JSON(`{"chart":`)}})
	require.ErrorIs(t, err, ErrNotCreated)
	require.ErrorIs(t, err, ErrInvalidBlock)

	_, err = repos.Blocks.BatchCreate(ctx, 12345, []NewBlock{{Content: "x", Type: BlockTypeMarkdown}})
	require.ErrorIs(t, err, ErrNotCreated)
}

func TestBlocksCascadeWithNotebookRow(t *testing.T) {
	repos, _, db := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")
	notebook := mustNotebook(t, repos, alice, "Blocks", VisibilityPrivate)

	_, err := repos.Blocks.BatchCreate(ctx, notebook.ID, []NewBlock{{Content: "x", Type: BlockTypeMarkdown}})
	require.NoError(t, err)
	require.NoError(t, db.Delete(&Notebook{}, notebook.ID).Error)

	var count int64
	require.NoError(t, db.Model(&Block{}).Count(&count).Error)
	assert.Zero(t, count)
}
