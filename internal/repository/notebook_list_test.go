package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func summaryTitles(page NotebookPage) []string {
	titles := make([]string, 0, len(page.Notebooks))
	for _, summary := range page.Notebooks {
		titles = append(titles, summary.Title)
	}
	return titles
}

func TestListPaginationTotals(t *testing.T) {
	repos, clock, _ := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")
	bob := mustUser(t, repos, "bob")

	for _, title := range []string{"Notebook 1", "Notebook 2", "Notebook 3", "Notebook 4", "Notebook 5"} {
		mustNotebook(t, repos, alice, title, VisibilityPublic)
		clock.Advance(time.Minute)
	}

	page, err := repos.Notebooks.List(ctx, ListFilter{}, Pagination{Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Notebook 5", "Notebook 4"}, summaryTitles(page))
	assert.Equal(t, PageInfo{Current: 1, Total: 3}, page.Pagination)

	page, err = repos.Notebooks.List(ctx, ListFilter{}, Pagination{Page: 3, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"Notebook 1"}, summaryTitles(page))
	assert.Equal(t, PageInfo{Current: 3, Total: 3}, page.Pagination)

	page, err = repos.Notebooks.List(ctx, ListFilter{}, Pagination{Page: 4, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Notebooks)
	assert.Equal(t, PageInfo{Current: 1, Total: 0}, page.Pagination)

	page, err = repos.Notebooks.List(ctx, ListFilter{}, Pagination{Page: -3, PerPage: 0})
	require.NoError(t, err)
	assert.Len(t, page.Notebooks, 5)
	assert.Equal(t, PageInfo{Current: 1, Total: 1}, page.Pagination)

	page, err = repos.Notebooks.List(ctx, ListFilter{AuthorID: bob.ID}, Pagination{Page: 2})
	require.NoError(t, err)
	assert.NotNil(t, page.Notebooks)
	assert.Empty(t, page.Notebooks)
	assert.Equal(t, PageInfo{Current: 1, Total: 0}, page.Pagination)
}

func TestParsePageNormalizesInvalidInput(t *testing.T) {
	cases := map[string]int{
		"":    1,
		"abc": 1,
		"0":   1,
		"-2":  1,
		"1":   1,
		" 7 ": 7,
		"2.5": 1,
	}
	for raw, expected := range cases {
		assert.Equal(t, expected, ParsePage(raw), "raw %q", raw)
	}
}

func TestParseSortDefaults(t *testing.T) {
	assert.Equal(t, Sort{By: SortByCreatedAt, Direction: SortDescending}, ParseSort("", ""))
	assert.Equal(t, Sort{By: SortByLikes, Direction: SortAscending}, ParseSort("likes", "ASC"))
	assert.Equal(t, Sort{By: SortByTrending, Direction: SortDescending}, ParseSort("trends", "sideways"))
	assert.Equal(t, Sort{By: SortByCreatedAt, Direction: SortDescending}, ParseSort("views", "desc"))
}

func TestListRequiresEveryRequestedTag(t *testing.T) {
	repos, clock, _ := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")

	first := mustNotebook(t, repos, alice, "First", VisibilityPublic)
	clock.Advance(time.Minute)
	second := mustNotebook(t, repos, alice, "Second", VisibilityPublic)
	clock.Advance(time.Minute)
	third := mustNotebook(t, repos, alice, "Third", VisibilityPublic)

	_, err := repos.Tags.SetTags(ctx, first.ID, []string{"c", "a", "b"})
	require.NoError(t, err)
	_, err = repos.Tags.SetTags(ctx, second.ID, []string{"a"})
	require.NoError(t, err)
	_, err = repos.Tags.SetTags(ctx, third.ID, []string{"a", "d"})
	require.NoError(t, err)

	cases := []struct {
		name     string
		tags     []string
		expected []string
	}{
		{name: "superset", tags: []string{"a", "b"}, expected: []string{"First"}},
		{name: "single", tags: []string{"a"}, expected: []string{"Third", "Second", "First"}},
		{name: "other pair", tags: []string{"a", "d"}, expected: []string{"Third"}},
		{name: "duplicates", tags: []string{"a", "a", " b "}, expected: []string{"First"}},
		{name: "unknown", tags: []string{"a", "z"}, expected: []string{}},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			page, err := repos.Notebooks.List(ctx, ListFilter{Tags: testCase.tags}, Pagination{})
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, summaryTitles(page))
		})
	}

	page, err := repos.Notebooks.List(ctx, ListFilter{Tags: []string{"b"}}, Pagination{})
	require.NoError(t, err)
	require.Len(t, page.Notebooks, 1)
	assert.Equal(t, []string{"a", "b", "c"}, page.Notebooks[0].Tags)
}

func TestListRanksByLikesWithCreationTiebreak(t *testing.T) {
	repos, clock, _ := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")
	bob := mustUser(t, repos, "bob")
	carol := mustUser(t, repos, "carol")

	older := mustNotebook(t, repos, alice, "Older", VisibilityPublic)
	clock.Advance(time.Minute)
	newer := mustNotebook(t, repos, alice, "Newer", VisibilityPublic)
	clock.Advance(time.Minute)
	mustNotebook(t, repos, alice, "Unliked", VisibilityPublic)

	_, err := repos.Likes.Like(ctx, older.ID, bob.ID, 5)
	require.NoError(t, err)
	_, err = repos.Likes.Like(ctx, older.ID, carol.ID, 3)
	require.NoError(t, err)
	_, err = repos.Likes.Like(ctx, newer.ID, bob.ID, 8)
	require.NoError(t, err)

	page, err := repos.Notebooks.List(ctx, ListFilter{
		ViewerID: bob.ID,
		Sort:     Sort{By: SortByLikes, Direction: SortDescending},
	}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Newer", "Older", "Unliked"}, summaryTitles(page))
	assert.Equal(t, []int64{8, 8, 0}, []int64{page.Notebooks[0].Likes, page.Notebooks[1].Likes, page.Notebooks[2].Likes})
	assert.Equal(t, []int64{8, 5, 0}, []int64{page.Notebooks[0].UserLike, page.Notebooks[1].UserLike, page.Notebooks[2].UserLike})

	page, err = repos.Notebooks.List(ctx, ListFilter{
		Sort: Sort{By: SortByLikes, Direction: SortAscending},
	}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Unliked", "Newer", "Older"}, summaryTitles(page))
	for _, summary := range page.Notebooks {
		assert.Zero(t, summary.UserLike, "anonymous viewers have no like state")
	}
}

func TestListSortsByTitleAndTrending(t *testing.T) {
	repos, clock, _ := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")

	for _, title := range []string{"Beta", "Alpha", "Gamma"} {
		mustNotebook(t, repos, alice, title, VisibilityPublic)
		clock.Advance(time.Minute)
	}

	page, err := repos.Notebooks.List(ctx, ListFilter{Sort: Sort{By: SortByTitle, Direction: SortAscending}}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, summaryTitles(page))

	page, err = repos.Notebooks.List(ctx, ListFilter{Sort: Sort{By: SortByTitle, Direction: SortDescending}}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gamma", "Beta", "Alpha"}, summaryTitles(page))

	page, err = repos.Notebooks.List(ctx, ListFilter{Sort: Sort{By: SortByTrending, Direction: SortDescending}}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Gamma", "Alpha", "Beta"}, summaryTitles(page))

	page, err = repos.Notebooks.List(ctx, ListFilter{Sort: Sort{By: SortByCreatedAt, Direction: SortAscending}}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta", "Alpha", "Gamma"}, summaryTitles(page))
}

func TestListFiltersSearchVisibilityAndDeleted(t *testing.T) {
	repos, clock, _ := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")

	mustNotebook(t, repos, alice, "Postgres Tips", VisibilityPublic)
	clock.Advance(time.Minute)
	mustNotebook(t, repos, alice, "SQLite tips", VisibilityPrivate)
	clock.Advance(time.Minute)
	removed := mustNotebook(t, repos, alice, "Removed tips", VisibilityPublic)
	clock.Advance(time.Minute)
	mustNotebook(t, repos, alice, "100% coverage", VisibilityPublic)

	require.NoError(t, repos.Notebooks.Delete(ctx, removed.ID, alice.ID))

	page, err := repos.Notebooks.List(ctx, ListFilter{Search: "TIPS"}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"SQLite tips", "Postgres Tips"}, summaryTitles(page))

	page, err = repos.Notebooks.List(ctx, ListFilter{
		Search:       "tips",
		Visibilities: []Visibility{VisibilityPublic},
	}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Postgres Tips"}, summaryTitles(page))

	page, err = repos.Notebooks.List(ctx, ListFilter{Search: "0%"}, Pagination{})
	require.NoError(t, err)
	assert.Equal(t, []string{"100% coverage"}, summaryTitles(page))

	page, err = repos.Notebooks.List(ctx, ListFilter{Search: "_"}, Pagination{})
	require.NoError(t, err)
	assert.Empty(t, page.Notebooks)
}

func TestListReportsAuthorAndViewSeries(t *testing.T) {
	repos, clock, db := newTestRepositories(t)
	ctx := context.Background()
	alice := mustUser(t, repos, "alice")
	_, err := repos.Users.UpdatePicture(ctx, alice.ID, "https://example.com/alice.png")
	require.NoError(t, err)

	notebook := mustNotebook(t, repos, alice, "Viewed", VisibilityPublic)
	now := clock.Now().Unix()
	views := []View{
		{NotebookID: notebook.ID, ClientID: "client-1", Hour: 1, CreatedAtSeconds: now},
		{NotebookID: notebook.ID, ClientID: "client-2", Hour: 1, CreatedAtSeconds: now - 60},
		{NotebookID: notebook.ID, ClientID: "client-1", Hour: 2, CreatedAtSeconds: now - 2*secondsPerDay},
		{NotebookID: notebook.ID, ClientID: "client-1", Hour: 3, CreatedAtSeconds: now - 10*secondsPerDay},
	}
	require.NoError(t, db.Create(&views).Error)

	page, err := repos.Notebooks.List(ctx, ListFilter{}, Pagination{})
	require.NoError(t, err)
	require.Len(t, page.Notebooks, 1)

	summary := page.Notebooks[0]
	assert.Equal(t, "alice", summary.Author.Username)
	require.NotNil(t, summary.Author.Picture)
	assert.Equal(t, "https://example.com/alice.png", *summary.Author.Picture)
	assert.Equal(t, int64(4), summary.Views)
	assert.Equal(t, []string{}, summary.Tags)
	assert.Equal(t, []DailyViews{
		{Date: "2026-03-04", Views: 0},
		{Date: "2026-03-05", Views: 0},
		{Date: "2026-03-06", Views: 0},
		{Date: "2026-03-07", Views: 0},
		{Date: "2026-03-08", Views: 1},
		{Date: "2026-03-09", Views: 0},
		{Date: "2026-03-10", Views: 2},
	}, summary.DailyViews)
}

func TestFillDailyViewsZeroFillsOldestToNewest(t *testing.T) {
	firstDay := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
	series := fillDailyViews(firstDay, []dailyViewsPoint{{Day: firstDay + 6, Views: 3}, {Day: firstDay, Views: 1}})

	require.Len(t, series, dailyViewsWindowDays)
	assert.Equal(t, DailyViews{Date: "2026-01-01", Views: 1}, series[0])
	assert.Equal(t, DailyViews{Date: "2026-01-04", Views: 0}, series[3])
	assert.Equal(t, DailyViews{Date: "2026-01-07", Views: 3}, series[6])
}
