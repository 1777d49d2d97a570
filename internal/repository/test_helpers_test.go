package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	testDatabaseSequence atomic.Int64
	nonSlugPattern       = regexp.MustCompile(`[^a-z0-9]+`)
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(duration time.Duration) {
	c.now = c.now.Add(duration)
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:notebooks_repository_%d_%d?mode=memory&cache=shared&_pragma=foreign_keys(1)",
		time.Now().UnixNano(), testDatabaseSequence.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "failed to open sqlite")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(Models()...), "failed to migrate")
	return db
}

func newTestRepositories(t *testing.T) (*Repositories, *testClock, *gorm.DB) {
	t.Helper()

	db := newTestDatabase(t)
	clock := &testClock{now: time.Date(2026, time.March, 10, 15, 30, 0, 0, time.UTC)}
	repos, err := New(Config{Database: db, Clock: clock.Now})
	require.NoError(t, err)
	return repos, clock, db
}

func mustUser(t *testing.T, repos *Repositories, username string) User {
	t.Helper()
	user, err := repos.Users.Create(context.Background(), "subject-"+username, username)
	require.NoError(t, err, "failed to create user %s", username)
	return user
}

func mustNotebook(t *testing.T, repos *Repositories, author User, title string, visibility Visibility) Notebook {
	t.Helper()
	notebook, err := repos.Notebooks.Create(context.Background(), NewNotebook{
		Title:      title,
		Slug:       slugFor(title),
		AuthorID:   author.ID,
		Visibility: visibility,
	})
	require.NoError(t, err, "failed to create notebook %s", title)
	return notebook
}

func slugFor(title string) string {
	return strings.Trim(nonSlugPattern.ReplaceAllString(strings.ToLower(title), "-"), "-")
}
