package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/notebooks/internal/specification"
	"gorm.io/gorm"
)

const (
	// DefaultPageSize is used when a listing request does not specify a usable page size.
	DefaultPageSize = 15
	// MaxPageSize bounds the page size accepted from callers.
	MaxPageSize = 100

	dailyViewsWindowDays = 7
	secondsPerDay        = 24 * 60 * 60
	dailyViewsDateLayout = "2006-01-02"
)

// SortField names the ranking key of a notebook listing.
type SortField string

const (
	SortByLikes     SortField = "likes"
	SortByTitle     SortField = "title"
	SortByCreatedAt SortField = "createdAt"
	// SortByTrending ranks by creation recency; there is no engagement decay.
	SortByTrending SortField = "trending"
)

// SortDirection orders a listing ascending or descending.
type SortDirection string

const (
	SortAscending  SortDirection = "asc"
	SortDescending SortDirection = "desc"
)

// Sort describes the ranking of a notebook listing.
type Sort struct {
	By        SortField
	Direction SortDirection
}

// ParseSort normalizes user input. Unknown fields fall back to createdAt, unknown directions to desc.
func ParseSort(by, direction string) Sort {
	result := Sort{By: SortByCreatedAt, Direction: SortDescending}
	switch SortField(strings.TrimSpace(by)) {
	case SortByLikes:
		result.By = SortByLikes
	case SortByTitle:
		result.By = SortByTitle
	case SortByTrending, "trends":
		result.By = SortByTrending
	}
	if SortDirection(strings.ToLower(strings.TrimSpace(direction))) == SortAscending {
		result.Direction = SortAscending
	}
	return result
}

// ListFilter holds the optional criteria of a notebook listing.
type ListFilter struct {
	// ViewerID is the requesting user; zero means anonymous.
	ViewerID     int64
	AuthorID     int64
	Visibilities []Visibility
	Search       string
	Tags         []string
	Sort         Sort
}

// Pagination selects one page of a listing.
type Pagination struct {
	Page    int
	PerPage int
}

// ParsePage converts raw input into a page number, normalizing invalid input to 1.
func ParsePage(raw string) int {
	page, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func (p Pagination) normalized() Pagination {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPageSize
	}
	if p.PerPage > MaxPageSize {
		p.PerPage = MaxPageSize
	}
	return p
}

// AuthorSummary is the public projection of a notebook author.
type AuthorSummary struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Picture  *string `json:"picture"`
}

// DailyViews counts the views of one UTC day.
type DailyViews struct {
	Date  string `json:"date"`
	Views int64  `json:"views"`
}

// NotebookSummary is one enriched row of a notebook listing.
type NotebookSummary struct {
	ID               int64         `json:"id"`
	Title            string        `json:"title"`
	Slug             string        `json:"slug"`
	AuthorID         int64         `json:"author_id"`
	Visibility       Visibility    `json:"visibility"`
	ForkOfID         *int64        `json:"fork_of_id"`
	CreatedAtSeconds int64         `json:"created_at_s"`
	UpdatedAtSeconds int64         `json:"updated_at_s"`
	Author           AuthorSummary `json:"author"`
	Likes            int64         `json:"likes"`
	UserLike         int64         `json:"user_like"`
	Tags             []string      `json:"tags"`
	Views            int64         `json:"views"`
	DailyViews       []DailyViews  `json:"daily_views"`
}

// PageInfo reports the position of a page within a listing.
type PageInfo struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// NotebookPage is one page of a notebook listing.
type NotebookPage struct {
	Notebooks  []NotebookSummary `json:"notebooks"`
	Pagination PageInfo          `json:"pagination"`
}

type notebookListRow struct {
	ID               int64      `gorm:"column:id"`
	Title            string     `gorm:"column:title"`
	Slug             string     `gorm:"column:slug"`
	AuthorID         int64      `gorm:"column:author_id"`
	Visibility       Visibility `gorm:"column:visibility"`
	ForkOfID         *int64     `gorm:"column:fork_of_id"`
	CreatedAtSeconds int64      `gorm:"column:created_at_s"`
	UpdatedAtSeconds int64      `gorm:"column:updated_at_s"`
	AuthorUsername   string     `gorm:"column:author_username"`
	AuthorPicture    *string    `gorm:"column:author_picture"`
	Likes            int64      `gorm:"column:likes"`
	UserLike         int64      `gorm:"column:user_like"`
	TagNames         string     `gorm:"column:tag_names"`
	Views            int64      `gorm:"column:views"`
	DailySeries      string     `gorm:"column:daily_series"`
	TotalRows        int64      `gorm:"column:total_rows"`
}

type dailyViewsPoint struct {
	Day   int64 `json:"day"`
	Views int64 `json:"views"`
}

const notebookListColumns = "notebooks.id AS id, notebooks.title AS title, notebooks.slug AS slug, " +
	"notebooks.author_id AS author_id, notebooks.visibility AS visibility, notebooks.fork_of_id AS fork_of_id, " +
	"notebooks.created_at_s AS created_at_s, notebooks.updated_at_s AS updated_at_s, " +
	"users.username AS author_username, users.picture AS author_picture, " +
	"COALESCE(notebook_likes.total_likes, 0) AS likes, " +
	"COALESCE(user_likes.user_like, 0) AS user_like, " +
	"COALESCE(notebook_tags.tag_names, '[]') AS tag_names, " +
	"COALESCE(total_views.total, 0) AS views, " +
	"COALESCE(daily_views.series, '[]') AS daily_series, " +
	"COUNT(*) OVER() AS total_rows"

// List returns one page of live notebooks matching filter, enriched with author, likes,
// tags and view analytics. The page is produced by a single query.
func (r *NotebookRepository) List(ctx context.Context, filter ListFilter, pagination Pagination) (NotebookPage, error) {
	pagination = pagination.normalized()
	db := r.db.WithContext(ctx)

	today := nowSeconds(r.clock) / secondsPerDay
	firstDay := today - (dailyViewsWindowDays - 1)

	query := db.Table("notebooks").
		Select(notebookListColumns).
		Joins("INNER JOIN users ON users.id = notebooks.author_id").
		Joins("LEFT JOIN (?) AS notebook_likes ON notebook_likes.notebook_id = notebooks.id", r.notebookLikes(db)).
		Joins("LEFT JOIN (?) AS user_likes ON user_likes.notebook_id = notebooks.id", r.userLikes(db, filter.ViewerID)).
		Joins("LEFT JOIN (?) AS notebook_tags ON notebook_tags.notebook_id = notebooks.id", r.notebookTags(db)).
		Joins("LEFT JOIN (?) AS total_views ON total_views.notebook_id = notebooks.id", r.totalViews(db)).
		Joins("LEFT JOIN (?) AS daily_views ON daily_views.notebook_id = notebooks.id", r.dailyViews(db, firstDay))

	query, err := specification.Where(query, listSpecifications(filter)...)
	if err != nil {
		return NotebookPage{}, err
	}
	if tags := distinctNames(filter.Tags); len(tags) > 0 {
		query = query.Where("(SELECT COUNT(DISTINCT tags.name) FROM tags_to_notebooks "+
			"INNER JOIN tags ON tags.id = tags_to_notebooks.tag_id "+
			"WHERE tags_to_notebooks.notebook_id = notebooks.id AND tags.name IN ?) = ?", tags, len(tags))
	}
	for _, order := range listOrder(filter.Sort) {
		query = query.Order(order)
	}

	var rows []notebookListRow
	err = query.
		Limit(pagination.PerPage).
		Offset((pagination.Page - 1) * pagination.PerPage).
		Scan(&rows).Error
	if err != nil {
		return NotebookPage{}, err
	}

	if len(rows) == 0 {
		return NotebookPage{Notebooks: []NotebookSummary{}, Pagination: PageInfo{Current: 1, Total: 0}}, nil
	}

	summaries := make([]NotebookSummary, 0, len(rows))
	for _, row := range rows {
		summary, err := row.summary(firstDay)
		if err != nil {
			return NotebookPage{}, err
		}
		summaries = append(summaries, summary)
	}

	total := int((rows[0].TotalRows + int64(pagination.PerPage) - 1) / int64(pagination.PerPage))
	return NotebookPage{
		Notebooks:  summaries,
		Pagination: PageInfo{Current: pagination.Page, Total: total},
	}, nil
}

func listSpecifications(filter ListFilter) []NotebookSpecification {
	specs := []NotebookSpecification{NotebookNotDeleted()}
	if filter.AuthorID != 0 {
		specs = append(specs, NotebookWithAuthor(filter.AuthorID))
	}
	if len(filter.Visibilities) > 0 {
		specs = append(specs, NotebookWithVisibilities(filter.Visibilities...))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		specs = append(specs, NotebookWithTitleLike(search))
	}
	return specs
}

func listOrder(sorting Sort) []string {
	direction := "DESC"
	if sorting.Direction == SortAscending {
		direction = "ASC"
	}
	createdAt := notebookCreatedAtColumn.Table + "." + notebookCreatedAtColumn.Name

	var orders []string
	switch sorting.By {
	case SortByLikes:
		orders = []string{"COALESCE(notebook_likes.total_likes, 0) " + direction, createdAt + " DESC"}
	case SortByTitle:
		orders = []string{"notebooks.title " + direction, createdAt + " DESC"}
	case SortByTrending:
		orders = []string{createdAt + " " + direction}
	default:
		orders = []string{createdAt + " " + direction}
	}
	return append(orders, "notebooks.id DESC")
}

func (r *NotebookRepository) notebookLikes(db *gorm.DB) *gorm.DB {
	return db.Model(&Like{}).
		Select("likes.notebook_id AS notebook_id, COALESCE(SUM(likes.count), 0) AS total_likes").
		Group("likes.notebook_id")
}

func (r *NotebookRepository) userLikes(db *gorm.DB, viewerID int64) *gorm.DB {
	query := db.Model(&Like{}).Select("likes.notebook_id AS notebook_id, likes.count AS user_like")
	if viewerID == 0 {
		return query.Where("1 = 0")
	}
	return query.Where("likes.user_id = ?", viewerID)
}

func (r *NotebookRepository) notebookTags(db *gorm.DB) *gorm.DB {
	return db.Table("tags_to_notebooks").
		Select("tags_to_notebooks.notebook_id AS notebook_id, json_group_array(tags.name) AS tag_names").
		Joins("INNER JOIN tags ON tags.id = tags_to_notebooks.tag_id").
		Group("tags_to_notebooks.notebook_id")
}

func (r *NotebookRepository) totalViews(db *gorm.DB) *gorm.DB {
	return db.Model(&View{}).
		Select("views.notebook_id AS notebook_id, COUNT(*) AS total").
		Group("views.notebook_id")
}

func (r *NotebookRepository) dailyViews(db *gorm.DB, firstDay int64) *gorm.DB {
	perDay := db.Model(&View{}).
		Select(fmt.Sprintf("views.notebook_id AS notebook_id, views.created_at_s / %d AS day, COUNT(*) AS views", secondsPerDay)).
		Where("views.created_at_s >= ?", firstDay*secondsPerDay).
		Group(fmt.Sprintf("views.notebook_id, views.created_at_s / %d", secondsPerDay))

	return db.Table("(?) AS per_day", perDay).
		Select("per_day.notebook_id AS notebook_id, " +
			"json_group_array(json_object('day', per_day.day, 'views', per_day.views)) AS series").
		Group("per_day.notebook_id")
}

func (row notebookListRow) summary(firstDay int64) (NotebookSummary, error) {
	tags := []string{}
	if err := json.Unmarshal([]byte(row.TagNames), &tags); err != nil {
		return NotebookSummary{}, fmt.Errorf("decode tags of notebook %d: %w", row.ID, err)
	}
	sort.Strings(tags)

	var points []dailyViewsPoint
	if err := json.Unmarshal([]byte(row.DailySeries), &points); err != nil {
		return NotebookSummary{}, fmt.Errorf("decode daily views of notebook %d: %w", row.ID, err)
	}

	return NotebookSummary{
		ID:               row.ID,
		Title:            row.Title,
		Slug:             row.Slug,
		AuthorID:         row.AuthorID,
		Visibility:       row.Visibility,
		ForkOfID:         row.ForkOfID,
		CreatedAtSeconds: row.CreatedAtSeconds,
		UpdatedAtSeconds: row.UpdatedAtSeconds,
		Author: AuthorSummary{
			ID:       row.AuthorID,
			Username: row.AuthorUsername,
			Picture:  row.AuthorPicture,
		},
		Likes:      row.Likes,
		UserLike:   row.UserLike,
		Tags:       tags,
		Views:      row.Views,
		DailyViews: fillDailyViews(firstDay, points),
	}, nil
}

// fillDailyViews expands sparse per-day counts into a dense oldest-to-newest series.
func fillDailyViews(firstDay int64, points []dailyViewsPoint) []DailyViews {
	counts := make(map[int64]int64, len(points))
	for _, point := range points {
		counts[point.Day] += point.Views
	}
	series := make([]DailyViews, 0, dailyViewsWindowDays)
	for offset := int64(0); offset < dailyViewsWindowDays; offset++ {
		day := firstDay + offset
		series = append(series, DailyViews{
			Date:  dayDate(day),
			Views: counts[day],
		})
	}
	return series
}

func distinctNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

func dayDate(day int64) string {
	return time.Unix(day*secondsPerDay, 0).UTC().Format(dailyViewsDateLayout)
}
