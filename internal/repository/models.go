package repository

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/datatypes"
)

// Visibility controls who can read a notebook.
type Visibility string

const (
	// VisibilityPrivate restricts a notebook to its author.
	VisibilityPrivate Visibility = "private"
	// VisibilityPublic lists a notebook for everyone.
	VisibilityPublic Visibility = "public"
	// VisibilityUnlisted makes a notebook readable by link but keeps it out of listings.
	VisibilityUnlisted Visibility = "unlisted"
)

// ErrInvalidVisibility indicates an unknown visibility value.
var ErrInvalidVisibility = errors.New("repository: invalid visibility")

// ParseVisibility validates raw input and returns a Visibility.
func ParseVisibility(raw string) (Visibility, error) {
	switch Visibility(strings.ToLower(strings.TrimSpace(raw))) {
	case VisibilityPrivate:
		return VisibilityPrivate, nil
	case VisibilityPublic:
		return VisibilityPublic, nil
	case VisibilityUnlisted:
		return VisibilityUnlisted, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVisibility, raw)
	}
}

// BlockType enumerates the content kinds of a block.
type BlockType string

const (
	// BlockTypeMarkdown holds prose.
	BlockTypeMarkdown BlockType = "markdown"
	// BlockTypeSQL holds a query executed by the external proxy.
	BlockTypeSQL BlockType = "sql"
)

var (
	// ErrInvalidBlockType indicates an unknown block type.
	ErrInvalidBlockType = errors.New("repository: invalid block type")
	// ErrInvalidBlock indicates a block with a negative position or malformed metadata.
	ErrInvalidBlock = errors.New("repository: invalid block")
)

// ParseBlockType validates raw input and returns a BlockType.
func ParseBlockType(raw string) (BlockType, error) {
	switch BlockType(strings.ToLower(strings.TrimSpace(raw))) {
	case BlockTypeMarkdown:
		return BlockTypeMarkdown, nil
	case BlockTypeSQL:
		return BlockTypeSQL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBlockType, raw)
	}
}

const (
	// MinLikeCount is the smallest accepted like count.
	MinLikeCount = 1
	// MaxLikeCount is the largest accepted like count.
	MaxLikeCount = 10
)

// User is created on first authentication and never hard-deleted.
type User struct {
	ID               int64   `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ExternalID       string  `gorm:"column:external_id;size:190;not null;uniqueIndex" json:"-"`
	Username         string  `gorm:"column:username;size:190;not null;uniqueIndex" json:"username"`
	Picture          *string `gorm:"column:picture;size:512" json:"picture"`
	CreatedAtSeconds int64   `gorm:"column:created_at_s;not null" json:"created_at_s"`
	UpdatedAtSeconds int64   `gorm:"column:updated_at_s;not null" json:"updated_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// Notebook is an ordered collection of blocks owned by an author.
type Notebook struct {
	ID               int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Title            string     `gorm:"column:title;not null" json:"title"`
	Slug             string     `gorm:"column:slug;size:190;not null;uniqueIndex:idx_notebooks_active_slug,where:deleted_at_s IS NULL" json:"slug"`
	AuthorID         int64      `gorm:"column:author_id;not null;index" json:"author_id"`
	Author           *User      `gorm:"foreignKey:AuthorID;constraint:OnDelete:RESTRICT" json:"author,omitempty"`
	Visibility       Visibility `gorm:"column:visibility;size:16;not null;default:'unlisted'" json:"visibility"`
	ForkOfID         *int64     `gorm:"column:fork_of_id;index" json:"fork_of_id"`
	ForkOf           *Notebook  `gorm:"foreignKey:ForkOfID;constraint:OnDelete:SET NULL" json:"fork_of,omitempty"`
	CreatedAtSeconds int64      `gorm:"column:created_at_s;not null;index" json:"created_at_s"`
	UpdatedAtSeconds int64      `gorm:"column:updated_at_s;not null" json:"updated_at_s"`
	DeletedAtSeconds *int64     `gorm:"column:deleted_at_s;index" json:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Notebook) TableName() string {
	return "notebooks"
}

// Block is one ordered content unit inside a notebook.
type Block struct {
	ID               int64          `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	NotebookID       int64          `gorm:"column:notebook_id;not null;index" json:"notebook_id"`
	Notebook         *Notebook      `gorm:"foreignKey:NotebookID;constraint:OnDelete:CASCADE" json:"-"`
	Content          string         `gorm:"column:content;type:text;not null" json:"content"`
	Type             BlockType      `gorm:"column:type;size:16;not null" json:"type"`
	Position         int            `gorm:"column:position;not null;check:position_check,position >= 0" json:"position"`
	Pinned           bool           `gorm:"column:pinned;not null;default:false" json:"pinned"`
	Metadata         datatypes.JSON `gorm:"column:metadata;not null;default:'null'" json:"metadata"`
	CreatedAtSeconds int64          `gorm:"column:created_at_s;not null" json:"created_at_s"`
	UpdatedAtSeconds int64          `gorm:"column:updated_at_s;not null" json:"updated_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Block) TableName() string {
	return "blocks"
}

// Like records how much a user likes a notebook; one row per (notebook, user).
type Like struct {
	NotebookID       int64     `gorm:"column:notebook_id;primaryKey;autoIncrement:false" json:"notebook_id"`
	UserID           int64     `gorm:"column:user_id;primaryKey;autoIncrement:false" json:"user_id"`
	Notebook         *Notebook `gorm:"foreignKey:NotebookID;constraint:OnDelete:CASCADE" json:"-"`
	User             *User     `gorm:"foreignKey:UserID" json:"-"`
	Count            int       `gorm:"column:count;not null;default:1;check:count_check,count >= 1 AND count <= 10" json:"count"`
	CreatedAtSeconds int64     `gorm:"column:created_at_s;not null" json:"created_at_s"`
	UpdatedAtSeconds int64     `gorm:"column:updated_at_s;not null" json:"updated_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Like) TableName() string {
	return "likes"
}

// Tag is a globally shared label. Rows are never deleted by notebook edits.
type Tag struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name             string `gorm:"column:name;size:190;not null;uniqueIndex" json:"name"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Tag) TableName() string {
	return "tags"
}

// TagLink associates a tag with a notebook.
type TagLink struct {
	NotebookID int64     `gorm:"column:notebook_id;primaryKey;autoIncrement:false"`
	TagID      int64     `gorm:"column:tag_id;primaryKey;autoIncrement:false;index"`
	Notebook   *Notebook `gorm:"foreignKey:NotebookID;constraint:OnDelete:CASCADE"`
	Tag        *Tag      `gorm:"foreignKey:TagID;constraint:OnDelete:CASCADE"`
}

// TableName provides the explicit table binding for GORM.
func (TagLink) TableName() string {
	return "tags_to_notebooks"
}

// Secret parameterizes SQL blocks of its owner at execution time.
type Secret struct {
	ID               int64  `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Name             string `gorm:"column:name;size:190;not null;uniqueIndex:idx_secrets_name_owner,priority:1" json:"name"`
	Value            string `gorm:"column:value;type:text;not null" json:"value"`
	OwnerID          int64  `gorm:"column:owner_id;not null;uniqueIndex:idx_secrets_name_owner,priority:2" json:"owner_id"`
	Owner            *User  `gorm:"foreignKey:OwnerID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null" json:"created_at_s"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null" json:"updated_at_s"`
}

// TableName provides the explicit table binding for GORM.
func (Secret) TableName() string {
	return "secrets"
}

// View is an append-only analytics fact, deduplicated per client and hour.
type View struct {
	ID               int64     `gorm:"column:id;primaryKey;autoIncrement"`
	NotebookID       int64     `gorm:"column:notebook_id;not null;uniqueIndex:idx_views_dedupe,priority:1;index:idx_views_notebook_time,priority:1"`
	Notebook         *Notebook `gorm:"foreignKey:NotebookID;constraint:OnDelete:CASCADE"`
	ClientID         string    `gorm:"column:client_id;size:64;not null;uniqueIndex:idx_views_dedupe,priority:2"`
	Hour             int64     `gorm:"column:hour;not null;uniqueIndex:idx_views_dedupe,priority:3"`
	CreatedAtSeconds int64     `gorm:"column:created_at_s;not null;index:idx_views_notebook_time,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (View) TableName() string {
	return "views"
}

// Models lists every persisted model in dependency order for AutoMigrate.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Notebook{},
		&Block{},
		&Like{},
		&Tag{},
		&TagLink{},
		&Secret{},
		&View{},
	}
}
