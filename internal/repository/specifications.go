package repository

import (
	"github.com/MarcoPoloResearchLab/notebooks/internal/specification"
	"gorm.io/gorm/clause"
)

// NotebookSpecification selects notebooks.
type NotebookSpecification = specification.Specification[Notebook]

// UserSpecification selects users.
type UserSpecification = specification.Specification[User]

var (
	notebookIDColumn         = clause.Column{Table: "notebooks", Name: "id"}
	notebookSlugColumn       = clause.Column{Table: "notebooks", Name: "slug"}
	notebookAuthorColumn     = clause.Column{Table: "notebooks", Name: "author_id"}
	notebookVisibilityColumn = clause.Column{Table: "notebooks", Name: "visibility"}
	notebookTitleColumn      = clause.Column{Table: "notebooks", Name: "title"}
	notebookDeletedAtColumn  = clause.Column{Table: "notebooks", Name: "deleted_at_s"}
	notebookCreatedAtColumn  = clause.Column{Table: "notebooks", Name: "created_at_s"}
	notebookForkOfColumn     = clause.Column{Table: "notebooks", Name: "fork_of_id"}

	userIDColumn         = clause.Column{Table: "users", Name: "id"}
	userUsernameColumn   = clause.Column{Table: "users", Name: "username"}
	userExternalIDColumn = clause.Column{Table: "users", Name: "external_id"}
)

// NotebookWithID selects the notebook with the given identifier.
func NotebookWithID(id int64) NotebookSpecification {
	return specification.Equal(notebookIDColumn, id, func(n Notebook) int64 { return n.ID })
}

// NotebookWithSlug selects the notebook with the given slug.
func NotebookWithSlug(slug string) NotebookSpecification {
	return specification.Equal(notebookSlugColumn, slug, func(n Notebook) string { return n.Slug })
}

// NotebookWithAuthor selects notebooks written by the given user.
func NotebookWithAuthor(authorID int64) NotebookSpecification {
	return specification.Equal(notebookAuthorColumn, authorID, func(n Notebook) int64 { return n.AuthorID })
}

// NotebookWithVisibilities selects notebooks whose visibility is in the set.
func NotebookWithVisibilities(visibilities ...Visibility) NotebookSpecification {
	return specification.In(notebookVisibilityColumn, visibilities, func(n Notebook) Visibility { return n.Visibility })
}

// NotebookWithTitleLike selects notebooks whose title contains needle, case-insensitively.
func NotebookWithTitleLike(needle string) NotebookSpecification {
	return specification.ContainsFold(notebookTitleColumn, needle, func(n Notebook) string { return n.Title })
}

// NotebookForkedFrom selects the notebooks forked from parentID.
func NotebookForkedFrom(parentID int64) NotebookSpecification {
	return specification.NotNullEqual(notebookForkOfColumn, parentID, func(n Notebook) *int64 { return n.ForkOfID })
}

// NotebookNotDeleted selects notebooks that have not been soft-deleted.
func NotebookNotDeleted() NotebookSpecification {
	return specification.IsNull(notebookDeletedAtColumn, func(n Notebook) *int64 { return n.DeletedAtSeconds })
}

// UserWithID selects the user with the given identifier.
func UserWithID(id int64) UserSpecification {
	return specification.Equal(userIDColumn, id, func(u User) int64 { return u.ID })
}

// UserWithUsername selects the user with the given username.
func UserWithUsername(username string) UserSpecification {
	return specification.Equal(userUsernameColumn, username, func(u User) string { return u.Username })
}

// UserWithExternalID selects the user bound to the identity provider subject.
func UserWithExternalID(externalID string) UserSpecification {
	return specification.Equal(userExternalIDColumn, externalID, func(u User) string { return u.ExternalID })
}
