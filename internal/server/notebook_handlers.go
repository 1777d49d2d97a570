package server

import (
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/notebooks/internal/notebooks"
	"github.com/MarcoPoloResearchLab/notebooks/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func (h *httpHandler) handleListNotebooks(c *gin.Context) {
	filter := repository.ListFilter{
		ViewerID:     viewerID(c),
		Visibilities: []repository.Visibility{repository.VisibilityPublic},
		Sort:         repository.ParseSort(c.Query("sort"), c.Query("direction")),
	}
	filter.Search, filter.Tags = notebooks.ParseSearch(c.Query("q"))

	if username := strings.TrimSpace(c.Query("author")); username != "" {
		author, err := h.users.Profile(c.Request.Context(), username)
		if err != nil {
			h.respondError(c, "notebooks.list", err)
			return
		}
		filter.AuthorID = author.ID
		if author.ID == filter.ViewerID {
			filter.Visibilities = nil
		}
	}

	h.respondPage(c, filter)
}

func (h *httpHandler) respondPage(c *gin.Context, filter repository.ListFilter) {
	page, err := h.notebooks.ListNotebooks(c.Request.Context(), filter, repository.Pagination{
		Page:    repository.ParsePage(c.Query("page")),
		PerPage: h.pageSize,
	})
	if err != nil {
		h.respondError(c, "notebooks.list", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleReadNotebook(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	h.respondNotebook(c, repository.NotebookWithID(id))
}

func (h *httpHandler) handleReadNotebookBySlug(c *gin.Context) {
	author, err := h.users.Profile(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.respondError(c, "notebooks.read", err)
		return
	}
	h.respondNotebook(c, repository.NotebookWithAuthor(author.ID), repository.NotebookWithSlug(c.Param("slug")))
}

func (h *httpHandler) respondNotebook(c *gin.Context, specs ...repository.NotebookSpecification) {
	detail, err := h.notebooks.ReadNotebook(c.Request.Context(), viewerID(c), specs...)
	if err != nil {
		h.respondError(c, "notebooks.read", err)
		return
	}
	if err := h.notebooks.RecordView(c.Request.Context(), detail.ID, h.clientID(c)); err != nil {
		h.logger.Warn("failed to record view", zap.Int64("notebook_id", detail.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, detail)
}

// clientID returns the anonymous analytics identifier of the browser, issuing one when absent.
func (h *httpHandler) clientID(c *gin.Context) string {
	if value, err := c.Cookie(clientIDCookieName); err == nil && strings.TrimSpace(value) != "" {
		return value
	}
	generated, err := uuid.NewV7()
	if err != nil {
		h.logger.Warn("failed to generate client id", zap.Error(err))
		return ""
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(clientIDCookieName, generated.String(), clientIDMaxAge, "/", "", false, true)
	return generated.String()
}

type createNotebookRequest struct {
	Title string `json:"title"`
}

func (h *httpHandler) handleCreateNotebook(c *gin.Context) {
	user, _ := currentUser(c)
	var request createNotebookRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	notebook, err := h.notebooks.CreateNotebook(c.Request.Context(), user, request.Title)
	if err != nil {
		h.respondError(c, "notebooks.create", err)
		return
	}
	c.JSON(http.StatusCreated, notebook)
}

type updateNotebookRequest struct {
	Title      *string `json:"title"`
	Slug       *string `json:"slug"`
	Visibility *string `json:"visibility"`
}

func (h *httpHandler) handleUpdateNotebook(c *gin.Context) {
	user, _ := currentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request updateNotebookRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	current, err := h.notebooks.ReadNotebook(c.Request.Context(), user.ID, repository.NotebookWithID(id))
	if err != nil {
		h.respondError(c, "notebooks.update", err)
		return
	}
	notebook := current.Notebook
	if request.Title != nil {
		notebook.Title = *request.Title
	}
	if request.Slug != nil {
		notebook.Slug = *request.Slug
	}
	if request.Visibility != nil {
		visibility, err := repository.ParseVisibility(*request.Visibility)
		if err != nil {
			h.respondError(c, "notebooks.update", err)
			return
		}
		notebook.Visibility = visibility
	}

	updated, err := h.notebooks.UpdateNotebook(c.Request.Context(), notebook, user.ID)
	if err != nil {
		h.respondError(c, "notebooks.update", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteNotebook(c *gin.Context) {
	user, _ := currentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notebooks.DeleteNotebook(c.Request.Context(), id, user.ID); err != nil {
		h.respondError(c, "notebooks.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleForkNotebook(c *gin.Context) {
	user, _ := currentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	fork, err := h.notebooks.Fork(c.Request.Context(), id, user.ID)
	if err != nil {
		h.respondError(c, "notebooks.fork", err)
		return
	}
	c.JSON(http.StatusCreated, fork)
}

type reconcileBlocksRequest struct {
	Blocks []notebooks.DesiredBlock `json:"blocks"`
}

func (h *httpHandler) handleReconcileBlocks(c *gin.Context) {
	user, _ := currentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request reconcileBlocksRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	blocks, err := h.notebooks.ReconcileBlocks(c.Request.Context(), id, user.ID, request.Blocks)
	if err != nil {
		h.respondError(c, "notebooks.reconcile_blocks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocks": blocks})
}

type setTagsRequest struct {
	Tags []string `json:"tags"`
}

func (h *httpHandler) handleSetTags(c *gin.Context) {
	user, _ := currentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request setTagsRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	tags, err := h.notebooks.SetTags(c.Request.Context(), id, user.ID, request.Tags)
	if err != nil {
		h.respondError(c, "notebooks.set_tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

type likeRequest struct {
	Count int `json:"count"`
}

func (h *httpHandler) handleLike(c *gin.Context) {
	user, _ := currentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	request := likeRequest{Count: repository.MinLikeCount}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
	}
	like, err := h.notebooks.Like(c.Request.Context(), id, user.ID, request.Count)
	if err != nil {
		h.respondError(c, "notebooks.like", err)
		return
	}
	c.JSON(http.StatusOK, like)
}

func (h *httpHandler) handleUnlike(c *gin.Context) {
	user, _ := currentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.notebooks.Unlike(c.Request.Context(), id, user.ID); err != nil {
		h.respondError(c, "notebooks.unlike", err)
		return
	}
	c.Status(http.StatusNoContent)
}
