package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/notebooks/internal/repository"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListTags(c *gin.Context) {
	tags, err := h.repos.Tags.All(c.Request.Context())
	if err != nil {
		h.respondError(c, "tags.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": tags})
}

func (h *httpHandler) handleTagTrends(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(repository.DefaultTrendsLimit)))
	if err != nil {
		limit = repository.DefaultTrendsLimit
	}
	trends, err := h.repos.Tags.Trends(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, "tags.trends", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tags": trends})
}

type profileResponse struct {
	User      repository.User         `json:"user"`
	Notebooks repository.NotebookPage `json:"notebooks"`
}

// handleProfile returns a user with their notebooks. Visitors only see public ones.
func (h *httpHandler) handleProfile(c *gin.Context) {
	user, err := h.users.Profile(c.Request.Context(), c.Param("username"))
	if err != nil {
		h.respondError(c, "users.profile", err)
		return
	}

	filter := repository.ListFilter{
		ViewerID: viewerID(c),
		AuthorID: user.ID,
		Sort:     repository.ParseSort(c.Query("sort"), c.Query("direction")),
	}
	if user.ID != filter.ViewerID {
		filter.Visibilities = []repository.Visibility{repository.VisibilityPublic}
	}
	page, err := h.notebooks.ListNotebooks(c.Request.Context(), filter, repository.Pagination{
		Page:    repository.ParsePage(c.Query("page")),
		PerPage: h.pageSize,
	})
	if err != nil {
		h.respondError(c, "users.profile", err)
		return
	}
	c.JSON(http.StatusOK, profileResponse{User: user, Notebooks: page})
}

type pictureRequest struct {
	Picture string `json:"picture"`
}

func (h *httpHandler) handleUpdatePicture(c *gin.Context) {
	user, _ := currentUser(c)
	var request pictureRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	updated, err := h.users.UpdatePicture(c.Request.Context(), user, request.Picture)
	if err != nil {
		h.respondError(c, "users.update_picture", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleListSecrets(c *gin.Context) {
	user, _ := currentUser(c)
	secrets, err := h.repos.Secrets.List(c.Request.Context(), user.ID)
	if err != nil {
		h.respondError(c, "secrets.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"secrets": secrets})
}

type secretRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func (h *httpHandler) handleCreateSecret(c *gin.Context) {
	user, _ := currentUser(c)
	var request secretRequest
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	secret, err := h.repos.Secrets.Create(c.Request.Context(), user.ID, request.Name, request.Value)
	if err != nil {
		h.respondError(c, "secrets.create", err)
		return
	}
	c.JSON(http.StatusCreated, secret)
}

func (h *httpHandler) handleUpdateSecret(c *gin.Context) {
	user, _ := currentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var request secretRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	secret, err := h.repos.Secrets.Update(c.Request.Context(), user.ID, id, request.Value)
	if err != nil {
		h.respondError(c, "secrets.update", err)
		return
	}
	c.JSON(http.StatusOK, secret)
}

func (h *httpHandler) handleDeleteSecret(c *gin.Context) {
	user, _ := currentUser(c)
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.repos.Secrets.Delete(c.Request.Context(), user.ID, id); err != nil {
		h.respondError(c, "secrets.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}
