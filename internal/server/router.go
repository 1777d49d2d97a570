package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/notebooks/internal/auth"
	"github.com/MarcoPoloResearchLab/notebooks/internal/notebooks"
	"github.com/MarcoPoloResearchLab/notebooks/internal/repository"
	"github.com/MarcoPoloResearchLab/notebooks/internal/specification"
	"github.com/MarcoPoloResearchLab/notebooks/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	userContextKey     = "notebooks_user"
	clientIDCookieName = "client_id"
	clientIDMaxAge     = 365 * 24 * 60 * 60
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingNotebooksService = errors.New("notebooks service dependency required")
	errMissingRepositories     = errors.New("repositories dependency required")
)

// SessionValidator validates the session cookie of a request.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type Dependencies struct {
	SessionValidator SessionValidator
	UsersService     *users.Service
	NotebooksService *notebooks.Service
	Repositories     *repository.Repositories
	Logger           *zap.Logger
	AllowedOrigins   []string
	PageSize         int
	SiteBaseURL      string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.NotebooksService == nil {
		return nil, errMissingNotebooksService
	}
	if deps.Repositories == nil {
		return nil, errMissingRepositories
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:    deps.SessionValidator,
		users:       deps.UsersService,
		notebooks:   deps.NotebooksService,
		repos:       deps.Repositories,
		logger:      logger,
		pageSize:    deps.PageSize,
		siteBaseURL: deps.SiteBaseURL,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/sitemap.xml", handler.handleSitemap)

	api := router.Group("/")
	api.Use(handler.identifyRequest)
	api.GET("/notebooks", handler.handleListNotebooks)
	api.GET("/notebooks/:id", handler.handleReadNotebook)
	api.GET("/tags", handler.handleListTags)
	api.GET("/tags/trends", handler.handleTagTrends)
	api.GET("/users/:username", handler.handleProfile)
	api.GET("/users/:username/notebooks/:slug", handler.handleReadNotebookBySlug)

	protected := api.Group("/")
	protected.Use(handler.requireUser)
	protected.POST("/notebooks", handler.handleCreateNotebook)
	protected.PATCH("/notebooks/:id", handler.handleUpdateNotebook)
	protected.DELETE("/notebooks/:id", handler.handleDeleteNotebook)
	protected.POST("/notebooks/:id/fork", handler.handleForkNotebook)
	protected.PUT("/notebooks/:id/blocks", handler.handleReconcileBlocks)
	protected.PUT("/notebooks/:id/tags", handler.handleSetTags)
	protected.POST("/notebooks/:id/likes", handler.handleLike)
	protected.DELETE("/notebooks/:id/likes", handler.handleUnlike)
	protected.GET("/secrets", handler.handleListSecrets)
	protected.POST("/secrets", handler.handleCreateSecret)
	protected.PATCH("/secrets/:id", handler.handleUpdateSecret)
	protected.DELETE("/secrets/:id", handler.handleDeleteSecret)
	protected.PUT("/me/picture", handler.handleUpdatePicture)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

type httpHandler struct {
	sessions    SessionValidator
	users       *users.Service
	notebooks   *notebooks.Service
	repos       *repository.Repositories
	logger      *zap.Logger
	pageSize    int
	siteBaseURL string
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// identifyRequest attaches the session user when a valid session cookie is present.
// Requests without a usable session continue anonymously.
func (h *httpHandler) identifyRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if !errors.Is(err, auth.ErrMissingSessionToken) {
			level := zapcore.WarnLevel
			if errors.Is(err, auth.ErrExpiredSessionToken) {
				level = zapcore.InfoLevel
			}
			if entry := h.logger.Check(level, "session validation failed"); entry != nil {
				entry.Write(zap.Error(err))
			}
		}
		c.Next()
		return
	}

	user, err := h.users.ResolveUser(c.Request.Context(), claims)
	if err != nil {
		h.respondError(c, "users.resolve", err)
		c.Abort()
		return
	}
	c.Set(userContextKey, user)
	c.Next()
}

func (h *httpHandler) requireUser(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

func currentUser(c *gin.Context) (repository.User, bool) {
	value, ok := c.Get(userContextKey)
	if !ok {
		return repository.User{}, false
	}
	user, ok := value.(repository.User)
	return user, ok && user.ID != 0
}

// viewerID is zero for anonymous requests.
func viewerID(c *gin.Context) int64 {
	user, _ := currentUser(c)
	return user.ID
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + name})
		return 0, false
	}
	return id, true
}

type codedError interface {
	Code() string
}

// respondError maps the error taxonomy onto HTTP statuses.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, notebooks.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, users.ErrInvalidIdentity):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, repository.ErrNotCreated),
		errors.Is(err, repository.ErrNotUpdated),
		errors.Is(err, repository.ErrNotDeleted),
		errors.Is(err, repository.ErrInvalidBlock),
		errors.Is(err, repository.ErrInvalidBlockType),
		errors.Is(err, repository.ErrInvalidVisibility),
		errors.Is(err, specification.ErrInvalidSpecification):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
	default:
		code := operation + ".failed"
		var coded codedError
		if errors.As(err, &coded) {
			code = coded.Code()
		}
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("code", code),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": code})
	}
}
