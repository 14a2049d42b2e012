package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/board"
	"tracker/internal/models"
	"tracker/internal/storage/sqlite"
)

// Registrar forwards registration requests from unknown users to the
// board owner.
type Registrar interface {
	RegistrationRequest(ctx context.Context, ownerID int64, name string, userID int64) error
}

// Server provides the HTTP API consumed by the chat WebApp.
type Server struct {
	engine    *gin.Engine
	client    *board.Client
	store     *sqlite.Store
	registrar Registrar
	logger    *slog.Logger
	staticDir string
}

// New constructs the HTTP server with routes and middleware configured.
func New(client *board.Client, store *sqlite.Store, registrar Registrar, logger *slog.Logger, staticDir string) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(gin.LoggerWithWriter(gin.DefaultWriter, "/api"))

	srv := &Server{
		engine:    router,
		client:    client,
		store:     store,
		registrar: registrar,
		logger:    logger,
		staticDir: staticDir,
	}

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API and static handlers together.
func (s *Server) registerRoutes() {
	api := s.engine.Group("/api")
	{
		api.GET("/healthz", s.handleHealth)

		auth := api.Group("/auth")
		{
			auth.POST("/verify", s.handleVerifyUser)
			auth.POST("/register", s.handleRequestRegistration)
		}

		api.POST("/appdata", s.handleAppData)
		api.POST("/tasks", s.handleCreateTask)
		api.PUT("/tasks/:id", s.handleUpdateTask)
		api.PUT("/tasks/:id/status", s.handleUpdateStatus)
		api.PUT("/priorities", s.handleReorder)
	}

	s.mountStatic()
}

// handleHealth provides a basic readiness endpoint.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// chatUser is the identity object the chat client attaches to every
// request. Verifying its signature is the chat platform's concern.
type chatUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// resolveViewer maps a chat identity to an employee record, rejecting
// unknown users.
func (s *Server) resolveViewer(c *gin.Context, user chatUser) (models.Employee, bool) {
	if user.ID == 0 {
		s.respondError(c, http.StatusBadRequest, errors.New("user object is required"))
		return models.Employee{}, false
	}
	viewer, err := s.store.EmployeeByUserID(c.Request.Context(), user.ID)
	if errors.Is(err, models.ErrEmployeeNotFound) {
		s.respondError(c, http.StatusUnauthorized, errors.New("user not registered"))
		return models.Employee{}, false
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return models.Employee{}, false
	}
	return viewer, true
}

// respondMutationError maps the mutation taxonomy onto HTTP statuses. A
// version conflict additionally tells the client a full reload is
// mandatory before retrying.
func (s *Server) respondMutationError(c *gin.Context, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, models.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrVersionConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "reload_required": true})
	case errors.Is(err, board.ErrMutationPending):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("mutation failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}

// respondError logs the error and returns a JSON payload.
func (s *Server) respondError(c *gin.Context, status int, err error) {
	if err != nil {
		s.logger.Error("request failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondSuccess wraps a payload in a JSON envelope for consistency.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
