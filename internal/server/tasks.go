package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/board"
	"tracker/internal/models"
)

type appDataRequest struct {
	User chatUser `json:"user"`
}

// handleAppData reloads the collection from the store and returns the
// viewer's role-scoped projection together with the reference lists the
// WebApp needs to populate its pickers.
func (s *Server) handleAppData(c *gin.Context) {
	var req appDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	viewer, ok := s.resolveViewer(c, req.User)
	if !ok {
		return
	}

	// A refused reload means a mutation is mid-flight; the current
	// snapshot is still consistent, so serve it rather than erroring.
	if err := s.client.Reload(c.Request.Context()); err != nil && !errors.Is(err, board.ErrMutationPending) {
		s.respondMutationError(c, err)
		return
	}

	tasks := s.client.Snapshot()
	employees, err := s.store.ListEmployees(c.Request.Context())
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"view":          s.client.View(viewer),
		"all_projects":  models.ProjectNames(tasks),
		"all_employees": employees,
		"user_name":     viewer.Name,
		"user_role":     viewer.Role,
	})
}

type createTaskRequest struct {
	User chatUser            `json:"user"`
	Task board.CreateRequest `json:"task"`
}

// handleCreateTask creates a task through the optimistic create path and
// returns the store-confirmed row.
func (s *Server) handleCreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	viewer, ok := s.resolveViewer(c, req.User)
	if !ok {
		return
	}

	task, err := s.client.Create(c.Request.Context(), viewer, req.Task)
	if err != nil {
		s.respondMutationError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"task": task})
}

type updateTaskRequest struct {
	User chatUser       `json:"user"`
	Edit board.TaskEdit `json:"edit"`
}

// handleUpdateTask saves a field edit through the version-checked write
// path. A 409 response means the row moved on and the client must reload.
func (s *Server) handleUpdateTask(c *gin.Context) {
	var req updateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	viewer, ok := s.resolveViewer(c, req.User)
	if !ok {
		return
	}

	if err := s.client.SaveEdit(c.Request.Context(), viewer, c.Param("id"), req.Edit); err != nil {
		s.respondMutationError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "saved"})
}

type updateStatusRequest struct {
	User   chatUser `json:"user"`
	Status string   `json:"status"`
}

// handleUpdateStatus moves a task between status groups, renumbering the
// group it left.
func (s *Server) handleUpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	viewer, ok := s.resolveViewer(c, req.User)
	if !ok {
		return
	}

	if err := s.client.UpdateStatus(c.Request.Context(), viewer, c.Param("id"), req.Status); err != nil {
		s.respondMutationError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "saved"})
}

type reorderRequest struct {
	User   chatUser `json:"user"`
	RowIDs []string `json:"row_ids"`
}

// handleReorder commits a drag-and-drop permutation of one status group.
func (s *Server) handleReorder(c *gin.Context) {
	var req reorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	viewer, ok := s.resolveViewer(c, req.User)
	if !ok {
		return
	}

	if err := s.client.Reorder(c.Request.Context(), viewer, req.RowIDs); err != nil {
		s.respondMutationError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "saved"})
}
