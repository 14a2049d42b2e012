package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker/internal/models"
	"tracker/internal/storage/sqlite"
)

type verifyRequest struct {
	User chatUser `json:"user"`
}

// handleVerifyUser resolves the chat identity against the employee
// records. Known users get their name and role back and the visit is
// recorded in the access log; unknown users are told to register.
func (s *Server) handleVerifyUser(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.User.ID == 0 {
		s.respondError(c, http.StatusBadRequest, errors.New("user object is required"))
		return
	}

	employee, err := s.store.EmployeeByUserID(c.Request.Context(), req.User.ID)
	if errors.Is(err, models.ErrEmployeeNotFound) {
		respondSuccess(c, http.StatusOK, gin.H{"status": "unregistered"})
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	s.store.LogAccess(c.Request.Context(), sqlite.AccessRecord{
		UserID:    req.User.ID,
		Username:  req.User.Username,
		FirstName: req.User.FirstName,
		LastName:  req.User.LastName,
	})
	respondSuccess(c, http.StatusOK, gin.H{
		"status": "authorized",
		"name":   employee.Name,
		"role":   employee.Role,
	})
}

type registrationRequest struct {
	Name   string `json:"name"`
	UserID int64  `json:"user_id"`
}

// handleRequestRegistration forwards a registration request to the board
// owner through the notifier.
func (s *Server) handleRequestRegistration(c *gin.Context) {
	var req registrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" || req.UserID == 0 {
		s.respondError(c, http.StatusBadRequest, errors.New("name and user_id are required"))
		return
	}

	owner, err := s.store.OwnerEmployee(c.Request.Context())
	if errors.Is(err, models.ErrEmployeeNotFound) {
		s.respondError(c, http.StatusInternalServerError, errors.New("no owner configured"))
		return
	}
	if err != nil {
		s.respondError(c, http.StatusInternalServerError, err)
		return
	}

	if err := s.registrar.RegistrationRequest(c.Request.Context(), owner.UserID, req.Name, req.UserID); err != nil {
		s.respondError(c, http.StatusBadGateway, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"status": "request_sent"})
}
