package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ujianku/ujianku-backend/internal/middleware"
	"github.com/ujianku/ujianku-backend/internal/model"
	"github.com/ujianku/ujianku-backend/internal/repository"
	"github.com/ujianku/ujianku-backend/internal/response"
	"github.com/ujianku/ujianku-backend/internal/service"
	"github.com/ujianku/ujianku-backend/internal/validator"
)

// ControlHandler handles the proctoring control plane: the live roster and
// the per-student control actions.
type ControlHandler struct {
	controlService *service.ControlService
	authService    *service.AuthService
	users          *repository.UserRepository
	classes        *repository.ClassRepository
}

// NewControlHandler creates a new ControlHandler.
func NewControlHandler(
	controlService *service.ControlService,
	authService *service.AuthService,
	users *repository.UserRepository,
	classes *repository.ClassRepository,
) *ControlHandler {
	return &ControlHandler{
		controlService: controlService,
		authService:    authService,
		users:          users,
		classes:        classes,
	}
}

// DispatchAction godoc
// POST /api/v1/control/actions
// Executes one control action against a student. Every mutation is a
// conditional write; a target that changed state since the roster was
// rendered produces an error here, never a silent overwrite.
func (h *ControlHandler) DispatchAction(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.ControlActionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	message, err := h.controlService.Dispatch(c.Request.Context(), claims.UserID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrAttemptRequired), errors.Is(err, service.ErrMinutesRequired):
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		case errors.Is(err, service.ErrUserNotFound), errors.Is(err, service.ErrAttemptNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, service.ErrAttemptFinalized):
			response.Fail(c, http.StatusConflict, response.ErrAttemptFinalized)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": message})
}

// GetRoster godoc
// GET /api/v1/control/users
// Returns the student roster with liveness and attempt state, the data
// behind the proctoring screen.
func (h *ControlHandler) GetRoster(c *gin.Context) {
	roster, err := h.controlService.Roster(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if roster == nil {
		roster = []model.RosterEntry{}
	}

	response.Success(c, http.StatusOK, gin.H{"students": roster})
}

// ListClasses godoc
// GET /api/v1/control/classes
func (h *ControlHandler) ListClasses(c *gin.Context) {
	classes, err := h.classes.List(c.Request.Context())
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	if classes == nil {
		classes = []model.Class{}
	}

	response.Success(c, http.StatusOK, gin.H{"classes": classes})
}

// CreateStudent godoc
// POST /api/v1/control/students
func (h *ControlHandler) CreateStudent(c *gin.Context) {
	var req model.CreateStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	hash, err := h.authService.HashPassword(req.Password)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	user := &model.User{
		Username:     req.Username,
		Name:         req.Name,
		Role:         model.RoleStudent,
		ClassID:      &req.ClassID,
		PasswordHash: hash,
	}

	if err := h.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			response.Fail(c, http.StatusConflict, response.ErrConflict)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"user": userPayload(user)})
}
