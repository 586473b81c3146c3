package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/campushub/messaging/internal/api/dto"
	"github.com/campushub/messaging/internal/api/respond"
	"github.com/campushub/messaging/internal/model"
	permrepo "github.com/campushub/messaging/internal/repository/permission"
	permsvc "github.com/campushub/messaging/internal/service/permission"
)

type permissionService interface {
	CreatePermission(context.Context, model.Permission) (uuid.UUID, error)
	GetPermissionByID(context.Context, uuid.UUID) (model.Permission, error)
	GetPermissions(context.Context, permrepo.Filter) ([]model.Permission, error)
	UpdatePermission(context.Context, model.Permission) error
	DeletePermission(context.Context, uuid.UUID) error
}

// Handler handles HTTP requests for permission management.
type Handler struct {
	service   permissionService
	validator *validator.Validate
}

// NewHandler creates a new Handler instance.
func NewHandler(s permissionService, v *validator.Validate) *Handler {
	return &Handler{service: s, validator: v}
}

// Create grants a permission. Duplicate (user, action, resource) tuples
// are rejected with 409 regardless of the existing record's active flag.
func (h *Handler) Create(c *ginext.Context) {
	var req dto.CreatePermissionRequest

	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid user id"))
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	p := model.Permission{
		UserID:      userID,
		Action:      model.Action(req.Action),
		Resource:    model.Resource(req.Resource),
		Title:       req.Title,
		Description: req.Description,
		IsActive:    isActive,
		Metadata:    req.Metadata,
	}

	id, err := h.service.CreatePermission(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err, "failed to create permission")
		return
	}

	respond.Created(c.Writer, map[string]string{"id": id.String()})
}

// GetAll lists permissions filtered by user, action, resource and active flag.
func (h *Handler) GetAll(c *ginext.Context) {
	filter := permrepo.Filter{
		Action:   model.Action(c.Query("action")),
		Resource: model.Resource(c.Query("resource")),
	}

	if userID := c.Query("user_id"); userID != "" {
		id, err := uuid.Parse(userID)
		if err != nil {
			respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid user id"))
			return
		}
		filter.UserID = id
	}

	if active := c.Query("is_active"); active != "" {
		isActive := active == "true"
		filter.Active = &isActive
	}

	permissions, err := h.service.GetPermissions(c.Request.Context(), filter)
	if err != nil {
		h.fail(c, err, "failed to get permissions")
		return
	}

	if permissions == nil {
		permissions = []model.Permission{}
	}

	respond.OK(c.Writer, permissions)
}

// Get returns a single permission record.
func (h *Handler) Get(c *ginext.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	p, err := h.service.GetPermissionByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to get permission")
		return
	}

	respond.OK(c.Writer, p)
}

// Update modifies the mutable fields of a permission record.
func (h *Handler) Update(c *ginext.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	var req dto.UpdatePermissionRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	p, err := h.service.GetPermissionByID(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to get permission")
		return
	}

	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.IsActive != nil {
		p.IsActive = *req.IsActive
	}
	if req.Metadata != nil {
		p.Metadata = req.Metadata
	}

	if err := h.service.UpdatePermission(c.Request.Context(), p); err != nil {
		h.fail(c, err, "failed to update permission")
		return
	}

	respond.OK(c.Writer, p)
}

// Delete removes a permission record.
func (h *Handler) Delete(c *ginext.Context) {
	id, ok := h.paramID(c)
	if !ok {
		return
	}

	if err := h.service.DeletePermission(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to delete permission")
		return
	}

	respond.OK(c.Writer, "permission deleted")
}

func (h *Handler) paramID(c *ginext.Context) (uuid.UUID, bool) {
	idStr := c.Param("id")

	id, err := uuid.Parse(idStr)
	if err != nil || id == uuid.Nil {
		zlog.Logger.Warn().Str("id", idStr).Msg("invalid permission id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return uuid.Nil, false
	}

	return id, true
}

func (h *Handler) fail(c *ginext.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, permrepo.ErrPermissionNotFound):
		zlog.Logger.Warn().Err(err).Msg(logMsg)
		respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("permission not found"))
	case errors.Is(err, permrepo.ErrDuplicatePermission):
		zlog.Logger.Warn().Err(err).Msg(logMsg)
		respond.Fail(c.Writer, http.StatusConflict, err)
	case errors.Is(err, permsvc.ErrMalformedInput):
		zlog.Logger.Warn().Err(err).Msg(logMsg)
		respond.Fail(c.Writer, http.StatusBadRequest, err)
	default:
		zlog.Logger.Error().Err(err).Msg(logMsg)
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
	}
}
