// Package handler provides HTTP request handlers for the workspace panel.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/devrev/workspace-panel/internal/converter"
	apierrors "github.com/devrev/workspace-panel/internal/errors"
	"github.com/devrev/workspace-panel/internal/model"
	"github.com/devrev/workspace-panel/internal/service"
)

// WorkspaceAPI is the workspace lifecycle surface used by the handlers.
type WorkspaceAPI interface {
	List(ctx context.Context) ([]*model.Workspace, error)
	Create(ctx context.Context, name string) (*model.Workspace, error)
	Delete(ctx context.Context, workspaceID string) error
	UpdateConnectionString(ctx context.Context, workspaceID, connString string) (*model.Workspace, error)
	Setup(ctx context.Context, workspaceID string) error
	Registry(ctx context.Context) service.RegistryView
}

// DataAPI is the workspace data surface used by the handlers.
type DataAPI interface {
	Overview(ctx context.Context, workspaceID string) (*model.WorkspaceOverview, error)
	CreateAdmin(ctx context.Context, workspaceID string, in model.AdminInput) (*model.Admin, error)
	CreateUser(ctx context.Context, workspaceID string, in model.UserInput) (*model.User, error)
	DeleteAdmin(ctx context.Context, workspaceID, adminID string) error
	DeleteUser(ctx context.Context, workspaceID, userID string) error
}

var (
	_ WorkspaceAPI = (*service.WorkspaceService)(nil)
	_ DataAPI      = (*service.DataService)(nil)
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	workspaces   WorkspaceAPI
	data         DataAPI
	decoder      *converter.RequestDecoder
	errorHandler *apierrors.Handler
	logger       *zap.Logger
	timeout      time.Duration
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	workspaces WorkspaceAPI,
	data DataAPI,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
	timeout time.Duration,
) *Handlers {
	return &Handlers{
		workspaces:   workspaces,
		data:         data,
		decoder:      converter.NewRequestDecoder(),
		errorHandler: errorHandler,
		logger:       logger,
		timeout:      timeout,
	}
}

// ListWorkspaces handles GET /api/workspaces requests.
func (h *Handlers) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	workspaces, err := h.workspaces.List(ctx)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, converter.WorkspaceList(workspaces))
}

// CreateWorkspace handles POST /api/workspaces requests.
func (h *Handlers) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	name, err := h.decoder.CreateWorkspaceRequest(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	ws, err := h.workspaces.Create(ctx, name)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, ws)
}

// DeleteWorkspace handles DELETE /api/workspaces/{id} requests.
func (h *Handlers) DeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	workspaceID, err := h.decoder.WorkspaceID(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.workspaces.Delete(ctx, workspaceID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, converter.Message("Workspace deleted successfully"))
}

// UpdateDatabaseURL handles PUT /api/workspaces/{id}/database-url requests.
func (h *Handlers) UpdateDatabaseURL(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	workspaceID, connString, err := h.decoder.UpdateDatabaseURLRequest(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	ws, err := h.workspaces.UpdateConnectionString(ctx, workspaceID, connString)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, converter.UpdateDatabaseURLResponse{
		Message:   "Database URL updated",
		Workspace: ws,
	})
}

// SetupWorkspace handles POST /api/workspaces/{id}/setup requests.
func (h *Handlers) SetupWorkspace(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	workspaceID, err := h.decoder.WorkspaceID(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.workspaces.Setup(ctx, workspaceID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, converter.Message("Workspace database setup completed"))
}

// Registry handles GET /api/registry requests.
// The aggregator being disabled or down is reported in the body, not as an error.
func (h *Handlers) Registry(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()

	h.writeJSONResponse(w, http.StatusOK, h.workspaces.Registry(ctx))
}

// GetWorkspaceData handles GET /api/workspace-data/{id} requests.
func (h *Handlers) GetWorkspaceData(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	workspaceID, err := h.decoder.WorkspaceID(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	overview, err := h.data.Overview(ctx, workspaceID)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, overview)
}

// CreateAdmin handles POST /api/workspace-data/{id}/admins requests.
func (h *Handlers) CreateAdmin(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	workspaceID, in, err := h.decoder.CreateAdminRequest(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	admin, err := h.data.CreateAdmin(ctx, workspaceID, in)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, admin)
}

// CreateUser handles POST /api/workspace-data/{id}/users requests.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	workspaceID, in, err := h.decoder.CreateUserRequest(r)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	user, err := h.data.CreateUser(ctx, workspaceID, in)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, user)
}

// DeleteAdmin handles DELETE /api/workspace-data/{id}/admins/{adminId} requests.
func (h *Handlers) DeleteAdmin(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	workspaceID, adminID, err := h.decoder.MemberRequest(r, converter.VarAdminID)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.data.DeleteAdmin(ctx, workspaceID, adminID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, converter.Message("Admin deleted successfully"))
}

// DeleteUser handles DELETE /api/workspace-data/{id}/users/{userId} requests.
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	workspaceID, userID, err := h.decoder.MemberRequest(r, converter.VarUserID)
	if err != nil {
		h.errorHandler.WriteValidationError(w, err.Error(), requestID)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()

	if err := h.data.DeleteUser(ctx, workspaceID, userID); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, converter.Message("User deleted successfully"))
}

func (h *Handlers) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(r.Context())
	}
	return context.WithTimeout(r.Context(), h.timeout)
}

// writeJSONResponse writes a JSON response to the HTTP response writer.
func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
