package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devrev/workspace-panel/internal/converter"
	apierrors "github.com/devrev/workspace-panel/internal/errors"
	"github.com/devrev/workspace-panel/internal/model"
	"github.com/devrev/workspace-panel/internal/service"
)

type mockWorkspaceAPI struct {
	mock.Mock
}

func (m *mockWorkspaceAPI) List(ctx context.Context) ([]*model.Workspace, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Workspace), args.Error(1)
}

func (m *mockWorkspaceAPI) Create(ctx context.Context, name string) (*model.Workspace, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Workspace), args.Error(1)
}

func (m *mockWorkspaceAPI) Delete(ctx context.Context, workspaceID string) error {
	return m.Called(ctx, workspaceID).Error(0)
}

func (m *mockWorkspaceAPI) UpdateConnectionString(ctx context.Context, workspaceID, connString string) (*model.Workspace, error) {
	args := m.Called(ctx, workspaceID, connString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Workspace), args.Error(1)
}

func (m *mockWorkspaceAPI) Setup(ctx context.Context, workspaceID string) error {
	return m.Called(ctx, workspaceID).Error(0)
}

func (m *mockWorkspaceAPI) Registry(ctx context.Context) service.RegistryView {
	return m.Called(ctx).Get(0).(service.RegistryView)
}

type mockDataAPI struct {
	mock.Mock
}

func (m *mockDataAPI) Overview(ctx context.Context, workspaceID string) (*model.WorkspaceOverview, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WorkspaceOverview), args.Error(1)
}

func (m *mockDataAPI) CreateAdmin(ctx context.Context, workspaceID string, in model.AdminInput) (*model.Admin, error) {
	args := m.Called(ctx, workspaceID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Admin), args.Error(1)
}

func (m *mockDataAPI) CreateUser(ctx context.Context, workspaceID string, in model.UserInput) (*model.User, error) {
	args := m.Called(ctx, workspaceID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *mockDataAPI) DeleteAdmin(ctx context.Context, workspaceID, adminID string) error {
	return m.Called(ctx, workspaceID, adminID).Error(0)
}

func (m *mockDataAPI) DeleteUser(ctx context.Context, workspaceID, userID string) error {
	return m.Called(ctx, workspaceID, userID).Error(0)
}

func createTestHandlers() (*Handlers, *mockWorkspaceAPI, *mockDataAPI) {
	logger := zap.NewNop()
	workspaces := new(mockWorkspaceAPI)
	data := new(mockDataAPI)
	return NewHandlers(workspaces, data, apierrors.NewHandler(logger), logger, 5*time.Second), workspaces, data
}

func serve(h http.HandlerFunc, method, body string, vars map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "req-1")
	if vars != nil {
		req = mux.SetURLVars(req, vars)
	}
	w := httptest.NewRecorder()
	h(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apierrors.ErrorResponse {
	t.Helper()
	var resp apierrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHandlers_ListWorkspaces(t *testing.T) {
	t.Run("empty list renders as array", func(t *testing.T) {
		h, workspaces, _ := createTestHandlers()
		workspaces.On("List", mock.Anything).Return(nil, nil)

		w := serve(h.ListWorkspaces, http.MethodGet, "", nil)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `[]`, w.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		h, workspaces, _ := createTestHandlers()
		workspaces.On("List", mock.Anything).Return(nil, apierrors.Internal("failed to list workspaces", assert.AnError))

		w := serve(h.ListWorkspaces, http.MethodGet, "", nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, apierrors.ErrorCodeInternalError, resp.ErrorCode)
		assert.Equal(t, "req-1", resp.RequestID)
	})
}

func TestHandlers_CreateWorkspace(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		h, workspaces, _ := createTestHandlers()
		project := "proj-1"
		workspaces.On("Create", mock.Anything, "Acme").Return(&model.Workspace{
			ID:                "ws-1",
			Name:              "Acme",
			ConnectionString:  "postgresql://acme",
			ExternalProjectID: &project,
		}, nil)

		w := serve(h.CreateWorkspace, http.MethodPost, `{"name": "Acme"}`, nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		var ws model.Workspace
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ws))
		assert.Equal(t, "ws-1", ws.ID)
		assert.Equal(t, "proj-1", *ws.ExternalProjectID)
	})

	t.Run("validation error never reaches the service", func(t *testing.T) {
		h, workspaces, _ := createTestHandlers()

		w := serve(h.CreateWorkspace, http.MethodPost, `{"name": ""}`, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, apierrors.ErrorCodeInvalidRequest, decodeError(t, w).ErrorCode)
		workspaces.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("provisioning failure", func(t *testing.T) {
		h, workspaces, _ := createTestHandlers()
		workspaces.On("Create", mock.Anything, "Acme").
			Return(nil, apierrors.ProvisioningFailed("failed to create project after 3 attempts: quota exceeded", nil))

		w := serve(h.CreateWorkspace, http.MethodPost, `{"name": "Acme"}`, nil)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		resp := decodeError(t, w)
		assert.Equal(t, apierrors.ErrorCodeProvisioningFailed, resp.ErrorCode)
		assert.Contains(t, resp.Message, "quota exceeded")
	})

	t.Run("request timeout applied", func(t *testing.T) {
		h, workspaces, _ := createTestHandlers()
		workspaces.On("Create", mock.MatchedBy(func(ctx context.Context) bool {
			_, ok := ctx.Deadline()
			return ok
		}), "Acme").Return(&model.Workspace{ID: "ws-1"}, nil)

		w := serve(h.CreateWorkspace, http.MethodPost, `{"name": "Acme"}`, nil)

		assert.Equal(t, http.StatusCreated, w.Code)
		workspaces.AssertExpectations(t)
	})
}

func TestHandlers_DeleteWorkspace(t *testing.T) {
	vars := map[string]string{converter.VarWorkspaceID: "ws-1"}

	t.Run("deleted", func(t *testing.T) {
		h, workspaces, _ := createTestHandlers()
		workspaces.On("Delete", mock.Anything, "ws-1").Return(nil)

		w := serve(h.DeleteWorkspace, http.MethodDelete, "", vars)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message": "Workspace deleted successfully"}`, w.Body.String())
	})

	t.Run("not found", func(t *testing.T) {
		h, workspaces, _ := createTestHandlers()
		workspaces.On("Delete", mock.Anything, "ws-1").Return(apierrors.WorkspaceNotFound("ws-1"))

		w := serve(h.DeleteWorkspace, http.MethodDelete, "", vars)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, apierrors.ErrorCodeWorkspaceNotFound, decodeError(t, w).ErrorCode)
	})
}

func TestHandlers_UpdateDatabaseURL(t *testing.T) {
	h, workspaces, _ := createTestHandlers()
	conn := "postgresql://u:p@db.example.com/neondb"
	workspaces.On("UpdateConnectionString", mock.Anything, "ws-1", conn).
		Return(&model.Workspace{ID: "ws-1", Name: "Acme", ConnectionString: conn}, nil)

	w := serve(h.UpdateDatabaseURL, http.MethodPut, `{"connectionString": "`+conn+`"}`,
		map[string]string{converter.VarWorkspaceID: "ws-1"})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp converter.UpdateDatabaseURLResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Database URL updated", resp.Message)
	assert.Equal(t, conn, resp.Workspace.ConnectionString)
}

func TestHandlers_SetupWorkspace(t *testing.T) {
	vars := map[string]string{converter.VarWorkspaceID: "ws-1"}

	t.Run("completed", func(t *testing.T) {
		h, workspaces, _ := createTestHandlers()
		workspaces.On("Setup", mock.Anything, "ws-1").Return(nil)

		w := serve(h.SetupWorkspace, http.MethodPost, "", vars)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message": "Workspace database setup completed"}`, w.Body.String())
	})

	t.Run("schema failure", func(t *testing.T) {
		h, workspaces, _ := createTestHandlers()
		workspaces.On("Setup", mock.Anything, "ws-1").Return(apierrors.SchemaSetupFailed(assert.AnError))

		w := serve(h.SetupWorkspace, http.MethodPost, "", vars)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, apierrors.ErrorCodeSchemaSetupFailed, decodeError(t, w).ErrorCode)
	})
}

func TestHandlers_Registry(t *testing.T) {
	h, workspaces, _ := createTestHandlers()
	workspaces.On("Registry", mock.Anything).Return(service.RegistryView{
		Active:  false,
		Entries: []model.RegistryEntry{},
	})

	w := serve(h.Registry, http.MethodGet, "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"active": false, "entries": []}`, w.Body.String())
}

func TestHandlers_GetWorkspaceData(t *testing.T) {
	vars := map[string]string{converter.VarWorkspaceID: "ws-1"}

	t.Run("needs setup is a 200", func(t *testing.T) {
		h, _, data := createTestHandlers()
		data.On("Overview", mock.Anything, "ws-1").Return(&model.WorkspaceOverview{
			Workspace:  &model.Workspace{ID: "ws-1", Name: "Acme"},
			Admins:     []model.Admin{},
			Users:      []model.User{},
			NeedsSetup: true,
			Error:      "Database setup required",
		}, nil)

		w := serve(h.GetWorkspaceData, http.MethodGet, "", vars)

		assert.Equal(t, http.StatusOK, w.Code)
		var overview model.WorkspaceOverview
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &overview))
		assert.True(t, overview.NeedsSetup)
		assert.Equal(t, "Database setup required", overview.Error)
		assert.NotNil(t, overview.Admins)
	})

	t.Run("unknown workspace", func(t *testing.T) {
		h, _, data := createTestHandlers()
		data.On("Overview", mock.Anything, "ws-1").Return(nil, apierrors.WorkspaceNotFound("ws-1"))

		w := serve(h.GetWorkspaceData, http.MethodGet, "", vars)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandlers_CreateAdmin(t *testing.T) {
	vars := map[string]string{converter.VarWorkspaceID: "ws-1"}
	in := model.AdminInput{Name: "Alice", Email: "alice@acme.io", Password: "s3cret"}

	t.Run("created without leaking the password", func(t *testing.T) {
		h, _, data := createTestHandlers()
		data.On("CreateAdmin", mock.Anything, "ws-1", in).Return(&model.Admin{
			ID: "adm-1", Name: "Alice", Email: "alice@acme.io", Password: "s3cret", Role: model.DefaultAdminRole,
		}, nil)

		w := serve(h.CreateAdmin, http.MethodPost,
			`{"name": "Alice", "email": "alice@acme.io", "password": "s3cret"}`, vars)

		assert.Equal(t, http.StatusCreated, w.Code)
		assert.NotContains(t, w.Body.String(), "s3cret")
		assert.Contains(t, w.Body.String(), `"role":"admin"`)
	})

	t.Run("duplicate email", func(t *testing.T) {
		h, _, data := createTestHandlers()
		data.On("CreateAdmin", mock.Anything, "ws-1", in).
			Return(nil, apierrors.Conflict("email already exists", nil))

		w := serve(h.CreateAdmin, http.MethodPost,
			`{"name": "Alice", "email": "alice@acme.io", "password": "s3cret"}`, vars)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, apierrors.ErrorCodeConflict, decodeError(t, w).ErrorCode)
	})

	t.Run("missing fields", func(t *testing.T) {
		h, _, data := createTestHandlers()

		w := serve(h.CreateAdmin, http.MethodPost, `{"name": "Alice"}`, vars)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		data.AssertNotCalled(t, "CreateAdmin", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestHandlers_CreateUser(t *testing.T) {
	h, _, data := createTestHandlers()
	in := model.UserInput{Name: "Bob", Email: "bob@acme.io"}
	data.On("CreateUser", mock.Anything, "ws-1", in).Return(&model.User{
		ID: "usr-1", Name: "Bob", Email: "bob@acme.io", Role: model.DefaultUserRole,
	}, nil)

	w := serve(h.CreateUser, http.MethodPost, `{"name": "Bob", "email": "bob@acme.io"}`,
		map[string]string{converter.VarWorkspaceID: "ws-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	var user model.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, "usr-1", user.ID)
	assert.Equal(t, model.DefaultUserRole, user.Role)
}

func TestHandlers_DeleteMembers(t *testing.T) {
	t.Run("admin deleted", func(t *testing.T) {
		h, _, data := createTestHandlers()
		data.On("DeleteAdmin", mock.Anything, "ws-1", "adm-1").Return(nil)

		w := serve(h.DeleteAdmin, http.MethodDelete, "", map[string]string{
			converter.VarWorkspaceID: "ws-1",
			converter.VarAdminID:     "adm-1",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message": "Admin deleted successfully"}`, w.Body.String())
	})

	t.Run("user not found", func(t *testing.T) {
		h, _, data := createTestHandlers()
		data.On("DeleteUser", mock.Anything, "ws-1", "usr-9").Return(apierrors.UserNotFound("usr-9"))

		w := serve(h.DeleteUser, http.MethodDelete, "", map[string]string{
			converter.VarWorkspaceID: "ws-1",
			converter.VarUserID:      "usr-9",
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, apierrors.ErrorCodeUserNotFound, decodeError(t, w).ErrorCode)
	})

	t.Run("user deleted", func(t *testing.T) {
		h, _, data := createTestHandlers()
		data.On("DeleteUser", mock.Anything, "ws-1", "usr-1").Return(nil)

		w := serve(h.DeleteUser, http.MethodDelete, "", map[string]string{
			converter.VarWorkspaceID: "ws-1",
			converter.VarUserID:      "usr-1",
		})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"message": "User deleted successfully"}`, w.Body.String())
	})
}
