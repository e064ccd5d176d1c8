package service

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/devrev/workspace-panel/internal/aggregator"
	"github.com/devrev/workspace-panel/internal/model"
	"github.com/devrev/workspace-panel/internal/provisioning"
	"github.com/devrev/workspace-panel/internal/tenantdb"
)

// MockWorkspaceStore is a mock implementation of store.WorkspaceStore
type MockWorkspaceStore struct {
	mock.Mock
}

func (m *MockWorkspaceStore) ListWorkspaces(ctx context.Context) ([]*model.Workspace, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Workspace), args.Error(1)
}

func (m *MockWorkspaceStore) GetWorkspace(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Workspace), args.Error(1)
}

func (m *MockWorkspaceStore) CreateWorkspace(ctx context.Context, ws *model.Workspace) error {
	args := m.Called(ctx, ws)
	return args.Error(0)
}

func (m *MockWorkspaceStore) UpdateConnectionString(ctx context.Context, workspaceID, connString string) (*model.Workspace, error) {
	args := m.Called(ctx, workspaceID, connString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Workspace), args.Error(1)
}

func (m *MockWorkspaceStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	args := m.Called(ctx, workspaceID)
	return args.Error(0)
}

func (m *MockWorkspaceStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockWorkspaceStore) Close() {}

// MockProvisioner is a mock implementation of provisioning.Provisioner
type MockProvisioner struct {
	mock.Mock
}

func (m *MockProvisioner) CreateProject(ctx context.Context, name string) (*provisioning.Project, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provisioning.Project), args.Error(1)
}

func (m *MockProvisioner) GetConnectionString(ctx context.Context, projectID string) (string, error) {
	args := m.Called(ctx, projectID)
	return args.String(0), args.Error(1)
}

func (m *MockProvisioner) DeleteProject(ctx context.Context, projectID string) error {
	args := m.Called(ctx, projectID)
	return args.Error(0)
}

// MockInitializer is a mock implementation of SchemaInitializer
type MockInitializer struct {
	mock.Mock
}

func (m *MockInitializer) Initialize(ctx context.Context, connString string) error {
	args := m.Called(ctx, connString)
	return args.Error(0)
}

// MockTableLister is a mock implementation of TableLister
type MockTableLister struct {
	mock.Mock
}

func (m *MockTableLister) ListTables(ctx context.Context, connString string) ([]string, error) {
	args := m.Called(ctx, connString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// MockMirror is a mock implementation of RegistryMirror
type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) Upsert(ctx context.Context, entry model.RegistryEntry) aggregator.Outcome {
	args := m.Called(ctx, entry)
	return args.Get(0).(aggregator.Outcome)
}

func (m *MockMirror) Delete(ctx context.Context, workspaceID string) aggregator.Outcome {
	args := m.Called(ctx, workspaceID)
	return args.Get(0).(aggregator.Outcome)
}

func (m *MockMirror) List(ctx context.Context) ([]model.RegistryEntry, aggregator.Outcome) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Get(1).(aggregator.Outcome)
	}
	return args.Get(0).([]model.RegistryEntry), args.Get(1).(aggregator.Outcome)
}

// MockRepository is a mock implementation of tenantdb.Repository
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Admin), args.Error(1)
}

func (m *MockRepository) ListUsers(ctx context.Context) ([]model.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

func (m *MockRepository) CreateAdmin(ctx context.Context, in model.AdminInput) (*model.Admin, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Admin), args.Error(1)
}

func (m *MockRepository) CreateUser(ctx context.Context, in model.UserInput) (*model.User, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockRepository) DeleteAdmin(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) DeleteUser(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockRepositoryProvider is a mock implementation of RepositoryProvider
type MockRepositoryProvider struct {
	mock.Mock
}

func (m *MockRepositoryProvider) Repository(ctx context.Context, connString string) (tenantdb.Repository, error) {
	args := m.Called(ctx, connString)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(tenantdb.Repository), args.Error(1)
}

// MockWorkspaceLookup is a mock implementation of WorkspaceLookup
type MockWorkspaceLookup struct {
	mock.Mock
}

func (m *MockWorkspaceLookup) Get(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	args := m.Called(ctx, workspaceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Workspace), args.Error(1)
}
