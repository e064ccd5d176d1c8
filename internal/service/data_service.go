package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apierrors "github.com/devrev/workspace-panel/internal/errors"
	"github.com/devrev/workspace-panel/internal/model"
	"github.com/devrev/workspace-panel/internal/tenantdb"
)

const (
	autoConfiguredMessage = "Database was auto-configured"
	setupRequiredMessage  = "Database setup required"
)

// WorkspaceLookup resolves a workspace id to its record.
type WorkspaceLookup interface {
	Get(ctx context.Context, workspaceID string) (*model.Workspace, error)
}

// DataService reads and writes admins and users inside workspace databases.
type DataService struct {
	workspaces  WorkspaceLookup
	repos       RepositoryProvider
	initializer SchemaInitializer
	tables      TableLister
	mirror      RegistryMirror
	logger      *zap.Logger
}

// NewDataService creates a new data service.
func NewDataService(
	workspaces WorkspaceLookup,
	repos RepositoryProvider,
	initializer SchemaInitializer,
	tables TableLister,
	mirror RegistryMirror,
	logger *zap.Logger,
) *DataService {
	return &DataService{
		workspaces:  workspaces,
		repos:       repos,
		initializer: initializer,
		tables:      tables,
		mirror:      mirror,
		logger:      logger,
	}
}

// Overview returns a workspace with its admins and users. A workspace whose
// tables are missing gets one automatic setup attempt; if the database still
// cannot be read the overview comes back empty with NeedsSetup set.
func (s *DataService) Overview(ctx context.Context, workspaceID string) (*model.WorkspaceOverview, error) {
	ws, err := s.workspaces.Get(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	overview := &model.WorkspaceOverview{
		Workspace: ws,
		Admins:    []model.Admin{},
		Users:     []model.User{},
	}

	repo, err := s.repos.Repository(ctx, ws.ConnectionString)
	if err != nil {
		return s.degraded(ctx, overview, err, "")
	}

	admins, users, err := readMembers(ctx, repo)
	if err == nil {
		overview.Admins, overview.Users = admins, users
		return overview, nil
	}
	if !errors.Is(err, tenantdb.ErrSchemaMissing) {
		return s.degraded(ctx, overview, err, "")
	}

	s.logger.Info("Workspace tables missing, running setup",
		zap.String("workspace_id", workspaceID))

	if err := s.initializer.Initialize(ctx, ws.ConnectionString); err != nil {
		return s.degraded(ctx, overview, err, setupRequiredMessage)
	}

	admins, users, err = readMembers(ctx, repo)
	if err != nil {
		return s.degraded(ctx, overview, err, setupRequiredMessage)
	}

	overview.Admins, overview.Users = admins, users
	overview.Message = autoConfiguredMessage

	refreshRegistry(ctx, ws, s.tables, s.mirror, s.logger)
	return overview, nil
}

// degraded marks the overview as needing setup. A cancelled request is still
// reported as an error.
func (s *DataService) degraded(ctx context.Context, overview *model.WorkspaceOverview, cause error, message string) (*model.WorkspaceOverview, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	s.logger.Warn("Workspace database not readable",
		zap.String("workspace_id", overview.Workspace.ID),
		zap.Error(cause))

	overview.NeedsSetup = true
	overview.Error = message
	return overview, nil
}

func readMembers(ctx context.Context, repo tenantdb.Repository) ([]model.Admin, []model.User, error) {
	var (
		admins []model.Admin
		users  []model.User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		admins, err = repo.ListAdmins(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = repo.ListUsers(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	if admins == nil {
		admins = []model.Admin{}
	}
	if users == nil {
		users = []model.User{}
	}
	return admins, users, nil
}

// CreateAdmin adds an admin to a workspace. The role defaults to "admin".
func (s *DataService) CreateAdmin(ctx context.Context, workspaceID string, in model.AdminInput) (*model.Admin, error) {
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return nil, apierrors.InvalidRequest("name, email and password are required")
	}
	if in.Role == "" {
		in.Role = model.DefaultAdminRole
	}

	ws, repo, err := s.open(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	admin, err := repo.CreateAdmin(ctx, in)
	if err != nil {
		return nil, writeError(err, "failed to create admin")
	}

	s.logger.Info("Created admin",
		zap.String("workspace_id", workspaceID),
		zap.String("admin_id", admin.ID))

	refreshRegistry(ctx, ws, s.tables, s.mirror, s.logger)
	return admin, nil
}

// CreateUser adds a user to a workspace. The role defaults to "user".
func (s *DataService) CreateUser(ctx context.Context, workspaceID string, in model.UserInput) (*model.User, error) {
	if in.Name == "" || in.Email == "" {
		return nil, apierrors.InvalidRequest("name and email are required")
	}
	if in.Role == "" {
		in.Role = model.DefaultUserRole
	}
	if in.Password != nil && *in.Password == "" {
		in.Password = nil
	}

	ws, repo, err := s.open(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	user, err := repo.CreateUser(ctx, in)
	if err != nil {
		return nil, writeError(err, "failed to create user")
	}

	s.logger.Info("Created user",
		zap.String("workspace_id", workspaceID),
		zap.String("user_id", user.ID))

	refreshRegistry(ctx, ws, s.tables, s.mirror, s.logger)
	return user, nil
}

// DeleteAdmin removes an admin from a workspace.
func (s *DataService) DeleteAdmin(ctx context.Context, workspaceID, adminID string) error {
	ws, repo, err := s.open(ctx, workspaceID)
	if err != nil {
		return err
	}

	if err := repo.DeleteAdmin(ctx, adminID); err != nil {
		return writeError(err, "failed to delete admin")
	}

	s.logger.Info("Deleted admin",
		zap.String("workspace_id", workspaceID),
		zap.String("admin_id", adminID))

	refreshRegistry(ctx, ws, s.tables, s.mirror, s.logger)
	return nil
}

// DeleteUser removes a user from a workspace.
func (s *DataService) DeleteUser(ctx context.Context, workspaceID, userID string) error {
	ws, repo, err := s.open(ctx, workspaceID)
	if err != nil {
		return err
	}

	if err := repo.DeleteUser(ctx, userID); err != nil {
		return writeError(err, "failed to delete user")
	}

	s.logger.Info("Deleted user",
		zap.String("workspace_id", workspaceID),
		zap.String("user_id", userID))

	refreshRegistry(ctx, ws, s.tables, s.mirror, s.logger)
	return nil
}

func (s *DataService) open(ctx context.Context, workspaceID string) (*model.Workspace, tenantdb.Repository, error) {
	ws, err := s.workspaces.Get(ctx, workspaceID)
	if err != nil {
		return nil, nil, err
	}

	repo, err := s.repos.Repository(ctx, ws.ConnectionString)
	if err != nil {
		return nil, nil, apierrors.DatabaseUnreachable(workspaceID, err)
	}
	return ws, repo, nil
}

// writeError keeps typed errors and wraps the rest.
func writeError(err error, message string) error {
	if errors.Is(err, tenantdb.ErrSchemaMissing) {
		return apierrors.NewPanelError(apierrors.ErrorCodeSchemaSetupFailed,
			"workspace database is not set up, run setup first", err)
	}
	if _, ok := apierrors.AsPanelError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return apierrors.Internal(message, err)
}
