package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/devrev/workspace-panel/internal/aggregator"
	apierrors "github.com/devrev/workspace-panel/internal/errors"
	"github.com/devrev/workspace-panel/internal/metrics"
	"github.com/devrev/workspace-panel/internal/model"
	"github.com/devrev/workspace-panel/internal/provisioning"
	"github.com/devrev/workspace-panel/internal/store"
)

// maxWorkspaceNameLength matches the provisioning API's project name limit.
const maxWorkspaceNameLength = 64

// defaultReleaseTimeout bounds the cleanup of a project that was created but
// never recorded.
const defaultReleaseTimeout = 30 * time.Second

// RegistryView is the aggregator's current list as seen by this process.
type RegistryView struct {
	Active  bool                  `json:"active"`
	Entries []model.RegistryEntry `json:"entries"`
	Error   string                `json:"error,omitempty"`
}

// WorkspaceService manages the workspace lifecycle.
type WorkspaceService struct {
	store       store.WorkspaceStore
	cache       store.Cache
	cacheTTL    time.Duration
	provisioner provisioning.Provisioner
	initializer SchemaInitializer
	tables      TableLister
	mirror      RegistryMirror
	metrics     *metrics.Metrics
	logger      *zap.Logger

	releaseTimeout time.Duration

	// cacheGen is bumped on every invalidation. A read only populates the
	// cache if no invalidation happened while it was in flight.
	cacheGen atomic.Uint64
}

// NewWorkspaceService creates a new workspace service. m may be nil.
func NewWorkspaceService(
	workspaceStore store.WorkspaceStore,
	cache store.Cache,
	cacheTTL time.Duration,
	provisioner provisioning.Provisioner,
	initializer SchemaInitializer,
	tables TableLister,
	mirror RegistryMirror,
	m *metrics.Metrics,
	logger *zap.Logger,
) *WorkspaceService {
	return &WorkspaceService{
		store:          workspaceStore,
		cache:          cache,
		cacheTTL:       cacheTTL,
		provisioner:    provisioner,
		initializer:    initializer,
		tables:         tables,
		mirror:         mirror,
		metrics:        m,
		logger:         logger,
		releaseTimeout: defaultReleaseTimeout,
	}
}

// SetReleaseTimeout changes how long the cleanup of an unrecorded project may
// take. Non-positive values are ignored.
func (s *WorkspaceService) SetReleaseTimeout(d time.Duration) {
	if d > 0 {
		s.releaseTimeout = d
	}
}

// List returns all workspaces.
func (s *WorkspaceService) List(ctx context.Context) ([]*model.Workspace, error) {
	workspaces, err := s.store.ListWorkspaces(ctx)
	if err != nil {
		return nil, apierrors.Internal("failed to list workspaces", err)
	}
	return workspaces, nil
}

// Get retrieves a workspace, using the cache if available.
func (s *WorkspaceService) Get(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	cacheKey := workspaceCacheKey(workspaceID)
	if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
		var ws model.Workspace
		if err := json.Unmarshal(cached, &ws); err == nil {
			s.recordCacheLookup(true)
			return &ws, nil
		}
	}
	s.recordCacheLookup(false)

	gen := s.cacheGen.Load()
	ws, err := s.store.GetWorkspace(ctx, workspaceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierrors.WorkspaceNotFound(workspaceID)
	}
	if err != nil {
		return nil, apierrors.Internal("failed to fetch workspace", err)
	}

	s.cacheIfCurrent(ctx, ws, gen)
	return ws, nil
}

// Create provisions a project, records the workspace, creates its tables and
// mirrors it. Failures before the schema step are fatal; the mirror never is.
func (s *WorkspaceService) Create(ctx context.Context, name string) (*model.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apierrors.InvalidRequest("workspace name is required")
	}
	if len(name) > maxWorkspaceNameLength {
		return nil, apierrors.InvalidRequest(fmt.Sprintf("workspace name must be at most %d characters", maxWorkspaceNameLength))
	}

	s.logger.Info("Creating workspace", zap.String("name", name))

	project, err := s.provisioner.CreateProject(ctx, name)
	if err != nil {
		return nil, err
	}

	connString, err := s.provisioner.GetConnectionString(ctx, project.ID)
	if err != nil {
		s.releaseProject(ctx, project.ID)
		return nil, err
	}

	projectID := project.ID
	ws := &model.Workspace{
		ID:                uuid.NewString(),
		Name:              name,
		ConnectionString:  connString,
		ExternalProjectID: &projectID,
	}

	if err := s.store.CreateWorkspace(ctx, ws); err != nil {
		s.releaseProject(ctx, project.ID)
		return nil, apierrors.Internal("failed to save workspace", err)
	}

	// The record stays on schema failure; POST /setup can finish the job.
	if err := s.initializer.Initialize(ctx, connString); err != nil {
		s.logger.Error("Workspace schema setup failed",
			zap.String("workspace_id", ws.ID),
			zap.Error(err))
		return nil, err
	}

	s.refreshRegistry(ctx, ws)
	s.cacheIfCurrent(ctx, ws, s.cacheGen.Load())

	s.logger.Info("Created workspace",
		zap.String("workspace_id", ws.ID),
		zap.String("name", ws.Name),
		zap.String("project_id", projectID))

	return ws, nil
}

// Delete removes a workspace. The provisioned project and the mirror row are
// removed best effort; the master record is always removed.
func (s *WorkspaceService) Delete(ctx context.Context, workspaceID string) error {
	ws, err := s.Get(ctx, workspaceID)
	if err != nil {
		return err
	}

	if ws.HasExternalProject() {
		if err := s.provisioner.DeleteProject(ctx, *ws.ExternalProjectID); err != nil {
			s.logger.Warn("Proceeding after project delete failure",
				zap.String("workspace_id", workspaceID),
				zap.String("project_id", *ws.ExternalProjectID),
				zap.Error(err))
		}
	}

	s.mirror.Delete(ctx, workspaceID).Log(s.logger, aggregator.OpDelete, zap.String("workspace_id", workspaceID))

	if err := s.store.DeleteWorkspace(ctx, workspaceID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.invalidate(ctx, workspaceID)
			return apierrors.WorkspaceNotFound(workspaceID)
		}
		return apierrors.Internal("failed to delete workspace", err)
	}
	s.invalidate(ctx, workspaceID)

	s.logger.Info("Deleted workspace", zap.String("workspace_id", workspaceID))
	return nil
}

// UpdateConnectionString repoints a workspace at another database.
func (s *WorkspaceService) UpdateConnectionString(ctx context.Context, workspaceID, connString string) (*model.Workspace, error) {
	ws, err := s.store.UpdateConnectionString(ctx, workspaceID, connString)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apierrors.WorkspaceNotFound(workspaceID)
	}
	if err != nil {
		return nil, apierrors.Internal("failed to update workspace", err)
	}
	s.invalidate(ctx, workspaceID)

	s.logger.Info("Updated workspace database url", zap.String("workspace_id", workspaceID))

	s.refreshRegistry(ctx, ws)
	return ws, nil
}

// Setup runs the schema initializer for an existing workspace.
func (s *WorkspaceService) Setup(ctx context.Context, workspaceID string) error {
	ws, err := s.Get(ctx, workspaceID)
	if err != nil {
		return err
	}

	if err := s.initializer.Initialize(ctx, ws.ConnectionString); err != nil {
		return err
	}

	s.logger.Info("Workspace database setup completed", zap.String("workspace_id", workspaceID))

	s.refreshRegistry(ctx, ws)
	return nil
}

// Registry returns the aggregator's view of all workspaces.
func (s *WorkspaceService) Registry(ctx context.Context) RegistryView {
	entries, outcome := s.mirror.List(ctx)
	outcome.Log(s.logger, aggregator.OpList)

	view := RegistryView{Active: outcome.Active, Entries: entries}
	if outcome.Failed() {
		view.Error = "registry unavailable"
	}
	if view.Entries == nil {
		view.Entries = []model.RegistryEntry{}
	}
	return view
}

// refreshRegistry re-reads the workspace's tables and upserts its mirror row.
// Nothing here can fail the caller.
func (s *WorkspaceService) refreshRegistry(ctx context.Context, ws *model.Workspace) {
	refreshRegistry(ctx, ws, s.tables, s.mirror, s.logger)
}

func refreshRegistry(ctx context.Context, ws *model.Workspace, tables TableLister, mirror RegistryMirror, logger *zap.Logger) {
	names, err := tables.ListTables(ctx, ws.ConnectionString)
	if err != nil {
		logger.Warn("Skipping registry refresh, table listing failed",
			zap.String("workspace_id", ws.ID),
			zap.Error(err))
		return
	}

	mirror.Upsert(ctx, model.NewRegistryEntry(ws, names)).
		Log(logger, aggregator.OpUpsert, zap.String("workspace_id", ws.ID))
}

// releaseProject deletes a project that never made it into the registry. It
// runs detached from the request deadline, bounded by releaseTimeout.
func (s *WorkspaceService) releaseProject(ctx context.Context, projectID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()

	if err := s.provisioner.DeleteProject(ctx, projectID); err != nil {
		s.logger.Warn("Failed to release orphaned project",
			zap.String("project_id", projectID),
			zap.Error(err))
	}
}

// cacheIfCurrent stores ws unless an invalidation has happened since gen was
// read. An invalidation racing the write itself is caught by the second
// check, which removes what was just written.
func (s *WorkspaceService) cacheIfCurrent(ctx context.Context, ws *model.Workspace, gen uint64) {
	if s.cacheGen.Load() != gen {
		return
	}
	data, err := json.Marshal(ws)
	if err != nil {
		return
	}
	key := workspaceCacheKey(ws.ID)
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logger.Warn("Failed to cache workspace",
			zap.String("workspace_id", ws.ID),
			zap.Error(err))
		return
	}
	if s.cacheGen.Load() != gen {
		s.dropCached(ctx, ws.ID)
	}
}

// invalidate must run after the store change it covers.
func (s *WorkspaceService) invalidate(ctx context.Context, workspaceID string) {
	s.cacheGen.Add(1)
	s.dropCached(ctx, workspaceID)
}

func (s *WorkspaceService) dropCached(ctx context.Context, workspaceID string) {
	if err := s.cache.Delete(ctx, workspaceCacheKey(workspaceID)); err != nil {
		s.logger.Warn("Failed to invalidate workspace cache",
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
	}
}

func (s *WorkspaceService) recordCacheLookup(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordCacheLookup(hit)
	}
}

func workspaceCacheKey(workspaceID string) string {
	return "workspace:" + workspaceID
}
