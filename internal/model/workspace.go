package model

import "time"

// Workspace is a tenant record in the master registry.
type Workspace struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	ConnectionString  string    `json:"connectionString"`
	ExternalProjectID *string   `json:"externalProjectId"`
	CreatedAt         time.Time `json:"createdAt"`
}

// HasExternalProject reports whether the workspace is tied to a provisioned project.
func (w *Workspace) HasExternalProject() bool {
	return w.ExternalProjectID != nil && *w.ExternalProjectID != ""
}

// RegistryEntry is the aggregator's denormalized copy of a workspace.
type RegistryEntry struct {
	WorkspaceID      string    `json:"workspaceId"`
	Name             string    `json:"name"`
	ConnectionString string    `json:"connectionString"`
	TableNames       []string  `json:"tableNames"`
	CreatedAt        time.Time `json:"createdAt"`
}

// NewRegistryEntry builds the registry row for a workspace and its observed tables.
func NewRegistryEntry(ws *Workspace, tables []string) RegistryEntry {
	if tables == nil {
		tables = []string{}
	}
	return RegistryEntry{
		WorkspaceID:      ws.ID,
		Name:             ws.Name,
		ConnectionString: ws.ConnectionString,
		TableNames:       tables,
		CreatedAt:        ws.CreatedAt,
	}
}
