package converter

import "github.com/devrev/workspace-panel/internal/model"

// MessageResponse is the body of endpoints that only confirm an action.
type MessageResponse struct {
	Message string `json:"message"`
}

// UpdateDatabaseURLResponse is the body of PUT /api/workspaces/{id}/database-url.
type UpdateDatabaseURLResponse struct {
	Message   string           `json:"message"`
	Workspace *model.Workspace `json:"workspace"`
}

// Message builds a MessageResponse.
func Message(msg string) MessageResponse {
	return MessageResponse{Message: msg}
}

// WorkspaceList never renders as null.
func WorkspaceList(workspaces []*model.Workspace) []*model.Workspace {
	if workspaces == nil {
		return []*model.Workspace{}
	}
	return workspaces
}
