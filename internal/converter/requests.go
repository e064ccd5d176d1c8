// Package converter turns HTTP requests into service inputs and service
// results into response bodies.
package converter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/mail"
	"net/url"
	"strings"

	"github.com/gorilla/mux"

	"github.com/devrev/workspace-panel/internal/model"
)

const maxBodyBytes = 1 << 20

// Path variable names shared with the router.
const (
	VarWorkspaceID = "id"
	VarAdminID     = "adminId"
	VarUserID      = "userId"
)

// RequestDecoder decodes and validates request bodies and path parameters.
type RequestDecoder struct{}

// NewRequestDecoder creates a new RequestDecoder.
func NewRequestDecoder() *RequestDecoder {
	return &RequestDecoder{}
}

// CreateWorkspaceHTTPRequest is the body of POST /api/workspaces.
type CreateWorkspaceHTTPRequest struct {
	Name string `json:"name"`
}

// UpdateDatabaseURLHTTPRequest is the body of PUT /api/workspaces/{id}/database-url.
// databaseUrl is accepted as an alias used by older clients.
type UpdateDatabaseURLHTTPRequest struct {
	ConnectionString string `json:"connectionString"`
	DatabaseURL      string `json:"databaseUrl"`
}

// CreateAdminHTTPRequest is the body of POST /api/workspace-data/{id}/admins.
type CreateAdminHTTPRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// CreateUserHTTPRequest is the body of POST /api/workspace-data/{id}/users.
type CreateUserHTTPRequest struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Password *string `json:"password,omitempty"`
	Role     string  `json:"role,omitempty"`
}

// CreateWorkspaceRequest returns the requested workspace name.
func (d *RequestDecoder) CreateWorkspaceRequest(r *http.Request) (string, error) {
	var req CreateWorkspaceHTTPRequest
	if err := decodeBody(r, &req); err != nil {
		return "", err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return "", fmt.Errorf("workspace name is required")
	}
	return name, nil
}

// UpdateDatabaseURLRequest returns the workspace id and the new connection string.
func (d *RequestDecoder) UpdateDatabaseURLRequest(r *http.Request) (string, string, error) {
	workspaceID, err := d.WorkspaceID(r)
	if err != nil {
		return "", "", err
	}

	var req UpdateDatabaseURLHTTPRequest
	if err := decodeBody(r, &req); err != nil {
		return "", "", err
	}

	connString := strings.TrimSpace(req.ConnectionString)
	if connString == "" {
		connString = strings.TrimSpace(req.DatabaseURL)
	}
	if err := validateConnectionString(connString); err != nil {
		return "", "", err
	}
	return workspaceID, connString, nil
}

// WorkspaceID extracts the workspace id path parameter.
func (d *RequestDecoder) WorkspaceID(r *http.Request) (string, error) {
	workspaceID := mux.Vars(r)[VarWorkspaceID]
	if workspaceID == "" {
		return "", fmt.Errorf("workspace id path parameter is required")
	}
	return workspaceID, nil
}

// CreateAdminRequest returns the workspace id and the admin to create.
func (d *RequestDecoder) CreateAdminRequest(r *http.Request) (string, model.AdminInput, error) {
	workspaceID, err := d.WorkspaceID(r)
	if err != nil {
		return "", model.AdminInput{}, err
	}

	var req CreateAdminHTTPRequest
	if err := decodeBody(r, &req); err != nil {
		return "", model.AdminInput{}, err
	}

	in := model.AdminInput{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Role:     strings.TrimSpace(req.Role),
	}
	if in.Name == "" || in.Email == "" || in.Password == "" {
		return "", model.AdminInput{}, fmt.Errorf("name, email and password are required")
	}
	if err := validateEmail(in.Email); err != nil {
		return "", model.AdminInput{}, err
	}
	return workspaceID, in, nil
}

// CreateUserRequest returns the workspace id and the user to create.
func (d *RequestDecoder) CreateUserRequest(r *http.Request) (string, model.UserInput, error) {
	workspaceID, err := d.WorkspaceID(r)
	if err != nil {
		return "", model.UserInput{}, err
	}

	var req CreateUserHTTPRequest
	if err := decodeBody(r, &req); err != nil {
		return "", model.UserInput{}, err
	}

	in := model.UserInput{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Role:     strings.TrimSpace(req.Role),
	}
	if in.Name == "" || in.Email == "" {
		return "", model.UserInput{}, fmt.Errorf("name and email are required")
	}
	if err := validateEmail(in.Email); err != nil {
		return "", model.UserInput{}, err
	}
	return workspaceID, in, nil
}

// MemberRequest returns the workspace id and the member id held in memberVar.
func (d *RequestDecoder) MemberRequest(r *http.Request, memberVar string) (string, string, error) {
	workspaceID, err := d.WorkspaceID(r)
	if err != nil {
		return "", "", err
	}

	memberID := mux.Vars(r)[memberVar]
	if memberID == "" {
		return "", "", fmt.Errorf("%s path parameter is required", memberVar)
	}
	return workspaceID, memberID, nil
}

func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return fmt.Errorf("failed to read request body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return fmt.Errorf("request body too large")
	}
	if len(body) == 0 {
		return fmt.Errorf("request body is required")
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("failed to parse request body: %w", err)
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("invalid email address: %q", email)
	}
	return nil
}

func validateConnectionString(connString string) error {
	if connString == "" {
		return fmt.Errorf("connectionString is required")
	}
	u, err := url.Parse(connString)
	if err != nil {
		return fmt.Errorf("invalid connection string: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("connection string must use the postgres or postgresql scheme")
	}
	if u.Host == "" {
		return fmt.Errorf("connection string must include a host")
	}
	return nil
}
