// Package provisioning talks to the Neon control-plane API that creates and
// deletes the Postgres projects backing each workspace.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apierrors "github.com/devrev/workspace-panel/internal/errors"
	"github.com/devrev/workspace-panel/internal/metrics"
)

const (
	opCreateProject    = "create_project"
	opConnectionString = "connection_uri"
	opGetProject       = "get_project"
	opDeleteProject    = "delete_project"
)

// Config holds the Neon client configuration.
type Config struct {
	BaseURL      string
	APIKey       string
	OrgID        string
	Timeout      time.Duration
	MaxAttempts  int
	RetryBackoff time.Duration
	DatabaseName string
	RoleName     string
}

// Project is the subset of a Neon project the panel keeps.
type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RegionID  string `json:"region_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Provisioner is the capability the workspace service needs from the control plane.
type Provisioner interface {
	CreateProject(ctx context.Context, name string) (*Project, error)
	GetConnectionString(ctx context.Context, projectID string) (string, error)
	DeleteProject(ctx context.Context, projectID string) error
}

// NeonClient wraps the Neon REST API.
type NeonClient struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewNeonClient creates a new Neon API client. m may be nil.
func NewNeonClient(cfg Config, logger *zap.Logger, m *metrics.Metrics) *NeonClient {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &NeonClient{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
		metrics:    m,
	}
}

// apiError is a non-2xx answer from the API.
type apiError struct {
	StatusCode int
	Message    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("neon api returned %d: %s", e.StatusCode, e.Message)
}

type createProjectRequest struct {
	Project struct {
		Name  string `json:"name"`
		OrgID string `json:"org_id,omitempty"`
	} `json:"project"`
}

type projectResponse struct {
	Project Project `json:"project"`
}

type connectionURIResponse struct {
	URI string `json:"uri"`
}

// CreateProject creates a Neon project, retrying failed attempts with
// exponential backoff.
func (c *NeonClient) CreateProject(ctx context.Context, name string) (*Project, error) {
	var body createProjectRequest
	body.Project.Name = name
	body.Project.OrgID = c.cfg.OrgID

	var resp projectResponse
	attempts, err := c.withRetry(ctx, func() error {
		return c.do(ctx, opCreateProject, http.MethodPost, "/projects", nil, body, &resp)
	})
	if err != nil {
		return nil, apierrors.ProvisioningFailed(
			fmt.Sprintf("failed to create project after %s: %s", attemptCount(attempts), lastMessage(err)), err).
			WithDetail("project_name", name).
			WithDetail("attempts", attempts)
	}
	if resp.Project.ID == "" {
		return nil, apierrors.ProvisioningFailed("create project response carried no project id", nil)
	}

	c.logger.Info("Created Neon project",
		zap.String("project_id", resp.Project.ID),
		zap.String("project_name", name))

	return &resp.Project, nil
}

// GetConnectionString fetches the connection URI for the configured database
// and role. It is not retried: on failure the project details are fetched for
// the log and ConnectionUnavailable is returned.
func (c *NeonClient) GetConnectionString(ctx context.Context, projectID string) (string, error) {
	query := url.Values{}
	query.Set("database_name", c.cfg.DatabaseName)
	query.Set("role_name", c.cfg.RoleName)

	var resp connectionURIResponse
	err := c.do(ctx, opConnectionString, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/connection_uri", query, nil, &resp)
	if err == nil && resp.URI != "" {
		return resp.URI, nil
	}
	if err == nil {
		err = fmt.Errorf("connection_uri response carried no uri")
	}

	c.logger.Warn("Connection URI unavailable, fetching project details",
		zap.String("project_id", projectID),
		zap.Error(err))

	var details projectResponse
	if derr := c.do(ctx, opGetProject, http.MethodGet, "/projects/"+url.PathEscape(projectID), nil, nil, &details); derr != nil {
		c.logger.Warn("Project details unavailable",
			zap.String("project_id", projectID),
			zap.Error(derr))
	} else {
		c.logger.Info("Project details",
			zap.String("project_id", details.Project.ID),
			zap.String("project_name", details.Project.Name),
			zap.String("region_id", details.Project.RegionID))
	}

	return "", apierrors.ConnectionUnavailable(projectID, err)
}

// DeleteProject deletes a Neon project. Callers decide whether failure matters.
func (c *NeonClient) DeleteProject(ctx context.Context, projectID string) error {
	if err := c.do(ctx, opDeleteProject, http.MethodDelete, "/projects/"+url.PathEscape(projectID), nil, nil, nil); err != nil {
		return apierrors.ProvisioningFailed("failed to delete project: "+lastMessage(err), err).
			WithDetail("project_id", projectID)
	}

	c.logger.Info("Deleted Neon project", zap.String("project_id", projectID))
	return nil
}

// withRetry runs operation up to MaxAttempts times and reports how many
// attempts were made. The wait before attempt n (zero based) is
// RetryBackoff * 2^n.
func (c *NeonClient) withRetry(ctx context.Context, operation func() error) (int, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.RetryBackoff * time.Duration(1<<uint(attempt))
			select {
			case <-ctx.Done():
				return attempts, ctx.Err()
			case <-time.After(backoff):
			}
		}

		attempts++
		err := operation()
		if err == nil {
			return attempts, nil
		}
		lastErr = err

		if !isRetryable(err) {
			return attempts, err
		}

		c.logger.Warn("Neon API call failed, retrying",
			zap.Int("attempt", attempts),
			zap.Int("max_attempts", c.cfg.MaxAttempts),
			zap.Error(err))
	}

	return attempts, lastErr
}

func attemptCount(n int) string {
	if n == 1 {
		return "1 attempt"
	}
	return fmt.Sprintf("%d attempts", n)
}

// isRetryable reports whether another attempt could succeed. Client errors
// other than timeouts, locks and throttling are final.
func isRetryable(err error) bool {
	apiErr, ok := err.(*apiError)
	if !ok {
		return true
	}
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusLocked, http.StatusTooManyRequests:
		return true
	}
	return apiErr.StatusCode >= http.StatusInternalServerError
}

func lastMessage(err error) string {
	if apiErr, ok := err.(*apiError); ok {
		return apiErr.Message
	}
	return err.Error()
}

// do performs one API call bounded by the per-call timeout. A nil out
// discards the response body.
func (c *NeonClient) do(ctx context.Context, operation, method, path string, query url.Values, in, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	status := "error"
	defer func() {
		if c.metrics != nil {
			c.metrics.RecordProvisioningCall(operation, status, time.Since(start))
		}
	}()

	endpoint := c.cfg.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	status = fmt.Sprintf("%d", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{StatusCode: resp.StatusCode, Message: errorMessage(resp, raw)}
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

func errorMessage(resp *http.Response, raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Message != "" {
		return body.Message
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return resp.Status
}
