package tenantdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	apierrors "github.com/devrev/workspace-panel/internal/errors"
	"github.com/devrev/workspace-panel/internal/model"
)

// ErrSchemaMissing is returned when the admins or users table does not exist yet.
var ErrSchemaMissing = errors.New("workspace schema is not initialized")

const (
	pgUndefinedTable  = "42P01"
	pgUniqueViolation = "23505"
	newestFirst       = `"createdAt" DESC`
)

// Repository is the typed admin/user capability of a workspace database.
type Repository interface {
	ListAdmins(ctx context.Context) ([]model.Admin, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	CreateAdmin(ctx context.Context, in model.AdminInput) (*model.Admin, error)
	CreateUser(ctx context.Context, in model.UserInput) (*model.User, error)
	DeleteAdmin(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, id string) error
}

var _ Repository = (*Client)(nil)

func (c *Client) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	admins := []model.Admin{}
	if err := c.db.WithContext(ctx).Order(newestFirst).Find(&admins).Error; err != nil {
		return nil, translateError(err, "list admins")
	}
	return admins, nil
}

func (c *Client) ListUsers(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	if err := c.db.WithContext(ctx).Order(newestFirst).Find(&users).Error; err != nil {
		return nil, translateError(err, "list users")
	}
	return users, nil
}

// CreateAdmin inserts an admin; the id and timestamps come back from the database.
func (c *Client) CreateAdmin(ctx context.Context, in model.AdminInput) (*model.Admin, error) {
	admin := &model.Admin{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Role:     in.Role,
	}
	if admin.Role == "" {
		admin.Role = model.DefaultAdminRole
	}

	if err := c.db.WithContext(ctx).Create(admin).Error; err != nil {
		return nil, translateError(err, "create admin")
	}
	return admin, nil
}

// CreateUser inserts a user; the id and timestamps come back from the database.
func (c *Client) CreateUser(ctx context.Context, in model.UserInput) (*model.User, error) {
	user := &model.User{
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
		Role:     in.Role,
	}
	if user.Role == "" {
		user.Role = model.DefaultUserRole
	}

	if err := c.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, translateError(err, "create user")
	}
	return user, nil
}

func (c *Client) DeleteAdmin(ctx context.Context, id string) error {
	res := c.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Admin{})
	if res.Error != nil {
		return translateError(res.Error, "delete admin")
	}
	if res.RowsAffected == 0 {
		return apierrors.AdminNotFound(id)
	}
	return nil
}

func (c *Client) DeleteUser(ctx context.Context, id string) error {
	res := c.db.WithContext(ctx).Where("id = ?", id).Delete(&model.User{})
	if res.Error != nil {
		return translateError(res.Error, "delete user")
	}
	if res.RowsAffected == 0 {
		return apierrors.UserNotFound(id)
	}
	return nil
}

// translateError maps Postgres error codes onto the panel's error kinds.
func translateError(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedTable:
			return fmt.Errorf("%s: %w: %s", op, ErrSchemaMissing, pgErr.Message)
		case pgUniqueViolation:
			return apierrors.Conflict("email already exists in this workspace", err).
				WithDetail("constraint", pgErr.ConstraintName)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
