package model

import "time"

const (
	// DefaultAdminRole is applied when an admin is created without a role.
	DefaultAdminRole = "admin"
	// DefaultUserRole is applied when a user is created without a role.
	DefaultUserRole = "user"
)

// Admin is a row of the admins table inside a workspace database.
type Admin struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey;default:gen_random_uuid()::text"`
	Name      string    `json:"name" gorm:"column:name;not null"`
	Email     string    `json:"email" gorm:"column:email;unique;not null"`
	Password  string    `json:"-" gorm:"column:password;not null"`
	Role      string    `json:"role" gorm:"column:role;default:admin"`
	CreatedAt time.Time `json:"createdAt" gorm:"column:createdAt"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"column:updatedAt"`
}

// TableName maps Admin to the admins table.
func (Admin) TableName() string {
	return "admins"
}

// User is a row of the users table inside a workspace database.
// Password is optional for users.
type User struct {
	ID        string    `json:"id" gorm:"column:id;primaryKey;default:gen_random_uuid()::text"`
	Name      string    `json:"name" gorm:"column:name;not null"`
	Email     string    `json:"email" gorm:"column:email;unique;not null"`
	Password  *string   `json:"-" gorm:"column:password"`
	Role      string    `json:"role" gorm:"column:role;default:user"`
	CreatedAt time.Time `json:"createdAt" gorm:"column:createdAt"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"column:updatedAt"`
}

// TableName maps User to the users table.
func (User) TableName() string {
	return "users"
}

// AdminInput carries the fields accepted when creating an admin.
type AdminInput struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// UserInput carries the fields accepted when creating a user.
type UserInput struct {
	Name     string
	Email    string
	Password *string
	Role     string
}

// WorkspaceOverview is the combined view of a workspace and its members.
type WorkspaceOverview struct {
	Workspace  *Workspace `json:"workspace"`
	Admins     []Admin    `json:"admins"`
	Users      []User     `json:"users"`
	NeedsSetup bool       `json:"needsSetup,omitempty"`
	Message    string     `json:"message,omitempty"`
	Error      string     `json:"error,omitempty"`
}
