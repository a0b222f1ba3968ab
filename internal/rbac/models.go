package rbac

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/opentrusty/farmgate/internal/identity"
)

// Domain errors
var (
	ErrRoleNotFound            = errors.New("role not found")
	ErrRoleAlreadyExists       = errors.New("role already exists")
	ErrPermissionNotFound      = errors.New("permission not found")
	ErrPermissionAlreadyExists = errors.New("permission already exists")
	ErrSystemRole              = errors.New("system roles cannot be deleted")
	ErrInvalidRole             = errors.New("invalid role")
)

// Category groups permissions by business area
type Category string

const (
	CategoryLivestock Category = "LIVESTOCK"
	CategoryMedical   Category = "MEDICAL"
	CategoryBreeding  Category = "BREEDING"
	CategoryWeight    Category = "WEIGHT"
	CategoryNotes     Category = "NOTES"
	CategoryAccount   Category = "ACCOUNT"
	CategoryUser      Category = "USER"
	CategoryOrder     Category = "ORDER"
	CategoryFeeding   Category = "FEEDING"
	CategorySystem    Category = "SYSTEM"
)

// PermissionLevel is an informational weight. The decision engine does not enforce it.
type PermissionLevel string

const (
	PermissionLevelBasic    PermissionLevel = "BASIC"
	PermissionLevelStandard PermissionLevel = "STANDARD"
	PermissionLevelElevated PermissionLevel = "ELEVATED"
	PermissionLevelCritical PermissionLevel = "CRITICAL"
)

// Permission is a named atomic capability
type Permission struct {
	ID                 int64
	Name               string
	Category           Category
	Level              PermissionLevel
	Description        string
	IsSystemPermission bool
	Active             bool
	CreatedAt          time.Time
}

// Role is a named bundle of permissions
type Role struct {
	ID            int64
	Name          string // stable identifier used in checks
	DisplayName   string
	Description   string
	IsSystemRole  bool
	Active        bool
	PermissionIDs identity.IDSet
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// PermissionSet is a set of permission names
type PermissionSet map[string]struct{}

// Has reports whether name is in the set
func (s PermissionSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the permission names sorted
func (s PermissionSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// RoleRepository defines the interface for role persistence
type RoleRepository interface {
	// Create creates a new role and assigns its ID
	Create(ctx context.Context, role *Role) error

	// GetByID retrieves a role with its permission edges
	GetByID(ctx context.Context, id int64) (*Role, error)

	// GetByName retrieves a role by its unique name
	GetByName(ctx context.Context, name string) (*Role, error)

	// ListByIDs retrieves the roles that exist among ids
	ListByIDs(ctx context.Context, ids []int64) ([]*Role, error)

	// List retrieves all roles
	List(ctx context.Context) ([]*Role, error)

	// Delete deletes a role and its edges
	Delete(ctx context.Context, id int64) error

	// AddPermission links a permission to a role; idempotent
	AddPermission(ctx context.Context, roleID, permissionID int64) error

	// RemovePermission unlinks a permission from a role; idempotent
	RemovePermission(ctx context.Context, roleID, permissionID int64) error
}

// PermissionRepository defines the interface for permission persistence
type PermissionRepository interface {
	// Create creates a new permission and assigns its ID
	Create(ctx context.Context, permission *Permission) error

	// GetByName retrieves a permission by its unique name
	GetByName(ctx context.Context, name string) (*Permission, error)

	// ListByIDs retrieves the permissions that exist among ids
	ListByIDs(ctx context.Context, ids []int64) ([]*Permission, error)

	// List retrieves all permissions
	List(ctx context.Context) ([]*Permission, error)
}
