package model

import (
	"time"

	"github.com/google/uuid"
)

// Role is the coarse authority level of a user. Roles form a fixed
// ordinal ranking: a higher rank may manage strictly lower ranks.
type Role string

const (
	RoleGuest      Role = "GUEST"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPERADMIN"
	RoleOwner      Role = "OWNER"
)

var roleRanks = map[Role]int{
	RoleGuest:      0,
	RoleAdmin:      1,
	RoleSuperAdmin: 2,
	RoleOwner:      3,
}

// Rank returns the ordinal position of the role. Unknown roles rank at -1.
func (r Role) Rank() int {
	if rank, ok := roleRanks[r]; ok {
		return rank
	}
	return -1
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Action is an enumerated verb a permission grants.
type Action string

const (
	ActionView   Action = "VIEW"
	ActionCreate Action = "CREATE"
	ActionEdit   Action = "EDIT"
	ActionDelete Action = "DELETE"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionCreate, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// Resource is an enumerated noun a permission applies to.
type Resource string

const (
	ResourceUser       Resource = "USER"
	ResourceCollege    Resource = "COLLEGE"
	ResourceProgram    Resource = "PROGRAM"
	ResourceSection    Resource = "SECTION"
	ResourceBlog       Resource = "BLOG"
	ResourceMessage    Resource = "MESSAGE"
	ResourceStatistic  Resource = "STATISTIC"
	ResourcePermission Resource = "PERMISSION"
)

// Valid reports whether r is a known resource.
func (r Resource) Valid() bool {
	switch r {
	case ResourceUser, ResourceCollege, ResourceProgram, ResourceSection,
		ResourceBlog, ResourceMessage, ResourceStatistic, ResourcePermission:
		return true
	}
	return false
}

// Permission grants a single (action, resource) capability to a user.
// The tuple (UserID, Action, Resource) is unique.
type Permission struct {
	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	Action      Action            `json:"action"`
	Resource    Resource          `json:"resource"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	IsActive    bool              `json:"is_active"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Actor is the authenticated principal performing an operation.
// It is populated by the external auth layer and passed in via headers.
type Actor struct {
	ID        uuid.UUID  `json:"id"`
	Role      Role       `json:"role"`
	CollegeID *uuid.UUID `json:"college_id,omitempty"`
}

// ResourceAttrs carries ownership/scoping attributes of a concrete
// resource instance for attribute-based checks.
type ResourceAttrs struct {
	OwnerID   *uuid.UUID
	CollegeID *uuid.UUID
}
