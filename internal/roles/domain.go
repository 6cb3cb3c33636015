package roles

import (
	"time"

	"github.com/aegis-platform/aegis/internal/shared"
)

// UserRange describes which viewers a role can reach.
type UserRange int16

const (
	// UserRangeGuest applies to every viewer, authenticated or not.
	UserRangeGuest UserRange = 1
	// UserRangeLogin applies to every authenticated viewer.
	UserRangeLogin UserRange = 2
	// UserRangeRelation applies when the caller supplies a matching relation
	// key for the role's owner.
	UserRangeRelation UserRange = 3
	// UserRangeUser applies only to viewers explicitly listed in role_users.
	UserRangeUser UserRange = 4
)

// Valid reports whether the range is one of the known values.
func (u UserRange) Valid() bool {
	return u >= UserRangeGuest && u <= UserRangeUser
}

// ResRange describes which resource-operation pairs a role covers.
type ResRange int16

const (
	// ResRangeAllowAll covers every operation on every resource in scope.
	ResRangeAllowAll ResRange = 1
	// ResRangeDenyAll blanket-denies everything in scope.
	ResRangeDenyAll ResRange = 2
	// ResRangeAllowSelf allows only resources owned by the role's owner.
	ResRangeAllowSelf ResRange = 3
	// ResRangeInclude covers only the explicitly listed pairs.
	ResRangeInclude ResRange = 4
	// ResRangeExclude denies only the explicitly listed pairs.
	ResRangeExclude ResRange = 5
)

// Valid reports whether the range is one of the known values.
func (r ResRange) Valid() bool {
	return r >= ResRangeAllowAll && r <= ResRangeExclude
}

// Listed reports whether the range is backed by explicit permission rows.
func (r ResRange) Listed() bool {
	return r == ResRangeInclude || r == ResRangeExclude
}

// Positivity is the Allow/Deny flag on a permission or a derived candidate.
type Positivity int16

const (
	// PositivityAllow grants the pair.
	PositivityAllow Positivity = 1
	// PositivityDeny refuses the pair.
	PositivityDeny Positivity = 2
)

const (
	// PriorityMin is the lowest role priority.
	PriorityMin = 0
	// PriorityMax is the highest role priority.
	PriorityMax = 100
)

// SystemOwner is the owner id of system-wide roles.
const SystemOwner int64 = 0

// Role is a named, scoped, prioritized access rule.
type Role struct {
	ID          int64
	OwnerUserID int64
	AppID       int64
	Name        string
	RelationKey string
	UserRange   UserRange
	ResRange    ResRange
	Priority    int16
	Status      shared.Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// System reports whether the role is system-wide.
func (r Role) System() bool {
	return r.OwnerUserID == SystemOwner
}

// Permission links a role to one (resource, operation) pair. Only roles with
// a listed res range carry permissions.
type Permission struct {
	ID         int64
	RoleID     int64
	ResID      int64
	OpID       int64
	Positivity Positivity
	Status     shared.Status
}

// PermissionRef identifies a requested permission in RoleSetOps.
type PermissionRef struct {
	ResID      int64
	OpID       int64
	Positivity Positivity
}

// RoleUser grants a role to one user, optionally until a unix timestamp.
type RoleUser struct {
	ID      int64
	RoleID  int64
	UserID  int64
	Timeout int64
	Status  shared.Status
}

// Live reports whether the grant is usable at the given time.
func (g RoleUser) Live(now time.Time) bool {
	return g.Status.Live() && (g.Timeout == 0 || g.Timeout > now.Unix())
}

// Candidate is a flattened role row returned by the lookup paths. Broad
// ranges produce one row per role; listed ranges produce one row per
// permission with ResID/OpID set. Positivity is already derived: allow-all
// and allow-self rows carry Allow, deny-all rows carry Deny, listed rows
// carry the permission's flag.
type Candidate struct {
	RoleID      int64      `json:"role_id"`
	OwnerUserID int64      `json:"owner_user_id"`
	AppID       int64      `json:"app_id"`
	UserRange   UserRange  `json:"user_range"`
	ResRange    ResRange   `json:"res_range"`
	Priority    int16      `json:"priority"`
	Positivity  Positivity `json:"positivity"`
	ResID       int64      `json:"res_id,omitempty"`
	OpID        int64      `json:"op_id,omitempty"`
	Timeout     int64      `json:"timeout,omitempty"`
}
