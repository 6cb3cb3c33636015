package authz

import (
	"github.com/aegis-platform/aegis/internal/registry"
	"github.com/aegis-platform/aegis/internal/roles"
)

// Source identifies which lookup path produced a verdict.
type Source string

const (
	SourceNone      Source = "none"
	SourceRoot      Source = "root"
	SourceSelf      Source = "self"
	SourcePublic    Source = "public"
	SourceRelation  Source = "relation"
	SourceUserGrant Source = "user-grant"
)

// verdict is one applicable (role, positivity) pair for a single
// (resource, operation) decision.
type verdict struct {
	source     Source
	roleID     int64
	priority   int16
	positivity roles.Positivity
	ok         bool
}

// applies tests whether a flattened candidate row covers the given resource
// and operation. Listed rows match exactly their permission pair; broad rows
// match everything in their owner/app scope.
func applies(c roles.Candidate, res *registry.Resource, opID int64) bool {
	if c.AppID != 0 && c.AppID != res.AppID {
		return false
	}
	switch c.ResRange {
	case roles.ResRangeAllowAll, roles.ResRangeDenyAll:
		return true
	case roles.ResRangeAllowSelf:
		return c.OwnerUserID == res.OwnerUserID
	case roles.ResRangeInclude, roles.ResRangeExclude:
		return c.ResID == res.ID && c.OpID == opID
	}
	return false
}

// merge reduces two verdicts to the winner. Higher priority wins; on an
// exact priority tie Deny wins, so conflicting same-priority roles fail
// closed instead of depending on evaluation order.
func merge(best, next verdict) verdict {
	if !next.ok {
		return best
	}
	if !best.ok {
		return next
	}
	if next.priority > best.priority {
		return next
	}
	if next.priority == best.priority &&
		next.positivity == roles.PositivityDeny && best.positivity != roles.PositivityDeny {
		return next
	}
	return best
}

// candidateVerdict lifts an applicable candidate row into a verdict.
func candidateVerdict(source Source, c roles.Candidate) verdict {
	return verdict{source: source, roleID: c.RoleID, priority: c.Priority, positivity: c.Positivity, ok: true}
}
