package roles

import "github.com/aegis-platform/aegis/internal/accesscache"

// Affected-key computation. Every mutation maps to the exact set of cache
// keys it could have populated; a missed key is a silent stale-authorization
// bug. These are pure functions so the fan-out is testable without a cache.

// RoleScopeKeys returns the keys a role's definition populates independent
// of its grants and permissions.
func RoleScopeKeys(role Role) []string {
	switch role.UserRange {
	case UserRangeGuest, UserRangeLogin:
		if role.System() {
			// System roles also land in the owner-scoped family when a
			// check touches a resource owned by the system user, so both
			// homes must be swept.
			return []string{
				accesscache.PublicGlobalKey(int16(role.UserRange)),
				accesscache.PublicResUserKey(int16(role.UserRange), SystemOwner),
			}
		}
		return []string{accesscache.PublicResUserKey(int16(role.UserRange), role.OwnerUserID)}
	case UserRangeRelation:
		if role.RelationKey == "" {
			return nil
		}
		return []string{accesscache.RelationKey(role.OwnerUserID, role.RelationKey)}
	}
	// User-range roles only surface through grant keys.
	return nil
}

// GrantKeys returns the viewer-derived keys for a set of granted users. The
// op ids are the role's listed permissions, needed because per-operation
// viewer keys embed them.
func GrantKeys(role Role, userIDs []int64, opIDs []int64) []string {
	keys := make([]string, 0, len(userIDs)*(2+len(opIDs)))
	for _, userID := range userIDs {
		keys = append(keys,
			accesscache.UserGlobalKey(userID),
			accesscache.UserResUserKey(userID, role.OwnerUserID))
		for _, opID := range opIDs {
			keys = append(keys, accesscache.UserResKey(userID, opID))
		}
	}
	return keys
}

// PermissionKeys returns the keys populated by a role's listed permissions
// on the given operations. For user-range roles the fan-out crosses the
// granted users, since their per-operation keys embed the viewer id.
func PermissionKeys(role Role, opIDs []int64, userIDs []int64) []string {
	if len(opIDs) == 0 {
		return nil
	}
	switch role.UserRange {
	case UserRangeGuest, UserRangeLogin:
		keys := make([]string, 0, len(opIDs))
		for _, opID := range opIDs {
			keys = append(keys, accesscache.PublicResKey(int16(role.UserRange), opID))
		}
		return keys
	case UserRangeRelation:
		if role.RelationKey == "" {
			return nil
		}
		return []string{accesscache.RelationKey(role.OwnerUserID, role.RelationKey)}
	case UserRangeUser:
		keys := make([]string, 0, len(opIDs)*len(userIDs))
		for _, userID := range userIDs {
			for _, opID := range opIDs {
				keys = append(keys, accesscache.UserResKey(userID, opID))
			}
		}
		return keys
	}
	return nil
}

// MutationKeys combines the three families and dedupes, covering a role
// mutation whose affected grant and permission sets are fully known.
func MutationKeys(role Role, userIDs []int64, opIDs []int64) []string {
	keys := RoleScopeKeys(role)
	keys = append(keys, GrantKeys(role, userIDs, opIDs)...)
	keys = append(keys, PermissionKeys(role, opIDs, userIDs)...)
	return dedupeKeys(keys)
}

func dedupeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := keys[:0]
	for _, key := range keys {
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
