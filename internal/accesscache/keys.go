package accesscache

import "fmt"

// Cache key grammar. Invalidation recomputes these strings from role and
// grant mutations, so builders here are the single source of truth for the
// layout: a drifted key is a silent stale-authorization bug.

// PublicGlobalKey caches system-wide broad roles for a user range.
func PublicGlobalKey(userRange int16) string {
	return fmt.Sprintf("public-global-%d", userRange)
}

// PublicResKey caches listed-permission public roles for one operation.
func PublicResKey(userRange int16, opID int64) string {
	return fmt.Sprintf("public-res-%d-%d", userRange, opID)
}

// PublicResUserKey caches owner-scoped public roles.
func PublicResUserKey(userRange int16, ownerUserID int64) string {
	return fmt.Sprintf("public-res-user-%d-%d", userRange, ownerUserID)
}

// RelationKey caches relation roles declared by one owner under one key.
func RelationKey(ownerUserID int64, relationKey string) string {
	return fmt.Sprintf("access-relation-%d-%s", ownerUserID, relationKey)
}

// UserGlobalKey caches broad roles granted directly to a viewer.
func UserGlobalKey(viewerID int64) string {
	return fmt.Sprintf("user-global-%d", viewerID)
}

// UserResKey caches listed-permission granted roles for one operation.
func UserResKey(viewerID int64, opID int64) string {
	return fmt.Sprintf("user-res-%d-%d", viewerID, opID)
}

// UserResUserKey caches owner-self granted roles for one resource owner.
func UserResUserKey(viewerID int64, ownerUserID int64) string {
	return fmt.Sprintf("user-res-user-%d-%d", viewerID, ownerUserID)
}

// ResourceEntryKey caches a registry lookup for one resource tuple.
func ResourceEntryKey(appID, ownerUserID int64, resType, resData string) string {
	return fmt.Sprintf("registry-res-%d-%d-%s-%s", appID, ownerUserID, resType, resData)
}

// OperationEntryKey caches a registry lookup for one operation tuple.
func OperationEntryKey(appID, ownerUserID int64, opKey string) string {
	return fmt.Sprintf("registry-op-%d-%d-%s", appID, ownerUserID, opKey)
}
