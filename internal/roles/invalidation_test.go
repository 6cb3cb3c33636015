package roles

import (
	"sort"
	"testing"
)

func sortedKeys(keys []string) []string {
	out := append([]string(nil), keys...)
	sort.Strings(out)
	return out
}

func assertKeys(t *testing.T, got, want []string) {
	t.Helper()
	got = sortedKeys(got)
	want = sortedKeys(want)
	if len(got) != len(want) {
		t.Fatalf("got %d keys %v, want %d keys %v", len(got), got, len(want), want)
	}
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("key %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestRoleScopeKeysSystemPublic(t *testing.T) {
	role := Role{ID: 1, OwnerUserID: SystemOwner, UserRange: UserRangeGuest, ResRange: ResRangeAllowAll}
	assertKeys(t, RoleScopeKeys(role), []string{"public-global-1", "public-res-user-1-0"})

	role.UserRange = UserRangeLogin
	assertKeys(t, RoleScopeKeys(role), []string{"public-global-2", "public-res-user-2-0"})
}

func TestMutationKeysCoverSystemOwnedResources(t *testing.T) {
	// A check against a resource owned by the system user caches system
	// public roles under the owner-scoped family too. Deleting the role must
	// sweep that key or the stale entry keeps deciding forever.
	role := Role{ID: 9, OwnerUserID: SystemOwner, UserRange: UserRangeGuest, ResRange: ResRangeAllowAll}
	keys := MutationKeys(role, nil, nil)
	assertKeys(t, keys, []string{"public-global-1", "public-res-user-1-0"})
}

func TestRoleScopeKeysOwnedPublic(t *testing.T) {
	role := Role{ID: 2, OwnerUserID: 77, UserRange: UserRangeLogin, ResRange: ResRangeAllowSelf}
	assertKeys(t, RoleScopeKeys(role), []string{"public-res-user-2-77"})
}

func TestRoleScopeKeysRelation(t *testing.T) {
	role := Role{ID: 3, OwnerUserID: 77, UserRange: UserRangeRelation, RelationKey: "follower"}
	assertKeys(t, RoleScopeKeys(role), []string{"access-relation-77-follower"})
}

func TestRoleScopeKeysUserRangeHasNoScopeKey(t *testing.T) {
	role := Role{ID: 4, OwnerUserID: 77, UserRange: UserRangeUser}
	if keys := RoleScopeKeys(role); len(keys) != 0 {
		t.Fatalf("expected no scope keys, got %v", keys)
	}
}

func TestGrantKeys(t *testing.T) {
	role := Role{ID: 5, OwnerUserID: 77, UserRange: UserRangeUser, ResRange: ResRangeInclude}
	keys := GrantKeys(role, []int64{10, 11}, []int64{100})
	assertKeys(t, keys, []string{
		"user-global-10", "user-res-user-10-77", "user-res-10-100",
		"user-global-11", "user-res-user-11-77", "user-res-11-100",
	})
}

func TestPermissionKeysPublicListed(t *testing.T) {
	role := Role{ID: 6, OwnerUserID: SystemOwner, UserRange: UserRangeGuest, ResRange: ResRangeInclude}
	keys := PermissionKeys(role, []int64{100, 101}, nil)
	assertKeys(t, keys, []string{"public-res-1-100", "public-res-1-101"})
}

func TestPermissionKeysUserRangeCrossesGrants(t *testing.T) {
	role := Role{ID: 7, OwnerUserID: 77, UserRange: UserRangeUser, ResRange: ResRangeExclude}
	keys := PermissionKeys(role, []int64{100}, []int64{10, 11})
	assertKeys(t, keys, []string{"user-res-10-100", "user-res-11-100"})
}

func TestMutationKeysDedupes(t *testing.T) {
	role := Role{ID: 8, OwnerUserID: 77, UserRange: UserRangeRelation, RelationKey: "editor", ResRange: ResRangeInclude}
	keys := MutationKeys(role, nil, []int64{100, 101})
	// Scope key and permission keys collapse to the single relation key.
	assertKeys(t, keys, []string{"access-relation-77-editor"})
}
