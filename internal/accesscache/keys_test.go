package accesscache

import "testing"

// The key grammar must be byte-exact: mutation fan-out rebuilds these keys
// independently of the lookup paths that populate them.
func TestKeyGrammar(t *testing.T) {
	cases := []struct {
		got  string
		want string
	}{
		{PublicGlobalKey(1), "public-global-1"},
		{PublicResKey(2, 31), "public-res-2-31"},
		{PublicResUserKey(1, 77), "public-res-user-1-77"},
		{RelationKey(77, "follower"), "access-relation-77-follower"},
		{UserGlobalKey(9), "user-global-9"},
		{UserResKey(9, 31), "user-res-9-31"},
		{UserResUserKey(9, 77), "user-res-user-9-77"},
	}
	for _, tc := range cases {
		if tc.got != tc.want {
			t.Errorf("got %q, want %q", tc.got, tc.want)
		}
	}
}
