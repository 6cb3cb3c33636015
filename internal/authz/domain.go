package authz

// Relation is a caller-asserted link between the viewer and a resource
// owner, resolved against relation-range roles at check time. The claim is
// trusted as supplied; the roles an owner hangs on a relation key bound what
// it can grant.
type Relation struct {
	RelationKey string `json:"relation_key"`
	OwnerUserID int64  `json:"owner_user_id"`
}

// CheckItem names one resource and the operations the viewer wants on it.
// Optional operations are checked only when already registered; an unknown
// optional operation passes instead of denying.
type CheckItem struct {
	ResType     string   `json:"res_type"`
	ResData     string   `json:"res_data"`
	OwnerUserID int64    `json:"owner_user_id"`
	AppID       int64    `json:"app_id"`
	Ops         []string `json:"ops"`
	OptionalOps []string `json:"optional_ops,omitempty"`
}
