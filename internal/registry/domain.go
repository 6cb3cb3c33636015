package registry

import "github.com/aegis-platform/aegis/internal/shared"

// Resource is a protected entity identified by type + data + owner + app
// scope. The id is assigned on first registration and stable thereafter.
type Resource struct {
	ID          int64         `json:"id"`
	Type        string        `json:"res_type"`
	Data        string        `json:"res_data"`
	OwnerUserID int64         `json:"owner_user_id"`
	AppID       int64         `json:"app_id"`
	Status      shared.Status `json:"status"`
}

// Operation is a named action performable on resources, scoped the same way
// as resources.
type Operation struct {
	ID          int64         `json:"id"`
	Key         string        `json:"op_key"`
	OwnerUserID int64         `json:"owner_user_id"`
	AppID       int64         `json:"app_id"`
	Status      shared.Status `json:"status"`
}

// ResourceKey identifies a resource independent of its assigned id.
type ResourceKey struct {
	Type        string
	Data        string
	OwnerUserID int64
	AppID       int64
}

// OperationKey identifies an operation independent of its assigned id.
type OperationKey struct {
	Key         string
	OwnerUserID int64
	AppID       int64
}
