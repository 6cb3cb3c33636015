package audit

import "time"

// Effect is the per-item outcome recorded in the trail.
const (
	EffectAllow = "allow"
	EffectDeny  = "deny"
	EffectSkip  = "skip"
)

// ItemResult is the decision trace for one (resource, operation) pair.
type ItemResult struct {
	ResType  string `json:"res_type"`
	ResData  string `json:"res_data"`
	OpKey    string `json:"op_key"`
	Effect   string `json:"effect"`
	Source   string `json:"source"`
	RoleID   int64  `json:"role_id,omitempty"`
	Priority int16  `json:"priority,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Record is one access check with its complete per-item trace. Exactly one
// record is produced per check call, pass or fail.
type Record struct {
	ID        int64        `json:"id"`
	CheckID   string       `json:"check_id"`
	ViewerID  int64        `json:"viewer_id"`
	Relations []string     `json:"relations,omitempty"`
	Allowed   bool         `json:"allowed"`
	TokenFP   string       `json:"token_fp,omitempty"`
	Device    string       `json:"device,omitempty"`
	IP        string       `json:"ip,omitempty"`
	UserAgent string       `json:"user_agent,omitempty"`
	Items     []ItemResult `json:"items"`
	CreatedAt time.Time    `json:"created_at"`
}

// TimelineFilters holds the basic filters for the audit timeline.
type TimelineFilters struct {
	ViewerID int64
	From     time.Time
	To       time.Time
	Allowed  *bool
	Page     int
	PageSize int
}

// PagingInfo carries simple pagination metadata.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
}

// Result wraps a timeline page with its paging info.
type Result struct {
	Records []Record
	Paging  PagingInfo
}
