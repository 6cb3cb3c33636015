package shared

// Status marks a row as live or soft-deleted. Rows are never hard-deleted so
// audit history stays resolvable.
type Status int16

const (
	// StatusEnable marks a live row.
	StatusEnable Status = 1
	// StatusDelete marks a soft-deleted row.
	StatusDelete Status = 2
)

// Live reports whether the status marks a usable row.
func (s Status) Live() bool {
	return s == StatusEnable
}
