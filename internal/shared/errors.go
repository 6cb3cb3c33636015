package shared

import (
	"errors"
	"fmt"
)

// ValidationError reports invalid input on a mutation. It is terminal and
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

// NewValidationError builds a ValidationError for a field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// AlreadyExistsError reports a uniqueness collision and carries the id of the
// conflicting record so callers can point at it.
type AlreadyExistsError struct {
	Entity     string
	Name       string
	ConflictID int64
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s %q already exists (id=%d)", e.Entity, e.Name, e.ConflictID)
}

// NotFoundError reports a missing record referenced by id or key.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// NewNotFoundError builds a NotFoundError for an entity id.
func NewNotFoundError(entity string, id int64) error {
	return &NotFoundError{Entity: entity, Key: fmt.Sprintf("%d", id)}
}

// DeniedItem describes one refused (resource, operation) pair.
type DeniedItem struct {
	ResType string `json:"res_type"`
	ResData string `json:"res_data"`
	OpKey   string `json:"op_key"`
	RoleID  int64  `json:"role_id,omitempty"`
	Reason  string `json:"reason"`
}

// UnauthorizedError means no applicable Allow was found for the listed items.
type UnauthorizedError struct {
	Items []DeniedItem
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %d item(s) without a matching grant", len(e.Items))
}

// BlockedError means an applicable Deny won for the listed items. It is kept
// distinct from UnauthorizedError so callers can explain the refusal.
type BlockedError struct {
	Items []DeniedItem
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked: %d item(s) explicitly denied", len(e.Items))
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsAlreadyExists reports whether err is an AlreadyExistsError.
func IsAlreadyExists(err error) bool {
	var ae *AlreadyExistsError
	return errors.As(err, &ae)
}
