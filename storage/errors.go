package storage

import "errors"

// Storage error constants
var (
	// ErrRuleNotFound is returned when an alert rule is not found
	ErrRuleNotFound = errors.New("alert rule not found")

	// ErrIndicatorNotFound is returned when a threat indicator is not found
	ErrIndicatorNotFound = errors.New("threat indicator not found")

	// ErrDuplicateRule is returned when a rule with the same name already exists
	ErrDuplicateRule = errors.New("alert rule with this name already exists")

	// ErrDuplicateIndicator is returned when an indicator with the same
	// (type, value, source) key already exists
	ErrDuplicateIndicator = errors.New("threat indicator already exists")

	// ErrVersionConflict is returned when an optimistic update lost the
	// race: the stored version no longer matches the expected one. Callers
	// treat this as "already handled elsewhere", not as a failure.
	ErrVersionConflict = errors.New("version conflict")

	// ErrStoreUnavailable wraps driver failures and timeouts. Batch
	// operations catch it per unit of work and retry next cycle.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound is a generic "not found" error
	ErrNotFound = errors.New("not found")
)
