package util

import "errors"

var (
	ErrMissingKey        = errors.New("record is missing its primary key")
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrUnresolvedReference is never returned by the pipeline; it tags log
	// entries and report rows for references with no matching resource.
	ErrUnresolvedReference = errors.New("unresolved ontology reference")
	ErrStoreUnavailable    = errors.New("graph store unavailable")
	// ErrInvalidGraphName rejects a label, property or relationship name
	// before it reaches a query. It points at a schema bug, not bad data.
	ErrInvalidGraphName = errors.New("invalid graph identifier")

	ErrUnknownKind       = errors.New("unknown entity kind")
	ErrUnsupportedFormat = errors.New("unsupported record format")
)

// IsRecordError reports whether err only invalidates the record being
// processed, as opposed to the whole run.
func IsRecordError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return false
	}
	return errors.Is(err, ErrMissingKey) ||
		errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrUnsupportedFormat)
}
