package common

import "errors"

var (
	// ErrMalformedInput marks a record missing required fields. The record
	// is skipped; the batch continues.
	ErrMalformedInput = errors.New("malformed input")

	// ErrAmbiguousClassification marks an inconclusive type decision that
	// fell back to person with a low confidence flag.
	ErrAmbiguousClassification = errors.New("ambiguous classification")

	// ErrMappingStoreUnavailable is reported when the mapping store cannot be
	// read and the resolver runs in pass-through mode.
	ErrMappingStoreUnavailable = errors.New("mapping store unavailable")

	// ErrRebuildIntegrity aborts a rebuild: the computed artifact violates a
	// structural invariant, which points at a logic defect.
	ErrRebuildIntegrity = errors.New("rebuild integrity failure")

	ErrNotFound = errors.New("not found")
)
