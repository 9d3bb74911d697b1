package dataset

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for a missing modality, facet or interval set.
	ErrNotFound = errors.New("dataset: not found")
	// ErrInvalidRange is returned for ranges outside a stream or with end < start.
	ErrInvalidRange = errors.New("dataset: invalid range")
	// ErrSchemaMismatch signals a corrupt container or an unsupported layout.
	ErrSchemaMismatch = errors.New("dataset: schema mismatch")
	// ErrUnknownFacetType is returned for an unrecognized facet_type attribute.
	ErrUnknownFacetType = fmt.Errorf("%w: unknown facet type", ErrSchemaMismatch)
	// ErrPrecondition is returned when input violates a facet invariant.
	ErrPrecondition = errors.New("dataset: precondition violated")
	// ErrExternal wraps failures of codecs and other collaborators.
	ErrExternal = errors.New("dataset: external failure")
	// ErrExists is returned when creating something that is already present.
	ErrExists = errors.New("dataset: already exists")
	// ErrClosed is returned by every operation on a closed container.
	ErrClosed = errors.New("dataset: container closed")
	// ErrReadOnly is returned when mutating a container opened with ModeRead.
	ErrReadOnly = errors.New("dataset: container is read-only")
)
