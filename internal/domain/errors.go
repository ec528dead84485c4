package domain

import (
	"errors"
	"fmt"

	"github.com/pbaille/pathwayqa/internal/schema"
)

var (
	ErrMalformedDiagram     = errors.New("malformed diagram")
	ErrMissingEntity        = errors.New("missing entity")
	ErrBackingStore         = errors.New("backing store failure")
	ErrInvalidCandidateType = errors.New("invalid candidate type")
	ErrUnknownAttribute     = schema.ErrUnknownAttribute
)

// MalformedDiagramError reports diagram bytes that could not be parsed
type MalformedDiagramError struct {
	DiagramID ID
	Err       error
}

func (e *MalformedDiagramError) Error() string {
	if e.DiagramID != 0 {
		return fmt.Sprintf("malformed diagram %d: %v", e.DiagramID, e.Err)
	}
	return fmt.Sprintf("malformed diagram: %v", e.Err)
}

func (e *MalformedDiagramError) Unwrap() []error {
	return []error{ErrMalformedDiagram, e.Err}
}

// MissingEntityError reports a reference to an id absent from the repository
type MissingEntityError struct {
	ID           ID
	ReferencedBy ID
	Attribute    string
}

func (e *MissingEntityError) Error() string {
	if e.ReferencedBy != 0 {
		return fmt.Sprintf("entity %d referenced by %d (%s) does not exist", e.ID, e.ReferencedBy, e.Attribute)
	}
	return fmt.Sprintf("entity %d does not exist", e.ID)
}

func (e *MissingEntityError) Unwrap() error {
	return ErrMissingEntity
}

// BackingStoreError wraps a connectivity or query failure of the repository
type BackingStoreError struct {
	Op  string
	Err error
}

func (e *BackingStoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackingStoreError) Unwrap() []error {
	return []error{ErrBackingStore, e.Err}
}

// StoreError wraps err as a BackingStoreError unless it already is one
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var bse *BackingStoreError
	if errors.As(err, &bse) {
		return err
	}
	return &BackingStoreError{Op: op, Err: err}
}

// InvalidCandidateTypeError reports an entity of the wrong class passed to a check
type InvalidCandidateTypeError struct {
	ID    ID
	Class string
	Want  string
}

func (e *InvalidCandidateTypeError) Error() string {
	return fmt.Sprintf("instance %d is a %s, check expects %s", e.ID, e.Class, e.Want)
}

func (e *InvalidCandidateTypeError) Unwrap() error {
	return ErrInvalidCandidateType
}
