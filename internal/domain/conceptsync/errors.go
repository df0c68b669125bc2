package conceptsync

import (
	"errors"
	"fmt"
)

// ErrNotApplicable is returned by the export mappers when a concept cannot be
// represented as the requested resource type.
var ErrNotApplicable = errors.New("concept is not applicable to this resource type")

// MissingReferenceDataError reports a registry record that must be
// provisioned before any translation can succeed.
type MissingReferenceDataError struct {
	Kind string
	Name string
}

func (e *MissingReferenceDataError) Error() string {
	return fmt.Sprintf("%s %q is not registered", e.Kind, e.Name)
}

// ValidationError reports input from which no concept can be derived.
type ValidationError struct {
	Resource string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Resource, e.Reason)
}

type WarningKind string

const (
	WarningMappingConflict     WarningKind = "MappingConflict"
	WarningUnresolvedReference WarningKind = "UnresolvedReference"
)

// Warning is a non-fatal condition met during a translation pass. The
// offending input was skipped.
type Warning struct {
	Kind    WarningKind `json:"kind"`
	Message string      `json:"message"`
}

func (w Warning) String() string {
	return string(w.Kind) + ": " + w.Message
}
