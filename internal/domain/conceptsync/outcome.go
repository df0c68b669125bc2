package conceptsync

import (
	"errors"
	"net/http"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
	"github.com/ehr/conceptsync/internal/platform/locker"
)

// Outcome maps an import or export error to an HTTP status and the
// OperationOutcome describing it.
func Outcome(err error) (int, *fhir.OperationOutcome) {
	var invalid *ValidationError
	var missing *MissingReferenceDataError
	var conflict *fhir.VersionConflictError
	switch {
	case errors.As(err, &conflict):
		return http.StatusPreconditionFailed, fhir.ConflictOutcome(err.Error())
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, fhir.InvalidOutcome(err.Error())
	case errors.As(err, &missing):
		return http.StatusInternalServerError, fhir.InternalErrorOutcome(err.Error())
	case errors.Is(err, ErrNotApplicable), errors.Is(err, concept.ErrNotFound):
		return http.StatusNotFound, fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeNotFound, err.Error())
	case errors.Is(err, locker.ErrNotAcquired):
		return http.StatusServiceUnavailable, fhir.ErrorOutcome(err.Error())
	}
	return http.StatusInternalServerError, fhir.ErrorOutcome(err.Error())
}

// WarningMessages flattens warnings for response headers and outcomes.
func WarningMessages(ws []Warning) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.String()
	}
	return out
}
