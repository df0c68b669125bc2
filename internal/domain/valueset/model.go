package valueset

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/ehr/conceptsync/internal/platform/fhir"
)

// ValueSet maps to the value_set table. Only the compose block is kept; it is
// what coded ObservationDefinitions draw their answers from.
type ValueSet struct {
	ID        uuid.UUID             `db:"id" json:"id"`
	FHIRID    string                `db:"fhir_id" json:"fhir_id"`
	Status    string                `db:"status" json:"status"`
	URL       *string               `db:"url" json:"url,omitempty"`
	Name      *string               `db:"name" json:"name,omitempty"`
	Title     *string               `db:"title" json:"title,omitempty"`
	Compose   *fhir.ValueSetCompose `db:"compose" json:"compose,omitempty"`
	VersionID int                   `db:"version_id" json:"version_id"`
	CreatedAt time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt time.Time             `db:"updated_at" json:"updated_at"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FromFHIR builds a record from a decoded resource.
func FromFHIR(r *fhir.ValueSet) *ValueSet {
	return &ValueSet{
		FHIRID:  r.ID,
		Status:  r.Status,
		URL:     optional(r.URL),
		Name:    optional(r.Name),
		Title:   optional(r.Title),
		Compose: r.Compose,
	}
}

func (vs *ValueSet) ToFHIR() *fhir.ValueSet {
	r := &fhir.ValueSet{
		ResourceType: "ValueSet",
		ID:           vs.FHIRID,
		URL:          deref(vs.URL),
		Name:         deref(vs.Name),
		Title:        deref(vs.Title),
		Status:       vs.Status,
		Compose:      vs.Compose,
	}
	if vs.VersionID > 0 {
		updated := vs.UpdatedAt
		r.Meta = &fhir.Meta{VersionID: strconv.Itoa(vs.VersionID), LastUpdated: &updated}
	}
	return r
}
