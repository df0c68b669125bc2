package concept

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Registry record names the translators depend on.
const (
	ClassTest   = "Test"
	ClassLabSet = "LabSet"
	ClassMisc   = "Misc"

	DatatypeCoded   = "Coded"
	DatatypeNumeric = "Numeric"
	DatatypeText    = "Text"
	DatatypeNA      = "N/A"

	MapKindSameAs = "SAME-AS"
)

// Classification maps to the concept_class table.
type Classification struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// Datatype maps to the concept_datatype table.
type Datatype struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// MapKind maps to the concept_map_type table.
type MapKind struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
}

// Source is an external code system (LOINC, SNOMED CT, ...) identified by URI.
type Source struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Name string    `db:"name" json:"name"`
	URI  string    `db:"uri" json:"uri"`
}

// Name is a locale-scoped display name of a concept.
type Name struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Locale    string    `db:"locale" json:"locale"`
	Preferred bool      `db:"preferred" json:"preferred"`
}

// AnswerRelation links a coded concept to one of its permitted answers.
type AnswerRelation struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Answer *Concept  `json:"answer"`
}

func (a *AnswerRelation) Target() *Concept { return a.Answer }

// MemberRelation links a set concept (panel) to one of its members.
type MemberRelation struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Member *Concept  `json:"member"`
}

func (m *MemberRelation) Target() *Concept { return m.Member }

// ReferenceTerm is a (source, code) pair in an external code system.
type ReferenceTerm struct {
	ID     uuid.UUID `db:"id" json:"id"`
	Source *Source   `json:"source"`
	Code   string    `db:"code" json:"code"`
	Name   string    `db:"name" json:"name,omitempty"`
}

// MappingRelation maps a concept to a reference term with a given kind.
type MappingRelation struct {
	ID   uuid.UUID      `db:"id" json:"id"`
	Kind *MapKind       `json:"kind"`
	Term *ReferenceTerm `json:"term"`
}

// IsSameAs reports whether the mapping asserts equivalence.
func (m *MappingRelation) IsSameAs() bool {
	return m != nil && m.Kind != nil && strings.EqualFold(m.Kind.Name, MapKindSameAs)
}

// NumericDetails is the numeric facet of a concept with the Numeric datatype.
type NumericDetails struct {
	Units        string   `db:"units" json:"units,omitempty"`
	AllowDecimal *bool    `db:"allow_decimal" json:"allow_decimal,omitempty"`
	LowNormal    *float64 `db:"low_normal" json:"low_normal,omitempty"`
	HiNormal     *float64 `db:"hi_normal" json:"hi_normal,omitempty"`
	LowCritical  *float64 `db:"low_critical" json:"low_critical,omitempty"`
	HiCritical   *float64 `db:"hi_critical" json:"hi_critical,omitempty"`
	LowAbsolute  *float64 `db:"low_absolute" json:"low_absolute,omitempty"`
	HiAbsolute   *float64 `db:"hi_absolute" json:"hi_absolute,omitempty"`
}

// Concept maps to the concept table. ID is the durable primary key and is
// only set once the concept has been saved; FHIRID is the external identifier.
type Concept struct {
	ID             uuid.UUID          `db:"id" json:"id"`
	FHIRID         string             `db:"fhir_id" json:"fhir_id"`
	Classification *Classification    `json:"classification,omitempty"`
	Datatype       *Datatype          `json:"datatype,omitempty"`
	IsSet          bool               `db:"is_set" json:"is_set"`
	Names          []Name             `json:"names,omitempty"`
	Answers        []*AnswerRelation  `json:"answers,omitempty"`
	Members        []*MemberRelation  `json:"members,omitempty"`
	Mappings       []*MappingRelation `json:"mappings,omitempty"`
	Numeric        *NumericDetails    `json:"numeric,omitempty"`
	VersionID      int                `db:"version_id" json:"version_id"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updated_at"`
}

func (c *Concept) GetVersionID() int  { return c.VersionID }
func (c *Concept) SetVersionID(v int) { c.VersionID = v }

// Persisted reports whether the concept has been durably saved.
func (c *Concept) Persisted() bool { return c.ID != uuid.Nil }

// ClassName returns the classification name or "".
func (c *Concept) ClassName() string {
	if c.Classification == nil {
		return ""
	}
	return c.Classification.Name
}

// DatatypeName returns the datatype name or "".
func (c *Concept) DatatypeName() string {
	if c.Datatype == nil {
		return ""
	}
	return c.Datatype.Name
}

// Same reports whether c and other denote the same concept.
func (c *Concept) Same(other *Concept) bool {
	if c == nil || other == nil {
		return false
	}
	if c == other {
		return true
	}
	if c.ID != uuid.Nil && c.ID == other.ID {
		return true
	}
	return c.FHIRID != "" && c.FHIRID == other.FHIRID
}

// PrimaryName returns the index of the name used as primary for locale, or -1.
// A preferred name wins over any other name in the locale.
func (c *Concept) PrimaryName(locale string) int {
	fallback := -1
	for i, n := range c.Names {
		if n.Locale != locale {
			continue
		}
		if n.Preferred {
			return i
		}
		if fallback < 0 {
			fallback = i
		}
	}
	return fallback
}

// DisplayName returns the primary name for locale, falling back to the first
// name of any locale, then to the external id.
func (c *Concept) DisplayName(locale string) string {
	if i := c.PrimaryName(locale); i >= 0 {
		return c.Names[i].Name
	}
	if len(c.Names) > 0 {
		return c.Names[0].Name
	}
	return c.FHIRID
}

// FindSameAs returns the SAME-AS mappings of c that reference sourceID.
func (c *Concept) FindSameAs(sourceID uuid.UUID) []*MappingRelation {
	var out []*MappingRelation
	for _, m := range c.Mappings {
		if !m.IsSameAs() || m.Term == nil || m.Term.Source == nil {
			continue
		}
		if m.Term.Source.ID == sourceID {
			out = append(out, m)
		}
	}
	return out
}

// Clone returns a copy of c whose slices and numeric facet are independent of
// the original. Relation and mapping values are shared by pointer so that a
// relation left untouched by a caller remains the same instance.
func (c *Concept) Clone() *Concept {
	if c == nil {
		return nil
	}
	out := *c
	out.Names = append([]Name(nil), c.Names...)
	out.Answers = append([]*AnswerRelation(nil), c.Answers...)
	out.Members = append([]*MemberRelation(nil), c.Members...)
	out.Mappings = append([]*MappingRelation(nil), c.Mappings...)
	if c.Numeric != nil {
		n := *c.Numeric
		out.Numeric = &n
	}
	return &out
}
