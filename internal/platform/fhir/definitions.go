package fhir

// Resource shapes consumed and produced by the concept translators. Only the
// fields the translators read or write are modelled.

const (
	QuestionnaireItemChoice = "choice"

	DataTypeQuantity        = "Quantity"
	DataTypeCodeableConcept = "CodeableConcept"
	DataTypeString          = "string"

	// UUIDSystem is the coding system used for answer options that carry a
	// concept identifier directly.
	UUIDSystem = "urn:uuid"

	// ReferenceRangeExtension tags a qualifiedInterval with the kind of
	// reference range it describes.
	ReferenceRangeExtension = "http://fhir.openmrs.org/ext/obs/reference-range"

	ReferenceRangeNormal    = "normal"
	ReferenceRangeTreatment = "treatment"
	ReferenceRangeAbsolute  = "absolute"
)

type Questionnaire struct {
	ResourceType string              `json:"resourceType" validate:"required,eq=Questionnaire"`
	ID           string              `json:"id,omitempty"`
	Meta         *Meta               `json:"meta,omitempty"`
	Status       string              `json:"status,omitempty"`
	Title        string              `json:"title,omitempty"`
	Item         []QuestionnaireItem `json:"item,omitempty"`
}

type QuestionnaireItem struct {
	LinkID       string                      `json:"linkId,omitempty"`
	Text         string                      `json:"text,omitempty"`
	Type         string                      `json:"type,omitempty"`
	AnswerOption []QuestionnaireAnswerOption `json:"answerOption,omitempty"`
}

type QuestionnaireAnswerOption struct {
	ValueCoding *Coding `json:"valueCoding,omitempty"`
}

type ObservationDefinition struct {
	ResourceType        string               `json:"resourceType" validate:"required,eq=ObservationDefinition"`
	ID                  string               `json:"id,omitempty"`
	Meta                *Meta                `json:"meta,omitempty"`
	Code                *CodeableConcept     `json:"code,omitempty"`
	PermittedDataType   []string             `json:"permittedDataType,omitempty"`
	QuantitativeDetails *QuantitativeDetails `json:"quantitativeDetails,omitempty"`
	QualifiedInterval   []QualifiedInterval  `json:"qualifiedInterval,omitempty"`
	ValidCodedValueSet  *Reference           `json:"validCodedValueSet,omitempty"`
}

// HasPermittedDataType reports whether t is among the declared permitted data types.
func (od *ObservationDefinition) HasPermittedDataType(t string) bool {
	for _, v := range od.PermittedDataType {
		if v == t {
			return true
		}
	}
	return false
}

type QuantitativeDetails struct {
	Unit             *CodeableConcept `json:"unit,omitempty"`
	DecimalPrecision *int             `json:"decimalPrecision,omitempty"`
}

type QualifiedInterval struct {
	Extension []Extension `json:"extension,omitempty"`
	Range     *Range      `json:"range,omitempty"`
}

// ExtensionValue returns the primitive value of the first extension with the given url.
func (qi QualifiedInterval) ExtensionValue(url string) (string, bool) {
	for _, ext := range qi.Extension {
		if ext.URL == url {
			return ext.Primitive(), true
		}
	}
	return "", false
}

type ListResource struct {
	ResourceType string      `json:"resourceType" validate:"required,eq=List"`
	ID           string      `json:"id,omitempty"`
	Meta         *Meta       `json:"meta,omitempty"`
	Status       string      `json:"status,omitempty"`
	Mode         string      `json:"mode,omitempty"`
	Title        string      `json:"title,omitempty"`
	Entry        []ListEntry `json:"entry,omitempty"`
}

type ListEntry struct {
	Item *Reference `json:"item,omitempty"`
}

type ValueSet struct {
	ResourceType string           `json:"resourceType" validate:"required,eq=ValueSet"`
	ID           string           `json:"id,omitempty"`
	Meta         *Meta            `json:"meta,omitempty"`
	URL          string           `json:"url,omitempty"`
	Name         string           `json:"name,omitempty"`
	Title        string           `json:"title,omitempty"`
	Status       string           `json:"status,omitempty"`
	Compose      *ValueSetCompose `json:"compose,omitempty"`
}

type ValueSetCompose struct {
	Include []ValueSetInclude `json:"include,omitempty"`
}

type ValueSetInclude struct {
	System  string               `json:"system,omitempty"`
	Concept []ValueSetConceptRef `json:"concept,omitempty"`
}

type ValueSetConceptRef struct {
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}
