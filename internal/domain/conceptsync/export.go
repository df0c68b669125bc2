package conceptsync

import (
	"strconv"
	"strings"

	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

func resourceMeta(c *concept.Concept) *fhir.Meta {
	if !c.Persisted() {
		return nil
	}
	updated := c.UpdatedAt
	return &fhir.Meta{VersionID: strconv.Itoa(c.VersionID), LastUpdated: &updated}
}

// ToQuestionnaire exports a Coded concept as a single-item choice
// questionnaire.
func ToQuestionnaire(c *concept.Concept, locale language.Tag) (*fhir.Questionnaire, error) {
	if c == nil || !strings.EqualFold(c.DatatypeName(), concept.DatatypeCoded) {
		return nil, ErrNotApplicable
	}
	name := c.DisplayName(locale.String())

	item := fhir.QuestionnaireItem{
		LinkID: c.FHIRID,
		Text:   name,
		Type:   fhir.QuestionnaireItemChoice,
	}
	if item.LinkID == "" {
		item.LinkID = "coded-test"
	}
	for _, a := range c.Answers {
		if a.Answer == nil || strings.TrimSpace(a.Answer.FHIRID) == "" {
			continue
		}
		item.AnswerOption = append(item.AnswerOption, fhir.QuestionnaireAnswerOption{
			ValueCoding: &fhir.Coding{
				System:  fhir.UUIDSystem,
				Code:    strings.TrimSpace(a.Answer.FHIRID),
				Display: a.Answer.DisplayName(locale.String()),
			},
		})
	}

	return &fhir.Questionnaire{
		ResourceType: "Questionnaire",
		ID:           c.FHIRID,
		Meta:         resourceMeta(c),
		Status:       "active",
		Title:        name,
		Item:         []fhir.QuestionnaireItem{item},
	}, nil
}

// ToObservationDefinition exports any concept as a test definition. Codings
// come from its SAME-AS mappings; the numeric facet becomes quantitative
// details and tagged intervals.
func ToObservationDefinition(c *concept.Concept, locale language.Tag) (*fhir.ObservationDefinition, error) {
	if c == nil {
		return nil, ErrNotApplicable
	}
	code := &fhir.CodeableConcept{Text: c.DisplayName(locale.String())}
	for _, m := range c.Mappings {
		if !m.IsSameAs() || m.Term == nil || m.Term.Source == nil {
			continue
		}
		code.Coding = append(code.Coding, fhir.Coding{
			System:  m.Term.Source.URI,
			Code:    m.Term.Code,
			Display: m.Term.Name,
		})
	}

	od := &fhir.ObservationDefinition{
		ResourceType: "ObservationDefinition",
		ID:           c.FHIRID,
		Meta:         resourceMeta(c),
		Code:         code,
	}

	switch {
	case strings.EqualFold(c.DatatypeName(), concept.DatatypeCoded):
		od.PermittedDataType = []string{fhir.DataTypeCodeableConcept}
	case strings.EqualFold(c.DatatypeName(), concept.DatatypeNumeric) || c.Numeric != nil:
		od.PermittedDataType = []string{fhir.DataTypeQuantity}
	case strings.EqualFold(c.DatatypeName(), concept.DatatypeText):
		od.PermittedDataType = []string{fhir.DataTypeString}
	}

	if c.Numeric != nil {
		od.QuantitativeDetails = numericDetails(c.Numeric)
		od.QualifiedInterval = numericIntervals(c.Numeric)
	}
	return od, nil
}

// ToPanelList exports a LabSet set concept as a List of test definitions.
func ToPanelList(c *concept.Concept, locale language.Tag) (*fhir.ListResource, error) {
	if c == nil || !c.IsSet || !strings.EqualFold(c.ClassName(), concept.ClassLabSet) {
		return nil, ErrNotApplicable
	}
	list := &fhir.ListResource{
		ResourceType: "List",
		ID:           c.FHIRID,
		Meta:         resourceMeta(c),
		Status:       "current",
		Mode:         "working",
		Title:        c.DisplayName(locale.String()),
	}
	for _, m := range c.Members {
		if m.Member == nil || m.Member.FHIRID == "" {
			continue
		}
		list.Entry = append(list.Entry, fhir.ListEntry{
			Item: &fhir.Reference{Reference: fhir.FormatReference("ObservationDefinition", m.Member.FHIRID)},
		})
	}
	return list, nil
}
