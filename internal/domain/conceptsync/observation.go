package conceptsync

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

// ImportObservationDefinition translates a test definition into a Test
// concept. The datatype is Numeric for quantities (or a concept that is
// already numeric), Coded for codeable concepts and Text otherwise.
func (e *Engine) ImportObservationDefinition(ctx context.Context, od *fhir.ObservationDefinition, existing *concept.Concept, locale language.Tag) (*Result, error) {
	p := e.newPass(ctx, locale, "ObservationDefinition", od.ID)
	name := firstText(codeText(od.Code), od.ID)

	c, err := p.resolveIdentity(od.ID, existing)
	if err != nil {
		return nil, err
	}
	if existing == nil && !c.Persisted() && name != "" {
		reusable, err := p.findReusableTest(name, inferDatatype(nil, od))
		if err != nil {
			return nil, err
		}
		if reusable != nil {
			c = reusable.Clone()
			p.applyExternalID(c, strings.TrimSpace(od.ID))
		}
	}

	if c.Classification, err = e.ResolveClassification(ctx, concept.ClassTest); err != nil {
		return nil, err
	}
	datatype := inferDatatype(c, od)
	if c.Datatype, err = e.ResolveDatatype(ctx, datatype); err != nil {
		return nil, err
	}

	if name == "" {
		return nil, &ValidationError{Resource: "ObservationDefinition", Reason: "code.text or id is required to name the concept"}
	}
	p.syncName(c, name)

	if od.Code != nil {
		if err := p.reconcileMappings(c, od.Code.Coding, od.Code.Text); err != nil {
			return nil, err
		}
	}

	if datatype == concept.DatatypeNumeric {
		if c.Numeric == nil {
			c.Numeric = &concept.NumericDetails{}
		}
		applyNumeric(c.Numeric, od)
	}

	if datatype == concept.DatatypeCoded {
		if err := p.valueSetAnswers(c, od.ValidCodedValueSet); err != nil {
			return nil, err
		}
	}

	return p.finish(c), nil
}

func codeText(cc *fhir.CodeableConcept) string {
	if cc == nil {
		return ""
	}
	return cc.Text
}

func inferDatatype(c *concept.Concept, od *fhir.ObservationDefinition) string {
	switch {
	case c != nil && (c.Numeric != nil || strings.EqualFold(c.DatatypeName(), concept.DatatypeNumeric)):
		return concept.DatatypeNumeric
	case od.HasPermittedDataType(fhir.DataTypeQuantity):
		return concept.DatatypeNumeric
	case od.HasPermittedDataType(fhir.DataTypeCodeableConcept):
		return concept.DatatypeCoded
	default:
		return concept.DatatypeText
	}
}

// findReusableTest returns an existing Test concept named name whose datatype
// matches, so that re-importing a definition without an id does not create a
// duplicate.
func (p *pass) findReusableTest(name, datatype string) (*concept.Concept, error) {
	found, err := p.findByName(name)
	if err != nil || found == nil {
		return nil, err
	}
	if !strings.EqualFold(found.ClassName(), concept.ClassTest) ||
		!strings.EqualFold(found.DatatypeName(), datatype) {
		return nil, nil
	}
	if datatype == concept.DatatypeNumeric && found.Numeric == nil {
		return nil, nil
	}
	p.logger.Debug().Str("concept_id", found.FHIRID).Str("name", name).Msg("reusing test concept by name")
	return found, nil
}

// valueSetAnswers reconciles the answers of c with the system-less includes
// of the referenced value set. Answers are left untouched when the value set
// cannot be resolved.
func (p *pass) valueSetAnswers(c *concept.Concept, ref *fhir.Reference) error {
	if ref == nil || strings.TrimSpace(ref.Reference) == "" {
		return nil
	}
	id, ok := fhir.LocalID(ref.Reference, "ValueSet/", "urn:uuid:")
	if !ok {
		p.warn(WarningUnresolvedReference, "unsupported value set reference %q", ref.Reference)
		return nil
	}
	if p.e.valueSets == nil {
		p.warn(WarningUnresolvedReference, "value set %s cannot be resolved", id)
		return nil
	}

	vs, err := p.e.valueSets.ValueSetByID(p.ctx, id)
	if errors.Is(err, concept.ErrNotFound) {
		p.warn(WarningUnresolvedReference, "value set %s not found", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve value set %s: %w", id, err)
	}

	var includes []fhir.ValueSetInclude
	if vs.Compose != nil {
		for _, inc := range vs.Compose.Include {
			if inc.System == "" {
				includes = append(includes, inc)
			}
		}
	}
	if len(includes) == 0 {
		p.warn(WarningUnresolvedReference, "value set %s has no concept includes without a system", id)
		return nil
	}

	var desired []*concept.Concept
	for _, inc := range includes {
		for _, cr := range inc.Concept {
			answer, err := p.resolveAnswer(c, cr.Code, cr.Display)
			if err != nil {
				return err
			}
			if answer != nil {
				desired = append(desired, answer)
			}
		}
	}

	var changes changeSet
	c.Answers, changes = reconcileChildren(c.Answers, desired, newAnswer)
	p.logger.Debug().
		Str("value_set", id).
		Int("added", changes.Added).
		Int("removed", changes.Removed).
		Msg("reconciled value set answers")
	return nil
}
