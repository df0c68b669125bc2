package conceptsync

import (
	"strings"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

// resolveAnswer finds the concept an answer option points at: by id = code,
// then by exact name = label among stored concepts and those created earlier
// in the pass, and otherwise creates a Misc/N-A concept that is queued on the
// result. It returns nil for blank codes and for references to
// self.
func (p *pass) resolveAnswer(self *concept.Concept, code, display string) (*concept.Concept, error) {
	code = strings.TrimSpace(code)
	if code == "" || code == self.FHIRID {
		return nil, nil
	}
	if c, ok := p.created[code]; ok {
		return c, nil
	}
	label := firstText(display, code)

	found, err := p.findByID(code)
	if err != nil {
		return nil, err
	}
	if found == nil {
		if found, err = p.findByName(label); err != nil {
			return nil, err
		}
	}
	if found == nil {
		found = p.createdByName[label]
	}
	if found != nil {
		if found.Same(self) {
			return nil, nil
		}
		return found, nil
	}

	class, err := p.e.ResolveClassification(p.ctx, concept.ClassMisc)
	if err != nil {
		return nil, err
	}
	datatype, err := p.e.ResolveDatatype(p.ctx, concept.DatatypeNA)
	if err != nil {
		return nil, err
	}
	created := &concept.Concept{
		FHIRID:         code,
		Classification: class,
		Datatype:       datatype,
		Names:          []concept.Name{{Name: label, Locale: p.locale, Preferred: true}},
	}
	p.created[code] = created
	p.createdByName[label] = created
	p.result.Pending = append(p.result.Pending, created)
	p.logger.Debug().Str("answer_code", code).Str("answer_name", label).Msg("created answer concept")
	return created, nil
}

// resolveMember finds a panel member by id only. Unresolvable references are
// reported as warnings and skipped.
func (p *pass) resolveMember(self *concept.Concept, ref string) (*concept.Concept, error) {
	id, ok := fhir.LocalID(ref, "ObservationDefinition/", "urn:uuid:")
	if !ok {
		p.warn(WarningUnresolvedReference, "unsupported member reference %q", ref)
		return nil, nil
	}
	if id == self.FHIRID {
		return nil, nil
	}
	found, err := p.findByID(id)
	if err != nil {
		return nil, err
	}
	if found == nil {
		p.warn(WarningUnresolvedReference, "member %s not found", id)
		return nil, nil
	}
	if found.Same(self) {
		return nil, nil
	}
	return found, nil
}
