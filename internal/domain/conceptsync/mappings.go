package conceptsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

// reconcileMappings attaches a SAME-AS mapping for every coding whose system
// is a known source. A (source, code) pair is held by at most one concept,
// and a concept holds at most one SAME-AS mapping per source; codings that
// would break either rule are skipped with a MappingConflict warning.
// Existing mappings are never removed.
func (p *pass) reconcileMappings(c *concept.Concept, codings []fhir.Coding, text string) error {
	var sameAs *concept.MapKind
	for _, coding := range codings {
		system := strings.TrimSpace(coding.System)
		code := strings.TrimSpace(coding.Code)
		if system == "" || code == "" {
			continue
		}

		source, err := p.e.sources.SourceByURI(p.ctx, system)
		if errors.Is(err, concept.ErrNotFound) {
			p.warn(WarningUnresolvedReference, "unknown code system %s for code %s", system, code)
			continue
		}
		if err != nil {
			return fmt.Errorf("lookup concept source %s: %w", system, err)
		}

		existing := c.FindSameAs(source.ID)
		if hasCode(existing, code) {
			continue
		}
		if len(existing) > 0 {
			p.warn(WarningMappingConflict, "concept %s already maps %s to %s; skipping %s",
				c.FHIRID, source.Name, existing[0].Term.Code, code)
			continue
		}

		holder, err := p.e.sameAs.ConceptWithSameAs(p.ctx, source.ID, code)
		switch {
		case err == nil && !holder.Same(c):
			p.warn(WarningMappingConflict, "%s %s is already mapped SAME-AS to concept %s",
				source.Name, code, holder.FHIRID)
			continue
		case err != nil && !errors.Is(err, concept.ErrNotFound):
			return fmt.Errorf("lookup SAME-AS holder of %s %s: %w", source.Name, code, err)
		}

		if sameAs == nil {
			if sameAs, err = p.e.ResolveMapKind(p.ctx, concept.MapKindSameAs); err != nil {
				return err
			}
		}
		c.Mappings = append(c.Mappings, &concept.MappingRelation{
			Kind: sameAs,
			Term: &concept.ReferenceTerm{
				Source: source,
				Code:   code,
				Name:   firstText(coding.Display, text),
			},
		})
	}
	return nil
}

func hasCode(mappings []*concept.MappingRelation, code string) bool {
	for _, m := range mappings {
		if strings.EqualFold(m.Term.Code, code) {
			return true
		}
	}
	return false
}
