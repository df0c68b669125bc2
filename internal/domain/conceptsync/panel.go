package conceptsync

import (
	"context"
	"strings"

	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

// ImportPanel translates a List of test definitions into a LabSet concept
// whose members mirror the list entries.
func (e *Engine) ImportPanel(ctx context.Context, list *fhir.ListResource, existing *concept.Concept, locale language.Tag) (*Result, error) {
	p := e.newPass(ctx, locale, "List", list.ID)

	c, err := p.resolveIdentity(list.ID, existing)
	if err != nil {
		return nil, err
	}
	c.IsSet = true
	if c.Classification, err = e.ResolveClassification(ctx, concept.ClassLabSet); err != nil {
		return nil, err
	}
	if c.Datatype == nil {
		if c.Datatype, err = e.ResolveDatatype(ctx, concept.DatatypeNA); err != nil {
			return nil, err
		}
	}

	name := firstText(list.Title, list.ID)
	if name == "" {
		return nil, &ValidationError{Resource: "List", Reason: "title or id is required to name the concept"}
	}
	p.syncName(c, name)

	var desired []*concept.Concept
	for _, entry := range list.Entry {
		if entry.Item == nil || strings.TrimSpace(entry.Item.Reference) == "" {
			continue
		}
		member, err := p.resolveMember(c, entry.Item.Reference)
		if err != nil {
			return nil, err
		}
		if member != nil {
			desired = append(desired, member)
		}
	}

	var changes changeSet
	c.Members, changes = reconcileChildren(c.Members, desired, newMember)
	p.logger.Debug().
		Int("desired", len(desired)).
		Int("added", changes.Added).
		Int("removed", changes.Removed).
		Msg("reconciled members")

	return p.finish(c), nil
}
