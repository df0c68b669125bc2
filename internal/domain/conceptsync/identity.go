package conceptsync

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ehr/conceptsync/internal/domain/concept"
)

// resolveIdentity returns a working copy of the concept the resource
// addresses. With no existing concept the store is searched by external id and
// a skeleton carrying the id is built when nothing is found.
func (p *pass) resolveIdentity(externalID string, existing *concept.Concept) (*concept.Concept, error) {
	externalID = strings.TrimSpace(externalID)
	if existing != nil {
		c := existing.Clone()
		p.applyExternalID(c, externalID)
		return c, nil
	}
	if externalID != "" {
		found, err := p.findByID(externalID)
		if err != nil {
			return nil, err
		}
		if found != nil {
			return found.Clone(), nil
		}
	}
	return &concept.Concept{FHIRID: externalID}, nil
}

// applyExternalID adopts id unless c is already persisted, in which case its
// id is immutable.
func (p *pass) applyExternalID(c *concept.Concept, id string) {
	if id == "" || id == c.FHIRID {
		return
	}
	if c.Persisted() {
		p.logger.Debug().
			Str("concept_id", c.FHIRID).
			Str("ignored_id", id).
			Msg("ignoring id change on persisted concept")
		return
	}
	c.FHIRID = id
}

// findByID returns nil without error when no concept has the id.
func (p *pass) findByID(id string) (*concept.Concept, error) {
	c, err := p.e.concepts.FindByFHIRID(p.ctx, id)
	if errors.Is(err, concept.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find concept %s: %w", id, err)
	}
	return c, nil
}

// findByName returns nil without error when no concept has the name.
func (p *pass) findByName(name string) (*concept.Concept, error) {
	c, err := p.e.concepts.FindByName(p.ctx, name, p.locale)
	if errors.Is(err, concept.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find concept named %q: %w", name, err)
	}
	return c, nil
}
