package conceptsync

import "github.com/ehr/conceptsync/internal/domain/concept"

type child interface {
	Target() *concept.Concept
}

type changeSet struct {
	Added   int
	Removed int
}

func (c changeSet) Empty() bool { return c.Added == 0 && c.Removed == 0 }

// childKey identifies a relation target. Targets without any id have no key.
func childKey(c *concept.Concept) string {
	if c == nil {
		return ""
	}
	if c.FHIRID != "" {
		return c.FHIRID
	}
	if c.Persisted() {
		return c.ID.String()
	}
	return ""
}

// reconcileChildren brings current in line with desired. Relations whose
// target has an id outside desired are dropped, relations whose target has no
// id are kept, and a relation is built for every desired target not already
// present. Surviving relations keep their identity.
func reconcileChildren[R child](current []R, desired []*concept.Concept, build func(*concept.Concept) R) ([]R, changeSet) {
	var changes changeSet

	want := make(map[string]bool, len(desired))
	for _, d := range desired {
		if k := childKey(d); k != "" {
			want[k] = true
		}
	}

	next := make([]R, 0, len(current)+len(desired))
	have := make(map[string]bool, len(current))
	for _, r := range current {
		k := childKey(r.Target())
		if k == "" {
			next = append(next, r)
			continue
		}
		if !want[k] {
			changes.Removed++
			continue
		}
		have[k] = true
		next = append(next, r)
	}

	for _, d := range desired {
		k := childKey(d)
		if k == "" {
			if !containsTarget(next, d) {
				next = append(next, build(d))
				changes.Added++
			}
			continue
		}
		if have[k] {
			continue
		}
		have[k] = true
		next = append(next, build(d))
		changes.Added++
	}
	return next, changes
}

func containsTarget[R child](rels []R, c *concept.Concept) bool {
	for _, r := range rels {
		if r.Target() == c {
			return true
		}
	}
	return false
}

func newAnswer(c *concept.Concept) *concept.AnswerRelation {
	return &concept.AnswerRelation{Answer: c}
}

func newMember(c *concept.Concept) *concept.MemberRelation {
	return &concept.MemberRelation{Member: c}
}
