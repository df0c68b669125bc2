package conceptsync

import (
	"strings"

	"github.com/ehr/conceptsync/internal/domain/concept"
)

// firstText returns the first candidate that is not blank, trimmed.
func firstText(candidates ...string) string {
	for _, c := range candidates {
		if t := strings.TrimSpace(c); t != "" {
			return t
		}
	}
	return ""
}

// syncName makes text the primary name of c in the pass locale and reports
// whether c changed. An existing primary name keeps its record.
func (p *pass) syncName(c *concept.Concept, text string) bool {
	if i := c.PrimaryName(p.locale); i >= 0 {
		if c.Names[i].Name == text {
			return false
		}
		c.Names[i].Name = text
		return true
	}
	c.Names = append(c.Names, concept.Name{Name: text, Locale: p.locale, Preferred: true})
	return true
}
