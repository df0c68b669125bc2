package conceptsync

import (
	"context"
	"strings"

	"golang.org/x/text/language"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

// ImportQuestionnaire translates a single-item choice questionnaire into a
// coded Test concept whose answers mirror the item's answer options. existing
// is the concept being updated, or nil on create.
func (e *Engine) ImportQuestionnaire(ctx context.Context, q *fhir.Questionnaire, existing *concept.Concept, locale language.Tag) (*Result, error) {
	p := e.newPass(ctx, locale, "Questionnaire", q.ID)

	c, err := p.resolveIdentity(q.ID, existing)
	if err != nil {
		return nil, err
	}
	if c.Classification, err = e.ResolveClassification(ctx, concept.ClassTest); err != nil {
		return nil, err
	}
	if c.Datatype, err = e.ResolveDatatype(ctx, concept.DatatypeCoded); err != nil {
		return nil, err
	}

	var item *fhir.QuestionnaireItem
	if len(q.Item) > 0 {
		item = &q.Item[0]
	}
	itemText := ""
	if item != nil {
		itemText = item.Text
	}
	name := firstText(q.Title, itemText, q.ID)
	if name == "" {
		return nil, &ValidationError{Resource: "Questionnaire", Reason: "title, item text or id is required to name the concept"}
	}
	p.syncName(c, name)

	// Answers are only reconciled against a choice item that lists options.
	if item == nil || !strings.EqualFold(item.Type, fhir.QuestionnaireItemChoice) || len(item.AnswerOption) == 0 {
		return p.finish(c), nil
	}

	var desired []*concept.Concept
	for _, opt := range item.AnswerOption {
		if opt.ValueCoding == nil {
			continue
		}
		answer, err := p.resolveAnswer(c, opt.ValueCoding.Code, opt.ValueCoding.Display)
		if err != nil {
			return nil, err
		}
		if answer != nil {
			desired = append(desired, answer)
		}
	}

	var changes changeSet
	c.Answers, changes = reconcileChildren(c.Answers, desired, newAnswer)
	p.logger.Debug().
		Int("desired", len(desired)).
		Int("added", changes.Added).
		Int("removed", changes.Removed).
		Msg("reconciled answers")

	return p.finish(c), nil
}
