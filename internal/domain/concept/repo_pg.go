package concept

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/conceptsync/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// ConceptRepoPG is the PostgreSQL Store.
type ConceptRepoPG struct{ pool *pgxpool.Pool }

func NewConceptRepoPG(pool *pgxpool.Pool) *ConceptRepoPG {
	return &ConceptRepoPG{pool: pool}
}

func (r *ConceptRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

const conceptCols = `c.id, c.fhir_id, c.is_set, c.version_id, c.created_at, c.updated_at,
	cc.id, cc.name, cd.id, cd.name`

const conceptFrom = ` FROM concept c
	LEFT JOIN concept_class cc ON cc.id = c.class_id
	LEFT JOIN concept_datatype cd ON cd.id = c.datatype_id`

func (r *ConceptRepoPG) scanConcept(row pgx.Row) (*Concept, error) {
	var c Concept
	var classID, datatypeID *uuid.UUID
	var className, datatypeName *string
	if err := row.Scan(&c.ID, &c.FHIRID, &c.IsSet, &c.VersionID, &c.CreatedAt, &c.UpdatedAt,
		&classID, &className, &datatypeID, &datatypeName); err != nil {
		return nil, notFound(err)
	}
	if classID != nil && className != nil {
		c.Classification = &Classification{ID: *classID, Name: *className}
	}
	if datatypeID != nil && datatypeName != nil {
		c.Datatype = &Datatype{ID: *datatypeID, Name: *datatypeName}
	}
	return &c, nil
}

// loader materializes a concept graph one level deep. Relation targets are
// loaded with names only and shared within a single load.
type loader struct {
	r     *ConceptRepoPG
	stubs map[uuid.UUID]*Concept
}

func (r *ConceptRepoPG) load(ctx context.Context, id uuid.UUID) (*Concept, error) {
	l := &loader{r: r, stubs: make(map[uuid.UUID]*Concept)}
	c, err := l.stub(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.numeric(ctx, c); err != nil {
		return nil, err
	}
	if err := l.answers(ctx, c); err != nil {
		return nil, err
	}
	if err := l.members(ctx, c); err != nil {
		return nil, err
	}
	if err := l.mappings(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (l *loader) stub(ctx context.Context, id uuid.UUID) (*Concept, error) {
	if c, ok := l.stubs[id]; ok {
		return c, nil
	}
	q := l.r.conn(ctx)
	c, err := l.r.scanConcept(q.QueryRow(ctx, `SELECT `+conceptCols+conceptFrom+` WHERE c.id = $1`, id))
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(ctx, `SELECT id, name, locale, preferred FROM concept_name
		WHERE concept_id = $1 ORDER BY preferred DESC, name`, id)
	if err != nil {
		return nil, fmt.Errorf("load names: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var n Name
		if err := rows.Scan(&n.ID, &n.Name, &n.Locale, &n.Preferred); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		c.Names = append(c.Names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	l.stubs[id] = c
	return c, nil
}

func (l *loader) numeric(ctx context.Context, c *Concept) error {
	var n NumericDetails
	var units *string
	err := l.r.conn(ctx).QueryRow(ctx, `SELECT units, allow_decimal, low_normal, hi_normal,
		low_critical, hi_critical, low_absolute, hi_absolute
		FROM concept_numeric WHERE concept_id = $1`, c.ID).Scan(
		&units, &n.AllowDecimal, &n.LowNormal, &n.HiNormal,
		&n.LowCritical, &n.HiCritical, &n.LowAbsolute, &n.HiAbsolute)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load numeric: %w", err)
	}
	if units != nil {
		n.Units = *units
	}
	c.Numeric = &n
	return nil
}

// relatedIDs returns (relation id, target id) pairs from a concept_answer or
// concept_set style query.
func (l *loader) relatedIDs(ctx context.Context, sql string, id uuid.UUID) ([][2]uuid.UUID, error) {
	rows, err := l.r.conn(ctx).Query(ctx, sql, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][2]uuid.UUID
	for rows.Next() {
		var pair [2]uuid.UUID
		if err := rows.Scan(&pair[0], &pair[1]); err != nil {
			return nil, err
		}
		out = append(out, pair)
	}
	return out, rows.Err()
}

func (l *loader) answers(ctx context.Context, c *Concept) error {
	pairs, err := l.relatedIDs(ctx, `SELECT id, answer_id FROM concept_answer
		WHERE concept_id = $1 ORDER BY sort_order`, c.ID)
	if err != nil {
		return fmt.Errorf("load answers: %w", err)
	}
	for _, p := range pairs {
		target, err := l.stub(ctx, p[1])
		if err != nil {
			return fmt.Errorf("load answer %s: %w", p[1], err)
		}
		c.Answers = append(c.Answers, &AnswerRelation{ID: p[0], Answer: target})
	}
	return nil
}

func (l *loader) members(ctx context.Context, c *Concept) error {
	pairs, err := l.relatedIDs(ctx, `SELECT id, member_id FROM concept_set
		WHERE concept_id = $1 ORDER BY sort_order`, c.ID)
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	for _, p := range pairs {
		target, err := l.stub(ctx, p[1])
		if err != nil {
			return fmt.Errorf("load member %s: %w", p[1], err)
		}
		c.Members = append(c.Members, &MemberRelation{ID: p[0], Member: target})
	}
	return nil
}

func (l *loader) mappings(ctx context.Context, c *Concept) error {
	rows, err := l.r.conn(ctx).Query(ctx, `SELECT m.id, mt.id, mt.name,
			t.id, t.code, COALESCE(t.name, ''), s.id, s.name, s.uri
		FROM concept_reference_map m
		JOIN concept_map_type mt ON mt.id = m.map_type_id
		JOIN concept_reference_term t ON t.id = m.term_id
		JOIN concept_source s ON s.id = t.source_id
		WHERE m.concept_id = $1`, c.ID)
	if err != nil {
		return fmt.Errorf("load mappings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m := &MappingRelation{Kind: &MapKind{}, Term: &ReferenceTerm{Source: &Source{}}}
		if err := rows.Scan(&m.ID, &m.Kind.ID, &m.Kind.Name,
			&m.Term.ID, &m.Term.Code, &m.Term.Name,
			&m.Term.Source.ID, &m.Term.Source.Name, &m.Term.Source.URI); err != nil {
			return fmt.Errorf("scan mapping: %w", err)
		}
		c.Mappings = append(c.Mappings, m)
	}
	return rows.Err()
}

func (r *ConceptRepoPG) FindByFHIRID(ctx context.Context, fhirID string) (*Concept, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM concept WHERE fhir_id = $1`, fhirID).Scan(&id)
	if err != nil {
		return nil, notFound(err)
	}
	return r.load(ctx, id)
}

// FindByName matches names exactly, preferring names in locale.
func (r *ConceptRepoPG) FindByName(ctx context.Context, name, locale string) (*Concept, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT c.id FROM concept c
		JOIN concept_name n ON n.concept_id = c.id
		WHERE n.name = $1
		ORDER BY (n.locale = $2) DESC, c.created_at, c.fhir_id
		LIMIT 1`, name, locale).Scan(&id)
	if err != nil {
		return nil, notFound(err)
	}
	return r.load(ctx, id)
}

func (r *ConceptRepoPG) ClassByName(ctx context.Context, name string) (*Classification, error) {
	var c Classification
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name FROM concept_class WHERE lower(name) = lower($1)`, name).
		Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (r *ConceptRepoPG) DatatypeByName(ctx context.Context, name string) (*Datatype, error) {
	var d Datatype
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name FROM concept_datatype WHERE lower(name) = lower($1)`, name).
		Scan(&d.ID, &d.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return &d, nil
}

func (r *ConceptRepoPG) MapKindByName(ctx context.Context, name string) (*MapKind, error) {
	var k MapKind
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name FROM concept_map_type WHERE lower(name) = lower($1)`, name).
		Scan(&k.ID, &k.Name)
	if err != nil {
		return nil, notFound(err)
	}
	return &k, nil
}

func (r *ConceptRepoPG) SourceByURI(ctx context.Context, uri string) (*Source, error) {
	var s Source
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, name, uri FROM concept_source WHERE uri = $1`, uri).
		Scan(&s.ID, &s.Name, &s.URI)
	if err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *ConceptRepoPG) ConceptWithSameAs(ctx context.Context, sourceID uuid.UUID, code string) (*Concept, error) {
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT m.concept_id FROM concept_reference_map m
		JOIN concept_reference_term t ON t.id = m.term_id
		JOIN concept_map_type mt ON mt.id = m.map_type_id
		WHERE t.source_id = $1 AND lower(t.code) = lower($2) AND upper(mt.name) = $3
		LIMIT 1`, sourceID, code, MapKindSameAs).Scan(&id)
	if err != nil {
		return nil, notFound(err)
	}
	return r.load(ctx, id)
}

// SaveAll writes pending concepts and then c in a single transaction.
func (r *ConceptRepoPG) SaveAll(ctx context.Context, pending []*Concept, c *Concept) (*Concept, error) {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		for _, p := range pending {
			if err := r.save(ctx, p); err != nil {
				return fmt.Errorf("save pending concept %s: %w", p.FHIRID, err)
			}
		}
		return r.save(ctx, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ConceptRepoPG) save(ctx context.Context, c *Concept) error {
	q := r.conn(ctx)
	var classID, datatypeID *uuid.UUID
	if c.Classification != nil {
		classID = &c.Classification.ID
	}
	if c.Datatype != nil {
		datatypeID = &c.Datatype.ID
	}

	if !c.Persisted() {
		c.ID = uuid.New()
		if c.FHIRID == "" {
			c.FHIRID = c.ID.String()
		}
		err := q.QueryRow(ctx, `INSERT INTO concept (id, fhir_id, class_id, datatype_id, is_set)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING version_id, created_at, updated_at`,
			c.ID, c.FHIRID, classID, datatypeID, c.IsSet).Scan(&c.VersionID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			c.ID = uuid.Nil
			return fmt.Errorf("insert concept: %w", err)
		}
	} else {
		err := q.QueryRow(ctx, `UPDATE concept SET class_id = $2, datatype_id = $3, is_set = $4,
				version_id = version_id + 1, updated_at = NOW()
			WHERE id = $1
			RETURNING version_id, updated_at`,
			c.ID, classID, datatypeID, c.IsSet).Scan(&c.VersionID, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update concept: %w", notFound(err))
		}
	}

	if err := r.saveNames(ctx, q, c); err != nil {
		return err
	}
	if err := r.saveNumeric(ctx, q, c); err != nil {
		return err
	}
	if err := r.saveAnswers(ctx, q, c); err != nil {
		return err
	}
	if err := r.saveMembers(ctx, q, c); err != nil {
		return err
	}
	return r.saveMappings(ctx, q, c)
}

// prune deletes rows of table belonging to c whose id is not in keep.
func prune(ctx context.Context, q queryable, table string, conceptID uuid.UUID, keep []string) error {
	_, err := q.Exec(ctx, `DELETE FROM `+table+` WHERE concept_id = $1 AND NOT (id::text = ANY($2::text[]))`,
		conceptID, keep)
	if err != nil {
		return fmt.Errorf("prune %s: %w", table, err)
	}
	return nil
}

func (r *ConceptRepoPG) saveNames(ctx context.Context, q queryable, c *Concept) error {
	keep := make([]string, 0, len(c.Names))
	for i := range c.Names {
		n := &c.Names[i]
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		keep = append(keep, n.ID.String())
	}
	if err := prune(ctx, q, "concept_name", c.ID, keep); err != nil {
		return err
	}
	for _, n := range c.Names {
		_, err := q.Exec(ctx, `INSERT INTO concept_name (id, concept_id, name, locale, preferred)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, locale = EXCLUDED.locale, preferred = EXCLUDED.preferred`,
			n.ID, c.ID, n.Name, n.Locale, n.Preferred)
		if err != nil {
			return fmt.Errorf("save name %q: %w", n.Name, err)
		}
	}
	return nil
}

func (r *ConceptRepoPG) saveNumeric(ctx context.Context, q queryable, c *Concept) error {
	if c.Numeric == nil {
		_, err := q.Exec(ctx, `DELETE FROM concept_numeric WHERE concept_id = $1`, c.ID)
		return err
	}
	n := c.Numeric
	_, err := q.Exec(ctx, `INSERT INTO concept_numeric (concept_id, units, allow_decimal,
			low_normal, hi_normal, low_critical, hi_critical, low_absolute, hi_absolute)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (concept_id) DO UPDATE SET units = EXCLUDED.units, allow_decimal = EXCLUDED.allow_decimal,
			low_normal = EXCLUDED.low_normal, hi_normal = EXCLUDED.hi_normal,
			low_critical = EXCLUDED.low_critical, hi_critical = EXCLUDED.hi_critical,
			low_absolute = EXCLUDED.low_absolute, hi_absolute = EXCLUDED.hi_absolute`,
		c.ID, n.Units, n.AllowDecimal, n.LowNormal, n.HiNormal,
		n.LowCritical, n.HiCritical, n.LowAbsolute, n.HiAbsolute)
	if err != nil {
		return fmt.Errorf("save numeric: %w", err)
	}
	return nil
}

func (r *ConceptRepoPG) saveAnswers(ctx context.Context, q queryable, c *Concept) error {
	keep := make([]string, 0, len(c.Answers))
	for _, a := range c.Answers {
		if a.Answer == nil || !a.Answer.Persisted() {
			return fmt.Errorf("answer of %s is not saved", c.FHIRID)
		}
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		keep = append(keep, a.ID.String())
	}
	if err := prune(ctx, q, "concept_answer", c.ID, keep); err != nil {
		return err
	}
	for i, a := range c.Answers {
		_, err := q.Exec(ctx, `INSERT INTO concept_answer (id, concept_id, answer_id, sort_order)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET answer_id = EXCLUDED.answer_id, sort_order = EXCLUDED.sort_order`,
			a.ID, c.ID, a.Answer.ID, i)
		if err != nil {
			return fmt.Errorf("save answer: %w", err)
		}
	}
	return nil
}

func (r *ConceptRepoPG) saveMembers(ctx context.Context, q queryable, c *Concept) error {
	keep := make([]string, 0, len(c.Members))
	for _, m := range c.Members {
		if m.Member == nil || !m.Member.Persisted() {
			return fmt.Errorf("member of %s is not saved", c.FHIRID)
		}
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		keep = append(keep, m.ID.String())
	}
	if err := prune(ctx, q, "concept_set", c.ID, keep); err != nil {
		return err
	}
	for i, m := range c.Members {
		_, err := q.Exec(ctx, `INSERT INTO concept_set (id, concept_id, member_id, sort_order)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET member_id = EXCLUDED.member_id, sort_order = EXCLUDED.sort_order`,
			m.ID, c.ID, m.Member.ID, i)
		if err != nil {
			return fmt.Errorf("save member: %w", err)
		}
	}
	return nil
}

func (r *ConceptRepoPG) saveMappings(ctx context.Context, q queryable, c *Concept) error {
	keep := make([]string, 0, len(c.Mappings))
	for _, m := range c.Mappings {
		if m.Term == nil || m.Term.Source == nil || m.Kind == nil {
			return fmt.Errorf("incomplete mapping on %s", c.FHIRID)
		}
		if m.Term.ID == uuid.Nil {
			err := q.QueryRow(ctx, `INSERT INTO concept_reference_term (id, source_id, code, name)
				VALUES ($1, $2, $3, NULLIF($4, ''))
				ON CONFLICT (source_id, code) DO UPDATE
					SET name = COALESCE(EXCLUDED.name, concept_reference_term.name)
				RETURNING id`,
				uuid.New(), m.Term.Source.ID, m.Term.Code, m.Term.Name).Scan(&m.Term.ID)
			if err != nil {
				return fmt.Errorf("save reference term %s: %w", m.Term.Code, err)
			}
		}
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		keep = append(keep, m.ID.String())
	}
	if err := prune(ctx, q, "concept_reference_map", c.ID, keep); err != nil {
		return err
	}
	for _, m := range c.Mappings {
		_, err := q.Exec(ctx, `INSERT INTO concept_reference_map (id, concept_id, term_id, map_type_id)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			m.ID, c.ID, m.Term.ID, m.Kind.ID)
		if err != nil {
			return fmt.Errorf("save mapping: %w", err)
		}
	}
	return nil
}
