package valueset

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/conceptsync/internal/domain/concept"
	"github.com/ehr/conceptsync/internal/platform/db"
	"github.com/ehr/conceptsync/internal/platform/fhir"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type valueSetRepoPG struct{ pool *pgxpool.Pool }

func NewValueSetRepoPG(pool *pgxpool.Pool) ValueSetRepository {
	return &valueSetRepoPG{pool: pool}
}

func (r *valueSetRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const vsCols = `id, fhir_id, status, url, name, title, compose, version_id, created_at, updated_at`

func (r *valueSetRepoPG) scanRow(row pgx.Row) (*ValueSet, error) {
	var vs ValueSet
	var compose []byte
	err := row.Scan(&vs.ID, &vs.FHIRID, &vs.Status, &vs.URL, &vs.Name, &vs.Title,
		&compose, &vs.VersionID, &vs.CreatedAt, &vs.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, concept.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(compose) > 0 {
		vs.Compose = &fhir.ValueSetCompose{}
		if err := json.Unmarshal(compose, vs.Compose); err != nil {
			return nil, fmt.Errorf("decode compose of value set %s: %w", vs.FHIRID, err)
		}
	}
	return &vs, nil
}

func encodeCompose(c *fhir.ValueSetCompose) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return json.Marshal(c)
}

func (r *valueSetRepoPG) Create(ctx context.Context, vs *ValueSet) error {
	vs.ID = uuid.New()
	if vs.FHIRID == "" {
		vs.FHIRID = vs.ID.String()
	}
	compose, err := encodeCompose(vs.Compose)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO value_set (id, fhir_id, status, url, name, title, compose)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING version_id, created_at, updated_at`,
		vs.ID, vs.FHIRID, vs.Status, vs.URL, vs.Name, vs.Title, compose,
	).Scan(&vs.VersionID, &vs.CreatedAt, &vs.UpdatedAt)
}

func (r *valueSetRepoPG) GetByFHIRID(ctx context.Context, fhirID string) (*ValueSet, error) {
	return r.scanRow(r.conn(ctx).QueryRow(ctx, `SELECT `+vsCols+` FROM value_set WHERE fhir_id = $1`, fhirID))
}

func (r *valueSetRepoPG) Update(ctx context.Context, vs *ValueSet) error {
	compose, err := encodeCompose(vs.Compose)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE value_set SET status=$2, url=$3, name=$4, title=$5, compose=$6,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING version_id, updated_at`,
		vs.ID, vs.Status, vs.URL, vs.Name, vs.Title, compose,
	).Scan(&vs.VersionID, &vs.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return concept.ErrNotFound
	}
	return err
}

func (r *valueSetRepoPG) List(ctx context.Context, limit, offset int) ([]*ValueSet, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM value_set`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+vsCols+` FROM value_set ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ValueSet
	for rows.Next() {
		vs, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, vs)
	}
	return items, total, rows.Err()
}
