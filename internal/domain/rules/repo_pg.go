package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type topicSourceRepoPG struct{ pool *pgxpool.Pool }

// NewRepoPG creates the Postgres-backed topic source repository, creating the
// topic_source table when it does not exist yet.
func NewRepoPG(ctx context.Context, pool *pgxpool.Pool) (Repository, error) {
	r := &topicSourceRepoPG{pool: pool}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure topic_source schema: %w", err)
	}
	return r, nil
}

func (r *topicSourceRepoPG) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS topic_source (
			id UUID PRIMARY KEY,
			source_id TEXT NOT NULL UNIQUE,
			url TEXT,
			name TEXT,
			effective_date TIMESTAMPTZ,
			from_expansion BOOLEAN NOT NULL DEFAULT FALSE,
			topic_count INT NOT NULL,
			code_count INT NOT NULL,
			raw JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

const srcCols = `id, source_id, url, name, effective_date, from_expansion,
	topic_count, code_count, raw, created_at, updated_at`

func (r *topicSourceRepoPG) scanRow(row pgx.Row) (*StoredSource, error) {
	var s StoredSource
	err := row.Scan(&s.ID, &s.SourceID, &s.URL, &s.Name, &s.EffectiveDate,
		&s.FromExpansion, &s.TopicCount, &s.CodeCount, &s.Raw,
		&s.CreatedAt, &s.UpdatedAt)
	return &s, err
}

func (r *topicSourceRepoPG) Upsert(ctx context.Context, src *StoredSource) error {
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO topic_source (id, source_id, url, name, effective_date,
			from_expansion, topic_count, code_count, raw)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (source_id) DO UPDATE SET
			url=EXCLUDED.url, name=EXCLUDED.name,
			effective_date=EXCLUDED.effective_date,
			from_expansion=EXCLUDED.from_expansion,
			topic_count=EXCLUDED.topic_count, code_count=EXCLUDED.code_count,
			raw=EXCLUDED.raw, updated_at=NOW()`,
		src.ID, src.SourceID, src.URL, src.Name, src.EffectiveDate,
		src.FromExpansion, src.TopicCount, src.CodeCount, src.Raw)
	return err
}

func (r *topicSourceRepoPG) GetBySourceID(ctx context.Context, sourceID string) (*StoredSource, error) {
	s, err := r.scanRow(r.pool.QueryRow(ctx,
		`SELECT `+srcCols+` FROM topic_source WHERE source_id = $1`, sourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSourceNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *topicSourceRepoPG) List(ctx context.Context, limit, offset int) ([]*StoredSource, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM topic_source`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+srcCols+` FROM topic_source
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var sources []*StoredSource
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, 0, err
		}
		sources = append(sources, s)
	}
	return sources, total, rows.Err()
}

func (r *topicSourceRepoPG) All(ctx context.Context) ([]*StoredSource, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+srcCols+` FROM topic_source ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []*StoredSource
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

func (r *topicSourceRepoPG) Delete(ctx context.Context, sourceID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM topic_source WHERE source_id = $1`, sourceID)
	return err
}
