// Package pgindex stores chunk vectors in Postgres with the pgvector extension.
package pgindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"juris-rag/internal/vectorindex"
)

const DefaultTable = "chunk_vectors"

type Config struct {
	DSN       string
	Table     string
	Dimension int
}

type Index struct {
	pool      *pgxpool.Pool
	name      string
	table     string
	dimension int
}

var _ vectorindex.Index = (*Index)(nil)

func New(ctx context.Context, cfg Config) (*Index, error) {
	if cfg.Table == "" {
		cfg.Table = DefaultTable
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("pgvector dimension must be positive, got %d", cfg.Dimension)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres failed: %w", err)
	}
	idx := &Index{
		pool:      pool,
		name:      cfg.Table,
		table:     pgx.Identifier{cfg.Table}.Sanitize(),
		dimension: cfg.Dimension,
	}
	if err := idx.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *Index) migrate(ctx context.Context) error {
	if _, err := idx.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension failed: %w", err)
	}
	statements := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			chunk_id    TEXT PRIMARY KEY,
			seq         BIGSERIAL,
			user_id     TEXT NOT NULL,
			document_id TEXT NOT NULL,
			session_id  TEXT NOT NULL DEFAULT '',
			norm        DOUBLE PRECISION NOT NULL,
			embedding   vector(%d) NOT NULL
		)`, idx.table, idx.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (document_id)`,
			pgx.Identifier{idx.name + "_document_idx"}.Sanitize(), idx.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (user_id)`,
			pgx.Identifier{idx.name + "_user_idx"}.Sanitize(), idx.table),
	}
	for _, stmt := range statements {
		if _, err := idx.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate vector table failed: %w", err)
		}
	}
	return nil
}

func (idx *Index) Upsert(ctx context.Context, chunkID string, vector []float32, tags vectorindex.Filter) error {
	if chunkID == "" {
		return vectorindex.ErrMissingChunkID
	}
	if tags.DocumentID == "" {
		return vectorindex.ErrMissingDocumentID
	}
	if len(vector) == 0 {
		return vectorindex.ErrEmptyVector
	}
	if len(vector) != idx.dimension {
		return vectorindex.ErrDimensionMismatch
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (chunk_id, user_id, document_id, session_id, norm, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chunk_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			document_id = EXCLUDED.document_id,
			session_id = EXCLUDED.session_id,
			norm = EXCLUDED.norm,
			embedding = EXCLUDED.embedding`, idx.table)
	_, err := idx.pool.Exec(ctx, stmt,
		chunkID, tags.UserID, tags.DocumentID, tags.SessionID,
		vectorindex.Norm(vector), pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("upsert vector failed: %w", err)
	}
	return nil
}

func (idx *Index) Search(ctx context.Context, query []float32, filter vectorindex.Filter, topK int) ([]vectorindex.Match, error) {
	if topK <= 0 || vectorindex.Norm(query) == 0 {
		return nil, nil
	}
	if len(query) != idx.dimension {
		return nil, vectorindex.ErrDimensionMismatch
	}

	stmt := fmt.Sprintf(`
		SELECT chunk_id, 1 - (embedding <=> $1) AS score
		FROM %s
		WHERE norm > 0
			AND ($2 = '' OR user_id = $2)
			AND ($3 = '' OR document_id = $3)
			AND ($4 = '' OR session_id = $4)
		ORDER BY embedding <=> $1, seq
		LIMIT $5`, idx.table)
	rows, err := idx.pool.Query(ctx, stmt,
		pgvector.NewVector(query), filter.UserID, filter.DocumentID, filter.SessionID, topK)
	if err != nil {
		return nil, fmt.Errorf("search vectors failed: %w", err)
	}
	defer rows.Close()

	var matches []vectorindex.Match
	for rows.Next() {
		var m vectorindex.Match
		if err := rows.Scan(&m.ChunkID, &m.Score); err != nil {
			return nil, fmt.Errorf("scan vector match failed: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector matches failed: %w", err)
	}
	return matches, nil
}

// DeleteByDocument removes the document's vectors in one transaction and
// fails if fewer rows were deleted than were present when it started.
func (idx *Index) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, vectorindex.ErrMissingDocumentID
	}

	tx, err := idx.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return 0, fmt.Errorf("begin delete transaction failed: %w", err)
	}
	defer tx.Rollback(ctx)

	tracked, err := collectIDs(ctx, tx, fmt.Sprintf(`SELECT chunk_id FROM %s WHERE document_id = $1`, idx.table), documentID)
	if err != nil {
		return 0, err
	}
	deleted, err := collectIDs(ctx, tx, fmt.Sprintf(`DELETE FROM %s WHERE document_id = $1 RETURNING chunk_id`, idx.table), documentID)
	if err != nil {
		return 0, err
	}
	for id := range tracked {
		if _, ok := deleted[id]; !ok {
			return 0, fmt.Errorf("delete vectors for document %s incomplete: chunk %s remains", documentID, id)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit delete transaction failed: %w", err)
	}
	return len(deleted), nil
}

func (idx *Index) Count(ctx context.Context) (int, error) {
	var n int
	if err := idx.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, idx.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vectors failed: %w", err)
	}
	return n, nil
}

func (idx *Index) Ping(ctx context.Context) error {
	return idx.pool.Ping(ctx)
}

func (idx *Index) Close() {
	if idx.pool != nil {
		idx.pool.Close()
	}
}

func collectIDs(ctx context.Context, tx pgx.Tx, query string, documentID string) (map[string]struct{}, error) {
	rows, err := tx.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("query vector ids failed: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan vector id failed: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector ids failed: %w", err)
	}
	return ids, nil
}
