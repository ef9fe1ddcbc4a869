package dedupx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// CacheStore persists concept embeddings so history is embedded at most
// once. Entries are never evicted.
type CacheStore interface {
	Get(ctx context.Context, topic, conceptText string) ([]float32, bool, error)
	Put(ctx context.Context, topic, conceptText string, vector []float32) error
}

const cacheSchema = `
CREATE TABLE IF NOT EXISTS concept_embeddings (
    topic          TEXT NOT NULL,
    concept_text   TEXT NOT NULL,
    embedding_json TEXT NOT NULL,
    created_at     TIMESTAMP NOT NULL,
    PRIMARY KEY (topic, concept_text)
);
`

// SQLCache is a sqlx-backed CacheStore. Queries are written with ?
// placeholders and rebound, so the same store works on SQLite and
// PostgreSQL.
type SQLCache struct {
	db *sqlx.DB
}

// NewSQLCache creates the cache table if missing and returns the store.
func NewSQLCache(db *sqlx.DB) (*SQLCache, error) {
	if _, err := db.Exec(cacheSchema); err != nil {
		return nil, fmt.Errorf("create concept_embeddings schema: %w", err)
	}
	return &SQLCache{db: db}, nil
}

// Get returns the cached vector for a concept, if present.
func (c *SQLCache) Get(ctx context.Context, topic, conceptText string) ([]float32, bool, error) {
	var raw string
	query := c.db.Rebind(`SELECT embedding_json FROM concept_embeddings WHERE topic = ? AND concept_text = ?`)
	err := c.db.GetContext(ctx, &raw, query, topic, conceptText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read embedding cache: %w", err)
	}

	var vector []float32
	if err := json.Unmarshal([]byte(raw), &vector); err != nil {
		return nil, false, fmt.Errorf("decode cached embedding: %w", err)
	}
	return vector, true, nil
}

// Put stores a vector, replacing any existing entry for the same concept.
// Delete-then-insert keeps the statement portable across dialects.
func (c *SQLCache) Put(ctx context.Context, topic, conceptText string, vector []float32) error {
	data, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}

	del := c.db.Rebind(`DELETE FROM concept_embeddings WHERE topic = ? AND concept_text = ?`)
	if _, err := c.db.ExecContext(ctx, del, topic, conceptText); err != nil {
		return fmt.Errorf("replace cached embedding: %w", err)
	}

	ins := c.db.Rebind(`INSERT INTO concept_embeddings (topic, concept_text, embedding_json, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := c.db.ExecContext(ctx, ins, topic, conceptText, string(data), time.Now().UTC()); err != nil {
		return fmt.Errorf("write embedding cache: %w", err)
	}
	return nil
}
