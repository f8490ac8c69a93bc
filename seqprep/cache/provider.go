// Package cache persists materialized preprocessing output in a local libsql
// database so expensive tokenize/denoise passes run once per pipeline key.
package cache

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ZanzyTHEbar/seqprep/seqprep/dataset"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"
)

// Provider stores preprocessed example streams keyed by a pipeline
// descriptor. A stream is only served once fully written: interrupted writes
// leave no visible entry.
type Provider struct {
	db *sql.DB
}

// New opens or initializes the cache database at path. Parent directories
// are created as needed.
func New(path string) (*Provider, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create cache directory: %w", err)
		}
	}

	db, err := sql.Open("libsql", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	p := &Provider{db: db}
	if err := p.init(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// init sets up the cache tables.
func (p *Provider) init() error {
	_, err := p.db.Exec(`CREATE TABLE IF NOT EXISTS streams (
		id TEXT PRIMARY KEY UNIQUE,
		key TEXT UNIQUE NOT NULL,
		complete INTEGER NOT NULL DEFAULT 0,
		example_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("failed to create streams table: %w", err)
	}

	_, err = p.db.Exec(`CREATE TABLE IF NOT EXISTS examples (
		id TEXT PRIMARY KEY UNIQUE,
		stream_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		features BLOB NOT NULL,
		FOREIGN KEY (stream_id) REFERENCES streams (id)
	)`)
	if err != nil {
		return fmt.Errorf("failed to create examples table: %w", err)
	}

	_, err = p.db.Exec(`CREATE INDEX IF NOT EXISTS idx_examples_stream
		ON examples (stream_id, position)`)
	if err != nil {
		return fmt.Errorf("failed to create examples index: %w", err)
	}
	return nil
}

// Has reports whether a fully written stream exists for key.
func (p *Provider) Has(key string) (bool, error) {
	var id string
	err := p.db.QueryRow("SELECT id FROM streams WHERE key = ? AND complete = 1", key).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up cache key: %w", err)
	}
	return true, nil
}

// Put writes a materialized stream under key, replacing any previous entry.
// The entry becomes visible only after every example is stored.
func (p *Provider) Put(key string, examples []dataset.Example) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteStreamTx(tx, key); err != nil {
		return err
	}

	streamID := uuid.New().String()
	_, err = tx.Exec("INSERT INTO streams (id, key, complete, example_count) VALUES (?, ?, 0, ?)",
		streamID, key, len(examples))
	if err != nil {
		return fmt.Errorf("failed to insert stream: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO examples (id, stream_id, position, features) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare example insert: %w", err)
	}
	defer stmt.Close()

	for i, ex := range examples {
		features, err := dataset.EncodeExample(ex)
		if err != nil {
			return fmt.Errorf("failed to encode example %d: %w", i, err)
		}
		if _, err := stmt.Exec(uuid.New().String(), streamID, i, features); err != nil {
			return fmt.Errorf("failed to insert example %d: %w", i, err)
		}
	}

	if _, err := tx.Exec("UPDATE streams SET complete = 1 WHERE id = ?", streamID); err != nil {
		return fmt.Errorf("failed to mark stream complete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Debug("cached stream", "key", key, "examples", len(examples))
	return nil
}

// Get reads the full stream stored under key.
func (p *Provider) Get(key string) ([]dataset.Example, error) {
	rows, err := p.db.Query(`SELECT e.features FROM examples e
		JOIN streams s ON s.id = e.stream_id
		WHERE s.key = ? AND s.complete = 1
		ORDER BY e.position`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query cached examples: %w", err)
	}
	defer rows.Close()

	var out []dataset.Example
	for rows.Next() {
		var features []byte
		if err := rows.Scan(&features); err != nil {
			return nil, fmt.Errorf("failed to scan cached example: %w", err)
		}
		ex, err := dataset.DecodeExample(features)
		if err != nil {
			return nil, fmt.Errorf("failed to decode cached example: %w", err)
		}
		out = append(out, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cached examples: %w", err)
	}
	return out, nil
}

// Delete removes the entry for key, if any.
func (p *Provider) Delete(key string) error {
	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := deleteStreamTx(tx, key); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func deleteStreamTx(tx *sql.Tx, key string) error {
	_, err := tx.Exec("DELETE FROM examples WHERE stream_id IN (SELECT id FROM streams WHERE key = ?)", key)
	if err != nil {
		return fmt.Errorf("failed to delete cached examples: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM streams WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete cached stream: %w", err)
	}
	return nil
}

// Cached wraps src so repeated iteration is served from the cache. On a miss
// the source examples are teed into the cache as they flow through; the entry
// is written only when the consumer drains the stream. Cache failures log and
// degrade to plain pass-through.
func (p *Provider) Cached(key string, src dataset.Stream) dataset.Stream {
	return func(yield func(dataset.Example) bool) {
		hit, err := p.Has(key)
		if err != nil {
			slog.Warn("cache lookup failed, streaming source", "key", key, "error", err)
			src(yield)
			return
		}
		if hit {
			stored, err := p.Get(key)
			if err != nil {
				slog.Warn("cache read failed, streaming source", "key", key, "error", err)
				src(yield)
				return
			}
			for _, ex := range stored {
				if !yield(ex.Clone()) {
					return
				}
			}
			return
		}

		var buf []dataset.Example
		drained := true
		src(func(ex dataset.Example) bool {
			buf = append(buf, ex.Clone())
			if !yield(ex) {
				drained = false
				return false
			}
			return true
		})
		if !drained {
			return
		}
		if err := p.Put(key, buf); err != nil {
			slog.Warn("cache write failed", "key", key, "error", err)
		}
	}
}

// Close releases the underlying database handle.
func (p *Provider) Close() error {
	return p.db.Close()
}
