// Package pgsink publishes episode records to Postgres so downstream
// retrieval services can read chunks without touching the local index.
package pgsink

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hpungsan/castchunk/internal/record"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const (
	upsertEpisodeSQL = `
		INSERT INTO castchunk_episodes (episode_id, youtube_url, title, date, raw_text_length, num_chunks, run_id, published_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), now())
		ON CONFLICT (episode_id) DO UPDATE SET
			youtube_url = EXCLUDED.youtube_url,
			title = EXCLUDED.title,
			date = EXCLUDED.date,
			raw_text_length = EXCLUDED.raw_text_length,
			num_chunks = EXCLUDED.num_chunks,
			run_id = EXCLUDED.run_id,
			published_at = now()`

	deleteChunksSQL = `DELETE FROM castchunk_chunks WHERE episode_id = $1`

	insertChunkSQL = `
		INSERT INTO castchunk_chunks (episode_id, chunk_index, text, approx_word_count)
		VALUES ($1, $2, $3, $4)`
)

// beginner is the part of *pgxpool.Pool the publisher needs.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Publisher writes records into castchunk_episodes / castchunk_chunks.
type Publisher struct {
	pool   *pgxpool.Pool
	db     beginner
	logger *slog.Logger
}

// Connect creates a pgx pool for dsn, verifies connectivity and applies the
// embedded schema.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*Publisher, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Publisher{pool: pool, db: pool, logger: logger}
	if err := p.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("postgres publisher connected", slog.String("host", config.ConnConfig.Host))
	return p, nil
}

// Close releases the pool.
func (p *Publisher) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *Publisher) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := p.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		p.logger.Debug("migration applied", slog.String("file", entry.Name()))
	}
	return nil
}

// Publish replaces the stored copy of rec in a single transaction. The
// episode upsert, stale chunk removal and chunk inserts go out as one batch.
func (p *Publisher) Publish(ctx context.Context, rec *record.Record, runID string) error {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := buildBatch(rec, runID)
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("publish %s (statement %d): %w", rec.EpisodeID, i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("publish %s: %w", rec.EpisodeID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	p.logger.Debug("record published",
		slog.String("episode_id", rec.EpisodeID),
		slog.Int("chunks", len(rec.Chunks)))
	return nil
}

// buildBatch queues the statements that make the stored copy of rec match rec.
func buildBatch(rec *record.Record, runID string) *pgx.Batch {
	batch := &pgx.Batch{}
	batch.Queue(upsertEpisodeSQL,
		rec.EpisodeID, rec.URL, rec.Title, rec.Date, rec.RawTextLength, rec.NumChunks, runID)
	batch.Queue(deleteChunksSQL, rec.EpisodeID)
	for _, c := range rec.Chunks {
		batch.Queue(insertChunkSQL, rec.EpisodeID, c.Index, c.Text, c.ApproxWordCount)
	}
	return batch
}
