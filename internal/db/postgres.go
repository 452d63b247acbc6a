package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/david/campus-notice/internal/logging"
	"github.com/david/campus-notice/internal/models"
)

// PGStore keeps run history in Postgres. With an Embedder, feed item titles are
// embedded for similarity search.
type PGStore struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

func NewPGStore(pool *pgxpool.Pool, embedder Embedder) *PGStore {
	return &PGStore{pool: pool, embedder: embedder}
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

const runCols = `id, target_url, source_id, status, message, scanned, aligned, board_errors, best_score, started_at, finished_at`

const itemCols = `title, summary, original_url, board, score, reason, full_content, images, attributes, item_ts`

func (s *PGStore) SaveRun(ctx context.Context, rec models.RunRecord) error {
	// embeddings are computed before the transaction opens
	vectors := s.embedItems(ctx, rec.Items)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `INSERT INTO runs (`+runCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			message = EXCLUDED.message,
			scanned = EXCLUDED.scanned,
			aligned = EXCLUDED.aligned,
			board_errors = EXCLUDED.board_errors,
			best_score = EXCLUDED.best_score,
			finished_at = EXCLUDED.finished_at`,
		rec.ID, rec.TargetURL, rec.SourceID, string(rec.Status), rec.Message,
		rec.Scanned, rec.Aligned, rec.BoardErrors, rec.BestScore, rec.StartedAt, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM feed_items WHERE run_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("clear feed items: %w", err)
	}
	for i, it := range rec.Items {
		var vec *pgvector.Vector
		if v, ok := vectors[i]; ok {
			vec = &v
		}
		_, err := tx.Exec(ctx, `INSERT INTO feed_items (run_id, rank, `+itemCols+`, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			rec.ID, i, it.Title, it.Summary, it.OriginalURL, it.Board, it.Score, it.Reason,
			it.FullContent, imagesJSON(it.Images), attributesJSON(it.Attributes), it.Timestamp, vec,
		)
		if err != nil {
			return fmt.Errorf("insert feed item %d: %w", i, err)
		}
	}
	return tx.Commit(ctx)
}

func (s *PGStore) embedItems(ctx context.Context, items []models.FeedItem) map[int]pgvector.Vector {
	if s.embedder == nil || len(items) == 0 {
		return nil
	}
	out := make(map[int]pgvector.Vector, len(items))
	for i, it := range items {
		emb, err := s.embedder.GenerateEmbedding(ctx, it.Title)
		if err != nil {
			logging.For("db").WithField("title", it.Title).Warnf("embedding failed: %v", err)
			continue
		}
		out[i] = pgvector.NewVector(emb)
	}
	return out
}

func (s *PGStore) ListRuns(ctx context.Context, params ListParams) ([]models.RunRecord, error) {
	where := "WHERE 1=1"
	var args []interface{}
	argIdx := 1
	if params.SourceID != "" {
		where += fmt.Sprintf(" AND source_id = $%d", argIdx)
		args = append(args, params.SourceID)
		argIdx++
	}
	if params.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(params.Status))
		argIdx++
	}
	query := fmt.Sprintf("SELECT %s FROM runs %s ORDER BY started_at DESC LIMIT $%d OFFSET $%d", runCols, where, argIdx, argIdx+1)
	args = append(args, params.limit(), params.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		rec, err := scanPGRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *PGStore) GetRun(ctx context.Context, id uuid.UUID) (*models.RunRecord, error) {
	rec, err := scanPGRun(s.pool.QueryRow(ctx, "SELECT "+runCols+" FROM runs WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, "SELECT "+itemCols+" FROM feed_items WHERE run_id = $1 ORDER BY rank", id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanPGItem(rows)
		if err != nil {
			return nil, err
		}
		rec.Items = append(rec.Items, it)
	}
	return &rec, rows.Err()
}

// SimilarNotices embeds query and returns the nearest stored feed items by cosine
// distance, one per link.
func (s *PGStore) SimilarNotices(ctx context.Context, query string, limit int) ([]NoticeMatch, error) {
	if s.embedder == nil {
		return nil, ErrUnsupported
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	emb, err := s.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT run_id, `+itemCols+`, similarity FROM (
			SELECT DISTINCT ON (original_url) run_id, `+itemCols+`,
				1 - (embedding <=> $1) AS similarity
			FROM feed_items
			WHERE embedding IS NOT NULL
			ORDER BY original_url, embedding <=> $1
		) nearest
		ORDER BY similarity DESC
		LIMIT $2`, pgvector.NewVector(emb), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NoticeMatch
	for rows.Next() {
		var (
			m            NoticeMatch
			images, attr []byte
		)
		it := &m.Item
		if err := rows.Scan(&m.RunID, &it.Title, &it.Summary, &it.OriginalURL, &it.Board, &it.Score, &it.Reason,
			&it.FullContent, &images, &attr, &it.Timestamp, &m.Similarity); err != nil {
			return nil, err
		}
		it.Images = decodeImages(images)
		it.Attributes = decodeAttributes(attr)
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanPGRun(row pgx.Row) (models.RunRecord, error) {
	var (
		rec      models.RunRecord
		status   string
		finished *time.Time
	)
	err := row.Scan(&rec.ID, &rec.TargetURL, &rec.SourceID, &status, &rec.Message,
		&rec.Scanned, &rec.Aligned, &rec.BoardErrors, &rec.BestScore, &rec.StartedAt, &finished)
	rec.Status = models.Status(status)
	rec.FinishedAt = finished
	return rec, err
}

func scanPGItem(row pgx.Row) (models.FeedItem, error) {
	var (
		it           models.FeedItem
		images, attr []byte
	)
	err := row.Scan(&it.Title, &it.Summary, &it.OriginalURL, &it.Board, &it.Score, &it.Reason,
		&it.FullContent, &images, &attr, &it.Timestamp)
	it.Images = decodeImages(images)
	it.Attributes = decodeAttributes(attr)
	return it, err
}
