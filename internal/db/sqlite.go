package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/david/campus-notice/internal/models"
)

// SQLiteStore keeps run history in a local SQLite file.
type SQLiteStore struct {
	sql *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = "campus-notice.db"
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{sql: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.sql == nil {
		return nil
	}
	return s.sql.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, rec models.RunRecord) (err error) {
	tx, err := s.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `INSERT INTO runs (`+runCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			message = excluded.message,
			scanned = excluded.scanned,
			aligned = excluded.aligned,
			board_errors = excluded.board_errors,
			best_score = excluded.best_score,
			finished_at = excluded.finished_at`,
		rec.ID.String(), rec.TargetURL, rec.SourceID, string(rec.Status), rec.Message,
		rec.Scanned, rec.Aligned, rec.BoardErrors, rec.BestScore, rec.StartedAt.UTC(), nullTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM feed_items WHERE run_id = ?`, rec.ID.String()); err != nil {
		return fmt.Errorf("clear feed items: %w", err)
	}
	for i, it := range rec.Items {
		_, err = tx.ExecContext(ctx, `INSERT INTO feed_items (run_id, rank, `+itemCols+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID.String(), i, it.Title, it.Summary, it.OriginalURL, it.Board, it.Score, it.Reason,
			it.FullContent, string(imagesJSON(it.Images)), nullBytes(attributesJSON(it.Attributes)), it.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert feed item %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListRuns(ctx context.Context, params ListParams) ([]models.RunRecord, error) {
	query := "SELECT " + runCols + " FROM runs WHERE 1=1"
	var args []interface{}
	if params.SourceID != "" {
		query += " AND source_id = ?"
		args = append(args, params.SourceID)
	}
	if params.Status != "" {
		query += " AND status = ?"
		args = append(args, string(params.Status))
	}
	query += " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, params.limit(), params.Offset)

	rows, err := s.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RunRecord
	for rows.Next() {
		rec, err := scanSQLiteRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (*models.RunRecord, error) {
	rec, err := scanSQLiteRun(s.sql.QueryRowContext(ctx, "SELECT "+runCols+" FROM runs WHERE id = ?", id.String()).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.sql.QueryContext(ctx, "SELECT "+itemCols+" FROM feed_items WHERE run_id = ? ORDER BY rank", id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			it     models.FeedItem
			images string
			attr   sql.NullString
		)
		if err := rows.Scan(&it.Title, &it.Summary, &it.OriginalURL, &it.Board, &it.Score, &it.Reason,
			&it.FullContent, &images, &attr, &it.Timestamp); err != nil {
			return nil, err
		}
		it.Images = decodeImages([]byte(images))
		it.Attributes = decodeAttributes([]byte(attr.String))
		rec.Items = append(rec.Items, it)
	}
	return &rec, rows.Err()
}

func (s *SQLiteStore) SimilarNotices(ctx context.Context, query string, limit int) ([]NoticeMatch, error) {
	return nil, ErrUnsupported
}

func scanSQLiteRun(scan func(dest ...interface{}) error) (models.RunRecord, error) {
	var (
		rec      models.RunRecord
		id       string
		status   string
		finished sql.NullTime
	)
	if err := scan(&id, &rec.TargetURL, &rec.SourceID, &status, &rec.Message,
		&rec.Scanned, &rec.Aligned, &rec.BoardErrors, &rec.BestScore, &rec.StartedAt, &finished); err != nil {
		return rec, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return rec, fmt.Errorf("bad run id %q: %w", id, err)
	}
	rec.ID = parsed
	rec.Status = models.Status(status)
	if finished.Valid {
		t := finished.Time
		rec.FinishedAt = &t
	}
	return rec, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
