package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/david/campus-notice/internal/models"
)

var (
	// ErrNotFound is returned when a run id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrUnsupported is returned by stores that lack a capability, such as
	// similarity search on SQLite.
	ErrUnsupported = errors.New("not supported by this store")
)

// RunStore persists run history.
type RunStore interface {
	SaveRun(ctx context.Context, rec models.RunRecord) error
	ListRuns(ctx context.Context, params ListParams) ([]models.RunRecord, error)
	GetRun(ctx context.Context, id uuid.UUID) (*models.RunRecord, error)
	SimilarNotices(ctx context.Context, query string, limit int) ([]NoticeMatch, error)
	Close() error
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type ListParams struct {
	SourceID string
	Status   models.Status
	Limit    int
	Offset   int
}

func (p ListParams) limit() int {
	if p.Limit <= 0 || p.Limit > 200 {
		return 50
	}
	return p.Limit
}

// NoticeMatch is a stored feed item close to a query.
type NoticeMatch struct {
	RunID      uuid.UUID       `json:"run_id"`
	Item       models.FeedItem `json:"item"`
	Similarity float64         `json:"similarity"`
}

// Open returns the store selected by driver: "postgres", "sqlite", or nil for "none".
func Open(ctx context.Context, driver, dsn string, embedder Embedder) (RunStore, error) {
	switch driver {
	case "", "none":
		return nil, nil
	case "postgres":
		pool, err := Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if err := ApplyMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		// reconnect so every connection sees the vector type
		pool.Reset()
		return NewPGStore(pool, embedder), nil
	case "sqlite":
		store, err := OpenSQLite(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func decodeImages(raw []byte) []string {
	var out []string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

func decodeAttributes(raw []byte) map[string]string {
	var out map[string]string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return out
}

func imagesJSON(images []string) []byte {
	if images == nil {
		images = []string{}
	}
	raw, _ := json.Marshal(images)
	return raw
}

func attributesJSON(attrs map[string]string) []byte {
	if len(attrs) == 0 {
		return nil
	}
	raw, _ := json.Marshal(attrs)
	return raw
}
