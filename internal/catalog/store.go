// Package catalog stores video rows in SQLite and shapes them for the listing API.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver (pure Go, no CGO)

	"reelstream/internal/model"
)

// ErrNotFound is returned when a video id does not exist.
var ErrNotFound = errors.New("video not found")

// Row is one persisted video. Empty strings stand for NULL columns.
type Row struct {
	ID          string
	YouTubeID   string
	Title       string
	Description string
	PlotSummary string
	Thumbnail   string
	Duration    string // ISO-8601, e.g. PT1M30S
	PublishedAt string
	Tags        []string
	CreatedAt   string
}

// Store provides SQLite persistence for the catalog.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens the database at dbPath and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	// WAL lets the listing read while an import writes.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS videos (
		id TEXT PRIMARY KEY,
		youtube_id TEXT NOT NULL,
		title TEXT NOT NULL,
		description TEXT,
		plot_summary TEXT,
		thumbnail_url TEXT,
		duration TEXT,
		published_at TEXT,
		tags TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_videos_created_at ON videos(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Upsert inserts or replaces a video row. CreatedAt defaults to now.
func (s *Store) Upsert(ctx context.Context, r Row) error {
	if r.ID == "" || r.YouTubeID == "" {
		return fmt.Errorf("upsert video: id and youtube_id are required")
	}
	if r.CreatedAt == "" {
		r.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}
	tags, err := json.Marshal(nonNil(r.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	query := `
	INSERT INTO videos (id, youtube_id, title, description, plot_summary, thumbnail_url, duration, published_at, tags, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		youtube_id = excluded.youtube_id,
		title = excluded.title,
		description = excluded.description,
		plot_summary = excluded.plot_summary,
		thumbnail_url = excluded.thumbnail_url,
		duration = excluded.duration,
		published_at = excluded.published_at,
		tags = excluded.tags
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID, r.YouTubeID, r.Title,
		nullString(r.Description), nullString(r.PlotSummary), nullString(r.Thumbnail),
		nullString(r.Duration), nullString(r.PublishedAt),
		string(tags), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert video %s: %w", r.ID, err)
	}
	return nil
}

const selectColumns = `id, youtube_id, title, description, plot_summary, thumbnail_url, duration, published_at, tags, created_at`

// List returns one page of videos, newest first. page is 1-based.
func (s *Store) List(ctx context.Context, page, limit int) ([]model.Video, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		return []model.Video{}, nil
	}
	query := `SELECT ` + selectColumns + ` FROM videos ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	defer func() { _ = rows.Close() }()

	videos := make([]model.Video, 0, limit)
	now := s.now()
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, ToVideo(r, now))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

// Get returns a single video by catalog id.
func (s *Store) Get(ctx context.Context, id string) (model.Video, error) {
	query := `SELECT ` + selectColumns + ` FROM videos WHERE id = ?`
	r, err := scanRow(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Video{}, ErrNotFound
	}
	if err != nil {
		return model.Video{}, fmt.Errorf("get video %s: %w", id, err)
	}
	return ToVideo(r, s.now()), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (Row, error) {
	var r Row
	var description, plot, thumb, duration, published sql.NullString
	var tags string
	if err := sc.Scan(&r.ID, &r.YouTubeID, &r.Title, &description, &plot, &thumb, &duration, &published, &tags, &r.CreatedAt); err != nil {
		return Row{}, err
	}
	r.Description = description.String
	r.PlotSummary = plot.String
	r.Thumbnail = thumb.String
	r.Duration = duration.String
	r.PublishedAt = published.String
	if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
		return Row{}, fmt.Errorf("decode tags for %s: %w", r.ID, err)
	}
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
