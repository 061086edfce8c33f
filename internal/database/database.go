package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"monuguard/internal/logger"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Video statuses
const (
	StatusUploaded  = "uploaded"
	StatusAnalyzing = "analyzing"
	StatusAnalyzed  = "analyzed"
	StatusError     = "error"
)

// Database handles SQLite database operations
type Database struct {
	db *sql.DB
}

// VideoRecord represents an uploaded video
type VideoRecord struct {
	ID           string
	Filename     string // Stored file name under the upload dir
	OriginalName string
	Size         int64
	Mimetype     string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// New creates a new database connection
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection is alive
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS videos (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			original_name TEXT NOT NULL,
			size INTEGER NOT NULL,
			mimetype TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'uploaded',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_videos_created ON videos(created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	logger.Info("Database", "Migrations completed successfully")
	return nil
}

// SaveVideo inserts a new video record
func (d *Database) SaveVideo(v *VideoRecord) error {
	now := time.Now().UTC()
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	if v.UpdatedAt.IsZero() {
		v.UpdatedAt = v.CreatedAt
	}
	if v.Status == "" {
		v.Status = StatusUploaded
	}

	query := `INSERT INTO videos (id, filename, original_name, size, mimetype, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.Exec(query, v.ID, v.Filename, v.OriginalName, v.Size, v.Mimetype, v.Status, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save video: %w", err)
	}
	return nil
}

// GetVideo retrieves a video by ID
func (d *Database) GetVideo(id string) (*VideoRecord, error) {
	query := `SELECT id, filename, original_name, size, mimetype, status, created_at, updated_at FROM videos WHERE id = ?`

	var v VideoRecord
	err := d.db.QueryRow(query, id).Scan(&v.ID, &v.Filename, &v.OriginalName, &v.Size, &v.Mimetype, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}
	return &v, nil
}

// ListVideos returns all videos, newest first
func (d *Database) ListVideos() ([]*VideoRecord, error) {
	query := `SELECT id, filename, original_name, size, mimetype, status, created_at, updated_at
		FROM videos ORDER BY created_at DESC, rowid DESC`

	rows, err := d.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list videos: %w", err)
	}
	defer rows.Close()

	videos := make([]*VideoRecord, 0)
	for rows.Next() {
		var v VideoRecord
		if err := rows.Scan(&v.ID, &v.Filename, &v.OriginalName, &v.Size, &v.Mimetype, &v.Status, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, &v)
	}
	return videos, rows.Err()
}

// UpdateVideoStatus updates only the status of a video
func (d *Database) UpdateVideoStatus(id, status string) error {
	res, err := d.db.Exec("UPDATE videos SET status = ?, updated_at = ? WHERE id = ?", status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update video status: %w", err)
	}
	return expectOne(res)
}

// DeleteVideo deletes a video by ID
func (d *Database) DeleteVideo(id string) error {
	res, err := d.db.Exec("DELETE FROM videos WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	return expectOne(res)
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
