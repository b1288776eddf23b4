package library

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"yaad/internal/config"
	"yaad/internal/media"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases at other versions refuse to open.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the
// expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store persists library items backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the library database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.Paths.Database)
}

// OpenPath opens the database at an explicit path, applying pragmas and the
// schema.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		return nil
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d",
			ErrSchemaMismatch, version, schemaVersion)
	}
	return nil
}

const itemColumns = "id, user_id, type, title, original_title, external_id, year, description, cover_url, duration_minutes, page_count, publisher, language, source, confidence, status, rating, notes, consumed_at, created_at, updated_at"

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		id            int64
		userID        int64
		typeStr       string
		title         string
		originalTitle sql.NullString
		externalID    sql.NullString
		year          sql.NullInt64
		description   sql.NullString
		coverURL      sql.NullString
		duration      sql.NullInt64
		pageCount     sql.NullInt64
		publisher     sql.NullString
		language      sql.NullString
		source        sql.NullString
		confidence    sql.NullFloat64
		statusStr     string
		rating        sql.NullFloat64
		notes         sql.NullString
		consumedRaw   sql.NullString
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&userID,
		&typeStr,
		&title,
		&originalTitle,
		&externalID,
		&year,
		&description,
		&coverURL,
		&duration,
		&pageCount,
		&publisher,
		&language,
		&source,
		&confidence,
		&statusStr,
		&rating,
		&notes,
		&consumedRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		ID:              id,
		UserID:          userID,
		Type:            media.Type(typeStr),
		Title:           title,
		OriginalTitle:   originalTitle.String,
		ExternalID:      externalID.String,
		Year:            int(year.Int64),
		Description:     description.String,
		CoverURL:        coverURL.String,
		DurationMinutes: int(duration.Int64),
		PageCount:       int(pageCount.Int64),
		Publisher:       publisher.String,
		Language:        language.String,
		Source:          media.Source(source.String),
		Confidence:      confidence.Float64,
		Status:          media.Status(statusStr),
		Rating:          rating.Float64,
		Notes:           notes.String,
	}
	if consumedRaw.Valid {
		if consumed, err := parseTimeString(consumedRaw.String); err == nil {
			item.ConsumedAt = &consumed
		}
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty time")
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

// IsUniqueViolation reports whether the error is a unique-constraint failure
// from the dedup index.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateItem inserts a new item together with its author and genre links.
func (s *Store) CreateItem(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	if !item.Status.Valid() {
		item.Status = media.StatusToConsume
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO library_items (
            user_id, type, title, original_title, external_id, year,
            description, cover_url, duration_minutes, page_count, publisher,
            language, source, confidence, status, rating, notes, consumed_at,
            created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.UserID,
		string(item.Type),
		item.Title,
		nullableString(item.OriginalTitle),
		nullableString(item.ExternalID),
		nullableInt(item.Year),
		nullableString(item.Description),
		nullableString(item.CoverURL),
		nullableInt(item.DurationMinutes),
		nullableInt(item.PageCount),
		nullableString(item.Publisher),
		nullableString(item.Language),
		nullableString(string(item.Source)),
		nullableFloat(item.Confidence),
		string(item.Status),
		nullableFloat(item.Rating),
		nullableString(item.Notes),
		nullableTime(item.ConsumedAt),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read insert id: %w", err)
	}
	item.ID = id

	if err := s.linkDictionaries(ctx, tx, item); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create: %w", err)
	}
	return nil
}

// UpdateItem persists changes to an existing item and replaces its author
// and genre links.
func (s *Store) UpdateItem(ctx context.Context, item *Item) error {
	if item == nil {
		return errors.New("item is nil")
	}
	item.UpdatedAt = time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`UPDATE library_items
         SET type = ?, title = ?, original_title = ?, external_id = ?,
             year = ?, description = ?, cover_url = ?, duration_minutes = ?,
             page_count = ?, publisher = ?, language = ?, source = ?,
             confidence = ?, status = ?, rating = ?, notes = ?,
             consumed_at = ?, updated_at = ?
         WHERE id = ?`,
		string(item.Type),
		item.Title,
		nullableString(item.OriginalTitle),
		nullableString(item.ExternalID),
		nullableInt(item.Year),
		nullableString(item.Description),
		nullableString(item.CoverURL),
		nullableInt(item.DurationMinutes),
		nullableInt(item.PageCount),
		nullableString(item.Publisher),
		nullableString(item.Language),
		nullableString(string(item.Source)),
		nullableFloat(item.Confidence),
		string(item.Status),
		nullableFloat(item.Rating),
		nullableString(item.Notes),
		nullableTime(item.ConsumedAt),
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM library_item_authors WHERE item_id = ?`, item.ID); err != nil {
		return fmt.Errorf("unlink authors: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM library_item_genres WHERE item_id = ?`, item.ID); err != nil {
		return fmt.Errorf("unlink genres: %w", err)
	}
	if err := s.linkDictionaries(ctx, tx, item); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update: %w", err)
	}
	return nil
}

// DeleteItem removes an item; join rows cascade.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM library_items WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

// GetItem returns one item by id, or nil when absent.
func (s *Store) GetItem(ctx context.Context, id int64) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM library_items WHERE id = ?`, id)
	return s.finishScan(ctx, row, "get item")
}

// GetByExternalID looks up the dedup key, or nil when absent.
func (s *Store) GetByExternalID(ctx context.Context, userID int64, mediaType media.Type, externalID string) (*Item, error) {
	if strings.TrimSpace(externalID) == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM library_items
         WHERE user_id = ? AND type = ? AND external_id = ?`,
		userID, string(mediaType), externalID)
	return s.finishScan(ctx, row, "get by external id")
}

// FindByTitleYear is the heuristic lookup for rows without an external id:
// case-insensitive title match, and when a year is given, rows with that
// year or no year at all.
func (s *Store) FindByTitleYear(ctx context.Context, userID int64, mediaType media.Type, title string, year int) (*Item, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, nil
	}
	query := `SELECT ` + itemColumns + ` FROM library_items
         WHERE user_id = ? AND type = ? AND title = ? COLLATE NOCASE`
	args := []any{userID, string(mediaType), title}
	if year > 0 {
		query += ` AND (year = ? OR year IS NULL)`
		args = append(args, year)
	}
	query += ` ORDER BY id LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, args...)
	return s.finishScan(ctx, row, "find by title")
}

// ListByUser returns a user's items, optionally filtered by type, ordered by
// title.
func (s *Store) ListByUser(ctx context.Context, userID int64, types ...media.Type) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM library_items WHERE user_id = ?`
	args := []any{userID}
	if len(types) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(types)), ", ")
		query += ` AND type IN (` + placeholders + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY title COLLATE NOCASE`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, item := range items {
		if err := s.loadDictionaries(ctx, item); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// ListIncomplete returns the user's rows missing enrichment metadata, the
// input set for a rebuild pass.
func (s *Store) ListIncomplete(ctx context.Context, userID int64) ([]*Item, error) {
	items, err := s.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	incomplete := items[:0]
	for _, item := range items {
		if item.Incomplete() {
			incomplete = append(incomplete, item)
		}
	}
	return incomplete, nil
}

// CountByUser returns the user's item count per media type.
func (s *Store) CountByUser(ctx context.Context, userID int64) (map[media.Type]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, COUNT(1) FROM library_items WHERE user_id = ? GROUP BY type`, userID)
	if err != nil {
		return nil, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()

	counts := make(map[media.Type]int)
	for rows.Next() {
		var typeStr string
		var count int
		if err := rows.Scan(&typeStr, &count); err != nil {
			return nil, err
		}
		counts[media.Type(typeStr)] = count
	}
	return counts, rows.Err()
}

func (s *Store) finishScan(ctx context.Context, row *sql.Row, operation string) (*Item, error) {
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	if err := s.loadDictionaries(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// linkDictionaries resolves every author and genre name to a dictionary row,
// creating missing ones, and links them to the item.
func (s *Store) linkDictionaries(ctx context.Context, tx *sql.Tx, item *Item) error {
	for _, name := range item.Authors {
		authorID, err := getOrCreateDictionary(ctx, tx, "authors", name, item.Type)
		if err != nil {
			return err
		}
		if authorID == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO library_item_authors (item_id, author_id) VALUES (?, ?)`,
			item.ID, authorID); err != nil {
			return fmt.Errorf("link author: %w", err)
		}
	}
	for _, name := range item.Genres {
		genreID, err := getOrCreateDictionary(ctx, tx, "genres", name, item.Type)
		if err != nil {
			return err
		}
		if genreID == 0 {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO library_item_genres (item_id, genre_id) VALUES (?, ?)`,
			item.ID, genreID); err != nil {
			return fmt.Errorf("link genre: %w", err)
		}
	}
	return nil
}

// getOrCreateDictionary returns the id for (name, media_type) in the named
// dictionary table, inserting it when new. Blank names resolve to 0.
func getOrCreateDictionary(ctx context.Context, tx *sql.Tx, table, name string, mediaType media.Type) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, nil
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO `+table+` (name, media_type) VALUES (?, ?)`,
		name, string(mediaType)); err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM `+table+` WHERE name = ? AND media_type = ?`,
		name, string(mediaType)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve %s: %w", table, err)
	}
	return id, nil
}

func (s *Store) loadDictionaries(ctx context.Context, item *Item) error {
	authors, err := s.loadNames(ctx,
		`SELECT a.name FROM authors a
         JOIN library_item_authors la ON la.author_id = a.id
         WHERE la.item_id = ? ORDER BY a.name`, item.ID)
	if err != nil {
		return fmt.Errorf("load authors: %w", err)
	}
	genres, err := s.loadNames(ctx,
		`SELECT g.name FROM genres g
         JOIN library_item_genres lg ON lg.genre_id = g.id
         WHERE lg.item_id = ? ORDER BY g.name`, item.ID)
	if err != nil {
		return fmt.Errorf("load genres: %w", err)
	}
	item.Authors = authors
	item.Genres = genres
	return nil
}

func (s *Store) loadNames(ctx context.Context, query string, itemID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
