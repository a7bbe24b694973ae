// Package store provides SQLite persistence for collected records and
// batch run results.
package store

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MarcellusVR007/drone-cuas-osint-dashboard-sub001/internal/model"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Open creates a new Store with the given database path and brings the
// schema up to date. ":memory:" opens a private in-memory database.
// Uses WAL mode for file-based databases.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveIncidents stores incidents, returning the count of new ones.
// Known ids are ignored via INSERT OR IGNORE.
func (s *Store) SaveIncidents(incidents []model.Incident) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(incidents) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO incidents (
			id, title, text, occurred_at, location_label, lat, lon, source, url, stored_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	newCount := 0
	for _, inc := range incidents {
		var lat, lon sql.NullFloat64
		if c := inc.Location.Coords; c != nil {
			lat = sql.NullFloat64{Float64: c.Lat, Valid: true}
			lon = sql.NullFloat64{Float64: c.Lon, Valid: true}
		}
		n, err := execCount(stmt,
			inc.ID, inc.Title, inc.Text, inc.Timestamp.UTC(), inc.Location.Label,
			lat, lon, inc.Source, inc.URL, now,
		)
		if err != nil {
			return 0, fmt.Errorf("incident %s: %w", inc.ID, err)
		}
		newCount += n
	}
	return newCount, tx.Commit()
}

// SavePosts stores posts, returning the count of new ones.
func (s *Store) SavePosts(posts []model.SocialPost) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(posts) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO posts (
			id, channel_id, text, posted_at, target_location, payment_amount, payment_currency, stored_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	newCount := 0
	for _, p := range posts {
		amount, currency := paymentArgs(p.Payment)
		n, err := execCount(stmt,
			p.ID, p.ChannelID, p.Text, p.Timestamp.UTC(), p.TargetLocationText,
			amount, currency, now,
		)
		if err != nil {
			return 0, fmt.Errorf("post %s: %w", p.ID, err)
		}
		newCount += n
	}
	return newCount, tx.Commit()
}

// SaveChannels stores channels, returning the count of new ones. Known
// channels get their metadata refreshed.
func (s *Store) SaveChannels(channels []model.Channel) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(channels) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`
		INSERT OR IGNORE INTO channels (
			username, title, created_at, category, verified, subscriber_count, language, hops
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer insert.Close()

	update, err := tx.Prepare(`
		UPDATE channels SET
			title = ?, created_at = ?, category = ?, verified = ?,
			subscriber_count = ?, language = ?, hops = ?
		WHERE username = ?
	`)
	if err != nil {
		return 0, err
	}
	defer update.Close()

	newCount := 0
	for _, ch := range channels {
		n, err := execCount(insert,
			ch.Username, ch.Title, ch.CreatedAt.UTC(), string(ch.Category),
			boolToInt(ch.Verified), ch.SubscriberCount, ch.Language, hopsColumn(ch.Hops),
		)
		if err != nil {
			return 0, fmt.Errorf("channel %s: %w", ch.Username, err)
		}
		if n > 0 {
			newCount++
			continue
		}
		if _, err := update.Exec(
			ch.Title, ch.CreatedAt.UTC(), string(ch.Category), boolToInt(ch.Verified),
			ch.SubscriberCount, ch.Language, hopsColumn(ch.Hops), ch.Username,
		); err != nil {
			return 0, fmt.Errorf("channel %s: %w", ch.Username, err)
		}
	}
	return newCount, tx.Commit()
}

// Incidents returns incidents that occurred at or after since, oldest first.
// A zero since returns everything.
func (s *Store) Incidents(since time.Time) ([]model.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, title, text, occurred_at, location_label, lat, lon, source, url
		FROM incidents
		WHERE occurred_at >= ?
		ORDER BY occurred_at, id
	`, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Incident
	for rows.Next() {
		var (
			inc      model.Incident
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(
			&inc.ID, &inc.Title, &inc.Text, &inc.Timestamp, &inc.Location.Label,
			&lat, &lon, &inc.Source, &inc.URL,
		); err != nil {
			return nil, err
		}
		inc.Timestamp = inc.Timestamp.UTC()
		if lat.Valid && lon.Valid {
			inc.Location.Coords = &model.Coordinates{Lat: lat.Float64, Lon: lon.Float64}
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// Posts returns posts made at or after since, oldest first.
func (s *Store) Posts(since time.Time) ([]model.SocialPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPosts(`
		SELECT id, channel_id, text, posted_at, target_location, payment_amount, payment_currency
		FROM posts
		WHERE posted_at >= ?
		ORDER BY posted_at, id
	`, since.UTC())
}

// SearchPosts runs a full-text query over post bodies and targets, best
// match first.
func (s *Store) SearchPosts(query string, limit int) ([]model.SocialPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	return s.queryPosts(`
		SELECT p.id, p.channel_id, p.text, p.posted_at, p.target_location, p.payment_amount, p.payment_currency
		FROM posts_fts
		JOIN posts p ON p.rowid = posts_fts.rowid
		WHERE posts_fts MATCH ?
		ORDER BY posts_fts.rank, p.id
		LIMIT ?
	`, ftsQuery(query), limit)
}

// queryPosts executes a query and scans results into posts.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryPosts(query string, args ...any) ([]model.SocialPost, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SocialPost
	for rows.Next() {
		var (
			p        model.SocialPost
			amount   sql.NullFloat64
			currency sql.NullString
		)
		if err := rows.Scan(
			&p.ID, &p.ChannelID, &p.Text, &p.Timestamp, &p.TargetLocationText, &amount, &currency,
		); err != nil {
			return nil, err
		}
		p.Timestamp = p.Timestamp.UTC()
		p.Payment = scanPayment(amount, currency)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Channels returns every stored channel ordered by username.
func (s *Store) Channels() ([]model.Channel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT username, title, created_at, category, verified, subscriber_count, language, hops
		FROM channels
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Channel
	for rows.Next() {
		var (
			ch       model.Channel
			category string
			verified int
			hops     int
		)
		if err := rows.Scan(
			&ch.Username, &ch.Title, &ch.CreatedAt, &category, &verified,
			&ch.SubscriberCount, &ch.Language, &hops,
		); err != nil {
			return nil, err
		}
		ch.CreatedAt = ch.CreatedAt.UTC()
		ch.Category = model.ChannelCategory(category)
		ch.Verified = verified != 0
		if hops >= 0 {
			ch.Hops = model.HopCount(hops)
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// Counts returns how many incidents, posts and channels are stored.
func (s *Store) Counts() (incidents, posts, channels int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM incidents),
			(SELECT COUNT(*) FROM posts),
			(SELECT COUNT(*) FROM channels)
	`).Scan(&incidents, &posts, &channels)
	return incidents, posts, channels, err
}

// ftsQuery quotes every token so user input cannot inject FTS5 syntax.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}

func execCount(stmt *sql.Stmt, args ...any) (int, error) {
	result, err := stmt.Exec(args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		return 1, nil
	}
	return 0, nil
}

func paymentArgs(p *model.Payment) (sql.NullFloat64, sql.NullString) {
	if p == nil {
		return sql.NullFloat64{}, sql.NullString{}
	}
	return sql.NullFloat64{Float64: p.Amount, Valid: true}, sql.NullString{String: p.Currency, Valid: true}
}

func scanPayment(amount sql.NullFloat64, currency sql.NullString) *model.Payment {
	if !amount.Valid {
		return nil
	}
	return &model.Payment{Amount: amount.Float64, Currency: currency.String}
}

func newRunID() string { return uuid.NewString() }

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// hopsColumn stores unknown hops as -1.
func hopsColumn(h *int) int {
	if h == nil {
		return -1
	}
	return *h
}
