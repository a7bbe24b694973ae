package store

import "fmt"

// migrations are applied in order; PRAGMA user_version records how many
// have run.
var migrations = []string{
	// 1: records and run results
	`
	CREATE TABLE IF NOT EXISTS incidents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		text TEXT NOT NULL,
		occurred_at DATETIME NOT NULL,
		location_label TEXT NOT NULL DEFAULT '',
		lat REAL,
		lon REAL,
		source TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		stored_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_incidents_occurred ON incidents(occurred_at);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		channel_id TEXT NOT NULL,
		text TEXT NOT NULL,
		posted_at DATETIME NOT NULL,
		target_location TEXT NOT NULL DEFAULT '',
		payment_amount REAL,
		payment_currency TEXT,
		stored_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_posted ON posts(posted_at);
	CREATE INDEX IF NOT EXISTS idx_posts_channel ON posts(channel_id);

	CREATE TABLE IF NOT EXISTS channels (
		username TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		verified INTEGER NOT NULL DEFAULT 0,
		subscriber_count INTEGER NOT NULL DEFAULT 0,
		language TEXT NOT NULL DEFAULT '',
		hops INTEGER NOT NULL DEFAULT -1
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		reference_time DATETIME NOT NULL,
		lexicon_version TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at DESC);

	CREATE TABLE IF NOT EXISTS post_scores (
		run_id TEXT NOT NULL REFERENCES runs(id),
		post_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		score INTEGER NOT NULL,
		tier TEXT NOT NULL,
		categories TEXT NOT NULL DEFAULT '',
		payment_amount REAL,
		payment_currency TEXT,
		location TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, post_id)
	);

	CREATE TABLE IF NOT EXISTS correlations (
		run_id TEXT NOT NULL REFERENCES runs(id),
		post_id TEXT NOT NULL,
		incident_id TEXT NOT NULL,
		days_delta INTEGER NOT NULL,
		strength TEXT NOT NULL,
		location TEXT NOT NULL,
		post_method TEXT NOT NULL,
		post_term TEXT NOT NULL,
		incident_method TEXT NOT NULL,
		incident_term TEXT NOT NULL,
		PRIMARY KEY (post_id, incident_id)
	);

	CREATE TABLE IF NOT EXISTS predictions (
		run_id TEXT NOT NULL REFERENCES runs(id),
		post_id TEXT NOT NULL,
		location TEXT NOT NULL,
		window_start DATETIME NOT NULL,
		window_end DATETIME NOT NULL,
		status TEXT NOT NULL,
		age_days INTEGER NOT NULL,
		PRIMARY KEY (run_id, post_id)
	);

	CREATE TABLE IF NOT EXISTS channel_priorities (
		run_id TEXT NOT NULL REFERENCES runs(id),
		username TEXT NOT NULL,
		score INTEGER NOT NULL,
		tier TEXT NOT NULL,
		category TEXT NOT NULL,
		category_risk INTEGER NOT NULL,
		graph_proximity INTEGER NOT NULL,
		age INTEGER NOT NULL,
		verification INTEGER NOT NULL,
		language INTEGER NOT NULL,
		PRIMARY KEY (run_id, username)
	);

	CREATE TABLE IF NOT EXISTS record_errors (
		run_id TEXT NOT NULL REFERENCES runs(id),
		record_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		error TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_record_errors_run ON record_errors(run_id);
	`,

	// 2: full-text search over posts
	`
	CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts USING fts5(
		text, target_location,
		content='posts', content_rowid='rowid'
	);
	CREATE TRIGGER IF NOT EXISTS posts_fts_insert AFTER INSERT ON posts BEGIN
		INSERT INTO posts_fts(rowid, text, target_location)
		VALUES (new.rowid, new.text, new.target_location);
	END;
	CREATE TRIGGER IF NOT EXISTS posts_fts_delete AFTER DELETE ON posts BEGIN
		INSERT INTO posts_fts(posts_fts, rowid, text, target_location)
		VALUES ('delete', old.rowid, old.text, old.target_location);
	END;
	INSERT INTO posts_fts(posts_fts) VALUES ('rebuild');
	`,
}

// SchemaVersion is the user_version after all migrations.
var SchemaVersion = len(migrations)

// migrate applies pending migrations, each in its own transaction.
func (s *Store) migrate() error {
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read user_version: %w", err)
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not take bound parameters
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("set user_version %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
