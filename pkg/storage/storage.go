package storage

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

type DB struct {
	sql     *sql.DB
	dialect dialect
}

const schema = `
CREATE TABLE IF NOT EXISTS creators (
  id           INTEGER PRIMARY KEY,
  login        TEXT NOT NULL UNIQUE,
  display_name TEXT
);
CREATE TABLE IF NOT EXISTS voicebank_types (
  id   INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS languages (
  id        INTEGER PRIMARY KEY,
  code      TEXT NOT NULL UNIQUE,
  full_name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tags (
  id   INTEGER PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS profiles (
  id              INTEGER PRIMARY KEY,
  creator_id      BIGINT NOT NULL REFERENCES creators(id),
  repository_name TEXT NOT NULL,
  name            TEXT NOT NULL,
  avatar_url      TEXT NOT NULL,
  site_url        TEXT,
  stars           INTEGER NOT NULL DEFAULT 0,
  created_at      TEXT NOT NULL,
  last_activity   TEXT NOT NULL,
  details         TEXT NOT NULL,
  image_urls      TEXT NOT NULL,
  video_ids       TEXT NOT NULL,
  UNIQUE(creator_id, repository_name)
);
CREATE TABLE IF NOT EXISTS voicebanks (
  id          INTEGER PRIMARY KEY,
  profile_id  BIGINT NOT NULL REFERENCES profiles(id),
  position    INTEGER NOT NULL,
  name        TEXT NOT NULL,
  url         TEXT NOT NULL,
  description TEXT NOT NULL,
  type_id     BIGINT NOT NULL REFERENCES voicebank_types(id),
  sample_urls TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_voicebanks_profile ON voicebanks(profile_id);
CREATE TABLE IF NOT EXISTS voicebank_languages (
  voicebank_id BIGINT NOT NULL REFERENCES voicebanks(id),
  language_id  BIGINT NOT NULL REFERENCES languages(id),
  PRIMARY KEY(voicebank_id, language_id)
);
CREATE TABLE IF NOT EXISTS profile_tags (
  profile_id BIGINT NOT NULL REFERENCES profiles(id),
  tag_id     BIGINT NOT NULL REFERENCES tags(id),
  position   INTEGER NOT NULL,
  PRIMARY KEY(profile_id, tag_id)
);
CREATE TABLE IF NOT EXISTS profile_changes (
  id              INTEGER PRIMARY KEY,
  occurred_at     TEXT NOT NULL,
  run_id          TEXT NOT NULL,
  creator_login   TEXT NOT NULL,
  repository_name TEXT NOT NULL,
  change_type     TEXT NOT NULL CHECK (change_type IN ('added','updated','removed'))
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON profile_changes(occurred_at);
`

// Open connects to the store and makes sure the schema and reference data
// exist. A postgres:// or postgresql:// DSN selects PostgreSQL, anything else
// is treated as a SQLite file path.
func Open(path string) (*DB, error) {
	d := &DB{dialect: dialectSQLite}
	driver := "sqlite"
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	ddl := schema
	if IsPostgresDSN(path) {
		d.dialect = dialectPostgres
		driver = "postgres"
		dsn = path
		ddl = strings.ReplaceAll(schema, "INTEGER PRIMARY KEY", "BIGSERIAL PRIMARY KEY")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, err
	}
	d.sql = db
	if err := d.seedReference(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// IsPostgresDSN reports whether path points at a PostgreSQL server.
func IsPostgresDSN(path string) bool {
	return strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://")
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// rebind rewrites ? placeholders into $n for PostgreSQL.
func (d *DB) rebind(q string) string {
	if d.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
