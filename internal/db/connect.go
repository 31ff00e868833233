package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:mindengage-exams.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/mindengage_exams?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if driver == DriverSQLite {
		// sqlite allows one writer; a single connection serializes transactions
		// instead of surfacing SQLITE_BUSY to callers.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := ensureSchema(ctx, db, driver); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func ensureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Timestamps are unix milliseconds (UTC). Booleans are 0/1 integers in both dialects.
const schemaSQLite = `
PRAGMA foreign_keys=ON;

CREATE TABLE IF NOT EXISTS collections (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  type TEXT NOT NULL,
  text TEXT NOT NULL,
  options_json TEXT NOT NULL,
  canonical_answer TEXT NOT NULL DEFAULT '',
  weight INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS questions_by_collection ON questions(collection_id, position);

CREATE TABLE IF NOT EXISTS exam_instances (
  id TEXT PRIMARY KEY,
  collection_id TEXT NOT NULL REFERENCES collections(id),
  title TEXT NOT NULL,
  start_at INTEGER NOT NULL,
  end_at INTEGER NOT NULL,
  max_attempts INTEGER NOT NULL,
  passing_score REAL NOT NULL,
  shuffle_questions INTEGER NOT NULL DEFAULT 0,
  allow_review INTEGER NOT NULL DEFAULT 0,
  notifications_json TEXT NOT NULL DEFAULT '{}',
  created_by TEXT NOT NULL,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS student_exams (
  id TEXT PRIMARY KEY,
  instance_id TEXT NOT NULL REFERENCES exam_instances(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  status TEXT NOT NULL,
  attempts_taken INTEGER NOT NULL DEFAULT 0,
  current_attempt_id TEXT NOT NULL DEFAULT '',
  UNIQUE (instance_id, student_id)
);
CREATE INDEX IF NOT EXISTS student_exams_by_student ON student_exams(student_id);

CREATE TABLE IF NOT EXISTS student_attempts (
  id TEXT PRIMARY KEY,
  student_exam_id TEXT NOT NULL REFERENCES student_exams(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  question_order_json TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  submitted_at INTEGER,
  grade REAL,
  passed INTEGER
);
CREATE INDEX IF NOT EXISTS attempts_by_student_exam ON student_attempts(student_exam_id);

CREATE TABLE IF NOT EXISTS student_responses (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES student_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  selected_json TEXT NOT NULL DEFAULT '[]',
  text_answer TEXT NOT NULL DEFAULT '',
  option_order_json TEXT NOT NULL DEFAULT '[]',
  flagged INTEGER NOT NULL DEFAULT 0,
  score REAL NOT NULL DEFAULT 0,
  updated_at INTEGER,
  UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  event_key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS collections (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS questions (
  id TEXT PRIMARY KEY,
  collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
  position INTEGER NOT NULL,
  type TEXT NOT NULL,
  text TEXT NOT NULL,
  options_json TEXT NOT NULL,
  canonical_answer TEXT NOT NULL DEFAULT '',
  weight INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS questions_by_collection ON questions(collection_id, position);

CREATE TABLE IF NOT EXISTS exam_instances (
  id TEXT PRIMARY KEY,
  collection_id TEXT NOT NULL REFERENCES collections(id),
  title TEXT NOT NULL,
  start_at BIGINT NOT NULL,
  end_at BIGINT NOT NULL,
  max_attempts INTEGER NOT NULL,
  passing_score DOUBLE PRECISION NOT NULL,
  shuffle_questions INTEGER NOT NULL DEFAULT 0,
  allow_review INTEGER NOT NULL DEFAULT 0,
  notifications_json TEXT NOT NULL DEFAULT '{}',
  created_by TEXT NOT NULL,
  created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS student_exams (
  id TEXT PRIMARY KEY,
  instance_id TEXT NOT NULL REFERENCES exam_instances(id) ON DELETE CASCADE,
  student_id TEXT NOT NULL,
  status TEXT NOT NULL,
  attempts_taken INTEGER NOT NULL DEFAULT 0,
  current_attempt_id TEXT NOT NULL DEFAULT '',
  UNIQUE (instance_id, student_id)
);
CREATE INDEX IF NOT EXISTS student_exams_by_student ON student_exams(student_id);

CREATE TABLE IF NOT EXISTS student_attempts (
  id TEXT PRIMARY KEY,
  student_exam_id TEXT NOT NULL REFERENCES student_exams(id) ON DELETE CASCADE,
  status TEXT NOT NULL,
  question_order_json TEXT NOT NULL,
  started_at BIGINT NOT NULL,
  submitted_at BIGINT,
  grade DOUBLE PRECISION,
  passed INTEGER
);
CREATE INDEX IF NOT EXISTS attempts_by_student_exam ON student_attempts(student_exam_id);

CREATE TABLE IF NOT EXISTS student_responses (
  id TEXT PRIMARY KEY,
  attempt_id TEXT NOT NULL REFERENCES student_attempts(id) ON DELETE CASCADE,
  question_id TEXT NOT NULL,
  selected_json TEXT NOT NULL DEFAULT '[]',
  text_answer TEXT NOT NULL DEFAULT '',
  option_order_json TEXT NOT NULL DEFAULT '[]',
  flagged INTEGER NOT NULL DEFAULT 0,
  score DOUBLE PRECISION NOT NULL DEFAULT 0,
  updated_at BIGINT,
  UNIQUE (attempt_id, question_id)
);

CREATE TABLE IF NOT EXISTS event_log (
  seq BIGSERIAL PRIMARY KEY,
  site_id TEXT NOT NULL DEFAULT 'local',
  typ TEXT NOT NULL,
  event_key TEXT NOT NULL,
  data TEXT NOT NULL,
  created_at BIGINT NOT NULL
);
`
