package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sethdford/hivemind/internal/config"
	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(cfg config.StoreConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Enable WAL mode for concurrent read/write access and set a busy
	// timeout so writers retry instead of immediately returning SQLITE_BUSY.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("exec %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS pheromone_trails (
			id            TEXT PRIMARY KEY,
			swarm_id      TEXT NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id   TEXT NOT NULL,
			depositor     TEXT NOT NULL,
			trail_type    TEXT NOT NULL,
			intensity     REAL NOT NULL,
			metadata      TEXT,
			created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
			decayed_at    DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trails_swarm ON pheromone_trails(swarm_id, decayed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trails_resource ON pheromone_trails(swarm_id, resource_type, resource_id)`,
		`CREATE TABLE IF NOT EXISTS spawn_queue (
			id          TEXT PRIMARY KEY,
			requester   TEXT NOT NULL,
			target_role TEXT NOT NULL,
			depth_level INTEGER NOT NULL DEFAULT 0,
			priority    TEXT NOT NULL DEFAULT 'normal',
			depends_on  TEXT,
			swarm_id    TEXT,
			task        TEXT NOT NULL,
			context     TEXT,
			status      TEXT NOT NULL DEFAULT 'pending',
			result_id   TEXT,
			created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			resolved_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spawn_queue_status ON spawn_queue(status, created_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}

	return nil
}
