package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// ErrUnknownSchemaVersion is returned when asked to migrate outside the known range.
var ErrUnknownSchemaVersion = errors.New("store: unknown schema version")

// migration moves the SQLite schema from version-1 to version and back.
type migration struct {
	version int
	name    string
	up      []string
	down    []string
}

var sessionMigrations = []migration{
	{
		version: 1,
		name:    "create sessions",
		up: []string{`
			CREATE TABLE sessions (
				my_identity              TEXT NOT NULL,
				peer_identity            TEXT NOT NULL,
				session_id               BLOB NOT NULL,
				my_ephemeral_private_key BLOB,
				my_ephemeral_public_key  BLOB NOT NULL,
				my_counter_2dh           INTEGER,
				my_chain_key_2dh         BLOB,
				my_counter_4dh           INTEGER,
				my_chain_key_4dh         BLOB,
				peer_counter_2dh         INTEGER,
				peer_chain_key_2dh       BLOB,
				peer_counter_4dh         INTEGER,
				peer_chain_key_4dh       BLOB,
				PRIMARY KEY (my_identity, peer_identity, session_id)
			)`,
		},
		down: []string{`DROP TABLE sessions`},
	},
	{
		version: 2,
		name:    "negotiated versions",
		up: []string{
			`ALTER TABLE sessions ADD COLUMN outgoing_offered_version INTEGER NOT NULL DEFAULT 256`,
			`ALTER TABLE sessions ADD COLUMN outgoing_applied_version INTEGER NOT NULL DEFAULT 256`,
			`ALTER TABLE sessions ADD COLUMN incoming_applied_min_version INTEGER NOT NULL DEFAULT 256`,
		},
		down: []string{
			`ALTER TABLE sessions DROP COLUMN incoming_applied_min_version`,
			`ALTER TABLE sessions DROP COLUMN outgoing_applied_version`,
			`ALTER TABLE sessions DROP COLUMN outgoing_offered_version`,
		},
	},
	{
		version: 3,
		name:    "send bookkeeping",
		up: []string{
			`ALTER TABLE sessions ADD COLUMN new_session_committed INTEGER NOT NULL DEFAULT 0`,
			`ALTER TABLE sessions ADD COLUMN last_outgoing_message INTEGER`,
		},
		down: []string{
			`ALTER TABLE sessions DROP COLUMN last_outgoing_message`,
			`ALTER TABLE sessions DROP COLUMN new_session_committed`,
		},
	},
}

// LatestSchemaVersion is the schema version OpenSQLiteSessionStore migrates to.
var LatestSchemaVersion = sessionMigrations[len(sessionMigrations)-1].version

func schemaVersion(db *sql.DB) (int, error) {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return 0, err
	}
	var v int
	err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = db.Exec(`INSERT INTO schema_version (version) VALUES (0)`)
		return 0, err
	}
	return v, err
}

// migrateTo applies up or down migrations one version at a time, each in its
// own transaction.
func migrateTo(db *sql.DB, target int) error {
	if target < 0 || target > LatestSchemaVersion {
		return fmt.Errorf("%w: %d", ErrUnknownSchemaVersion, target)
	}
	current, err := schemaVersion(db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > LatestSchemaVersion {
		return fmt.Errorf("%w: database is at %d", ErrUnknownSchemaVersion, current)
	}

	for current != target {
		var (
			m     migration
			stmts []string
			next  int
		)
		if current < target {
			m = sessionMigrations[current]
			stmts, next = m.up, m.version
		} else {
			m = sessionMigrations[current-1]
			stmts, next = m.down, m.version-1
		}
		if err := runMigration(db, stmts, next); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		logrus.WithFields(logrus.Fields{
			"function": "migrateTo",
			"from":     current,
			"to":       next,
			"name":     m.name,
		}).Info("Applied session schema migration")
		current = next
	}
	return nil
}

func runMigration(db *sql.DB, stmts []string, next int) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, next); err != nil {
		return err
	}
	return tx.Commit()
}
