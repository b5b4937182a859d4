package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"fscore/internal/domain"
)

const sessionColumns = `my_identity, peer_identity, session_id,
	my_ephemeral_private_key, my_ephemeral_public_key,
	my_counter_2dh, my_chain_key_2dh, my_counter_4dh, my_chain_key_4dh,
	peer_counter_2dh, peer_chain_key_2dh, peer_counter_4dh, peer_chain_key_4dh,
	outgoing_offered_version, outgoing_applied_version, incoming_applied_min_version,
	new_session_committed, last_outgoing_message`

// OpenSQLiteSessionStore opens (creating if needed) the session database at
// path and migrates it to LatestSchemaVersion.
func OpenSQLiteSessionStore(path string, w domain.KeyWrapper) (*SessionStore, error) {
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := migrateTo(db, LatestSchemaVersion); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newSessionStore(&sqliteBackend{db: db}, w), nil
}

// MigrateSQLite moves the database at path to target without opening a store.
// It returns the version the database was at before.
func MigrateSQLite(path string, target int) (int, error) {
	db, err := openSQLite(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	before, err := schemaVersion(db)
	if err != nil {
		return 0, err
	}
	return before, migrateTo(db, target)
}

func openSQLite(path string) (*sql.DB, error) {
	// Writers take the lock at BEGIN so read-modify-write updates cannot interleave.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

type sqliteBackend struct {
	db *sql.DB
}

// sqlRunner is satisfied by *sql.DB and *sql.Tx.
type sqlRunner interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type sqliteTx struct {
	q sqlRunner
}

func (b *sqliteBackend) view(fn func(recordTx) error) error {
	return fn(&sqliteTx{q: b.db})
}

func (b *sqliteBackend) update(fn func(recordTx) error) error {
	tx, err := b.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(&sqliteTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *sqliteBackend) close() error { return b.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRatchet(counter sql.NullInt64, chainKey []byte) *ratchetRecord {
	if !counter.Valid {
		return nil
	}
	return &ratchetRecord{Counter: uint64(counter.Int64), ChainKey: chainKey}
}

func ratchetArgs(r *ratchetRecord) (any, any) {
	if r == nil {
		return nil, nil
	}
	return int64(r.Counter), r.ChainKey
}

func scanSessionRecord(row rowScanner) (*sessionRecord, error) {
	var (
		rec                                   sessionRecord
		my, peer                              string
		id, ephPub                            []byte
		my2, my4, peer2, peer4                sql.NullInt64
		my2Key, my4Key, peer2Key, peer4Key    []byte
		offered, applied, minIncoming, commit int64
		lastOutgoing                          sql.NullInt64
	)
	err := row.Scan(&my, &peer, &id, &rec.MyEphemeralPrivateKey, &ephPub,
		&my2, &my2Key, &my4, &my4Key, &peer2, &peer2Key, &peer4, &peer4Key,
		&offered, &applied, &minIncoming, &commit, &lastOutgoing)
	keyed := my != "" && peer != "" && len(id) == len(rec.SessionID)
	if err != nil {
		// Scan fills columns in order, so the key columns survive a bad value
		// further along the row.
		if keyed {
			return corruptRecord(domain.Identity(my), domain.Identity(peer), domain.SessionID(id), err), nil
		}
		return nil, err
	}
	if !keyed {
		return nil, fmt.Errorf("%w: bad key columns", errCorruptSession)
	}
	if len(ephPub) != len(rec.MyEphemeralPublicKey) {
		return corruptRecord(domain.Identity(my), domain.Identity(peer), domain.SessionID(id),
			fmt.Errorf("ephemeral public key length %d", len(ephPub))), nil
	}
	rec.V = sessionRecordVersion
	rec.MyIdentity = domain.Identity(my)
	rec.PeerIdentity = domain.Identity(peer)
	copy(rec.SessionID[:], id)
	copy(rec.MyEphemeralPublicKey[:], ephPub)
	rec.MyRatchet2DH = scanRatchet(my2, my2Key)
	rec.MyRatchet4DH = scanRatchet(my4, my4Key)
	rec.PeerRatchet2DH = scanRatchet(peer2, peer2Key)
	rec.PeerRatchet4DH = scanRatchet(peer4, peer4Key)
	rec.Versions.OutgoingOffered = domain.Version(offered)
	rec.Versions.OutgoingApplied = domain.Version(applied)
	rec.Versions.IncomingAppliedMin = domain.Version(minIncoming)
	rec.NewSessionCommitted = commit != 0
	rec.LastOutgoingMessage = lastOutgoing.Int64
	return &rec, nil
}

func (t *sqliteTx) get(my, peer domain.Identity, id domain.SessionID) (*sessionRecord, error) {
	row := t.q.QueryRow(`SELECT `+sessionColumns+` FROM sessions
		WHERE my_identity = ? AND peer_identity = ? AND session_id = ?`,
		my.String(), peer.String(), id[:])
	rec, err := scanSessionRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func (t *sqliteTx) list(my, peer domain.Identity) ([]*sessionRecord, error) {
	rows, err := t.q.Query(`SELECT `+sessionColumns+` FROM sessions
		WHERE my_identity = ? AND peer_identity = ? AND length(session_id) = 16
		ORDER BY session_id`,
		my.String(), peer.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*sessionRecord
	for rows.Next() {
		rec, err := scanSessionRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t *sqliteTx) put(rec *sessionRecord) error {
	my2, my2Key := ratchetArgs(rec.MyRatchet2DH)
	my4, my4Key := ratchetArgs(rec.MyRatchet4DH)
	peer2, peer2Key := ratchetArgs(rec.PeerRatchet2DH)
	peer4, peer4Key := ratchetArgs(rec.PeerRatchet4DH)
	var lastOutgoing any
	if rec.LastOutgoingMessage != 0 {
		lastOutgoing = rec.LastOutgoingMessage
	}
	commit := 0
	if rec.NewSessionCommitted {
		commit = 1
	}
	_, err := t.q.Exec(`INSERT OR REPLACE INTO sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MyIdentity.String(), rec.PeerIdentity.String(), rec.SessionID[:],
		rec.MyEphemeralPrivateKey, rec.MyEphemeralPublicKey[:],
		my2, my2Key, my4, my4Key, peer2, peer2Key, peer4, peer4Key,
		int64(rec.Versions.OutgoingOffered), int64(rec.Versions.OutgoingApplied),
		int64(rec.Versions.IncomingAppliedMin), commit, lastOutgoing)
	return err
}

func (t *sqliteTx) del(my, peer domain.Identity, id domain.SessionID) (bool, error) {
	res, err := t.q.Exec(`DELETE FROM sessions
		WHERE my_identity = ? AND peer_identity = ? AND session_id = ?`,
		my.String(), peer.String(), id[:])
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
