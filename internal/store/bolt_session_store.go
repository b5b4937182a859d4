package store

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	bolt "go.etcd.io/bbolt"

	"fscore/internal/domain"
)

const sessionsBucket = "sessions"

// OpenBoltSessionStore opens (creating if needed) a bbolt session database at
// path. Records are CBOR encoded and carry their own format version.
func OpenBoltSessionStore(path string, w domain.KeyWrapper) (*SessionStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newSessionStore(&boltBackend{db: db}, w), nil
}

type boltBackend struct {
	db *bolt.DB
}

type boltTx struct {
	bkt *bolt.Bucket
}

func (b *boltBackend) view(fn func(recordTx) error) error {
	return b.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTx{bkt: tx.Bucket([]byte(sessionsBucket))})
	})
}

func (b *boltBackend) update(fn func(recordTx) error) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return fn(&boltTx{bkt: tx.Bucket([]byte(sessionsBucket))})
	})
}

func (b *boltBackend) close() error { return b.db.Close() }

// peerPrefix is my 0x00 peer 0x00; identities never contain a NUL.
func peerPrefix(my, peer domain.Identity) []byte {
	k := make([]byte, 0, len(my)+len(peer)+2+len(domain.SessionID{}))
	k = append(k, string(my)...)
	k = append(k, 0)
	k = append(k, string(peer)...)
	return append(k, 0)
}

func sessionKey(my, peer domain.Identity, id domain.SessionID) []byte {
	return append(peerPrefix(my, peer), id[:]...)
}

// decodeRecord never fails: an unreadable value comes back as a corrupt
// record keyed by my, peer and id.
func decodeRecord(my, peer domain.Identity, id domain.SessionID, v []byte) *sessionRecord {
	var rec sessionRecord
	if err := cbor.Unmarshal(v, &rec); err != nil {
		return corruptRecord(my, peer, id, err)
	}
	if rec.V != sessionRecordVersion {
		return corruptRecord(my, peer, id, fmt.Errorf("record version %d", rec.V))
	}
	if rec.MyIdentity != my || rec.PeerIdentity != peer || rec.SessionID != id {
		return corruptRecord(my, peer, id, errors.New("record stored under a foreign key"))
	}
	return &rec
}

func (t *boltTx) get(my, peer domain.Identity, id domain.SessionID) (*sessionRecord, error) {
	v := t.bkt.Get(sessionKey(my, peer, id))
	if v == nil {
		return nil, nil
	}
	return decodeRecord(my, peer, id, v), nil
}

func (t *boltTx) list(my, peer domain.Identity) ([]*sessionRecord, error) {
	prefix := peerPrefix(my, peer)
	var out []*sessionRecord
	c := t.bkt.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		var id domain.SessionID
		if len(k)-len(prefix) != len(id) {
			// Not a key sessionKey can produce.
			continue
		}
		copy(id[:], k[len(prefix):])
		out = append(out, decodeRecord(my, peer, id, v))
	}
	return out, nil
}

func (t *boltTx) put(rec *sessionRecord) error {
	rec.V = sessionRecordVersion
	v, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	return t.bkt.Put(sessionKey(rec.MyIdentity, rec.PeerIdentity, rec.SessionID), v)
}

func (t *boltTx) del(my, peer domain.Identity, id domain.SessionID) (bool, error) {
	k := sessionKey(my, peer, id)
	if t.bkt.Get(k) == nil {
		return false, nil
	}
	return true, t.bkt.Delete(k)
}
