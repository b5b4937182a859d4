package store

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"fscore/internal/domain"
	"fscore/internal/protocol/dhsession"
)

// ErrSessionNotFound is returned by the Update methods when the session row is gone.
var ErrSessionNotFound = errors.New("store: session not found")

// recordTx is the per-backend access to session records inside one transaction.
type recordTx interface {
	get(my, peer domain.Identity, id domain.SessionID) (*sessionRecord, error)
	put(rec *sessionRecord) error
	del(my, peer domain.Identity, id domain.SessionID) (bool, error)
	list(my, peer domain.Identity) ([]*sessionRecord, error)
}

// recordBackend runs read-only and read-write transactions.
type recordBackend interface {
	view(fn func(recordTx) error) error
	update(fn func(recordTx) error) error
	close() error
}

// SessionStore implements domain.SessionStore over SQLite or bbolt.
// Secrets are wrapped with the device key before they reach the backend.
type SessionStore struct {
	backend recordBackend
	wrapper domain.KeyWrapper
}

func newSessionStore(b recordBackend, w domain.KeyWrapper) *SessionStore {
	return &SessionStore{backend: b, wrapper: w}
}

// StoreSession inserts s or replaces its keys and ratchets. The commit flag,
// last send time and versions of an existing row merge as in UpdateSessionMeta,
// so a concurrent Commit is not lost.
func (s *SessionStore) StoreSession(sess *dhsession.Session) error {
	rec, err := newSessionRecord(s.wrapper, sess)
	if err != nil {
		return err
	}
	return s.backend.update(func(tx recordTx) error {
		stored, err := tx.get(sess.MyIdentity, sess.PeerIdentity, sess.ID)
		if err != nil {
			return err
		}
		if stored != nil && stored.corrupt == nil {
			mergeMeta(rec, stored)
		}
		return tx.put(rec)
	})
}

// LoadSession returns the session with the given id. Rows that cannot be
// decoded or unwrapped are deleted and reported as absent.
func (s *SessionStore) LoadSession(my, peer domain.Identity, id domain.SessionID) (*dhsession.Session, bool, error) {
	var rec *sessionRecord
	err := s.backend.view(func(tx recordTx) error {
		var err error
		rec, err = tx.get(my, peer, id)
		return err
	})
	if err != nil || rec == nil {
		return nil, false, err
	}
	sess, err := rec.session(s.wrapper)
	if err != nil {
		return nil, false, s.dropCorrupt(rec, err)
	}
	return sess, true, nil
}

// ListSessions returns every loadable session between my and peer, ordered by id.
func (s *SessionStore) ListSessions(my, peer domain.Identity) ([]*dhsession.Session, error) {
	var recs []*sessionRecord
	err := s.backend.view(func(tx recordTx) error {
		var err error
		recs, err = tx.list(my, peer)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]*dhsession.Session, 0, len(recs))
	for _, rec := range recs {
		sess, err := rec.session(s.wrapper)
		if err != nil {
			if err := s.dropCorrupt(rec, err); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// LoadBestSession returns dhsession.Best over ListSessions.
func (s *SessionStore) LoadBestSession(my, peer domain.Identity) (*dhsession.Session, bool, error) {
	sessions, err := s.ListSessions(my, peer)
	if err != nil {
		return nil, false, err
	}
	best := dhsession.Best(sessions)
	return best, best != nil, nil
}

// UpdateMyRatchets persists our ratchets and ephemeral key if they move forward.
func (s *SessionStore) UpdateMyRatchets(sess *dhsession.Session) error {
	return s.merge(sess, "UpdateMyRatchets", mergeMyRatchets)
}

// UpdatePeerRatchets persists the peer ratchets if they move forward.
func (s *SessionStore) UpdatePeerRatchets(sess *dhsession.Session) error {
	return s.merge(sess, "UpdatePeerRatchets", mergePeerRatchets)
}

// UpdateSessionMeta persists the commit flag, last send time and versions.
func (s *SessionStore) UpdateSessionMeta(sess *dhsession.Session) error {
	return s.merge(sess, "UpdateSessionMeta", func(stored, next *sessionRecord) bool {
		mergeMeta(stored, next)
		return true
	})
}

func (s *SessionStore) merge(sess *dhsession.Session, op string, fn func(stored, next *sessionRecord) bool) error {
	next, err := newSessionRecord(s.wrapper, sess)
	if err != nil {
		return err
	}
	var dropped *sessionRecord
	err = s.backend.update(func(tx recordTx) error {
		stored, err := tx.get(sess.MyIdentity, sess.PeerIdentity, sess.ID)
		if err != nil {
			return err
		}
		if stored == nil {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
		}
		if stored.corrupt != nil {
			// Nothing to compare against; the row goes like any unreadable one.
			dropped = stored
			_, err := tx.del(stored.MyIdentity, stored.PeerIdentity, stored.SessionID)
			return err
		}
		if !fn(stored, next) {
			logrus.WithFields(logrus.Fields{
				"function": op,
				"session":  sess.ID.String(),
				"peer":     sess.PeerIdentity.String(),
			}).Debug("Stored ratchets are ahead, keeping them")
			return nil
		}
		return tx.put(stored)
	})
	if err != nil {
		return err
	}
	if dropped != nil {
		logCorrupt(dropped, dropped.corrupt)
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sess.ID)
	}
	return nil
}

// DeleteSession removes one session.
func (s *SessionStore) DeleteSession(my, peer domain.Identity, id domain.SessionID) (bool, error) {
	var deleted bool
	err := s.backend.update(func(tx recordTx) error {
		var err error
		deleted, err = tx.del(my, peer, id)
		return err
	})
	return deleted, err
}

// DeleteAllSessions removes every session between my and peer.
func (s *SessionStore) DeleteAllSessions(my, peer domain.Identity) (int, error) {
	return s.deleteWhere(my, peer, func(*sessionRecord) bool { return true })
}

// DeleteAllSessionsExcept removes all sessions but keep. With fourDHOnly set,
// sessions that never reached 4DH are kept too.
func (s *SessionStore) DeleteAllSessionsExcept(
	my, peer domain.Identity,
	keep domain.SessionID,
	fourDHOnly bool,
) (int, error) {
	return s.deleteWhere(my, peer, func(rec *sessionRecord) bool {
		if rec.SessionID == keep {
			return false
		}
		return !fourDHOnly || rec.MyRatchet4DH != nil
	})
}

func (s *SessionStore) deleteWhere(my, peer domain.Identity, match func(*sessionRecord) bool) (int, error) {
	n := 0
	err := s.backend.update(func(tx recordTx) error {
		recs, err := tx.list(my, peer)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			if rec.corrupt == nil && !match(rec) {
				continue
			}
			ok, err := tx.del(my, peer, rec.SessionID)
			if err != nil {
				return err
			}
			if ok {
				n++
			}
		}
		return nil
	})
	return n, err
}

// Close releases the backend.
func (s *SessionStore) Close() error { return s.backend.close() }

func (s *SessionStore) dropCorrupt(rec *sessionRecord, cause error) error {
	if !errors.Is(cause, errCorruptSession) {
		return cause
	}
	logCorrupt(rec, cause)
	return s.backend.update(func(tx recordTx) error {
		_, err := tx.del(rec.MyIdentity, rec.PeerIdentity, rec.SessionID)
		return err
	})
}

func logCorrupt(rec *sessionRecord, cause error) {
	logrus.WithFields(logrus.Fields{
		"function": "dropCorrupt",
		"session":  rec.SessionID.String(),
		"peer":     rec.PeerIdentity.String(),
		"error":    cause.Error(),
	}).Warn("Deleting unreadable session")
}

// Compile-time assertion that SessionStore implements domain.SessionStore.
var _ domain.SessionStore = (*SessionStore)(nil)
