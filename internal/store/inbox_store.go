package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"fscore/internal/domain"
)

const inboxFile = "inbox.cbor"

// InboxFileStore keeps received plaintexts in a CBOR file that is replaced
// atomically on every write. A message is durable once SaveMessage returns.
type InboxFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewInboxFileStore returns an InboxFileStore rooted at dir.
func NewInboxFileStore(dir string) *InboxFileStore {
	return &InboxFileStore{dir: dir}
}

// SaveMessage appends m unless a message with the same sender and id exists.
func (s *InboxFileStore) SaveMessage(m domain.DecryptedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range msgs {
		if existing.From == m.From && existing.ID == m.ID {
			return nil
		}
	}
	msgs = append(msgs, m)
	b, err := cbor.Marshal(msgs)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, inboxFile), b, 0o600)
}

// ListMessages returns all stored messages in arrival order.
func (s *InboxFileStore) ListMessages() ([]domain.DecryptedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *InboxFileStore) load() ([]domain.DecryptedMessage, error) {
	b, err := readFile(filepath.Join(s.dir, inboxFile))
	if err != nil || b == nil {
		return nil, err
	}
	var msgs []domain.DecryptedMessage
	if err := cbor.Unmarshal(b, &msgs); err != nil {
		return nil, fmt.Errorf("inbox: %w", err)
	}
	return msgs, nil
}

// Compile-time assertion that InboxFileStore implements domain.InboxStore.
var _ domain.InboxStore = (*InboxFileStore)(nil)
