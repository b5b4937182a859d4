package store

import (
	"path/filepath"
	"sort"
	"sync"

	"fscore/internal/domain"
)

const contactsFile = "contacts.json"

// ContactFileStore persists known peers to disk, keyed by identity.
type ContactFileStore struct {
	dir string
	mu  sync.Mutex
}

// NewContactFileStore returns a ContactFileStore rooted at dir.
func NewContactFileStore(dir string) *ContactFileStore {
	return &ContactFileStore{dir: dir}
}

// SaveContact stores or updates c.
func (s *ContactFileStore) SaveContact(c domain.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, contactsFile)
	contacts := make(map[domain.Identity]domain.Contact)
	if err := readJSON(path, &contacts); err != nil {
		return err
	}
	contacts[c.Identity] = c
	return writeJSON(path, contacts, 0o600)
}

// LoadContact retrieves the contact for id.
func (s *ContactFileStore) LoadContact(id domain.Identity) (domain.Contact, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := make(map[domain.Identity]domain.Contact)
	if err := readJSON(filepath.Join(s.dir, contactsFile), &contacts); err != nil {
		return domain.Contact{}, false, err
	}
	c, ok := contacts[id]
	return c, ok, nil
}

// ListContacts returns all contacts sorted by identity.
func (s *ContactFileStore) ListContacts() ([]domain.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contacts := make(map[domain.Identity]domain.Contact)
	if err := readJSON(filepath.Join(s.dir, contactsFile), &contacts); err != nil {
		return nil, err
	}
	out := make([]domain.Contact, 0, len(contacts))
	for _, c := range contacts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

// Compile-time assertion that ContactFileStore implements domain.ContactStore.
var _ domain.ContactStore = (*ContactFileStore)(nil)
