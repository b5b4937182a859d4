package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"fscore/internal/domain"
)

const (
	idFilename      = "identity.json.enc"
	identityPurpose = "identity"
)

// IdentityFileStore persists the local identity to disk.
type IdentityFileStore struct {
	dir    string
	params scryptParams
	mu     sync.Mutex
}

// NewIdentityFileStore returns an IdentityFileStore rooted at dir.
func NewIdentityFileStore(dir string) *IdentityFileStore {
	return &IdentityFileStore{dir: dir, params: defaultScryptParams()}
}

// SaveIdentity writes the encrypted identity to disk.
func (s *IdentityFileStore) SaveIdentity(passphrase string, keys domain.IdentityKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	ct, err := sealWithPassphrase(passphrase, identityPurpose, raw, s.params)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}
	return writeFile(filepath.Join(s.dir, idFilename), ct, 0o600)
}

// LoadIdentity reads and decrypts the identity.
func (s *IdentityFileStore) LoadIdentity(passphrase string) (domain.IdentityKeys, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(filepath.Join(s.dir, idFilename))
	if err != nil {
		return domain.IdentityKeys{}, err
	}
	pt, err := openWithPassphrase(passphrase, identityPurpose, b)
	if err != nil {
		return domain.IdentityKeys{}, err
	}
	var keys domain.IdentityKeys
	if err := json.Unmarshal(pt, &keys); err != nil {
		return domain.IdentityKeys{}, err
	}
	return keys, nil
}

// Compile-time assertion that IdentityFileStore implements domain.IdentityStore.
var _ domain.IdentityStore = (*IdentityFileStore)(nil)
