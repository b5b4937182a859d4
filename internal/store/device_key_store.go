package store

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"fscore/internal/domain"
)

const (
	deviceKeyFilename = "device.key.enc"
	deviceKeyPurpose  = "device-key"
	deviceKeySize     = 32
)

// DeviceKeyFileStore keeps the random key that wraps session secrets.
// The key itself is sealed under the passphrase.
type DeviceKeyFileStore struct {
	dir    string
	params scryptParams
	mu     sync.Mutex
}

// NewDeviceKeyFileStore returns a DeviceKeyFileStore rooted at dir.
func NewDeviceKeyFileStore(dir string) *DeviceKeyFileStore {
	return &DeviceKeyFileStore{dir: dir, params: defaultScryptParams()}
}

// LoadOrCreateDeviceKey returns the device key, generating and sealing a new
// one the first time.
func (s *DeviceKeyFileStore) LoadOrCreateDeviceKey(passphrase string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, deviceKeyFilename)
	b, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if b != nil {
		return openWithPassphrase(passphrase, deviceKeyPurpose, b)
	}

	key := make([]byte, deviceKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	ct, err := sealWithPassphrase(passphrase, deviceKeyPurpose, key, s.params)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, err
	}
	if err := writeFile(path, ct, 0o600); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"function": "LoadOrCreateDeviceKey",
		"path":     path,
	}).Info("Created new device key")
	return key, nil
}

// Compile-time assertion that DeviceKeyFileStore implements domain.DeviceKeyStore.
var _ domain.DeviceKeyStore = (*DeviceKeyFileStore)(nil)
