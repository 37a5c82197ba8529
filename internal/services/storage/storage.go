package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"filippo.io/age"
)

const (
	// ageHeader is the prefix of age-encrypted files
	ageHeader = "age-encryption.org"

	// sealMarker indicates the directory is encrypted
	sealMarker = ".sealed"

	// verifyFile holds verifyMagic encrypted with the passphrase
	verifyFile = ".seal-verify"

	verifyMagic = `{"magic":"spendscope-seal-verify","version":1}`
)

var (
	ErrLocked          = errors.New("storage is sealed and locked")
	ErrWrongPassphrase = errors.New("incorrect passphrase")
	ErrAlreadySealed   = errors.New("storage is already sealed")
	ErrNotSealed       = errors.New("storage is not sealed")
	ErrOutsideRoot     = errors.New("path escapes storage root")
)

// Store is a directory of uploaded transaction files. When sealed, every
// data file is age-encrypted with a scrypt passphrase and the store must be
// unlocked before it can be read or written. Names are always relative to
// the root.
type Store struct {
	root      string
	sealed    bool
	identity  *age.ScryptIdentity
	recipient *age.ScryptRecipient
	mu        sync.RWMutex
}

// Open prepares root (creating it if needed) and detects whether it is sealed
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	s := &Store{root: root}
	if _, err := os.Stat(filepath.Join(root, sealMarker)); err == nil {
		s.sealed = true
	}
	return s, nil
}

// Root returns the directory the store was opened on
func (s *Store) Root() string {
	return s.root
}

// Sealed reports whether the data files are encrypted
func (s *Store) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}

// Locked reports whether the store is sealed and has no key loaded
func (s *Store) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed && s.identity == nil
}

// Unlock loads the key for a sealed store after checking the passphrase
func (s *Store) Unlock(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sealed {
		return nil
	}

	identity, recipient, err := s.verify(passphrase)
	if err != nil {
		return err
	}
	s.identity, s.recipient = identity, recipient
	return nil
}

// Lock drops the key from memory
func (s *Store) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = nil
	s.recipient = nil
}

// Read returns the plaintext of name
func (s *Store) Read(name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !isAgeEncrypted(data) {
		return data, nil
	}
	if s.identity == nil {
		return nil, ErrLocked
	}
	return decrypt(data, s.identity)
}

// Write stores data under name, encrypting it when the store is sealed
func (s *Store) Write(name string, data []byte) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.sealed && !isControlFile(path) {
		if s.recipient == nil {
			return ErrLocked
		}
		if data, err = encrypt(data, s.recipient); err != nil {
			return fmt.Errorf("encrypt %s: %w", name, err)
		}
	}
	return atomicWrite(path, data)
}

// Remove deletes name
func (s *Store) Remove(name string) error {
	path, err := s.resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(path)
}

// Exists reports whether name is present
func (s *Store) Exists(name string) bool {
	path, err := s.resolve(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// List returns the names of files directly under dir with one of exts
// (case-insensitive, e.g. ".csv"), sorted. A missing dir lists as empty.
func (s *Store) List(dir string, exts ...string) ([]string, error) {
	path, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if len(exts) > 0 && !hasExt(e.Name(), exts) {
			continue
		}
		names = append(names, filepath.ToSlash(filepath.Join(dir, e.Name())))
	}
	sort.Strings(names)
	return names, nil
}

// resolve maps a store-relative name to a path under root
func (s *Store) resolve(name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, name)
	}
	return filepath.Join(s.root, clean), nil
}

// atomicWrite writes through a temp file and renames it into place
func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func isControlFile(path string) bool {
	base := filepath.Base(path)
	return base == sealMarker || base == verifyFile
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

func isAgeEncrypted(data []byte) bool {
	return len(data) > len(ageHeader) && string(data[:len(ageHeader)]) == ageHeader
}
