package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// MinPassphraseLength is the shortest passphrase Seal accepts
const MinPassphraseLength = 8

// Seal encrypts every CSV and JSON file under the root and leaves the store
// unlocked with passphrase. Files already encrypted are left alone. On a
// failure part way through, files sealed so far are decrypted again.
func (s *Store) Seal(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return ErrAlreadySealed
	}
	if len(passphrase) < MinPassphraseLength {
		return fmt.Errorf("passphrase must be at least %d characters", MinPassphraseLength)
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("create recipient: %w", err)
	}
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}

	token, err := encrypt([]byte(verifyMagic), recipient)
	if err != nil {
		return fmt.Errorf("encrypt verify file: %w", err)
	}
	verifyPath := filepath.Join(s.root, verifyFile)
	if err := atomicWrite(verifyPath, token); err != nil {
		return fmt.Errorf("write verify file: %w", err)
	}

	files, err := s.dataFiles()
	if err != nil {
		os.Remove(verifyPath)
		return fmt.Errorf("scan files: %w", err)
	}

	var done []string
	for _, path := range files {
		if err := rewrite(path, func(data []byte) ([]byte, bool, error) {
			if isAgeEncrypted(data) {
				return nil, false, nil
			}
			out, err := encrypt(data, recipient)
			return out, true, err
		}); err != nil {
			s.rollback(done, identity)
			os.Remove(verifyPath)
			return fmt.Errorf("encrypt %s: %w", filepath.Base(path), err)
		}
		done = append(done, path)
	}

	if err := atomicWrite(filepath.Join(s.root, sealMarker), []byte("sealed")); err != nil {
		return fmt.Errorf("write seal marker: %w", err)
	}

	s.sealed = true
	s.identity, s.recipient = identity, recipient
	return nil
}

// Unseal decrypts every encrypted file under the root and removes the seal
func (s *Store) Unseal(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.sealed {
		return ErrNotSealed
	}
	identity, _, err := s.verify(passphrase)
	if err != nil {
		return err
	}

	files, err := s.dataFiles()
	if err != nil {
		return fmt.Errorf("scan files: %w", err)
	}
	for _, path := range files {
		if err := rewrite(path, func(data []byte) ([]byte, bool, error) {
			if !isAgeEncrypted(data) {
				return nil, false, nil
			}
			out, err := decrypt(data, identity)
			return out, true, err
		}); err != nil {
			return fmt.Errorf("decrypt %s: %w", filepath.Base(path), err)
		}
	}

	os.Remove(filepath.Join(s.root, sealMarker))
	os.Remove(filepath.Join(s.root, verifyFile))

	s.sealed = false
	s.identity, s.recipient = nil, nil
	return nil
}

// verify checks passphrase against the verify file. Callers hold mu.
func (s *Store) verify(passphrase string) (*age.ScryptIdentity, *age.ScryptRecipient, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("create identity: %w", err)
	}

	token, err := os.ReadFile(filepath.Join(s.root, verifyFile))
	if err != nil {
		return nil, nil, fmt.Errorf("read verify file: %w", err)
	}
	plain, err := decrypt(token, identity)
	if err != nil || string(plain) != verifyMagic {
		return nil, nil, ErrWrongPassphrase
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("create recipient: %w", err)
	}
	return identity, recipient, nil
}

// dataFiles lists the CSV and JSON files anywhere under the root
func (s *Store) dataFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isControlFile(path) {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".csv", ".json":
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// rewrite applies fn to the file at path in place. fn reports false to leave
// the file untouched.
func rewrite(path string, fn func([]byte) ([]byte, bool, error)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out, changed, err := fn(data)
	if err != nil || !changed {
		return err
	}
	return atomicWrite(path, out)
}

// rollback best-effort decrypts files sealed during a failed Seal
func (s *Store) rollback(files []string, identity *age.ScryptIdentity) {
	for _, path := range files {
		_ = rewrite(path, func(data []byte) ([]byte, bool, error) {
			if !isAgeEncrypted(data) {
				return nil, false, nil
			}
			out, err := decrypt(data, identity)
			return out, err == nil, nil
		})
	}
}
