package storage

import (
	"bytes"
	"fmt"
	"io"

	"filippo.io/age"
)

func encrypt(data []byte, recipient age.Recipient) ([]byte, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipient)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decrypt(data []byte, identity age.Identity) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(data), identity)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// Encrypt seals a single payload with passphrase, for exporting a file
// outside a store
func Encrypt(data []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("create recipient: %w", err)
	}
	return encrypt(data, recipient)
}

// Decrypt opens a payload produced by Encrypt. Plaintext input is returned
// unchanged.
func Decrypt(data []byte, passphrase string) ([]byte, error) {
	if !isAgeEncrypted(data) {
		return data, nil
	}
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	out, err := decrypt(data, identity)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return out, nil
}
