package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

const keySize = 32 // 256-bit SQLCipher key

// KeyFile loads or generates the database encryption key from a local
// file with restricted permissions. The key is stored as 64 hex
// characters, the form the SQLCipher DSN takes.
type KeyFile struct {
	path string
}

// NewKeyFile creates a KeyFile at the given path.
func NewKeyFile(path string) *KeyFile {
	return &KeyFile{path: path}
}

// Exists checks whether the key file exists.
func (k *KeyFile) Exists() bool {
	_, err := os.Stat(k.path)
	return err == nil
}

// Load reads and validates the key from the key file.
func (k *KeyFile) Load() (string, error) {
	raw, err := os.ReadFile(k.path)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	keyHex := string(raw)
	if decoded, err := hex.DecodeString(keyHex); err != nil || len(decoded) != keySize {
		return "", fmt.Errorf("key file %s: expected %d hex characters", k.path, keySize*2)
	}
	return keyHex, nil
}

// Store writes the key to the key file with 0600 permissions.
func (k *KeyFile) Store(keyHex string) error {
	if decoded, err := hex.DecodeString(keyHex); err != nil || len(decoded) != keySize {
		return fmt.Errorf("invalid key: expected %d hex characters", keySize*2)
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(k.path, []byte(keyHex), 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

// Ensure returns the existing key, generating and storing a fresh one
// if the file does not exist yet.
func (k *KeyFile) Ensure() (string, error) {
	if k.Exists() {
		return k.Load()
	}
	keyHex, err := GenerateKey()
	if err != nil {
		return "", err
	}
	if err := k.Store(keyHex); err != nil {
		return "", err
	}
	return keyHex, nil
}

// GenerateKey creates a new random 256-bit key as hex.
func GenerateKey() (string, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}
