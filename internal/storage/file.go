package storage

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	fileKeySalt = []byte("payflow-session-store")
	// fileAAD binds ciphertext to the format, not the location, so a moved
	// session file still opens.
	fileAAD = []byte("payflow-session-v1")
)

// File keeps the store as a JSON document on disk, optionally sealed with
// XChaCha20-Poly1305 under a key derived from a passphrase.
type File struct {
	mu   sync.Mutex
	path string
	aead cipherAEAD
}

type cipherAEAD interface {
	NonceSize() int
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewFile creates a file-backed store at path. A non-empty passphrase
// enables encryption.
func NewFile(path, passphrase string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("storage: file path is required")
	}
	f := &File{path: path}
	if passphrase != "" {
		key, err := deriveFileKey([]byte(passphrase))
		if err != nil {
			return nil, err
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, fmt.Errorf("storage: init cipher: %w", err)
		}
		f.aead = aead
	}
	return f, nil
}

func deriveFileKey(secret []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, fileKeySalt, []byte("file-kv-v1"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("storage: derive key: %w", err)
	}
	return key, nil
}

func (f *File) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return "", err
	}
	v, ok := data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return err
	}
	data[key] = value
	return f.save(data)
}

func (f *File) Delete(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, err := f.load()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(data, k)
	}
	return f.save(data)
}

func (f *File) load() (map[string]string, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", f.path, err)
	}
	if len(raw) == 0 {
		return make(map[string]string), nil
	}

	if f.aead != nil {
		ns := f.aead.NonceSize()
		if len(raw) < ns {
			return nil, fmt.Errorf("storage: %s: ciphertext too short", f.path)
		}
		raw, err = f.aead.Open(nil, raw[:ns], raw[ns:], fileAAD)
		if err != nil {
			return nil, fmt.Errorf("storage: decrypt %s: %w", f.path, err)
		}
	}

	data := make(map[string]string)
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", f.path, err)
	}
	return data, nil
}

func (f *File) save(data map[string]string) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}

	if f.aead != nil {
		nonce := make([]byte, f.aead.NonceSize())
		if _, err := rand.Read(nonce); err != nil {
			return fmt.Errorf("storage: nonce: %w", err)
		}
		raw = f.aead.Seal(nonce, nonce, raw, fileAAD)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("storage: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("storage: rename %s: %w", tmp, err)
	}
	return nil
}
