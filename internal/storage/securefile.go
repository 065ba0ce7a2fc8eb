package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MasterKeySize is the required length of the SecureFileStore master key.
const MasterKeySize = 32

const secureFileInfo = "dieti-localstate secure store v1"

// ErrInvalidMasterKey is returned when the master key has the wrong length.
var ErrInvalidMasterKey = errors.New("invalid master key length")

// SecureFileStore implements SecureStore with one encrypted file per key.
// File names are hashes of the keys, so the directory listing reveals nothing.
type SecureFileStore struct {
	dir  string
	aead cipher.AEAD
	mu   sync.Mutex
}

// NewSecureFileStore creates dir if needed and derives the file key from masterKey.
func NewSecureFileStore(dir string, masterKey []byte) (*SecureFileStore, error) {
	if len(masterKey) != MasterKeySize {
		return nil, ErrInvalidMasterKey
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating secure store dir: %w", err)
	}

	fileKey := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(secureFileInfo)), fileKey); err != nil {
		return nil, fmt.Errorf("deriving file key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(fileKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return &SecureFileStore{dir: dir, aead: aead}, nil
}

func (s *SecureFileStore) path(key string) string {
	sum := sha256.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:])+".bin")
}

func (s *SecureFileStore) SetValue(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return Unavailable("SetValue", key, err)
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(value)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Unavailable("SetValue", key, fmt.Errorf("generating nonce: %w", err))
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(value), []byte(key))

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".pending-*")
	if err != nil {
		return Unavailable("SetValue", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return Unavailable("SetValue", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return Unavailable("SetValue", key, err)
	}
	if err := tmp.Close(); err != nil {
		return Unavailable("SetValue", key, err)
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return Unavailable("SetValue", key, err)
	}
	return nil
}

func (s *SecureFileStore) GetValue(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, Unavailable("GetValue", key, err)
	}

	s.mu.Lock()
	sealed, err := os.ReadFile(s.path(key))
	s.mu.Unlock()
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, Unavailable("GetValue", key, err)
	}

	ns := s.aead.NonceSize()
	if len(sealed) < ns+s.aead.Overhead() {
		return "", false, Corrupted("GetValue", key, errors.New("sealed value too short"))
	}
	plain, err := s.aead.Open(nil, sealed[:ns], sealed[ns:], []byte(key))
	if err != nil {
		return "", false, Corrupted("GetValue", key, fmt.Errorf("decrypting value: %w", err))
	}
	return string(plain), true, nil
}

func (s *SecureFileStore) DeleteValue(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return Unavailable("DeleteValue", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Unavailable("DeleteValue", key, err)
	}
	return nil
}
