package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrEncryption is returned when a secret cannot be sealed.
	ErrEncryption = errors.New("credential: encryption failed")
	// ErrDecryption is returned for corrupted, tampered or foreign envelopes.
	ErrDecryption = errors.New("credential: decryption failed")
)

// Argon2id parameters for the master key. Run once per process.
const (
	kdfTime    = 3
	kdfMemory  = 64 * 1024
	kdfThreads = 4
	keyLen     = 32
)

// Envelope is the at-rest form of one secret, hex encoded.
type Envelope struct {
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	Tag        string `json:"tag"`
}

// DeriveKey stretches the master secret into an AES-256 key.
func DeriveKey(secret string, salt []byte) []byte {
	return argon2.IDKey([]byte(secret), salt, kdfTime, kdfMemory, kdfThreads, keyLen)
}

// Sealer seals and opens secrets with AES-256-GCM. Only the AEAD is retained;
// the raw key is not kept after construction.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer derives the key from secret and salt.
func NewSealer(secret string, salt []byte) (*Sealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: master secret is empty", ErrEncryption)
	}
	key := DeriveKey(secret, salt)
	defer clear(key)
	return NewSealerFromKey(key)
}

// NewSealerFromKey builds a sealer from a raw 32-byte key.
func NewSealerFromKey(key []byte) (*Sealer, error) {
	if len(key) != keyLen {
		return nil, fmt.Errorf("%w: key must be %d bytes", ErrEncryption, keyLen)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) (Envelope, error) {
	if s == nil || s.aead == nil {
		return Envelope{}, fmt.Errorf("%w: sealer is not configured", ErrEncryption)
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return Envelope{}, fmt.Errorf("%w: read nonce: %v", ErrEncryption, err)
	}
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - s.aead.Overhead()
	return Envelope{
		Nonce:      hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(sealed[:split]),
		Tag:        hex.EncodeToString(sealed[split:]),
	}, nil
}

// Open authenticates and decrypts an envelope.
func (s *Sealer) Open(env Envelope) ([]byte, error) {
	if s == nil || s.aead == nil {
		return nil, fmt.Errorf("%w: sealer is not configured", ErrDecryption)
	}
	nonce, err := hex.DecodeString(env.Nonce)
	if err != nil || len(nonce) != s.aead.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce", ErrDecryption)
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: bad ciphertext", ErrDecryption)
	}
	tag, err := hex.DecodeString(env.Tag)
	if err != nil || len(tag) != s.aead.Overhead() {
		return nil, fmt.Errorf("%w: bad tag", ErrDecryption)
	}
	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return plaintext, nil
}
