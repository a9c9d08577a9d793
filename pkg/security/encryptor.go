package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// SaltSize is the length of the random salt prefixed to every envelope
	SaltSize = 16

	// KeyIterations is the number of SHA-256 rounds used to derive a key
	KeyIterations = 20
)

var ErrDecrypt = errors.New("failed to decrypt")

// Cipher encrypts and decrypts opaque blobs. Heartbeat components depend on
// this interface so that encryption can be disabled by passing Plaintext.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(blob []byte) ([]byte, error)
}

// Encryptor encrypts data with a key derived from a shared password.
//
// Envelope layout before base64 encoding:
//
//	salt (16) || nonce (12) || AES-256-GCM ciphertext+tag
type Encryptor struct {
	password []byte
}

// NewEncryptor creates an encryptor for the given password
func NewEncryptor(password string) (*Encryptor, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}

	return &Encryptor{
		password: []byte(password),
	}, nil
}

// DeriveKey derives a 32-byte key from the password and salt by iterating
// SHA-256 over password||salt
func (e *Encryptor) DeriveKey(salt []byte) []byte {
	key := append(append([]byte{}, e.password...), salt...)
	for i := 0; i < KeyIterations; i++ {
		sum := sha256.Sum256(key)
		key = sum[:]
	}
	return key
}

// Encrypt encrypts plaintext and returns the base64-encoded envelope
func (e *Encryptor) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty data")
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := e.newGCM(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	raw := make([]byte, 0, SaltSize+len(nonce)+len(plaintext)+gcm.Overhead())
	raw = append(raw, salt...)
	raw = append(raw, nonce...)
	raw = gcm.Seal(raw, nonce, plaintext, nil)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

// Decrypt decrypts an envelope produced by Encrypt
func (e *Encryptor) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("%w: empty data", ErrDecrypt)
	}

	raw := make([]byte, base64.StdEncoding.DecodedLen(len(blob)))
	n, err := base64.StdEncoding.Decode(raw, blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	raw = raw[:n]

	if len(raw) < SaltSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	salt, rest := raw[:SaltSize], raw[SaltSize:]

	gcm, err := e.newGCM(salt)
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(rest) < nonceSize {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	nonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}

	return plaintext, nil
}

func (e *Encryptor) newGCM(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.DeriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Plaintext is a Cipher that passes data through unchanged
type Plaintext struct{}

func (Plaintext) Encrypt(plaintext []byte) ([]byte, error) { return plaintext, nil }

func (Plaintext) Decrypt(blob []byte) ([]byte, error) { return blob, nil }
