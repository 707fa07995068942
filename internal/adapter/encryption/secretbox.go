package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/semmidev/dbwarden/internal/domain"
)

const nonceSize = 24

// Key is a symmetric secretbox key.
type Key [32]byte

// DeriveKey maps a password to a key with a single unsalted SHA-256.
// Every password-to-key decision lives here.
func DeriveKey(password string) Key {
	return Key(sha256.Sum256([]byte(password)))
}

// SecretBox encrypts with NaCl secretbox (XSalsa20-Poly1305). A sealed
// message is the random nonce followed by the box.
type SecretBox struct {
	rand io.Reader
}

func NewSecretBox() *SecretBox {
	return &SecretBox{rand: rand.Reader}
}

func (s *SecretBox) Seal(key Key, plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return nil, domain.NewError(domain.ErrCrypto, "generate nonce", err)
	}

	k := [32]byte(key)
	out := make([]byte, nonceSize, nonceSize+len(plaintext)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, plaintext, &nonce, &k), nil
}

func (s *SecretBox) Open(key Key, sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, domain.ErrWrongPasswordOrCorrupt
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	k := [32]byte(key)
	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &k)
	if !ok {
		return nil, domain.ErrWrongPasswordOrCorrupt
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

func (s *SecretBox) Encrypt(password string, plaintext []byte) ([]byte, error) {
	if password == "" {
		return nil, domain.NewError(domain.ErrConfig, "encryption password is required", nil)
	}
	sealed, err := s.Seal(DeriveKey(password), plaintext)
	if err != nil {
		return nil, fmt.Errorf("seal: %w", err)
	}
	return sealed, nil
}

func (s *SecretBox) Decrypt(password string, ciphertext []byte) ([]byte, error) {
	return s.Open(DeriveKey(password), ciphertext)
}
