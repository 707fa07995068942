package domain

// Cipher is authenticated symmetric encryption keyed by a password.
// Key derivation stays behind the implementation.
type Cipher interface {
	Encrypt(password string, plaintext []byte) ([]byte, error)
	Decrypt(password string, ciphertext []byte) ([]byte, error)
}
