package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
)

var errShortCiphertext = errors.New("ciphertext shorter than nonce")

// AESGCM is an Encryptor strategy using AES-256-GCM with a random nonce
// prepended to the ciphertext. The key material is stretched to 32 bytes via
// SHA-256 so callers may pass passphrases of any length.
type AESGCM struct {
	aead cipher.AEAD
}

func NewAESGCM(key []byte) (*AESGCM, error) {
	sum := sha256.Sum256(key)
	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

func (a *AESGCM) Encrypt(data []byte) ([]byte, error) {
	nonce := make([]byte, a.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return a.aead.Seal(nonce, nonce, data, nil), nil
}

func (a *AESGCM) Decrypt(data []byte) ([]byte, error) {
	ns := a.aead.NonceSize()
	if len(data) < ns {
		return nil, errShortCiphertext
	}
	return a.aead.Open(nil, data[:ns], data[ns:], nil)
}
