// Package aesgcm derives keys from passwords
// and encrypts chunks with AES-256-GCM.
package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"

	"github.com/pkg/errors"
	"golang.org/x/crypto/pbkdf2"

	"github.com/bobg/chunky"
)

const (
	KeySize   = 32
	NonceSize = 12
	TagSize   = 16
	SaltSize  = 12

	// Overhead is the number of bytes Seal adds to a plaintext.
	Overhead = NonceSize + TagSize

	DefaultIterations = 100000
)

// Key is a derived AES-256 key.
type Key []byte

// DeriveKey derives a Key from a password with PBKDF2-HMAC-SHA256.
func DeriveKey(password string, salt []byte, iterations int) (Key, error) {
	if password == "" {
		return nil, errors.Wrap(chunky.ErrCrypto, "password cannot be empty")
	}
	if iterations <= 0 {
		return nil, errors.Wrapf(chunky.ErrConfig, "iteration count %d", iterations)
	}
	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New), nil
}

// NewSalt produces a random salt.
func NewSalt() ([]byte, error) {
	return random(SaltSize)
}

// NewNonce produces a random nonce.
func NewNonce() ([]byte, error) {
	return random(NonceSize)
}

func random(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, errors.Wrap(err, "reading random bytes")
}

func newGCM(key Key) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, errors.Wrapf(chunky.ErrConfig, "key has length %d, want %d", len(key), KeySize)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "creating cipher")
	}
	return cipher.NewGCM(block)
}

// Encrypt encrypts plaintext,
// returning the ciphertext and authentication tag separately.
func Encrypt(key Key, nonce, plaintext []byte) (ciphertext, tag []byte, err error) {
	if len(nonce) != NonceSize {
		return nil, nil, errors.Wrapf(chunky.ErrConfig, "nonce has length %d, want %d", len(nonce), NonceSize)
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}
	out := aead.Seal(nil, nonce, plaintext, nil)
	n := len(out) - TagSize
	return out[:n], out[n:], nil
}

// Decrypt reverses Encrypt.
// A tag that does not verify produces an error wrapping chunky.ErrCrypto.
func Decrypt(key Key, nonce, ciphertext, tag []byte) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, errors.Wrapf(chunky.ErrCrypto, "nonce has length %d, want %d", len(nonce), NonceSize)
	}
	if len(tag) != TagSize {
		return nil, errors.Wrapf(chunky.ErrCrypto, "tag has length %d, want %d", len(tag), TagSize)
	}
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	sealed := make([]byte, 0, len(ciphertext)+TagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.Wrap(chunky.ErrCrypto, err.Error())
	}
	if plaintext == nil {
		plaintext = []byte{}
	}
	return plaintext, nil
}

// Seal encrypts plaintext into the stored chunk layout:
// nonce, then ciphertext, then tag.
func Seal(key Key, nonce, plaintext []byte) ([]byte, error) {
	ciphertext, tag, err := Encrypt(key, nonce, plaintext)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(plaintext)+Overhead)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return append(out, tag...), nil
}

// Open reverses Seal,
// returning the embedded nonce and the plaintext.
func Open(key Key, sealed []byte) (nonce, plaintext []byte, err error) {
	nonce, err = NonceOf(sealed)
	if err != nil {
		return nil, nil, err
	}
	n := len(sealed) - TagSize
	plaintext, err = Decrypt(key, nonce, sealed[NonceSize:n], sealed[n:])
	return nonce, plaintext, err
}

// NonceOf returns the nonce embedded in a sealed chunk.
func NonceOf(sealed []byte) ([]byte, error) {
	if len(sealed) < Overhead {
		return nil, errors.Wrapf(chunky.ErrCrypto, "sealed chunk has length %d, want at least %d", len(sealed), Overhead)
	}
	return sealed[:NonceSize], nil
}
