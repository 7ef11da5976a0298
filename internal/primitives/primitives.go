// Package primitives wraps the hardware RNG and the hash/KDF/cipher
// building blocks the rest of the core calls into. RNG is kept as an
// interface since it can fail and tests need a deterministic double; the
// rest are plain functions over otherwise-trusted primitives.
package primitives

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// RNG supplies hardware randomness. Fill must write exactly len(out) bytes
// or return an error; it must never partially fill out on error.
type RNG interface {
	Fill(out []byte) error
}

// CryptoRandRNG is the production RNG, backed by crypto/rand. Tests inject
// a deterministic double instead (see the keystore package's tests).
type CryptoRandRNG struct{}

// Fill implements RNG using crypto/rand.Reader.
func (CryptoRandRNG) Fill(out []byte) error {
	_, err := io.ReadFull(rand.Reader, out)
	return err
}

// SHA256 hashes msg. Named here so callers depend on the primitives
// package's contract rather than crypto/sha256 directly.
func SHA256(msg []byte) [32]byte {
	return sha256.Sum256(msg)
}

// PBKDF2HMACSHA256 derives dklen bytes via PBKDF2-HMAC-SHA256.
func PBKDF2HMACSHA256(password, salt []byte, iterations, dklen int) []byte {
	return pbkdf2.Key(password, salt, iterations, dklen, sha256.New)
}

// Scrypt derives dklen bytes via scrypt. Callers must enforce their own
// memory ceiling before calling this; scrypt.Key applies its own hardwired
// limit on top as a second line of defense.
func Scrypt(password, salt []byte, n, r, p, dklen int) ([]byte, error) {
	return scrypt.Key(password, salt, n, r, p, dklen)
}

// AES128CTR XORs in with the AES-128-CTR keystream derived from key and iv.
// CTR mode is symmetric, so this both encrypts and decrypts.
func AES128CTR(key, iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(in))
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(out, in)
	return out, nil
}
