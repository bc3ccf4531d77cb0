// Package crypt is the encrypt/decrypt boundary for snippet content. A
// Cipher is built once at startup around a single process-wide symmetric key
// and is safe for unbounded concurrent use. Error values and messages never
// carry key bytes or plaintext.
package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// ModeAESECB is deterministic: the same plaintext under the same key
	// always yields the same ciphertext. It exists for byte-compatibility
	// with data written by the legacy store and leaks equality of repeated
	// snippets. New deployments should use an AEAD mode.
	ModeAESECB  = "aes-ecb"
	ModeAESGCM  = "aes-gcm"
	ModeXChaCha = "xchacha20"
)

var (
	ErrKeyMissing          = errors.New("encryption key missing")
	ErrInvalidKeySize      = errors.New("invalid encryption key size")
	ErrUnknownMode         = errors.New("unknown cipher mode")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
)

type Cipher struct {
	mode  string
	block cipher.Block
	aead  cipher.AEAD
}

func New(mode string, key []byte) (*Cipher, error) {
	if len(key) == 0 {
		return nil, ErrKeyMissing
	}
	c := &Cipher{mode: mode}
	switch mode {
	case ModeAESECB, ModeAESGCM:
		switch len(key) {
		case 16, 24, 32:
		default:
			return nil, ErrInvalidKeySize
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, errors.Wrap(err, "init aes")
		}
		c.block = block
		if mode == ModeAESGCM {
			aead, err := cipher.NewGCM(block)
			if err != nil {
				return nil, errors.Wrap(err, "init gcm")
			}
			c.aead = aead
		}
	case ModeXChaCha:
		if len(key) != chacha20poly1305.KeySize {
			return nil, ErrInvalidKeySize
		}
		aead, err := chacha20poly1305.NewX(key)
		if err != nil {
			return nil, errors.Wrap(err, "init xchacha20")
		}
		c.aead = aead
	default:
		return nil, ErrUnknownMode
	}
	return c, nil
}

func (c *Cipher) Mode() string { return c.mode }

func (c *Cipher) Encrypt(plaintext []byte) ([]byte, error) {
	if c.mode == ModeAESECB {
		return c.encryptECB(plaintext), nil
	}
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "read nonce")
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *Cipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if c.mode == ModeAESECB {
		return c.decryptECB(ciphertext)
	}
	nonceSize := c.aead.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, ErrMalformedCiphertext
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// Tag mismatch: wrong key, truncation, or tampering. The AEAD
		// error itself is deliberately discarded.
		return nil, ErrMalformedCiphertext
	}
	return plaintext, nil
}

func (c *Cipher) encryptECB(plaintext []byte) []byte {
	padded := pkcs7Pad(plaintext, c.block.BlockSize())
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += c.block.BlockSize() {
		c.block.Encrypt(out[i:], padded[i:])
	}
	return out
}

func (c *Cipher) decryptECB(ciphertext []byte) ([]byte, error) {
	bs := c.block.BlockSize()
	if len(ciphertext) == 0 || len(ciphertext)%bs != 0 {
		return nil, ErrMalformedCiphertext
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += bs {
		c.block.Decrypt(out[i:], ciphertext[i:])
	}
	return pkcs7Unpad(out, bs)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, ErrMalformedCiphertext
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrMalformedCiphertext
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, ErrMalformedCiphertext
		}
	}
	return b[:len(b)-n], nil
}
