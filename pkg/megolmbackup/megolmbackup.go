// Copyright 2025 The keytrust Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package megolmbackup implements the m.megolm_backup.v1.curve25519-aes-sha2
// session encryption.
//
// A session is encrypted to the backup's curve25519 public key with a fresh
// ephemeral key. The shared secret is expanded with HKDF-SHA256 into an
// AES-256-CBC key, an HMAC-SHA256 key and an IV. The MAC is the first 8
// bytes of the HMAC of an empty message.
package megolmbackup

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"strings"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

const (
	keySize = 32
	macSize = 8
)

var (
	// ErrInvalidKey indicates that a key could not be decoded.
	ErrInvalidKey = serrors.New("invalid curve25519 key")
	// ErrMACMismatch indicates that the session data was tampered with or
	// encrypted to a different key.
	ErrMACMismatch = serrors.New("mac mismatch")
	// ErrPadding indicates malformed plaintext padding.
	ErrPadding = serrors.New("invalid padding")
)

// GenerateKey creates a new backup key pair. Both keys are unpadded base64.
func GenerateKey() (private, public string, err error) {
	priv := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, priv); err != nil {
		return "", "", serrors.Wrap("reading randomness", err)
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", "", serrors.Wrap("deriving public key", err)
	}
	return encode(priv), encode(pub), nil
}

// PublicKey derives the public key of an unpadded base64 private key.
func PublicKey(private string) (string, error) {
	priv, err := decodeKey(private)
	if err != nil {
		return "", err
	}
	pub, err := curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return "", serrors.JoinNoStack(ErrInvalidKey, err)
	}
	return encode(pub), nil
}

// Encrypt encrypts plaintext to the given public key.
func Encrypt(public string, plaintext []byte) (matrix.EncryptedSessionData, error) {
	pub, err := decodeKey(public)
	if err != nil {
		return matrix.EncryptedSessionData{}, err
	}
	ephemeralPriv := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, ephemeralPriv); err != nil {
		return matrix.EncryptedSessionData{}, serrors.Wrap("reading randomness", err)
	}
	ephemeralPub, err := curve25519.X25519(ephemeralPriv, curve25519.Basepoint)
	if err != nil {
		return matrix.EncryptedSessionData{}, serrors.Wrap("deriving ephemeral key", err)
	}
	shared, err := curve25519.X25519(ephemeralPriv, pub)
	if err != nil {
		return matrix.EncryptedSessionData{}, serrors.JoinNoStack(ErrInvalidKey, err)
	}
	k, err := deriveKeys(shared)
	if err != nil {
		return matrix.EncryptedSessionData{}, err
	}
	block, err := aes.NewCipher(k.aes)
	if err != nil {
		return matrix.EncryptedSessionData{}, serrors.Wrap("creating cipher", err)
	}
	padded := pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, k.iv).CryptBlocks(ciphertext, padded)
	return matrix.EncryptedSessionData{
		Ephemeral:  encode(ephemeralPub),
		Ciphertext: encode(ciphertext),
		MAC:        encode(k.mac(nil)),
	}, nil
}

// Decrypt decrypts session data with the given private key.
func Decrypt(private string, data matrix.EncryptedSessionData) ([]byte, error) {
	priv, err := decodeKey(private)
	if err != nil {
		return nil, err
	}
	ephemeral, err := decodeKey(data.Ephemeral)
	if err != nil {
		return nil, err
	}
	ciphertext, err := decode(data.Ciphertext)
	if err != nil {
		return nil, serrors.Wrap("decoding ciphertext", err)
	}
	mac, err := decode(data.MAC)
	if err != nil {
		return nil, serrors.Wrap("decoding mac", err)
	}
	shared, err := curve25519.X25519(priv, ephemeral)
	if err != nil {
		return nil, serrors.JoinNoStack(ErrInvalidKey, err)
	}
	k, err := deriveKeys(shared)
	if err != nil {
		return nil, err
	}
	// Older clients MAC the ciphertext, newer ones the empty string.
	if !hmac.Equal(mac, k.mac(nil)) && !hmac.Equal(mac, k.mac(ciphertext)) {
		return nil, ErrMACMismatch
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, ErrPadding
	}
	block, err := aes.NewCipher(k.aes)
	if err != nil {
		return nil, serrors.Wrap("creating cipher", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, k.iv).CryptBlocks(plaintext, ciphertext)
	return unpad(plaintext, aes.BlockSize)
}

type derivedKeys struct {
	aes     []byte
	hmacKey []byte
	iv      []byte
}

func (k derivedKeys) mac(msg []byte) []byte {
	h := hmac.New(sha256.New, k.hmacKey)
	h.Write(msg)
	return h.Sum(nil)[:macSize]
}

func deriveKeys(shared []byte) (derivedKeys, error) {
	out := make([]byte, 80)
	r := hkdf.New(sha256.New, shared, make([]byte, 32), nil)
	if _, err := io.ReadFull(r, out); err != nil {
		return derivedKeys{}, serrors.Wrap("expanding shared secret", err)
	}
	return derivedKeys{aes: out[:32], hmacKey: out[32:64], iv: out[64:80]}, nil
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(append([]byte(nil), b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) ([]byte, error) {
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, ErrPadding
	}
	for _, v := range b[len(b)-n:] {
		if int(v) != n {
			return nil, ErrPadding
		}
	}
	return b[:len(b)-n], nil
}

func decodeKey(s string) ([]byte, error) {
	raw, err := decode(s)
	if err != nil || len(raw) != keySize {
		return nil, serrors.JoinNoStack(ErrInvalidKey, err, "length", len(raw))
	}
	return raw, nil
}

func encode(b []byte) string {
	return base64.RawStdEncoding.EncodeToString(b)
}

func decode(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
