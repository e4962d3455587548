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

package signatures

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/crosstrust/keytrust/pkg/matrix"
	"github.com/crosstrust/keytrust/pkg/private/serrors"
)

var (
	// ErrInvalidKey indicates that a key could not be decoded.
	ErrInvalidKey = serrors.New("invalid ed25519 key")
)

// ResultKind is the outcome of a signature verification.
type ResultKind int

const (
	// ResultValid indicates a correct signature.
	ResultValid ResultKind = iota
	// ResultInvalid indicates a signature that does not verify.
	ResultInvalid
	// ResultMissingSignature indicates that the object carries no signature
	// by the requested key.
	ResultMissingSignature
)

func (k ResultKind) String() string {
	switch k {
	case ResultValid:
		return "valid"
	case ResultInvalid:
		return "invalid"
	case ResultMissingSignature:
		return "missing_signature"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Result is the outcome of a signature verification.
type Result struct {
	Kind   ResultKind
	Reason string
}

// Valid returns whether the result is ResultValid.
func (r Result) Valid() bool {
	return r.Kind == ResultValid
}

// SigningKey is a public key of a user that may have signed an object.
type SigningKey struct {
	UserID matrix.UserID
	Key    matrix.Ed25519Key
}

// Verifier verifies signatures on JSON objects.
type Verifier interface {
	// Verify checks the signature of key on obj. sigs are the signatures
	// attached to obj.
	Verify(obj any, sigs matrix.Signatures, key SigningKey) Result
}

// Ed25519Verifier verifies signatures with crypto/ed25519.
type Ed25519Verifier struct{}

// Verify implements Verifier.
func (Ed25519Verifier) Verify(obj any, sigs matrix.Signatures, key SigningKey) Result {
	sig, ok := sigs.Get(key.UserID, key.Key.ID)
	if !ok {
		return Result{Kind: ResultMissingSignature}
	}
	pub, err := DecodePublicKey(key.Key.Value)
	if err != nil {
		return Result{Kind: ResultInvalid, Reason: err.Error()}
	}
	rawSig, err := decodeBase64(sig)
	if err != nil || len(rawSig) != ed25519.SignatureSize {
		return Result{Kind: ResultInvalid, Reason: "malformed signature"}
	}
	msg, err := Canonical(obj)
	if err != nil {
		return Result{Kind: ResultInvalid, Reason: err.Error()}
	}
	if !ed25519.Verify(pub, msg, rawSig) {
		return Result{Kind: ResultInvalid, Reason: "signature does not match"}
	}
	return Result{Kind: ResultValid}
}

// Sign returns the unpadded base64 signature of obj.
func Sign(obj any, priv ed25519.PrivateKey) (string, error) {
	msg, err := Canonical(obj)
	if err != nil {
		return "", err
	}
	return EncodeBase64(ed25519.Sign(priv, msg)), nil
}

// SeedSigner signs with an ed25519 key derived from a secret seed, such as
// the private part of a cross-signing key.
type SeedSigner struct {
	UserID matrix.UserID
	Key    matrix.Ed25519Key
	priv   ed25519.PrivateKey
}

// NewSeedSigner creates a signer from an unpadded base64 seed. The public key
// is derived from the seed.
func NewSeedSigner(user matrix.UserID, seed string) (*SeedSigner, error) {
	priv, err := privateKeyFromSeed(seed)
	if err != nil {
		return nil, err
	}
	pub := EncodeBase64(priv.Public().(ed25519.PublicKey))
	return &SeedSigner{
		UserID: user,
		Key:    matrix.Ed25519Key{ID: matrix.NewKeyID(matrix.AlgorithmEd25519, pub), Value: pub},
		priv:   priv,
	}, nil
}

// Sign returns the signature of obj together with the signing key id.
func (s *SeedSigner) Sign(obj any) (matrix.KeyID, string, error) {
	sig, err := Sign(obj, s.priv)
	if err != nil {
		return "", "", err
	}
	return s.Key.ID, sig, nil
}

// PublicKeyFromSeed derives the unpadded base64 public key of a seed.
func PublicKeyFromSeed(seed string) (string, error) {
	priv, err := privateKeyFromSeed(seed)
	if err != nil {
		return "", err
	}
	return EncodeBase64(priv.Public().(ed25519.PublicKey)), nil
}

// GenerateSeed creates a random seed and returns it with its public key.
func GenerateSeed() (seed, public string, err error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return "", "", serrors.Wrap("generating ed25519 key", err)
	}
	return EncodeBase64(priv.Seed()), EncodeBase64(pub), nil
}

func privateKeyFromSeed(seed string) (ed25519.PrivateKey, error) {
	raw, err := decodeBase64(seed)
	if err != nil || len(raw) != ed25519.SeedSize {
		return nil, serrors.JoinNoStack(ErrInvalidKey, err, "reason", "malformed seed")
	}
	return ed25519.NewKeyFromSeed(raw), nil
}

// DecodePublicKey decodes an unpadded base64 ed25519 public key.
func DecodePublicKey(v string) (ed25519.PublicKey, error) {
	raw, err := decodeBase64(v)
	if err != nil || len(raw) != ed25519.PublicKeySize {
		return nil, serrors.JoinNoStack(ErrInvalidKey, err, "reason", "malformed public key")
	}
	return ed25519.PublicKey(raw), nil
}

// EncodeBase64 encodes b as unpadded standard base64.
func EncodeBase64(b []byte) string {
	return base64.RawStdEncoding.EncodeToString(b)
}

// decodeBase64 accepts padded and unpadded input.
func decodeBase64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
