// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package quorum

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// KeyType identifies the curve an operator key lives on.
type KeyType uint8

const (
	// KeyTypeP256 is a NIST P-256 key encoded as a DER SubjectPublicKeyInfo.
	// Browser based operator consoles produce these through WebCrypto.
	KeyTypeP256 KeyType = iota

	// KeyTypeSecp256k1 is a compressed or uncompressed secp256k1 key, as
	// produced by hardware signers.
	KeyTypeSecp256k1
)

// pubKeyBytesLenUncompressed is the length of an uncompressed secp256k1 key:
// a 0x04 prefix followed by the 32 byte X and Y coordinates.
const pubKeyBytesLenUncompressed = 65

// String returns the curve name of the key type.
func (t KeyType) String() string {
	switch t {
	case KeyTypeP256:
		return "p256"
	case KeyTypeSecp256k1:
		return "secp256k1"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

var (
	// ErrMalformedKey is returned when public key bytes cannot be parsed as
	// either supported key type.
	ErrMalformedKey = errors.New("malformed operator public key")

	// ErrUnsupportedCurve is returned for PKIX keys that are not P-256.
	ErrUnsupportedCurve = errors.New("unsupported operator key curve")
)

// PublicKey is an operator public key. Its identity is the normalized
// serialization returned by Bytes.
type PublicKey struct {
	keyType KeyType
	raw     []byte

	p256 *ecdsa.PublicKey
	secp *btcec.PublicKey
}

// ParsePublicKey parses a DER encoded P-256 SubjectPublicKeyInfo or a 33/65
// byte secp256k1 key.
func ParsePublicKey(b []byte) (*PublicKey, error) {
	switch len(b) {
	case btcec.PubKeyBytesLenCompressed, pubKeyBytesLenUncompressed:
		key, err := btcec.ParsePubKey(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}

		return &PublicKey{
			keyType: KeyTypeSecp256k1,
			raw:     key.SerializeCompressed(),
			secp:    key,
		}, nil
	}

	pub, err := x509.ParsePKIXPublicKey(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	key, ok := pub.(*ecdsa.PublicKey)
	if !ok || key.Curve != elliptic.P256() {
		return nil, ErrUnsupportedCurve
	}

	raw, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	return &PublicKey{
		keyType: KeyTypeP256,
		raw:     raw,
		p256:    key,
	}, nil
}

// ParsePublicKeyBase64 parses a standard base64 encoded operator key.
func ParsePublicKeyBase64(s string) (*PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedKey, err)
	}

	return ParsePublicKey(b)
}

// Type returns the curve of the key.
func (k *PublicKey) Type() KeyType {
	return k.keyType
}

// Bytes returns the normalized serialization of the key.
func (k *PublicKey) Bytes() []byte {
	return append([]byte(nil), k.raw...)
}

// String returns the base64 form of Bytes. It is used as the operator
// identity in invites and logs.
func (k *PublicKey) String() string {
	return base64.StdEncoding.EncodeToString(k.raw)
}

// Verify reports whether sig is a valid DER encoded ECDSA signature over the
// SHA-256 digest of msg.
func (k *PublicKey) Verify(msg, sig []byte) bool {
	digest := sha256.Sum256(msg)

	switch k.keyType {
	case KeyTypeP256:
		return ecdsa.VerifyASN1(k.p256, digest[:], sig)

	case KeyTypeSecp256k1:
		parsed, err := btcecdsa.ParseDERSignature(sig)
		if err != nil {
			return false
		}
		return parsed.Verify(digest[:], k.secp)
	}

	return false
}

// KeySet is the fixed set of operator keys allowed to take part in a quorum.
// It is read-only once built.
type KeySet struct {
	keys  map[string]*PublicKey
	order []*PublicKey
}

// NewKeySet builds a key set. Duplicate keys collapse into one member.
func NewKeySet(keys ...*PublicKey) *KeySet {
	s := &KeySet{keys: make(map[string]*PublicKey, len(keys))}
	for _, k := range keys {
		if _, ok := s.keys[string(k.raw)]; ok {
			continue
		}
		s.keys[string(k.raw)] = k
		s.order = append(s.order, k)
	}

	return s
}

// Len returns the number of distinct operators.
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Keys returns the members in the order they were configured.
func (s *KeySet) Keys() []*PublicKey {
	if s == nil {
		return nil
	}
	return append([]*PublicKey(nil), s.order...)
}

// Lookup returns the member matching the given serialized key. Keys are
// normalized before lookup, so an uncompressed secp256k1 key finds its
// compressed member.
func (s *KeySet) Lookup(raw []byte) (*PublicKey, bool) {
	if s == nil {
		return nil, false
	}

	key, err := ParsePublicKey(raw)
	if err != nil {
		return nil, false
	}

	member, ok := s.keys[string(key.raw)]
	return member, ok
}
