// Copyright (c) 2026 The hexstody developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package quorum

import (
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	btcecdsa "github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

var (
	// ErrMalformedSignatureData is returned when a Signature-Data header does
	// not have the sig:nonce:key shape.
	ErrMalformedSignatureData = errors.New("malformed signature data")

	// ErrUnknownOperator is returned when a signature is made by a key that
	// is not part of the operator set.
	ErrUnknownOperator = errors.New("signing key is not an operator key")

	// ErrInvalidSignature is returned when a signature does not verify
	// against the signed message.
	ErrInvalidSignature = errors.New("invalid operator signature")
)

// SignatureData is a single operator signature together with the nonce it
// commits to and the signing key.
type SignatureData struct {
	Signature []byte `json:"signature"`
	Nonce     uint64 `json:"nonce"`
	PublicKey []byte `json:"public_key"`
}

// ParseSignatureData parses the header form b64(sig):nonce:b64(pubkey).
func ParseSignatureData(s string) (SignatureData, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return SignatureData{}, ErrMalformedSignatureData
	}

	sig, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return SignatureData{}, fmt.Errorf("%w: signature: %v",
			ErrMalformedSignatureData, err)
	}
	nonce, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return SignatureData{}, fmt.Errorf("%w: nonce: %v",
			ErrMalformedSignatureData, err)
	}
	key, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return SignatureData{}, fmt.Errorf("%w: public key: %v",
			ErrMalformedSignatureData, err)
	}

	return SignatureData{
		Signature: sig,
		Nonce:     nonce,
		PublicKey: key,
	}, nil
}

// String returns the header form of the signature data.
func (d SignatureData) String() string {
	return base64.StdEncoding.EncodeToString(d.Signature) + ":" +
		strconv.FormatUint(d.Nonce, 10) + ":" +
		base64.StdEncoding.EncodeToString(d.PublicKey)
}

// SignedMessage returns the exact bytes an operator signs for message and
// nonce.
func SignedMessage(message string, nonce uint64) []byte {
	return []byte(message + ":" + strconv.FormatUint(nonce, 10))
}

// Verify checks that d is a valid signature over message by a member of keys
// and returns the member.
func Verify(keys *KeySet, d SignatureData, message string) (*PublicKey, error) {
	key, ok := keys.Lookup(d.PublicKey)
	if !ok {
		return nil, ErrUnknownOperator
	}

	if !key.Verify(SignedMessage(message, d.Nonce), d.Signature) {
		return nil, ErrInvalidSignature
	}

	return key, nil
}

// Signer produces operator signatures. It is implemented for both supported
// curves and is used by operator tooling and tests.
type Signer interface {
	PublicKey() *PublicKey
	Sign(message string, nonce uint64) (SignatureData, error)
}

// P256Signer signs with a NIST P-256 key.
type P256Signer struct {
	priv *ecdsa.PrivateKey
	pub  *PublicKey
}

// NewP256Signer wraps priv, which must be a P-256 key.
func NewP256Signer(priv *ecdsa.PrivateKey) (*P256Signer, error) {
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	pub, err := ParsePublicKey(der)
	if err != nil {
		return nil, err
	}

	return &P256Signer{priv: priv, pub: pub}, nil
}

// PublicKey returns the operator key of the signer.
func (s *P256Signer) PublicKey() *PublicKey {
	return s.pub
}

// Sign signs message with nonce.
func (s *P256Signer) Sign(message string, nonce uint64) (SignatureData, error) {
	digest := sha256.Sum256(SignedMessage(message, nonce))
	sig, err := ecdsa.SignASN1(rand.Reader, s.priv, digest[:])
	if err != nil {
		return SignatureData{}, err
	}

	return SignatureData{
		Signature: sig,
		Nonce:     nonce,
		PublicKey: s.pub.Bytes(),
	}, nil
}

// Secp256k1Signer signs with a secp256k1 key.
type Secp256k1Signer struct {
	priv *btcec.PrivateKey
	pub  *PublicKey
}

// NewSecp256k1Signer wraps priv.
func NewSecp256k1Signer(priv *btcec.PrivateKey) *Secp256k1Signer {
	pub, _ := ParsePublicKey(priv.PubKey().SerializeCompressed())
	return &Secp256k1Signer{priv: priv, pub: pub}
}

// PublicKey returns the operator key of the signer.
func (s *Secp256k1Signer) PublicKey() *PublicKey {
	return s.pub
}

// Sign signs message with nonce.
func (s *Secp256k1Signer) Sign(message string, nonce uint64) (SignatureData, error) {
	digest := sha256.Sum256(SignedMessage(message, nonce))
	sig := btcecdsa.Sign(s.priv, digest[:])

	return SignatureData{
		Signature: sig.Serialize(),
		Nonce:     nonce,
		PublicKey: s.pub.Bytes(),
	}, nil
}
