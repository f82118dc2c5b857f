// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

// Package crypto implements the narrow signing/verification/threshold-share
// capability the engine treats as an external collaborator (spec §1): long
// term node identity keys and signatures, plus the Shamir-based threshold
// secret sharing backing ThresholdPublicKeySet / secret key shares.
package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// ErrInvalidSignature is returned by Verify for a signature that does not
// match the given public key and message.
var ErrInvalidSignature = errors.New("crypto: invalid signature")

// SecretKey is a node's long-term identity key, used to sign votes and
// key-gen messages.
type SecretKey struct {
	priv *secp256k1.PrivateKey
}

// PublicKey is the long-term identity key corresponding to a SecretKey.
type PublicKey struct {
	pub *secp256k1.PublicKey
}

// Signature is a detached signature over a message digest.
type Signature struct {
	sig *ecdsa.Signature
}

// GenerateSecretKey creates a new random identity key.
func GenerateSecretKey() (SecretKey, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return SecretKey{}, err
	}
	return SecretKey{priv: priv}, nil
}

// PublicKey returns the public half of sk.
func (sk SecretKey) PublicKey() PublicKey {
	return PublicKey{pub: sk.priv.PubKey()}
}

// Sign signs msg (already canonically serialized by the caller) and returns
// a detached signature over its SHA-256 digest.
func (sk SecretKey) Sign(msg []byte) Signature {
	digest := sha256.Sum256(msg)
	return Signature{sig: ecdsa.Sign(sk.priv, digest[:])}
}

// Bytes returns the 32-byte big-endian scalar encoding of sk.
func (sk SecretKey) Bytes() []byte {
	b := sk.priv.Serialize()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// SecretKeyFromBytes reconstructs a SecretKey from its scalar encoding.
func SecretKeyFromBytes(b []byte) (SecretKey, error) {
	if len(b) != 32 {
		return SecretKey{}, fmt.Errorf("crypto: secret key must be 32 bytes, got %d", len(b))
	}
	priv := secp256k1.PrivKeyFromBytes(b)
	return SecretKey{priv: priv}, nil
}

// Verify reports whether sig is a valid signature by pk over msg.
func (pk PublicKey) Verify(sig Signature, msg []byte) bool {
	if pk.pub == nil || sig.sig == nil {
		return false
	}
	digest := sha256.Sum256(msg)
	return sig.sig.Verify(digest[:], pk.pub)
}

// Bytes returns the 33-byte compressed encoding of pk.
func (pk PublicKey) Bytes() []byte {
	if pk.pub == nil {
		return nil
	}
	b := pk.pub.SerializeCompressed()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// IsZero reports whether pk carries no key material.
func (pk PublicKey) IsZero() bool { return pk.pub == nil }

// Equal reports whether pk and other encode the same key.
func (pk PublicKey) Equal(other PublicKey) bool {
	if pk.pub == nil || other.pub == nil {
		return pk.pub == other.pub
	}
	return pk.pub.IsEqual(other.pub)
}

// PublicKeyFromBytes parses a 33-byte compressed public key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(b)
	if err != nil {
		return PublicKey{}, fmt.Errorf("crypto: invalid public key: %w", err)
	}
	return PublicKey{pub: pub}, nil
}

// Bytes returns the DER encoding of the signature.
func (s Signature) Bytes() []byte {
	if s.sig == nil {
		return nil
	}
	return s.sig.Serialize()
}

// SignatureFromBytes parses a DER-encoded signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	sig, err := ecdsa.ParseDERSignature(b)
	if err != nil {
		return Signature{}, fmt.Errorf("crypto: invalid signature: %w", err)
	}
	return Signature{sig: sig}, nil
}

// IsZero reports whether s carries no signature material.
func (s Signature) IsZero() bool { return s.sig == nil }
