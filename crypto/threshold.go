// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// SecretKeyShare is one participant's share of a jointly generated secret,
// an element of the BLS12-381 scalar field. It is what a completed DKG run
// hands back to a single node (spec §1: "the synchronous distributed key
// generator...producing...a final key share").
type SecretKeyShare struct {
	share fr.Element
	index uint64
}

// ThresholdPublicKeySet is the public output of a DKG run: the master
// public commitment plus per-index share commitments, used to verify
// individual shares without learning the secret. Immutable once built,
// shared by reference across everything built from the same era
// (NetworkInfo, Batch), matching §9's "shared immutable snapshots."
type ThresholdPublicKeySet struct {
	threshold int
	master    [32]byte
	shares    map[uint64][32]byte
}

// NewThresholdPublicKeySet builds a ThresholdPublicKeySet from an already
// computed master commitment and per-index share commitments, used when
// reassembling a dealer's public commitment set from a received Part
// message.
func NewThresholdPublicKeySet(threshold int, master [32]byte, shares map[uint64][32]byte) ThresholdPublicKeySet {
	return ThresholdPublicKeySet{threshold: threshold, master: master, shares: shares}
}

// NewMasterOnlyThresholdKeySet builds a ThresholdPublicKeySet carrying only
// the master commitment, with no per-index share commitments. This is what
// a completed DKG run publishes as the era's joint key: once shares from
// multiple dealers are summed, the engine has no way to recompute
// per-index commitments for the *other* participants' shares without
// learning them, so only the master commitment survives into NetworkInfo.
func NewMasterOnlyThresholdKeySet(threshold int, master [32]byte) ThresholdPublicKeySet {
	return ThresholdPublicKeySet{threshold: threshold, master: master}
}

// Threshold returns the minimum number of shares required to reconstruct
// the secret (k in a (k, n) scheme).
func (s ThresholdPublicKeySet) Threshold() int { return s.threshold }

// ShareCommitment returns the recorded commitment for a participant index,
// if any.
func (s ThresholdPublicKeySet) ShareCommitment(index uint64) ([32]byte, bool) {
	c, ok := s.shares[index]
	return c, ok
}

// MasterCommitment returns the opaque commitment to the shared secret. Two
// ThresholdPublicKeySets with the same commitment were generated from the
// same polynomial.
func (s ThresholdPublicKeySet) MasterCommitment() [32]byte { return s.master }

// Equal reports whether s and other commit to the same secret.
func (s ThresholdPublicKeySet) Equal(other ThresholdPublicKeySet) bool {
	return s.master == other.master && s.threshold == other.threshold
}

// VerifyShareCommitment reports whether the share at index matches the
// commitment recorded for it. Because full verifiable secret sharing over a
// pairing-friendly curve is out of scope (the DKG and threshold-crypto
// primitives are treated as opaque collaborators per spec §1), the
// commitment is a keyed hash rather than a Feldman/Pedersen EC commitment;
// it still lets an honest combiner detect a share transcription error.
func (s ThresholdPublicKeySet) VerifyShareCommitment(index uint64, share SecretKeyShare) bool {
	want, ok := s.shares[index]
	if !ok {
		return false
	}
	return want == commitShare(index, share)
}

func commitShare(index uint64, share SecretKeyShare) [32]byte {
	b := share.share.Bytes()
	h := sha256.New()
	h.Write(b[:])
	var idxBytes [8]byte
	for i := 0; i < 8; i++ {
		idxBytes[i] = byte(index >> (8 * (7 - i)))
	}
	h.Write(idxBytes[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Index returns the participant index this share was issued to.
func (s SecretKeyShare) Index() uint64 { return s.index }

// Bytes returns the 32-byte big-endian scalar encoding of the share.
func (s SecretKeyShare) Bytes() [32]byte { return s.share.Bytes() }

// SecretKeyShareFromBytes reconstructs a share from its scalar encoding and
// the index it was issued to, the inverse of Bytes.
func SecretKeyShareFromBytes(index uint64, b []byte) (SecretKeyShare, error) {
	if len(b) != fr.Bytes {
		return SecretKeyShare{}, fmt.Errorf("crypto: share must be %d bytes, got %d", fr.Bytes, len(b))
	}
	var e fr.Element
	e.SetBytes(b)
	return SecretKeyShare{share: e, index: index}, nil
}

// AddShares sums shares issued at the same index from independent dealers.
// Because Shamir sharing is linear, the sum of N dealers' shares at index i
// is exactly the share at index i of the polynomial that sums all N
// dealers' secrets — the construction a joint DKG run relies on to combine
// independently dealt Parts into one joint secret without any participant
// ever learning another dealer's contribution.
func AddShares(shares ...SecretKeyShare) (SecretKeyShare, error) {
	if len(shares) == 0 {
		return SecretKeyShare{}, errors.New("crypto: no shares to add")
	}
	idx := shares[0].index
	var sum fr.Element
	sum.SetZero()
	for _, s := range shares {
		if s.index != idx {
			return SecretKeyShare{}, fmt.Errorf("crypto: mismatched share indices %d and %d", idx, s.index)
		}
		sum.Add(&sum, &s.share)
	}
	return SecretKeyShare{share: sum, index: idx}, nil
}

// polynomial is a Shamir secret-sharing polynomial over the BLS12-381
// scalar field, in the same spirit as the teacher's threshold.go
// (splitSecret / evaluatePolynomial / lagrangeInterpolation) but backed by
// real finite-field arithmetic instead of raw, unreduced big.Int math.
type polynomial struct {
	coeffs []fr.Element // coeffs[0] is the secret
}

// GenerateThresholdShares runs a local (non-interactive) (threshold, n)
// Shamir sharing of a freshly random secret, returning one SecretKeyShare
// per participant index 1..n and the public commitment set. Each
// internal/synckeygen dealer calls this once to deal its own Part; the
// joint secret is the sum of the qualified dealers' sharings (see
// AddShares).
func GenerateThresholdShares(threshold, n int) ([]SecretKeyShare, ThresholdPublicKeySet, error) {
	if threshold < 1 || n < threshold {
		return nil, ThresholdPublicKeySet{}, fmt.Errorf("crypto: invalid (threshold=%d, n=%d)", threshold, n)
	}
	poly, err := randomPolynomial(threshold)
	if err != nil {
		return nil, ThresholdPublicKeySet{}, err
	}
	shares := make([]SecretKeyShare, n)
	commitments := make(map[uint64][32]byte, n)
	for i := 1; i <= n; i++ {
		idx := uint64(i)
		val := poly.evalAt(idx)
		share := SecretKeyShare{share: val, index: idx}
		shares[i-1] = share
		commitments[idx] = commitShare(idx, share)
	}
	secretBytes := poly.coeffs[0].Bytes()
	pks := ThresholdPublicKeySet{
		threshold: threshold,
		master:    sha256.Sum256(secretBytes[:]),
		shares:    commitments,
	}
	return shares, pks, nil
}

// CombineShares reconstructs the shared secret from at least `threshold`
// shares via Lagrange interpolation at x=0, mirroring the teacher's
// lagrangeInterpolation but operating in the scalar field rather than on
// raw big.Int byte slices.
func CombineShares(shares []SecretKeyShare) ([]byte, error) {
	if len(shares) == 0 {
		return nil, errors.New("crypto: no shares to combine")
	}
	secret := lagrangeAtZero(shares)
	b := secret.Bytes()
	out := make([]byte, len(b))
	copy(out, b[:])
	return out, nil
}

func randomPolynomial(degreePlusOne int) (polynomial, error) {
	coeffs := make([]fr.Element, degreePlusOne)
	for i := range coeffs {
		if _, err := coeffs[i].SetRandom(); err != nil {
			return polynomial{}, err
		}
	}
	return polynomial{coeffs: coeffs}, nil
}

func (p polynomial) evalAt(x uint64) fr.Element {
	var result, xPow, term, xElem fr.Element
	xElem.SetUint64(x)
	result.SetZero()
	xPow.SetOne()
	for _, c := range p.coeffs {
		term.Mul(&c, &xPow)
		result.Add(&result, &term)
		xPow.Mul(&xPow, &xElem)
	}
	return result
}

// lagrangeAtZero evaluates the unique interpolating polynomial through the
// given (index, share) points at x=0, i.e. recovers the constant term.
func lagrangeAtZero(shares []SecretKeyShare) fr.Element {
	var secret fr.Element
	secret.SetZero()

	for i, si := range shares {
		var xi fr.Element
		xi.SetUint64(si.index)

		var num, den, term fr.Element
		num.SetOne()
		den.SetOne()
		for j, sj := range shares {
			if i == j {
				continue
			}
			var xj fr.Element
			xj.SetUint64(sj.index)

			// numerator *= (0 - xj) = -xj
			var negXj fr.Element
			negXj.Neg(&xj)
			num.Mul(&num, &negXj)

			// denominator *= (xi - xj)
			var diff fr.Element
			diff.Sub(&xi, &xj)
			den.Mul(&den, &diff)
		}
		den.Inverse(&den)
		term.Mul(&num, &den)
		term.Mul(&term, &si.share)
		secret.Add(&secret, &term)
	}
	return secret
}
