// Copyright 2024 The go-equa Authors
// This file is part of the go-equa library.

package crypto

import (
	"crypto/sha256"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
)

// sigCacheBytes bounds the in-memory signature-verification cache. A vote
// or key-gen signature is verified at most twice in the protocol's normal
// path (once on receipt as pending/candidate, once again when it appears
// inside a committed batch); memoizing the result avoids the second,
// redundant elliptic-curve verification.
const sigCacheBytes = 8 * 1024 * 1024

var (
	cacheOnce sync.Once
	cache     *fastcache.Cache
)

func sigCache() *fastcache.Cache {
	cacheOnce.Do(func() {
		cache = fastcache.New(sigCacheBytes)
	})
	return cache
}

func cacheKey(pk PublicKey, sig Signature, msg []byte) []byte {
	h := sha256.New()
	h.Write(pk.Bytes())
	h.Write(sig.Bytes())
	h.Write(msg)
	return h.Sum(nil)
}

// VerifyCached behaves like PublicKey.Verify but memoizes the result keyed
// on (pubkey, signature, message), matching the teacher's habit of fronting
// expensive lookups with fastcache (see StakeManager's use in equa).
func VerifyCached(pk PublicKey, sig Signature, msg []byte) bool {
	key := cacheKey(pk, sig, msg)
	c := sigCache()
	if buf, ok := c.HasGet(nil, key); ok {
		return len(buf) == 1 && buf[0] == 1
	}
	ok := pk.Verify(sig, msg)
	if ok {
		c.Set(key, []byte{1})
	} else {
		c.Set(key, []byte{0})
	}
	return ok
}

// ResetVerificationCache clears the process-wide signature cache; exposed
// for tests that need a clean cache between independent engine fixtures.
func ResetVerificationCache() {
	sigCache().Reset()
}
