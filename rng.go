package acd

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mrand "math/rand/v2"
	"sync"
	"time"
)

// jitter draws a uniform value in [0,r) for a scheduled wakeup. No
// cryptographic guarantee is required, only a non-repeating sequence, so
// it's seeded once from crypto/rand and then driven by a fast PRNG.
var (
	jitterOnce sync.Once
	jitterMu   sync.Mutex
	jitterRand *mrand.Rand
)

func jitter(r time.Duration) time.Duration {
	if r <= 0 {
		return 0
	}

	jitterOnce.Do(func() {
		jitterRand = mrand.New(mrand.NewPCG(seedWord(), seedWord()))
	})

	jitterMu.Lock()
	defer jitterMu.Unlock()
	return time.Duration(jitterRand.Int64N(int64(r)))
}

func seedWord() uint64 {
	n, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 64))
	if err != nil {
		var buf [8]byte
		_, _ = rand.Read(buf[:])
		return binary.BigEndian.Uint64(buf[:])
	}
	return n.Uint64()
}
