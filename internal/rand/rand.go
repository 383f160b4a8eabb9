// Package rand generates short random identifiers for RPC requests and
// relay subscriptions. They only need to be unique per connection.
package rand

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// IDLength is the length of identifiers returned by NewID.
const IDLength = 16

var source = newSource()

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func newSource() *lockedSource {
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		panic("rand: cannot seed: " + err.Error())
	}
	return &lockedSource{
		//nolint:gosec // identifiers are not secrets
		rng: rand.New(rand.NewPCG(
			binary.LittleEndian.Uint64(seed[:8]),
			binary.LittleEndian.Uint64(seed[8:]),
		)),
	}
}

// NewID returns an identifier of IDLength characters from [A-Za-z0-9].
func NewID() string {
	return NewIDOfLength(IDLength)
}

func NewIDOfLength(n int) string {
	buf := make([]byte, n)
	source.mu.Lock()
	for i := range buf {
		buf[i] = alphabet[source.rng.IntN(len(alphabet))]
	}
	source.mu.Unlock()
	return string(buf)
}
