package sampler

import (
	"hash/fnv"
	"math/rand"
)

// stream returns a deterministic generator derived from the base seed and a
// purpose label. Each consumer gets an independent sequence, so results do
// not depend on the order operations are invoked in.
func stream(seed int64, purpose string) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(purpose))
	return rand.New(rand.NewSource(seed ^ int64(h.Sum64())))
}
