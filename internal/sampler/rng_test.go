package sampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStream_DeterministicPerPurpose(t *testing.T) {
	a := stream(42, "quantiles")
	b := stream(42, "quantiles")
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Int63(), b.Int63())
	}
}

func TestStream_PurposesAreIndependent(t *testing.T) {
	a := stream(42, "quantiles")
	b := stream(42, "samples")
	same := true
	for i := 0; i < 10; i++ {
		if a.Int63() != b.Int63() {
			same = false
			break
		}
	}
	assert.False(t, same, "different purposes must not share a sequence")
}

func TestStream_SeedChangesSequence(t *testing.T) {
	a := stream(1, "samples")
	b := stream(2, "samples")
	same := true
	for i := 0; i < 10; i++ {
		if a.Int63() != b.Int63() {
			same = false
			break
		}
	}
	assert.False(t, same)
}
