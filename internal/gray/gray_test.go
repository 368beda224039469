package gray

import (
	"math/bits"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_EncodeDecodeRoundTrip(t *testing.T) {
	assert := assert.New(t)

	for v := uint64(0); v < 1<<12; v++ {
		assert.Equal(v, Decode(Encode(v)))
	}

	edges := []uint64{1 << 31, 1<<32 - 1, 1 << 63, ^uint64(0)}
	for _, v := range edges {
		assert.Equal(v, Decode(Encode(v)))
	}
}

func Test_SingleBitStep(t *testing.T) {
	assert := assert.New(t)

	// Adjacent values must differ in exactly one bit,
	// including across the wrap of a 5-bit counter.
	const mask = 1<<5 - 1

	for v := uint64(0); v <= mask; v++ {
		curr := Encode(v)
		next := Encode((v + 1) & mask)

		assert.Equal(1, bits.OnesCount64(curr^next), "value %d", v)
	}
}
