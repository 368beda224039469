package handshake

import (
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NewLink(t *testing.T) {
	assert := assert.New(t)

	_, err := NewLink[int]("bad", 1)
	assert.Error(err)

	l, err := NewLink[int]("new", 2)
	assert.NoError(err)
	assert.True(l.Ready())

	_, ok := l.Poll()
	assert.False(ok)
}

func Test_LinkSingleTransfer(t *testing.T) {
	assert := assert.New(t)

	const stages = 2

	l, err := NewLink[uint32]("single", stages)
	require.NoError(t, err)

	assert.True(l.Submit(0xCAFE))
	assert.False(l.Ready())

	// Not ready: the slot holds one in-flight request.
	assert.False(l.Submit(0xDEAD))

	// The delivery appears after exactly the relay depth in consumer ticks.
	for i := 0; i < stages-1; i++ {
		l.ConsumerTick()
		_, ok := l.Poll()
		assert.False(ok, "delivered too early at tick %d", i)
	}

	l.ConsumerTick()
	data, ok := l.Poll()
	assert.True(ok)
	assert.Equal(uint32(0xCAFE), data)

	// The acknowledge travels back through the producer relay.
	for i := 0; i < stages-1; i++ {
		l.ProducerTick()
		assert.False(l.Ready(), "ready too early at tick %d", i)
	}

	l.ProducerTick()
	assert.True(l.Ready())
}

func Test_LinkExactlyOnce(t *testing.T) {
	assert := assert.New(t)

	l, err := NewLink[int]("once", 2)
	require.NoError(t, err)

	assert.True(l.Submit(7))

	l.ConsumerTick()
	l.ConsumerTick()

	data, ok := l.Poll()
	assert.True(ok)
	assert.Equal(7, data)

	// Extra ticks without a new submission never re-deliver.
	for range 10 {
		l.ConsumerTick()
		_, ok := l.Poll()
		assert.False(ok)
	}
}

func Test_LinkSlowConsumer(t *testing.T) {
	assert := assert.New(t)

	// A consumer that ticks but never polls must not lose the second
	// transfer: its edge stays latent until the first word is consumed.
	l, err := NewLink[int]("slow", 2)
	require.NoError(t, err)

	assert.True(l.Submit(1))
	for range 4 {
		l.ConsumerTick()
		l.ProducerTick()
	}

	require.True(t, l.Ready())
	assert.True(l.Submit(2))
	for range 4 {
		l.ConsumerTick()
		l.ProducerTick()
	}

	data, ok := l.Poll()
	assert.True(ok)
	assert.Equal(1, data)

	for range 4 {
		l.ConsumerTick()
	}

	data, ok = l.Poll()
	assert.True(ok)
	assert.Equal(2, data)
}

func Test_LinkClockRatios(t *testing.T) {
	// Producer and consumer ticking at skewed rates, both directions.
	suite := []struct {
		prodEvery, consEvery int
	}{
		{1, 1},
		{1, 3},  // fast producer, slow consumer
		{3, 1},  // slow producer, fast consumer
		{2, 5},
		{7, 2},
	}

	for _, tCase := range suite {
		tName := fmt.Sprintf("P%d-C%d", tCase.prodEvery, tCase.consEvery)

		t.Run(tName, func(t *testing.T) {
			testLinkRatio(t, tCase.prodEvery, tCase.consEvery)
		})
	}
}

func testLinkRatio(t *testing.T, prodEvery, consEvery int) {
	assert := assert.New(t)

	const transfers = 50

	l, err := NewLink[int]("ratio", 3)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))

	sent := make([]int, 0, transfers)
	received := make([]int, 0, transfers)

	nextVal := rng.Int()
	step := 0

	// A bounded number of interleaved steps is plenty for 50 transfers.
	for len(received) < transfers && step < 100_000 {
		step++

		if step%prodEvery == 0 {
			l.ProducerTick()
			if len(sent) < transfers && l.Submit(nextVal) {
				sent = append(sent, nextVal)
				nextVal = rng.Int()
			}
		}

		if step%consEvery == 0 {
			l.ConsumerTick()
			if data, ok := l.Poll(); ok {
				received = append(received, data)
			}
		}
	}

	assert.Equal(transfers, len(received))
	assert.Equal(sent, received)
}

func Test_LinkConcurrent(t *testing.T) {
	assert := assert.New(t)

	const transfers = 10_000

	l, err := NewLink[int]("concurrent", 2)
	require.NoError(t, err)

	var consumed atomic.Int64

	done := make(chan []int)

	go func() {
		received := make([]int, 0, transfers)
		for len(received) < transfers {
			l.ConsumerTick()
			if data, ok := l.Poll(); ok {
				received = append(received, data)
				consumed.Add(1)
			}
		}
		done <- received
	}()

	for val := 0; val < transfers; {
		l.ProducerTick()
		if l.Submit(val) {
			val++
		}
	}

	received := <-done

	assert.Equal(int64(transfers), consumed.Load())
	for i, val := range received {
		assert.Equal(i, val)
	}
}

func Test_LinkReset(t *testing.T) {
	assert := assert.New(t)

	l, err := NewLink[int]("reset", 2)
	require.NoError(t, err)

	assert.True(l.Submit(3))
	l.ConsumerTick()

	l.Reset()

	assert.True(l.Ready())
	_, ok := l.Poll()
	assert.False(ok)

	// The link works normally after a reset.
	assert.True(l.Submit(4))
	l.ConsumerTick()
	l.ConsumerTick()

	data, ok := l.Poll()
	assert.True(ok)
	assert.Equal(4, data)
}
