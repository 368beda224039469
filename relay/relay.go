// Package relay provides fixed-depth sampling chains for moving a single
// value from an owner domain into an observer domain.
//
// A relay is split across the two domains: the owner publishes raw values
// into a single-writer cell, and the observer shifts that cell through a
// chain of sampling stages, one step per observer tick. Only the last
// stage is externally visible. The chain lives in a field named "stages",
// one element per stage; structural tooling relies on that layout, so it
// is part of the package contract rather than an implementation detail.
package relay

import (
	"errors"
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

// MinStages is the minimum depth of a sampling chain.
// Deeper chains trade latency for settling margin.
const MinStages = 2

// ErrNotEnoughStages is returned when the requested chain depth is below [MinStages].
var ErrNotEnoughStages = errors.New("relay: at least 2 stages are required")

// Bit relays one binary value between two domains.
type Bit struct {
	// src is the owner-domain cell. Single writer.
	src atomic.Bool

	_ cpu.CacheLinePad

	initial bool
	stages  []bool
}

// NewBit returns a new single-bit relay with the given chain depth.
// Every stage and the source cell hold initial until the owner publishes.
func NewBit(stages int, initial bool) (*Bit, error) {
	if stages < MinStages {
		return nil, ErrNotEnoughStages
	}

	b := &Bit{
		initial: initial,
		stages:  make([]bool, stages),
	}
	b.Reset()

	return b, nil
}

// Set publishes a new raw value. Owner domain only.
func (b *Bit) Set(v bool) {
	b.src.Store(v)
}

// Tick shifts the chain by one stage. Observer domain only,
// called once per observer tick.
func (b *Bit) Tick() {
	for i := len(b.stages) - 1; i > 0; i-- {
		b.stages[i] = b.stages[i-1]
	}
	b.stages[0] = b.src.Load()
}

// Out returns the settled value held by the last stage.
// Observer domain only. Intermediate stages are not observable.
func (b *Bit) Out() bool {
	return b.stages[len(b.stages)-1]
}

// Stages returns the depth of the chain.
func (b *Bit) Stages() int {
	return len(b.stages)
}

// Reset forces the source cell and every stage back to the initial value.
// Both domains must be quiescent during the call.
func (b *Bit) Reset() {
	b.src.Store(b.initial)
	for i := range b.stages {
		b.stages[i] = b.initial
	}
}

// Word relays one multi-bit value between two domains.
//
// The chain only shifts; the torn-sample guarantee holds when the owner
// publishes values that differ by a single bit per step, such as
// Gray-coded counters.
type Word struct {
	// src is the owner-domain cell. Single writer.
	src atomic.Uint64

	_ cpu.CacheLinePad

	initial uint64
	stages  []uint64
}

// NewWord returns a new multi-bit relay with the given chain depth.
func NewWord(stages int, initial uint64) (*Word, error) {
	if stages < MinStages {
		return nil, ErrNotEnoughStages
	}

	w := &Word{
		initial: initial,
		stages:  make([]uint64, stages),
	}
	w.Reset()

	return w, nil
}

// Set publishes a new raw value. Owner domain only.
func (w *Word) Set(v uint64) {
	w.src.Store(v)
}

// Tick shifts the chain by one stage. Observer domain only,
// called once per observer tick.
func (w *Word) Tick() {
	for i := len(w.stages) - 1; i > 0; i-- {
		w.stages[i] = w.stages[i-1]
	}
	w.stages[0] = w.src.Load()
}

// Out returns the settled value held by the last stage.
// Observer domain only.
func (w *Word) Out() uint64 {
	return w.stages[len(w.stages)-1]
}

// Stages returns the depth of the chain.
func (w *Word) Stages() int {
	return len(w.stages)
}

// Reset forces the source cell and every stage back to the initial value.
// Both domains must be quiescent during the call.
func (w *Word) Reset() {
	w.src.Store(w.initial)
	for i := range w.stages {
		w.stages[i] = w.initial
	}
}
