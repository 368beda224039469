// Package passerella provides the main entrypoint for the passerella library.
//
// It re-exports the three domain-crossing primitives (bit relay, toggle
// handshake link, framed queue) and the [Domain] runner that drives
// their per-side Tick methods.
package passerella

import (
	"github.com/FerroO2000/passerella/framedq"
	"github.com/FerroO2000/passerella/handshake"
	"github.com/FerroO2000/passerella/relay"
)

// BitRelay relays one binary value between two domains.
type BitRelay = relay.Bit

// WordRelay relays one Gray-coded multi-bit value between two domains.
type WordRelay = relay.Word

// Link transfers one data word per request between two domains.
type Link[T any] = handshake.Link[T]

// Entry couples one payload word with its packet-boundary flag.
type Entry[T any] = framedq.Entry[T]

// Queue is a fixed-depth framed FIFO between two domains.
type Queue[T any] = framedq.Queue[T]

// QueueConfig is the configuration for a queue.
type QueueConfig = framedq.Config

// QueueStaging selects the queue's output staging scheme.
type QueueStaging = framedq.Staging

const (
	// QueueStagingNone exposes the occupancy check directly to TryPop.
	QueueStagingNone = framedq.StagingNone
	// QueueStagingSingle prefetches one entry per consumer tick.
	QueueStagingSingle = framedq.StagingSingle
	// QueueStagingDouble adds a second holding slot (skid buffer).
	QueueStagingDouble = framedq.StagingDouble
)

// NewBitRelay returns a new single-bit relay.
func NewBitRelay(stages int, initial bool) (*BitRelay, error) {
	return relay.NewBit(stages, initial)
}

// NewWordRelay returns a new multi-bit relay.
func NewWordRelay(stages int, initial uint64) (*WordRelay, error) {
	return relay.NewWord(stages, initial)
}

// NewLink returns a new handshake link.
func NewLink[T any](name string, stages int) (*Link[T], error) {
	return handshake.NewLink[T](name, stages)
}

// NewQueueConfig returns the default configuration for a queue.
func NewQueueConfig() *QueueConfig {
	return framedq.NewConfig()
}

// NewQueue returns a new framed queue.
func NewQueue[T any](name string, cfg *QueueConfig) (*Queue[T], error) {
	return framedq.NewQueue[T](name, cfg)
}
