package framedq

import (
	"errors"

	"github.com/FerroO2000/passerella/relay"
)

var (
	// ErrDepthTooSmall is returned when the requested depth is below 2.
	ErrDepthTooSmall = errors.New("framedq: depth must be at least 2")
	// ErrDepthNotPowerOfTwo is returned when the requested depth is not a power of two.
	ErrDepthNotPowerOfTwo = errors.New("framedq: depth must be a power of two")
)

// Staging selects the consumer-side output staging scheme.
type Staging uint8

const (
	// StagingNone exposes the occupancy check directly to [Queue.TryPop].
	StagingNone Staging = iota
	// StagingSingle prefetches one entry per consumer tick,
	// so availability is always a previous-tick condition.
	StagingSingle
	// StagingDouble adds a second holding slot on top of [StagingSingle],
	// absorbing one tick of downstream hesitation without a bubble.
	StagingDouble
)

func (s Staging) String() string {
	switch s {
	case StagingNone:
		return "none"
	case StagingSingle:
		return "single"
	case StagingDouble:
		return "double"
	default:
		return "unknown"
	}
}

func (s Staging) slots() int {
	switch s {
	case StagingSingle:
		return 1
	case StagingDouble:
		return 2
	default:
		return 0
	}
}

// Default values for the queue configuration.
const (
	DefaultConfigDepth  = 16
	DefaultConfigStages = relay.MinStages
)

// Config is the configuration for a [Queue].
type Config struct {
	// Depth is the number of payload slots. It must be a power of two
	// of at least 2; the addressing scheme requires it.
	Depth int

	// Stages is the depth of each pointer relay chain.
	Stages int

	// PacketGated defers consumer visibility until the entry completing
	// a packet has been produced (store-and-forward). Packets longer
	// than Depth entries can never complete and will starve the packet
	// counter; the producer must bound packet length or accept that.
	PacketGated bool

	// Staging selects the output staging scheme.
	Staging Staging
}

// NewConfig returns the default configuration for a [Queue]:
// plain streaming mode with no output staging.
func NewConfig() *Config {
	return &Config{
		Depth:  DefaultConfigDepth,
		Stages: DefaultConfigStages,
	}
}
