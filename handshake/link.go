// Package handshake implements a single-slot data transfer link between
// two independently ticked domains.
//
// Each transfer is signalled by flipping a request toggle rather than
// pulsing it, so the signal survives arbitrary relay delay without being
// missed. The producer owns the request toggle and the payload register;
// the consumer owns the acknowledge toggle. Each toggle reaches the other
// domain through its own [relay.Bit]. The requestToggle, acknowledgeToggle
// and payload fields keep these names as a structural contract for
// external tooling.
package handshake

import (
	"sync/atomic"

	"github.com/FerroO2000/passerella/internal"
	"github.com/FerroO2000/passerella/relay"
	"golang.org/x/sys/cpu"
)

///////////////
//  METRICS  //
///////////////

type linkMetrics struct {
	tel *internal.Telemetry

	submitted atomic.Int64
	rejected  atomic.Int64
	delivered atomic.Int64
}

func newLinkMetrics(tel *internal.Telemetry) *linkMetrics {
	lm := &linkMetrics{
		tel: tel,
	}

	lm.tel.NewCounter("submitted_words", func() int64 { return lm.submitted.Load() })
	lm.tel.NewCounter("rejected_submits", func() int64 { return lm.rejected.Load() })
	lm.tel.NewCounter("delivered_words", func() int64 { return lm.delivered.Load() })

	return lm
}

////////////
//  LINK  //
////////////

// Link transfers one data word per request between a producer domain and
// a consumer domain using a request/acknowledge toggle protocol.
//
// Producer-domain methods: [Link.Ready], [Link.Submit], [Link.ProducerTick].
// Consumer-domain methods: [Link.ConsumerTick], [Link.Poll].
// No method blocks; backpressure is expressed through boolean returns.
type Link[T any] struct {
	tel     *internal.Telemetry
	metrics *linkMetrics

	// Producer-domain state. The payload register is written before the
	// request toggle flips, so by the time the flip has travelled through
	// the relay the payload is stable from the consumer's point of view.
	requestToggle atomic.Bool
	payload       T
	ackRelay      *relay.Bit

	_ cpu.CacheLinePad

	// Consumer-domain state.
	acknowledgeToggle atomic.Bool
	reqRelay          *relay.Bit
	lastRequest       bool
	captured          T
	pending           bool
}

// NewLink returns a new link whose relays are stages deep.
// It returns [relay.ErrNotEnoughStages] when stages is below [relay.MinStages].
func NewLink[T any](name string, stages int) (*Link[T], error) {
	ackRelay, err := relay.NewBit(stages, false)
	if err != nil {
		return nil, err
	}

	reqRelay, err := relay.NewBit(stages, false)
	if err != nil {
		return nil, err
	}

	tel := internal.NewTelemetry("handshake", name)

	return &Link[T]{
		tel:     tel,
		metrics: newLinkMetrics(tel),

		ackRelay: ackRelay,
		reqRelay: reqRelay,
	}, nil
}

// Ready reports whether the link can accept a new submission.
// Producer domain only. It is a pure poll: repeated calls without an
// intervening tick or submit return the same value.
func (l *Link[T]) Ready() bool {
	return l.requestToggle.Load() == l.ackRelay.Out()
}

// Submit latches data and flips the request toggle.
// Producer domain only. It returns false, leaving all state untouched,
// while a prior request is still unacknowledged; the caller retries on
// its own schedule.
func (l *Link[T]) Submit(data T) bool {
	if !l.Ready() {
		l.metrics.rejected.Add(1)
		return false
	}

	// Payload first, toggle second. The release store on the toggle
	// orders the payload write for the consumer.
	l.payload = data

	flipped := !l.requestToggle.Load()
	l.requestToggle.Store(flipped)
	l.reqRelay.Set(flipped)

	l.metrics.submitted.Add(1)
	return true
}

// ProducerTick advances the acknowledge relay by one producer tick.
func (l *Link[T]) ProducerTick() {
	l.ackRelay.Tick()
}

// ConsumerTick advances the request relay by one consumer tick and
// captures a newly delivered payload, if any.
//
// A transition of the settled request toggle constitutes a delivery event
// exactly once per submission. While a captured word has not been polled
// yet, the edge is left latent in the relay: the toggle is a level, so
// the delivery is deferred, never lost.
func (l *Link[T]) ConsumerTick() {
	l.reqRelay.Tick()

	if l.pending {
		return
	}

	settled := l.reqRelay.Out()
	if settled == l.lastRequest {
		return
	}

	l.captured = l.payload
	l.lastRequest = settled
	l.pending = true

	flipped := !l.acknowledgeToggle.Load()
	l.acknowledgeToggle.Store(flipped)
	l.ackRelay.Set(flipped)

	l.metrics.delivered.Add(1)
}

// Poll returns the captured word, if any. Consumer domain only.
// Each delivered word is returned exactly once.
func (l *Link[T]) Poll() (T, bool) {
	var zero T

	if !l.pending {
		return zero, false
	}

	l.pending = false
	return l.captured, true
}

// Reset forces both toggles to zero, empties the relays and drops any
// captured word, leaving the link ready. Both domains must be quiescent
// during the call.
func (l *Link[T]) Reset() {
	l.requestToggle.Store(false)
	l.acknowledgeToggle.Store(false)
	l.ackRelay.Reset()
	l.reqRelay.Reset()
	l.lastRequest = false
	l.pending = false
}
