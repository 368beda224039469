// Package framedq implements a framed FIFO queue bridging a streaming
// producer domain and a streaming consumer domain that share no common
// tick.
//
// Slots are owned exclusively by the producer for writes and by the
// consumer for reads. The two cursors never cross domains in binary
// form: each one is published in reflected-binary (Gray) form and
// observed through a [relay.Word] chain, so a torn sample differs from
// the true cursor by at most one unit and occupancy observers only ever
// undercount. A second cursor pair advances on packet boundaries and
// backs the packet-gated mode.
package framedq

import (
	"math/bits"
	"sync/atomic"

	"github.com/FerroO2000/passerella/internal"
	"github.com/FerroO2000/passerella/internal/gray"
	"github.com/FerroO2000/passerella/relay"
	"golang.org/x/sys/cpu"
)

// Entry couples one payload word with its packet-boundary flag.
type Entry[T any] struct {
	Data        T
	EndOfPacket bool
}

///////////////
//  METRICS  //
///////////////

type queueMetrics struct {
	tel *internal.Telemetry

	pushes         atomic.Int64
	rejectedPushes atomic.Int64
	pops           atomic.Int64
}

func newQueueMetrics(tel *internal.Telemetry) *queueMetrics {
	qm := &queueMetrics{
		tel: tel,
	}

	qm.tel.NewCounter("pushed_words", func() int64 { return qm.pushes.Load() })
	qm.tel.NewCounter("rejected_pushes", func() int64 { return qm.rejectedPushes.Load() })
	qm.tel.NewCounter("popped_words", func() int64 { return qm.pops.Load() })
	qm.tel.NewUpDownCounter("resident_words", func() int64 { return qm.pushes.Load() - qm.pops.Load() })

	return qm
}

/////////////
//  QUEUE  //
/////////////

// Queue is a fixed-depth framed FIFO between one producer domain and one
// consumer domain.
//
// Producer-domain methods: [Queue.TryPush], [Queue.ProducerTick],
// [Queue.ProducerWordCount].
// Consumer-domain methods: [Queue.TryPop], [Queue.Peek],
// [Queue.ConsumerTick], [Queue.WordCount], [Queue.PacketCount].
// No method blocks; rejected operations are no-ops returning false.
type Queue[T any] struct {
	tel     *internal.Telemetry
	metrics *queueMetrics

	slots    []Entry[T]
	depth    uint64
	slotMask uint64 // depth - 1
	ptrMask  uint64 // 2*depth - 1: cursors carry one extra wrap bit
	fullMask uint64 // top two bits of a Gray cursor

	packetGated bool
	stageSlots  int

	_ cpu.CacheLinePad

	// Producer-domain state.
	writePtr    uint64
	writePktPtr uint64
	readRelay   *relay.Word // consumer read cursor, observed by the producer

	_ cpu.CacheLinePad

	// Consumer-domain state.
	readPtr        uint64
	fetchPktPtr    uint64 // advanced when an end-of-packet entry leaves the slots
	consumedPktPtr uint64 // advanced when an end-of-packet entry is handed downstream
	writeRelay     *relay.Word
	writePktRelay  *relay.Word
	staged         [2]Entry[T]
	stagedCount    int
}

// NewQueue returns a new framed queue with the given configuration.
// A nil configuration selects the defaults.
//
// It returns [ErrDepthTooSmall] or [ErrDepthNotPowerOfTwo] on an invalid
// depth, and [relay.ErrNotEnoughStages] on an invalid relay depth.
func NewQueue[T any](name string, cfg *Config) (*Queue[T], error) {
	if cfg == nil {
		cfg = NewConfig()
	}

	if cfg.Depth < 2 {
		return nil, ErrDepthTooSmall
	}
	if cfg.Depth&(cfg.Depth-1) != 0 {
		return nil, ErrDepthNotPowerOfTwo
	}

	readRelay, err := relay.NewWord(cfg.Stages, 0)
	if err != nil {
		return nil, err
	}
	writeRelay, err := relay.NewWord(cfg.Stages, 0)
	if err != nil {
		return nil, err
	}
	writePktRelay, err := relay.NewWord(cfg.Stages, 0)
	if err != nil {
		return nil, err
	}

	depth := uint64(cfg.Depth)
	addrWidth := uint64(bits.TrailingZeros64(depth))

	tel := internal.NewTelemetry("framedq", name)

	return &Queue[T]{
		tel:     tel,
		metrics: newQueueMetrics(tel),

		slots:    make([]Entry[T], depth),
		depth:    depth,
		slotMask: depth - 1,
		ptrMask:  depth<<1 - 1,
		fullMask: 1<<addrWidth | 1<<(addrWidth-1),

		packetGated: cfg.PacketGated,
		stageSlots:  cfg.Staging.slots(),

		readRelay:     readRelay,
		writeRelay:    writeRelay,
		writePktRelay: writePktRelay,
	}, nil
}

// Depth returns the number of payload slots.
func (q *Queue[T]) Depth() int {
	return int(q.depth)
}

////////////////
//  PRODUCER  //
////////////////

// TryPush appends one entry. Producer domain only.
// It returns false, leaving all state untouched, when the queue is full.
func (q *Queue[T]) TryPush(data T, endOfPacket bool) bool {
	// Full when the write cursor, re-encoded, equals the relayed read
	// cursor with its top two bits complemented: the cursors then
	// differ by exactly one full lap. A stale relayed cursor only makes
	// this test fire early, never late.
	if gray.Encode(q.writePtr) == q.readRelay.Out()^q.fullMask {
		q.metrics.rejectedPushes.Add(1)
		return false
	}

	next := (q.writePtr + 1) & q.ptrMask

	q.slots[q.writePtr&q.slotMask] = Entry[T]{Data: data, EndOfPacket: endOfPacket}

	// Slot first, cursor second. The release store inside the relay
	// orders the slot write for the consumer.
	q.writePtr = next
	q.writeRelay.Set(gray.Encode(next))

	if endOfPacket {
		q.writePktPtr = (q.writePktPtr + 1) & q.ptrMask
		q.writePktRelay.Set(gray.Encode(q.writePktPtr))
	}

	q.metrics.pushes.Add(1)
	return true
}

// ProducerTick advances the read-cursor relay by one producer tick.
func (q *Queue[T]) ProducerTick() {
	q.readRelay.Tick()
}

// ProducerWordCount returns the write-side occupancy view: entries
// written minus entries the relayed read cursor shows as vacated.
// It may over-report occupancy while the relay settles, never under-report,
// so the producer never overruns a slot still in use.
func (q *Queue[T]) ProducerWordCount() int {
	return int((q.writePtr - gray.Decode(q.readRelay.Out())) & q.ptrMask)
}

////////////////
//  CONSUMER  //
////////////////

func (q *Queue[T]) empty() bool {
	return q.writeRelay.Out() == gray.Encode(q.readPtr)
}

func (q *Queue[T]) fetchablePackets() uint64 {
	return (gray.Decode(q.writePktRelay.Out()) - q.fetchPktPtr) & q.ptrMask
}

func (q *Queue[T]) gated() bool {
	return q.packetGated && q.fetchablePackets() == 0
}

// fetch removes the next entry from the slots, honoring packet gating.
func (q *Queue[T]) fetch() (Entry[T], bool) {
	var zero Entry[T]

	if q.empty() || q.gated() {
		return zero, false
	}

	entry := q.slots[q.readPtr&q.slotMask]

	// The slot is vacated only once the cursor is republished.
	q.readPtr = (q.readPtr + 1) & q.ptrMask
	q.readRelay.Set(gray.Encode(q.readPtr))

	if entry.EndOfPacket {
		q.fetchPktPtr = (q.fetchPktPtr + 1) & q.ptrMask
	}

	return entry, true
}

func (q *Queue[T]) consume(entry Entry[T]) {
	if entry.EndOfPacket {
		q.consumedPktPtr = (q.consumedPktPtr + 1) & q.ptrMask
	}

	q.metrics.pops.Add(1)
}

// ConsumerTick advances the write-cursor relays by one consumer tick and
// refills the output stage, if one is configured.
func (q *Queue[T]) ConsumerTick() {
	q.writeRelay.Tick()
	q.writePktRelay.Tick()

	for q.stagedCount < q.stageSlots {
		entry, ok := q.fetch()
		if !ok {
			break
		}

		q.staged[q.stagedCount] = entry
		q.stagedCount++
	}
}

// TryPop removes and returns the next entry. Consumer domain only.
// It returns false when no entry is available: the queue is empty, the
// packet gate is closed, or (with staging) nothing was prefetched yet.
func (q *Queue[T]) TryPop() (Entry[T], bool) {
	if q.stageSlots == 0 {
		entry, ok := q.fetch()
		if !ok {
			return entry, false
		}

		q.consume(entry)
		return entry, true
	}

	var zero Entry[T]

	if q.stagedCount == 0 {
		return zero, false
	}

	entry := q.staged[0]
	q.staged[0] = q.staged[1]
	q.staged[1] = zero
	q.stagedCount--

	q.consume(entry)
	return entry, true
}

// Peek returns the next entry without consuming it. Consumer domain only.
// With staging enabled the entry stays visible until [Queue.TryPop]
// hands it downstream.
func (q *Queue[T]) Peek() (Entry[T], bool) {
	var zero Entry[T]

	if q.stageSlots == 0 {
		if q.empty() || q.gated() {
			return zero, false
		}
		return q.slots[q.readPtr&q.slotMask], true
	}

	if q.stagedCount == 0 {
		return zero, false
	}
	return q.staged[0], true
}

// WordCount returns the number of entries resident on the consumer side:
// slots the relayed write cursor shows as filled plus anything sitting in
// the output stage. It never over-reports and converges to the true
// occupancy once the producer has been quiescent for the relay depth.
func (q *Queue[T]) WordCount() int {
	return int((gray.Decode(q.writeRelay.Out())-q.readPtr)&q.ptrMask) + q.stagedCount
}

// PacketCount returns the number of complete packets resident on the
// consumer side, distinct from [Queue.WordCount]. A packet counts from
// the moment its end-of-packet entry is visible through the relay until
// that entry is handed downstream.
func (q *Queue[T]) PacketCount() int {
	return int((gray.Decode(q.writePktRelay.Out()) - q.consumedPktPtr) & q.ptrMask)
}

/////////////
//  RESET  //
/////////////

// Reset empties the queue: cursors return to zero, the relays refill
// with zero and the output stage is dropped. Both domains must be
// quiescent during the call.
func (q *Queue[T]) Reset() {
	q.writePtr = 0
	q.writePktPtr = 0
	q.readPtr = 0
	q.fetchPktPtr = 0
	q.consumedPktPtr = 0

	q.readRelay.Reset()
	q.writeRelay.Reset()
	q.writePktRelay.Reset()

	var zero Entry[T]
	q.staged[0] = zero
	q.staged[1] = zero
	q.stagedCount = 0
}
