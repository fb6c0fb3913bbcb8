package rx

import (
	"fmt"
	"time"

	"github.com/groundstation-io/vrt-ingest/internal/vrt"
)

const (
	// DefaultReorderDepth is the number of packets a stream may hold
	// before the oldest is released.
	DefaultReorderDepth = 12

	// DefaultReorderHorizon releases a packet once anything this much
	// newer has arrived on the same stream, regardless of depth.
	DefaultReorderHorizon = 50 * time.Millisecond
)

// LateDropError reports a packet that arrived after its slot in the
// output order had already been released.
type LateDropError struct {
	StreamID uint32
	Lateness time.Duration
}

func (e *LateDropError) Error() string {
	return fmt.Sprintf("stream %#x: packet %s behind released output", e.StreamID, e.Lateness)
}

// node is a single buffered packet in a stream queue.
type node struct {
	pkt  *vrt.DataPacket
	next *node
}

// streamQueue holds one stream's pending packets in timestamp order.
// head is the oldest packet, tail the newest.
type streamQueue struct {
	head, tail *node
	size       int

	released     bool
	lastReleased vrt.Timestamp
}

// ReorderBuffer absorbs bounded packet reordering per stream. Packets
// are kept sorted by timestamp and released in order when the stream
// exceeds the depth limit or when the spread between the oldest and the
// newest buffered packet exceeds the time horizon. Releases are strictly
// non-decreasing in timestamp; a packet arriving behind the release
// point is rejected with LateDropError.
//
// ReorderBuffer is not safe for concurrent use; it belongs to the
// ingest goroutine.
type ReorderBuffer struct {
	depth   int
	horizon time.Duration
	streams map[uint32]*streamQueue
}

// NewReorderBuffer creates a buffer with the given per-stream depth and
// release horizon. A depth below one or a non-positive horizon is
// rejected.
func NewReorderBuffer(depth int, horizon time.Duration) (*ReorderBuffer, error) {
	if depth < 1 {
		return nil, fmt.Errorf("reorder depth must be at least 1, got %d", depth)
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("reorder horizon must be positive, got %s", horizon)
	}
	return &ReorderBuffer{
		depth:   depth,
		horizon: horizon,
		streams: make(map[uint32]*streamQueue),
	}, nil
}

// Insert adds a packet to its stream queue and returns any packets the
// insertion released, oldest first. A packet whose timestamp precedes
// the stream's release point is dropped and reported as LateDropError.
func (b *ReorderBuffer) Insert(p *vrt.DataPacket) ([]*vrt.DataPacket, error) {
	q, ok := b.streams[p.StreamID]
	if !ok {
		q = &streamQueue{}
		b.streams[p.StreamID] = q
	}

	if q.released && p.Timestamp.Before(q.lastReleased) {
		return nil, &LateDropError{
			StreamID: p.StreamID,
			Lateness: q.lastReleased.Sub(p.Timestamp),
		}
	}

	q.insert(p)

	var out []*vrt.DataPacket
	for q.size > b.depth {
		out = append(out, q.pop())
	}
	for q.size > 1 && q.tail.pkt.Timestamp.Sub(q.head.pkt.Timestamp) > b.horizon {
		out = append(out, q.pop())
	}
	return out, nil
}

// insert links p into the queue keeping timestamp order. Equal
// timestamps keep arrival order.
func (q *streamQueue) insert(p *vrt.DataPacket) {
	n := &node{pkt: p}
	q.size++

	if q.head == nil {
		q.head, q.tail = n, n
		return
	}
	if !p.Timestamp.Before(q.tail.pkt.Timestamp) {
		q.tail.next = n
		q.tail = n
		return
	}
	if p.Timestamp.Before(q.head.pkt.Timestamp) {
		n.next = q.head
		q.head = n
		return
	}
	cur := q.head
	for cur.next != nil && !p.Timestamp.Before(cur.next.pkt.Timestamp) {
		cur = cur.next
	}
	n.next = cur.next
	cur.next = n
}

// pop releases the oldest packet and advances the release point.
func (q *streamQueue) pop() *vrt.DataPacket {
	n := q.head
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	}
	q.size--

	q.released = true
	q.lastReleased = n.pkt.Timestamp
	return n.pkt
}

// Flush releases every pending packet of a stream in timestamp order.
func (b *ReorderBuffer) Flush(streamID uint32) []*vrt.DataPacket {
	q, ok := b.streams[streamID]
	if !ok {
		return nil
	}
	out := make([]*vrt.DataPacket, 0, q.size)
	for q.size > 0 {
		out = append(out, q.pop())
	}
	return out
}

// FlushAll drains every stream and returns the released packets keyed
// by stream id.
func (b *ReorderBuffer) FlushAll() map[uint32][]*vrt.DataPacket {
	out := make(map[uint32][]*vrt.DataPacket, len(b.streams))
	for id, q := range b.streams {
		if q.size == 0 {
			continue
		}
		out[id] = b.Flush(id)
	}
	return out
}

// Len returns the number of packets pending for a stream.
func (b *ReorderBuffer) Len(streamID uint32) int {
	if q, ok := b.streams[streamID]; ok {
		return q.size
	}
	return 0
}
