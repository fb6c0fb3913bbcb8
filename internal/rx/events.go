package rx

import "github.com/groundstation-io/vrt-ingest/internal/vrt"

// ErrorKind labels the failure classes the receiver accounts for.
type ErrorKind string

const (
	ErrorMalformedHeader  ErrorKind = "malformed_header"
	ErrorUnsupportedType  ErrorKind = "unsupported_type"
	ErrorSizeMismatch     ErrorKind = "size_mismatch"
	ErrorTruncatedContext ErrorKind = "truncated_context"
	ErrorLateDrop         ErrorKind = "late_drop"
	ErrorBackpressureDrop ErrorKind = "backpressure_drop"
)

// Batch is a run of in-order data packets released for one stream,
// annotated with the stream's context at release time.
type Batch struct {
	StreamID uint32
	Packets  []*vrt.DataPacket

	// Context is the stream's accumulated tuning state. It is only
	// meaningful when ContextKnown is true.
	Context      Snapshot
	ContextKnown bool

	// Lost is the wire loss observed on the stream since the previous
	// batch, derived from packet counter gaps.
	Lost uint64

	// Flushed marks batches forced out by shutdown rather than by the
	// reorder release rules.
	Flushed bool
}

// Samples returns the total complex sample count across the batch.
func (b *Batch) Samples() int {
	n := 0
	for _, p := range b.Packets {
		n += p.SampleCount()
	}
	return n
}
