package storage

import (
	"database/sql"
	"time"
)

// ReaderOption narrows the packets a PacketReader yields.
type ReaderOption func(*PacketReader)

// WithStream restricts the reader to a single stream.
func WithStream(streamID uint32) ReaderOption {
	return func(r *PacketReader) {
		r.minStream = streamID
		r.maxStream = streamID
	}
}

// WithTimeRange restricts the reader to packets whose integer timestamp
// falls within [from, to].
func WithTimeRange(from, to time.Time) ReaderOption {
	return func(r *PacketReader) {
		r.minSec = from.Unix()
		r.maxSec = to.Unix()
	}
}

// PacketReader iterates over stored packets ordered by stream and
// timestamp. Use it like sql.Rows: Next, Current, then Error and Close.
type PacketReader struct {
	minStream uint32
	maxStream uint32
	minSec    int64
	maxSec    int64

	rows    *sql.Rows
	current *PacketRecord
	err     error
}

// Next advances to the next packet. It returns false at the end of the
// result set or on error.
func (r *PacketReader) Next() bool {
	if r.err != nil || !r.rows.Next() {
		return false
	}

	var (
		rec         PacketRecord
		streamID    int64
		seconds     int64
		picoseconds int64
		rfRef       sql.NullFloat64
		rate        sql.NullFloat64
	)
	if r.err = r.rows.Scan(&streamID, &seconds, &picoseconds, &rec.SampleCount,
		&rec.Lost, &rec.Flushed, &rec.IQ, &rfRef, &rate); r.err != nil {
		return false
	}

	rec.StreamID = uint32(streamID)
	rec.Seconds = uint32(seconds)
	rec.Picoseconds = uint64(picoseconds)
	rec.RFReference = nullToPtr(rfRef)
	rec.SampleRate = nullToPtr(rate)

	r.current = &rec
	return true
}

// Current returns the packet Next advanced to.
func (r *PacketReader) Current() *PacketRecord { return r.current }

// Error returns the first error hit during iteration.
func (r *PacketReader) Error() error {
	if r.err != nil {
		return r.err
	}
	return r.rows.Err()
}

// Close releases the underlying cursor.
func (r *PacketReader) Close() error {
	return r.rows.Close()
}
