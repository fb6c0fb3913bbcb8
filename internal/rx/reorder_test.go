package rx

import (
	"errors"
	"testing"
	"time"

	"github.com/groundstation-io/vrt-ingest/internal/vrt"
)

// dataAt builds a minimal data packet with the given stream id and
// timestamp in (seconds, picoseconds).
func dataAt(streamID uint32, sec uint32, pico uint64) *vrt.DataPacket {
	buf := vrt.EncodeDataPacket(vrt.Header{
		Type: vrt.TypeIFDataWithStreamID,
		TSI:  vrt.TSIUTC,
		TSF:  vrt.TSFRealTime,
	}, streamID, 0, vrt.Timestamp{Seconds: sec, Fraction: pico}, nil, 0)

	h, err := vrt.ParseHeader(buf)
	if err != nil {
		panic(err)
	}
	p, err := vrt.ParseDataPacket(buf, h)
	if err != nil {
		panic(err)
	}
	return p
}

func TestReorderBufferDepthRelease(t *testing.T) {
	b, err := NewReorderBuffer(3, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	// Out of order arrivals within the window.
	for _, sec := range []uint32{10, 12, 11} {
		out, err := b.Insert(dataAt(1, sec, 0))
		if err != nil {
			t.Fatalf("Insert(%d) error = %v", sec, err)
		}
		if len(out) != 0 {
			t.Fatalf("Insert(%d) released %d packets before depth reached", sec, len(out))
		}
	}

	out, err := b.Insert(dataAt(1, 13, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Timestamp.Seconds != 10 {
		t.Fatalf("Insert over depth released %v, want the oldest (sec 10)", out)
	}
	if b.Len(1) != 3 {
		t.Errorf("Len() = %d, want 3", b.Len(1))
	}
}

func TestReorderBufferOrdering(t *testing.T) {
	b, err := NewReorderBuffer(2, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	arrivals := []uint32{5, 3, 4, 8, 6, 7, 9}
	var released []uint32
	for _, sec := range arrivals {
		out, err := b.Insert(dataAt(1, sec, 0))
		if err != nil {
			t.Fatalf("Insert(%d) error = %v", sec, err)
		}
		for _, p := range out {
			released = append(released, p.Timestamp.Seconds)
		}
	}
	for _, p := range b.Flush(1) {
		released = append(released, p.Timestamp.Seconds)
	}

	if len(released) != len(arrivals) {
		t.Fatalf("released %d packets, want %d", len(released), len(arrivals))
	}
	for i := 1; i < len(released); i++ {
		if released[i] < released[i-1] {
			t.Fatalf("release order not non-decreasing: %v", released)
		}
	}
}

func TestReorderBufferHorizonRelease(t *testing.T) {
	b, err := NewReorderBuffer(100, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.Insert(dataAt(1, 10, 0)); err != nil {
		t.Fatal(err)
	}

	// 100 ms newer than the head: the head must be released even though
	// the depth limit is nowhere near.
	out, err := b.Insert(dataAt(1, 10, 100_000_000_000))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].Timestamp.Fraction != 0 {
		t.Fatalf("horizon release = %v, want the head packet", out)
	}
}

func TestReorderBufferLateDrop(t *testing.T) {
	b, err := NewReorderBuffer(2, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	for _, sec := range []uint32{10, 11, 12} {
		if _, err := b.Insert(dataAt(1, sec, 0)); err != nil {
			t.Fatal(err)
		}
	}
	// sec 10 has been released; an older packet is now late.
	out, err := b.Insert(dataAt(1, 9, 0))

	var late *LateDropError
	if !errors.As(err, &late) {
		t.Fatalf("Insert() error = %v, want LateDropError", err)
	}
	if late.StreamID != 1 {
		t.Errorf("LateDropError.StreamID = %d, want 1", late.StreamID)
	}
	if late.Lateness != time.Second {
		t.Errorf("LateDropError.Lateness = %v, want 1s", late.Lateness)
	}
	if out != nil {
		t.Errorf("late insert released packets: %v", out)
	}

	// The release point is a strict bound: an equal timestamp is fine.
	if _, err := b.Insert(dataAt(1, 10, 0)); err != nil {
		t.Errorf("Insert(equal to release point) error = %v", err)
	}
}

func TestReorderBufferPerStream(t *testing.T) {
	b, err := NewReorderBuffer(1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := b.Insert(dataAt(1, 10, 0)); err != nil {
		t.Fatal(err)
	}
	out, err := b.Insert(dataAt(2, 5, 0))
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Errorf("stream 2 insert released stream 1 packets: %v", out)
	}
	if b.Len(1) != 1 || b.Len(2) != 1 {
		t.Errorf("Len() = %d/%d, want 1/1", b.Len(1), b.Len(2))
	}
}

func TestReorderBufferFlushAll(t *testing.T) {
	b, err := NewReorderBuffer(10, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	for _, sec := range []uint32{12, 10, 11} {
		if _, err := b.Insert(dataAt(1, sec, 0)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := b.Insert(dataAt(2, 7, 0)); err != nil {
		t.Fatal(err)
	}

	all := b.FlushAll()
	if len(all) != 2 {
		t.Fatalf("FlushAll() returned %d streams, want 2", len(all))
	}
	got := all[1]
	for i, want := range []uint32{10, 11, 12} {
		if got[i].Timestamp.Seconds != want {
			t.Errorf("stream 1 flush[%d] = sec %d, want %d", i, got[i].Timestamp.Seconds, want)
		}
	}
	if b.Len(1) != 0 || b.Len(2) != 0 {
		t.Error("FlushAll() left packets behind")
	}
}

func TestNewReorderBufferValidation(t *testing.T) {
	t.Run("zero depth", func(t *testing.T) {
		if _, err := NewReorderBuffer(0, time.Second); err == nil {
			t.Error("NewReorderBuffer(0, 1s) did not fail")
		}
	})
	t.Run("negative horizon", func(t *testing.T) {
		if _, err := NewReorderBuffer(4, -time.Second); err == nil {
			t.Error("NewReorderBuffer(4, -1s) did not fail")
		}
	})
}
