package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/groundstation-io/vrt-ingest/internal/rx"
	"github.com/groundstation-io/vrt-ingest/internal/vrt"
)

func testStore(t *testing.T) *SqliteStore {
	t.Helper()
	s := NewSqliteStore(filepath.Join(t.TempDir(), "capture.db"))
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return s
}

func testPacket(t *testing.T, streamID uint32, sec uint32, payload []byte) *vrt.DataPacket {
	t.Helper()
	buf := vrt.EncodeDataPacket(vrt.Header{
		Type: vrt.TypeIFDataWithStreamID,
		TSI:  vrt.TSIUTC,
		TSF:  vrt.TSFRealTime,
	}, streamID, 0, vrt.Timestamp{Seconds: sec, Fraction: 42}, payload, 0)

	h, err := vrt.ParseHeader(buf)
	if err != nil {
		t.Fatal(err)
	}
	p, err := vrt.ParseDataPacket(buf, h)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSqliteStoreSessions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, sessionUUID, err := s.CreateSession(ctx, "239.1.2.3:5004", map[string]int{"depth": 12})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if id == 0 || sessionUUID == "" {
		t.Fatalf("CreateSession() = %d, %q", id, sessionUUID)
	}

	sess, err := s.Session(ctx, id)
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if sess.UUID != sessionUUID || sess.ListenAddr != "239.1.2.3:5004" {
		t.Errorf("Session() = %+v", sess)
	}
	if sess.Config == nil || *sess.Config != `{"depth":12}` {
		t.Errorf("Config = %v, want stored JSON", sess.Config)
	}

	all, err := s.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(all) != 1 {
		t.Errorf("Sessions() returned %d rows, want 1", len(all))
	}
}

func TestSqliteStoreStreamUpsert(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, _, err := s.CreateSession(ctx, "127.0.0.1:5004", nil)
	if err != nil {
		t.Fatal(err)
	}

	snap := rx.Snapshot{Valid: vrt.IndRFReference}
	snap.Indicator = snap.Valid
	snap.RFReference = 100e6
	if err := s.UpsertStream(ctx, id, 7, snap); err != nil {
		t.Fatalf("UpsertStream() error = %v", err)
	}

	// A later update with more fields must replace the stored context.
	snap.Valid |= vrt.IndSampleRate
	snap.Indicator = snap.Valid
	snap.RFReference = 101.7e6
	snap.SampleRate = 8e6
	if err := s.UpsertStream(ctx, id, 7, snap); err != nil {
		t.Fatalf("UpsertStream() update error = %v", err)
	}

	streams, err := s.Streams(ctx, id)
	if err != nil {
		t.Fatalf("Streams() error = %v", err)
	}
	if len(streams) != 1 {
		t.Fatalf("Streams() returned %d rows, want 1", len(streams))
	}
	info := streams[0]
	if info.StreamID != 7 {
		t.Errorf("StreamID = %d, want 7", info.StreamID)
	}
	if info.RFReference == nil || *info.RFReference != 101.7e6 {
		t.Errorf("RFReference = %v, want 101.7e6", info.RFReference)
	}
	if info.SampleRate == nil || *info.SampleRate != 8e6 {
		t.Errorf("SampleRate = %v, want 8e6", info.SampleRate)
	}
	if info.RefLevel != nil {
		t.Errorf("RefLevel = %v, want nil for a never-seen field", *info.RefLevel)
	}
}

func TestSqliteStorePacketRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, _, err := s.CreateSession(ctx, "127.0.0.1:5004", nil)
	if err != nil {
		t.Fatal(err)
	}

	payload := []byte{0x40, 0x00, 0xC0, 0x00, 0x00, 0x01, 0xFF, 0xFF}
	batch := &rx.Batch{
		StreamID: 7,
		Packets: []*vrt.DataPacket{
			testPacket(t, 7, 100, payload),
			testPacket(t, 7, 101, payload),
		},
		Lost: 3,
	}
	if err := s.StorePackets(ctx, id, batch); err != nil {
		t.Fatalf("StorePackets() error = %v", err)
	}
	if err := s.StorePackets(ctx, id, &rx.Batch{StreamID: 9}); err != nil {
		t.Errorf("StorePackets(empty) error = %v", err)
	}

	r, err := s.ReadPackets(ctx, id, WithStream(7))
	if err != nil {
		t.Fatalf("ReadPackets() error = %v", err)
	}
	defer r.Close()

	var recs []*PacketRecord
	for r.Next() {
		recs = append(recs, r.Current())
	}
	if err := r.Error(); err != nil {
		t.Fatalf("reader error = %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("read %d packets, want 2", len(recs))
	}
	first := recs[0]
	if first.Seconds != 100 || first.Picoseconds != 42 {
		t.Errorf("timestamp = %d.%d, want 100.42", first.Seconds, first.Picoseconds)
	}
	if !bytes.Equal(first.IQ, payload) {
		t.Errorf("IQ = % x, want % x", first.IQ, payload)
	}
	if first.Lost != 3 {
		t.Errorf("Lost = %d, want 3 on the first packet of the batch", first.Lost)
	}
	if recs[1].Lost != 0 {
		t.Errorf("Lost = %d on the second packet, want 0", recs[1].Lost)
	}
	if first.SampleCount != 2 {
		t.Errorf("SampleCount = %d, want 2", first.SampleCount)
	}
	if got := first.Samples(); len(got) != 2 || real(got[0]) != 0.5 {
		t.Errorf("Samples() = %v", got)
	}
}

func TestPacketRecordTime(t *testing.T) {
	r := PacketRecord{Seconds: 1700000000, Picoseconds: 500_000_000_000}
	got := r.Time()
	if got.Unix() != 1700000000 || got.Nanosecond() != 500_000_000 {
		t.Errorf("Time() = %v", got)
	}
}
