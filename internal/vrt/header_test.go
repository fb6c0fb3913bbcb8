package vrt

import (
	"errors"
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		want Header
	}{
		{
			name: "data with stream id, class id and trailer",
			buf:  []byte{0x1C, 0x60, 0x00, 0x3C},
			want: Header{
				Type:           TypeIFDataWithStreamID,
				ClassIDPresent: true,
				TrailerPresent: true,
				TSI:            TSIUTC,
				TSF:            TSFRealTime,
				Count:          0,
				SizeWords:      60,
			},
		},
		{
			name: "bare data packet",
			buf:  []byte{0x00, 0x00, 0x00, 0x05},
			want: Header{Type: TypeIFData, SizeWords: 5},
		},
		{
			name: "context packet with counter",
			buf:  []byte{0x40, 0x6B, 0x00, 0x11},
			want: Header{
				Type:      TypeIFContext,
				TSI:       TSIUTC,
				TSF:       TSFRealTime,
				Count:     11,
				SizeWords: 17,
			},
		},
		{
			name: "counter wraps within its nibble",
			buf:  []byte{0x10, 0x0F, 0x00, 0x08},
			want: Header{Type: TypeIFDataWithStreamID, Count: 15, SizeWords: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeader(tt.buf)
			if err != nil {
				t.Fatalf("ParseHeader() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseHeader() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseHeaderErrors(t *testing.T) {
	t.Run("short buffer", func(t *testing.T) {
		for _, n := range []int{0, 1, 2, 3} {
			_, err := ParseHeader(make([]byte, n))
			if !errors.Is(err, ErrMalformedHeader) {
				t.Errorf("ParseHeader(%d bytes) error = %v, want ErrMalformedHeader", n, err)
			}
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		for _, b := range []byte{0x20, 0x30, 0x60, 0xF0} {
			h, err := ParseHeader([]byte{b, 0x00, 0x00, 0x04})
			if !errors.Is(err, ErrUnsupportedPacketType) {
				t.Errorf("ParseHeader(type %#x) error = %v, want ErrUnsupportedPacketType", b>>4, err)
			}
			if h.Type != PacketType(b>>4) {
				t.Errorf("ParseHeader(type %#x) still decodes type = %v", b>>4, h.Type)
			}
		}
	})
}

func TestHeaderEncodeRoundTrip(t *testing.T) {
	headers := []Header{
		{Type: TypeIFData, SizeWords: 2},
		{Type: TypeIFDataWithStreamID, ClassIDPresent: true, TrailerPresent: true, TSI: TSIUTC, TSF: TSFRealTime, Count: 7, SizeWords: 60},
		{Type: TypeIFContext, TSI: TSIGPS, TSF: TSFSampleCount, Count: 15, SizeWords: 65535},
		{Type: TypeExtContext, TrailerPresent: true, TSF: TSFFreeRunning, SizeWords: 12},
	}
	for _, h := range headers {
		var buf [4]byte
		w := h.Encode()
		buf[0], buf[1], buf[2], buf[3] = byte(w>>24), byte(w>>16), byte(w>>8), byte(w)

		got, err := ParseHeader(buf[:])
		if err != nil {
			t.Fatalf("ParseHeader(Encode(%+v)) error = %v", h, err)
		}
		if got != h {
			t.Errorf("round trip = %+v, want %+v", got, h)
		}
	}
}

func TestPacketTypePredicates(t *testing.T) {
	tests := []struct {
		typ      PacketType
		data     bool
		context  bool
		streamID bool
	}{
		{TypeIFData, true, false, false},
		{TypeIFDataWithStreamID, true, false, true},
		{TypeIFContext, false, true, true},
		{TypeExtContext, false, true, true},
		{TypeExtData, false, false, false},
	}
	for _, tt := range tests {
		if got := tt.typ.IsData(); got != tt.data {
			t.Errorf("%v.IsData() = %v, want %v", tt.typ, got, tt.data)
		}
		if got := tt.typ.IsContext(); got != tt.context {
			t.Errorf("%v.IsContext() = %v, want %v", tt.typ, got, tt.context)
		}
		if got := tt.typ.HasStreamID(); got != tt.streamID {
			t.Errorf("%v.HasStreamID() = %v, want %v", tt.typ, got, tt.streamID)
		}
	}
}
