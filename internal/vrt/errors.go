package vrt

import "errors"

var (
	// ErrMalformedHeader indicates a datagram shorter than the mandatory
	// four byte header word.
	ErrMalformedHeader = errors.New("vrt: malformed header")

	// ErrUnsupportedPacketType indicates a header whose packet type code
	// is outside the set this receiver handles.
	ErrUnsupportedPacketType = errors.New("vrt: unsupported packet type")

	// ErrSizeMismatch indicates that the header size field disagrees with
	// the actual datagram length.
	ErrSizeMismatch = errors.New("vrt: packet size mismatch")

	// ErrTruncatedContext indicates a context packet whose payload ends
	// before all fields announced by the indicator bitmap.
	ErrTruncatedContext = errors.New("vrt: truncated context packet")
)
