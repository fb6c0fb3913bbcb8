// Package storage persists capture sessions, stream context and raw
// sample payloads to SQLite, and reads them back for rendering.
package storage

import (
	"context"

	"github.com/groundstation-io/vrt-ingest/internal/rx"
)

// Store is the persistence interface of the capture pipeline.
type Store interface {
	// CreateSession opens a new capture session bound to the listen
	// address and returns its row id and generated UUID. The config
	// value, when not nil, is stored alongside; strings and byte slices
	// are stored verbatim, anything else is marshalled to JSON.
	CreateSession(ctx context.Context, listenAddr string, config any) (int64, string, error)

	// Session returns one session by id.
	Session(ctx context.Context, id int64) (*Session, error)

	// Sessions lists all recorded sessions.
	Sessions(ctx context.Context) ([]*Session, error)

	// UpsertStream records the latest accumulated context of a stream
	// within a session, creating the row on first sight.
	UpsertStream(ctx context.Context, sessionID int64, streamID uint32, snap rx.Snapshot) error

	// Streams lists the streams of a session with their stored context.
	Streams(ctx context.Context, sessionID int64) ([]*StreamInfo, error)

	// StorePackets writes every packet of a released batch in a single
	// transaction. The batch loss counter is attached to its first
	// packet row.
	StorePackets(ctx context.Context, sessionID int64, batch *rx.Batch) error

	// ReadPackets creates a reader over the stored packets of a
	// session, ordered by stream and timestamp. The returned reader
	// must be closed after use. Each reader belongs to a single
	// goroutine.
	ReadPackets(ctx context.Context, sessionID int64, opts ...ReaderOption) (*PacketReader, error)

	// Close flushes indexes and releases the database connections.
	Close() error
}
