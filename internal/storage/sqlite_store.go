package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/groundstation-io/vrt-ingest/internal/rx"
	"github.com/groundstation-io/vrt-ingest/internal/vrt"
)

// SqliteStore implements Store on a single SQLite file. Writes go
// through a WAL connection, reads through a separate read-only one;
// both open lazily.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

// NewSqliteStore creates a store over the given database file. The
// schema is initialised on first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, initSchemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

func (s *SqliteStore) CreateSession(ctx context.Context, listenAddr string, config any) (sessionID int64, sessionUUID string, err error) {
	var configData sql.NullString

	if config != nil {
		switch v := config.(type) {
		case string:
			configData.Valid = true
			configData.String = v

		case []byte:
			configData.Valid = true
			configData.String = string(v)

		default:
			var p []byte
			if p, err = json.Marshal(config); err != nil {
				err = fmt.Errorf("marshaling config: %w", err)
				return
			}

			configData.Valid = true
			configData.String = string(p)
		}
	}

	db, err := s.getWriteDB()
	if err != nil {
		err = fmt.Errorf("getting write connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, insertSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	sessionUUID = uuid.NewString()
	result, err := stmt.ExecContext(ctx, sessionUUID, listenAddr, configData)
	if err != nil {
		err = fmt.Errorf("inserting session: %w", err)
		return
	}

	sessionID, err = result.LastInsertId()
	if err != nil {
		err = fmt.Errorf("getting session ID: %w", err)
	}
	return
}

func (s *SqliteStore) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.UUID, &sess.StartTime, &sess.ListenAddr, &config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

func (s *SqliteStore) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.UUID, &sess.StartTime, &sess.ListenAddr, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, &sess)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating sessions: %w", err)
	}
	return
}

func (s *SqliteStore) UpsertStream(ctx context.Context, sessionID int64, streamID uint32, snap rx.Snapshot) (err error) {
	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	stmt, err := db.PrepareContext(ctx, upsertStreamSQL)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer closeWithError(stmt, &err)

	if _, err = stmt.ExecContext(ctx,
		sessionID,
		int64(streamID),
		int64(snap.Valid),
		nullField(&snap, vrt.IndRFReference, snap.RFReference),
		nullField(&snap, vrt.IndBandwidth, snap.Bandwidth),
		nullField(&snap, vrt.IndSampleRate, snap.SampleRate),
		nullField(&snap, vrt.IndRefLevel, snap.RefLevel),
		nullField(&snap, vrt.IndGain, snap.Gain1),
		nullField(&snap, vrt.IndGain, snap.Gain2),
	); err != nil {
		return fmt.Errorf("upserting stream: %w", err)
	}
	return nil
}

// nullField maps a context field to NULL unless the stream has actually
// received it.
func nullField(snap *rx.Snapshot, bit uint32, v float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v, Valid: snap.Has(bit)}
}

func (s *SqliteStore) Streams(ctx context.Context, sessionID int64) (streams []*StreamInfo, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectStreamsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying streams: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			info     StreamInfo
			streamID int64
			valid    int64
			rfRef    sql.NullFloat64
			bw       sql.NullFloat64
			rate     sql.NullFloat64
			level    sql.NullFloat64
			g1, g2   sql.NullFloat64
		)
		if err = rows.Scan(&streamID, &info.FirstSeen, &info.UpdatedAt, &valid, &rfRef, &bw, &rate, &level, &g1, &g2); err != nil {
			err = fmt.Errorf("scanning stream: %w", err)
			return
		}
		info.StreamID = uint32(streamID)
		info.ContextValid = uint32(valid)
		info.RFReference = nullToPtr(rfRef)
		info.Bandwidth = nullToPtr(bw)
		info.SampleRate = nullToPtr(rate)
		info.RefLevel = nullToPtr(level)
		info.Gain1 = nullToPtr(g1)
		info.Gain2 = nullToPtr(g2)
		streams = append(streams, &info)
	}
	if err = rows.Err(); err != nil {
		err = fmt.Errorf("iterating streams: %w", err)
	}
	return
}

func nullToPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func (s *SqliteStore) StorePackets(ctx context.Context, sessionID int64, batch *rx.Batch) (err error) {
	if len(batch.Packets) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	values := make([]interface{}, 0, len(batch.Packets)*8)
	valuesPlaceholder := "(?, ?, ?, ?, ?, ?, ?, ?)"

	var sb strings.Builder
	sb.WriteString(insertPacketSQL)

	for i, p := range batch.Packets {
		var lost int64
		if i == 0 {
			lost = int64(batch.Lost)
		}
		values = append(values,
			sessionID,
			int64(batch.StreamID),
			int64(p.Timestamp.Seconds),
			int64(p.Timestamp.Fraction),
			int64(p.SampleCount()),
			lost,
			batch.Flushed,
			p.Payload(),
		)

		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(valuesPlaceholder)
	}

	if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
		return fmt.Errorf("batch inserting packets: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// ReadPackets creates a PacketReader over one session. See the Store
// interface for the contract; options are WithStream, WithSecondsRange
// and nothing else today.
func (s *SqliteStore) ReadPackets(ctx context.Context, sessionID int64, opts ...ReaderOption) (*PacketReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	r := &PacketReader{
		minStream: 0,
		maxStream: math.MaxUint32,
		minSec:    0,
		maxSec:    math.MaxInt64,
	}
	for _, opt := range opts {
		opt(r)
	}

	rows, err := db.QueryContext(ctx, selectPacketsSQL,
		sessionID, int64(r.minStream), int64(r.maxStream), r.minSec, r.maxSec)
	if err != nil {
		return nil, fmt.Errorf("querying packets: %w", err)
	}
	r.rows = rows
	return r, nil
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			_ = runSQLCommand(s.writeDB, initIndexesSQL)

			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		switch {
		case writeErr != nil && readErr != nil:
			s.closeErr = errors.Join(writeErr, readErr)
		case writeErr != nil:
			s.closeErr = writeErr
		case readErr != nil:
			s.closeErr = readErr
		}
	})

	return s.closeErr
}
