package storage

const initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    uuid        TEXT NOT NULL UNIQUE,
    start_time  DATETIME NOT NULL,
    listen_addr TEXT NOT NULL,
    config      TEXT
);

CREATE TABLE IF NOT EXISTS streams (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    INTEGER NOT NULL REFERENCES sessions (id),
    stream_id     INTEGER NOT NULL,
    first_seen    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL,
    context_valid INTEGER NOT NULL DEFAULT 0,
    rf_reference  REAL,
    bandwidth     REAL,
    sample_rate   REAL,
    ref_level     REAL,
    gain1         REAL,
    gain2         REAL,
    UNIQUE (session_id, stream_id)
);

CREATE TABLE IF NOT EXISTS packets (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id   INTEGER NOT NULL REFERENCES sessions (id),
    stream_id    INTEGER NOT NULL,
    seconds      INTEGER NOT NULL,
    picoseconds  INTEGER NOT NULL,
    sample_count INTEGER NOT NULL,
    lost         INTEGER NOT NULL DEFAULT 0,
    flushed      INTEGER NOT NULL DEFAULT 0,
    iq           BLOB NOT NULL
);`

const initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_packets_session_stream_time
    ON packets (session_id, stream_id, seconds, picoseconds);
CREATE INDEX IF NOT EXISTS idx_streams_session
    ON streams (session_id);`

const (
	insertSessionSQL = `
INSERT INTO sessions (
                      uuid,
                      start_time,
                      listen_addr,
                      config)
VALUES (?, CURRENT_TIMESTAMP, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    uuid,
    start_time,
    listen_addr,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    uuid,
    start_time,
    listen_addr,
    config
FROM sessions`

	upsertStreamSQL = `
INSERT INTO streams (session_id,
                     stream_id,
                     first_seen,
                     updated_at,
                     context_valid,
                     rf_reference,
                     bandwidth,
                     sample_rate,
                     ref_level,
                     gain1,
                     gain2)
VALUES (?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (session_id, stream_id) DO UPDATE SET
    updated_at    = CURRENT_TIMESTAMP,
    context_valid = excluded.context_valid,
    rf_reference  = excluded.rf_reference,
    bandwidth     = excluded.bandwidth,
    sample_rate   = excluded.sample_rate,
    ref_level     = excluded.ref_level,
    gain1         = excluded.gain1,
    gain2         = excluded.gain2`

	selectStreamsSQL = `
SELECT
    stream_id,
    first_seen,
    updated_at,
    context_valid,
    rf_reference,
    bandwidth,
    sample_rate,
    ref_level,
    gain1,
    gain2
FROM streams
WHERE
    session_id = ?
ORDER BY stream_id`

	insertPacketSQL = `
INSERT INTO packets (session_id,
                     stream_id,
                     seconds,
                     picoseconds,
                     sample_count,
                     lost,
                     flushed,
                     iq)
VALUES `

	selectPacketsSQL = `
SELECT
    p.stream_id,
    p.seconds,
    p.picoseconds,
    p.sample_count,
    p.lost,
    p.flushed,
    p.iq,
    s.rf_reference,
    s.sample_rate
FROM packets p
LEFT JOIN streams s
    ON s.session_id = p.session_id AND s.stream_id = p.stream_id
WHERE
    p.session_id = ?
    AND p.stream_id BETWEEN ? AND ?
    AND p.seconds BETWEEN ? AND ?
ORDER BY p.stream_id, p.seconds, p.picoseconds`
)
