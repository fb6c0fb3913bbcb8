package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/groundstation-io/vrt-ingest/internal/rx"
	"github.com/groundstation-io/vrt-ingest/internal/storage"
)

const defaultStatsInterval = 30 * time.Second

// WithListenAddr records the capture endpoint on the session row.
func WithListenAddr(addr string) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.listenAddr = addr
	}
}

// WithSessionConfig stores the effective configuration with the session.
func WithSessionConfig(config any) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.sessionConfig = config
	}
}

// WithStaleAfter enables idle stream warnings after the given silence.
func WithStaleAfter(d time.Duration) func(*Orchestrator) {
	return func(o *Orchestrator) {
		o.staleAfter = d
	}
}

// WithStatsInterval sets the period of the throughput log line.
func WithStatsInterval(d time.Duration) func(*Orchestrator) {
	return func(o *Orchestrator) {
		if d > 0 {
			o.statsInterval = d
		}
	}
}

// Orchestrator owns one capture session: it runs the receiver against
// the datagram source, persists released batches and stream context,
// and reports throughput and idle streams.
type Orchestrator struct {
	store storage.Store
	recv  *rx.Receiver
	src   rx.DatagramSource

	logger        *slog.Logger
	listenAddr    string
	sessionConfig any
	staleAfter    time.Duration
	statsInterval time.Duration

	sessionID int64

	// contextSaved tracks the last persisted context update per stream
	// so unchanged context does not rewrite the row on every batch.
	contextSaved map[uint32]time.Time

	// staleWarned suppresses repeated idle warnings per stream.
	staleWarned map[uint32]bool

	lastStats map[uint32]rx.StreamStats
}

// NewOrchestrator creates an Orchestrator over an opened store,
// receiver and source.
func NewOrchestrator(store storage.Store, recv *rx.Receiver, src rx.DatagramSource, logger *slog.Logger, options ...func(*Orchestrator)) *Orchestrator {
	o := Orchestrator{
		store:         store,
		recv:          recv,
		src:           src,
		logger:        logger,
		statsInterval: defaultStatsInterval,
		contextSaved:  make(map[uint32]time.Time),
		staleWarned:   make(map[uint32]bool),
		lastStats:     make(map[uint32]rx.StreamStats),
	}

	for _, option := range options {
		option(&o)
	}

	return &o
}

// Run captures until ctx is cancelled. The receiver's shutdown flush is
// consumed and persisted before Run returns.
func (o *Orchestrator) Run(ctx context.Context) error {
	sessionID, sessionUUID, err := o.store.CreateSession(ctx, o.listenAddr, o.sessionConfig)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	o.sessionID = sessionID
	o.logger.Info("session started", "session", sessionUUID, "addr", o.listenAddr)

	// Writes that race shutdown still have to land; the store context
	// must survive the cancellation that stops the receiver.
	storeCtx := context.WithoutCancel(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- o.recv.Run(ctx, o.src) }()

	ticker := time.NewTicker(o.statsInterval)
	defer ticker.Stop()

	for {
		select {
		case batch, ok := <-o.recv.Batches():
			if !ok {
				err := <-errCh
				o.logStats()
				o.logger.Info("session finished", "session", sessionUUID)
				return err
			}
			o.handleBatch(storeCtx, batch)

		case <-ticker.C:
			o.logStats()
			o.checkStale()
		}
	}
}

func (o *Orchestrator) handleBatch(ctx context.Context, batch *rx.Batch) {
	if batch.ContextKnown && batch.Context.Updated.After(o.contextSaved[batch.StreamID]) {
		if err := o.store.UpsertStream(ctx, o.sessionID, batch.StreamID, batch.Context); err != nil {
			o.logger.Error("persisting stream context", "stream", batch.StreamID, "error", err)
		} else {
			o.contextSaved[batch.StreamID] = batch.Context.Updated
		}
	}

	if err := o.store.StorePackets(ctx, o.sessionID, batch); err != nil {
		o.logger.Error("persisting batch", "stream", batch.StreamID, "error", err)
	}
}

// logStats emits one line per active stream with rates since the last
// report.
func (o *Orchestrator) logStats() {
	stats := o.recv.Stats()
	for id, s := range stats {
		prev := o.lastStats[id]
		o.lastStats[id] = s

		rate := float64(s.Samples-prev.Samples) / o.statsInterval.Seconds()
		o.logger.Info("stream stats",
			"stream", fmt.Sprintf("%#08x", id),
			"state", s.State.String(),
			"packets", humanize.Comma(int64(s.Packets)),
			"samples", humanize.SI(float64(s.Samples), "S"),
			"rate", humanize.SI(rate, "S/s"),
			"lost", s.WireLost,
			"late", s.LateDrops,
			"shed", s.BackpressureDrops,
		)
	}

	if malformed := o.recv.MalformedPackets(); malformed > 0 {
		o.logger.Warn("malformed datagrams seen", "count", malformed)
	}
}

// checkStale warns once per silence for streams past the idle horizon.
func (o *Orchestrator) checkStale() {
	if o.staleAfter <= 0 {
		return
	}

	now := time.Now()
	for id, s := range o.recv.Stats() {
		if s.LastArrival.IsZero() {
			continue
		}
		idle := now.Sub(s.LastArrival)
		if idle > o.staleAfter {
			if !o.staleWarned[id] {
				o.staleWarned[id] = true
				o.logger.Warn("stream idle",
					"stream", fmt.Sprintf("%#08x", id),
					"idle", idle.Round(time.Second))
			}
			continue
		}
		o.staleWarned[id] = false
	}
}
