package rx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/groundstation-io/vrt-ingest/internal/vrt"
)

// MaxDatagram is the receive buffer size; a VRT packet cannot exceed
// 65535 words, but UDP caps a datagram well below that.
const MaxDatagram = 65536

// implicitStreamID groups data packets that carry no stream identifier.
const implicitStreamID = 0

// DatagramSource yields raw datagrams to the ingest loop. ReadDatagram
// fills buf and returns the datagram length. It must honour ctx
// cancellation and return ctx.Err() once cancelled.
type DatagramSource interface {
	ReadDatagram(ctx context.Context, buf []byte) (int, error)
}

// Config carries the receiver tuning knobs.
type Config struct {
	// ReorderDepth is the per-stream reorder window in packets.
	ReorderDepth int

	// ReorderHorizon releases buffered packets older than this relative
	// to the newest arrival on the stream.
	ReorderHorizon time.Duration

	// ChannelDepth is the capacity of the downstream batch channel.
	ChannelDepth int

	// EmitTimeout bounds how long the ingest loop blocks on a full
	// downstream channel before shedding a batch.
	EmitTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.ReorderDepth == 0 {
		c.ReorderDepth = DefaultReorderDepth
	}
	if c.ReorderHorizon == 0 {
		c.ReorderHorizon = DefaultReorderHorizon
	}
	if c.ChannelDepth == 0 {
		c.ChannelDepth = 64
	}
	if c.EmitTimeout == 0 {
		c.EmitTimeout = 100 * time.Millisecond
	}
}

// Option configures optional receiver collaborators.
type Option func(*Receiver)

// WithLogger sets the receiver logger. Without it logs are discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Receiver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches a Prometheus metric set.
func WithMetrics(m *Metrics) Option {
	return func(r *Receiver) { r.metrics = m }
}

// Receiver turns a datagram source into ordered per-stream sample
// batches. All protocol state is owned by the single goroutine running
// Run; observers interact only through Batches, Stats and
// ContextSnapshot.
type Receiver struct {
	cfg Config

	dataSeq *SequenceMonitor
	ctxSeq  *SequenceMonitor
	track   *ContextTrack
	reorder *ReorderBuffer

	// pendingLost accumulates counter-gap loss per stream between
	// batch emissions. Ingest goroutine only.
	pendingLost map[uint32]uint64

	stats       *statsTable
	malformed   atomic.Uint64
	unsupported atomic.Uint64

	out     chan *Batch
	logger  *slog.Logger
	metrics *Metrics
	running atomic.Bool
}

// New creates a receiver. Zero Config fields take defaults.
func New(cfg Config, opts ...Option) (*Receiver, error) {
	cfg.setDefaults()

	reorder, err := NewReorderBuffer(cfg.ReorderDepth, cfg.ReorderHorizon)
	if err != nil {
		return nil, err
	}

	r := &Receiver{
		cfg:         cfg,
		dataSeq:     NewSequenceMonitor(),
		ctxSeq:      NewSequenceMonitor(),
		track:       NewContextTrack(),
		reorder:     reorder,
		pendingLost: make(map[uint32]uint64),
		stats:       newStatsTable(),
		out:         make(chan *Batch, cfg.ChannelDepth),
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Batches is the downstream channel of released batches. It is closed
// when Run returns, after the shutdown flush.
func (r *Receiver) Batches() <-chan *Batch { return r.out }

// Stats returns a point-in-time copy of every stream's counters.
func (r *Receiver) Stats() map[uint32]StreamStats { return r.stats.snapshot() }

// MalformedPackets returns the count of datagrams dropped before a
// stream could be attributed.
func (r *Receiver) MalformedPackets() uint64 { return r.malformed.Load() }

// UnsupportedPackets returns the count of packets with unhandled types.
func (r *Receiver) UnsupportedPackets() uint64 { return r.unsupported.Load() }

// ContextSnapshot returns the accumulated context of a stream.
func (r *Receiver) ContextSnapshot(streamID uint32) (Snapshot, bool) {
	return r.track.Snapshot(streamID)
}

// Run reads datagrams from src until ctx is cancelled or the source
// fails. On shutdown the reorder buffers are flushed downstream before
// the batch channel is closed. Run may be called once.
func (r *Receiver) Run(ctx context.Context, src DatagramSource) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("receiver already running")
	}
	defer close(r.out)

	buf := make([]byte, MaxDatagram)
	for {
		n, err := src.ReadDatagram(ctx, buf)
		if err != nil {
			r.flush()
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				r.logger.Info("receiver stopped")
				return nil
			}
			return fmt.Errorf("datagram source: %w", err)
		}

		for _, b := range r.Ingest(buf[:n]) {
			r.emit(b)
		}
	}
}

// Ingest processes one datagram and returns any batches it released.
// It is the single-threaded core of the receiver; Run drives it, and
// tests may call it directly.
func (r *Receiver) Ingest(datagram []byte) []*Batch {
	h, err := vrt.ParseHeader(datagram)
	if err != nil {
		if errors.Is(err, vrt.ErrUnsupportedPacketType) {
			r.unsupported.Add(1)
			r.metrics.observeError(ErrorUnsupportedType)
			r.logger.Debug("unsupported packet type", "type", h.Type.String())
		} else {
			r.malformed.Add(1)
			r.metrics.observeError(ErrorMalformedHeader)
			r.logger.Debug("malformed header", "len", len(datagram))
		}
		return nil
	}

	if h.Type.IsContext() {
		r.ingestContext(datagram, h)
		return nil
	}
	return r.ingestData(datagram, h)
}

func (r *Receiver) ingestData(datagram []byte, h vrt.Header) []*Batch {
	p, err := vrt.ParseDataPacket(datagram, h)
	if err != nil {
		r.accountBadData(datagram, h, err)
		return nil
	}

	sid := p.StreamID
	if !h.Type.HasStreamID() {
		sid = implicitStreamID
		p.StreamID = implicitStreamID
	}

	st := r.stats.get(sid)
	st.lastArrival.Store(time.Now().UnixNano())

	lost := r.dataSeq.Observe(sid, h.Count)
	if lost > 0 {
		st.wireLost.Add(uint64(lost))
		r.pendingLost[sid] += uint64(lost)
		r.metrics.observeWireLost(sid, lost)
		r.logger.Debug("wire loss detected", "stream", sid, "lost", lost)
	}

	released, err := r.reorder.Insert(p)
	if err != nil {
		var late *LateDropError
		if errors.As(err, &late) {
			st.lateDrops.Add(1)
			r.metrics.observeLateDrop(sid)
			r.logger.Debug("late packet dropped", "stream", sid, "lateness", late.Lateness)
		}
		return nil
	}
	if len(released) == 0 {
		return nil
	}
	return []*Batch{r.makeBatch(sid, released, false)}
}

// accountBadData charges a rejected data packet against its stream
// where one can still be attributed. The packet's own payload counts as
// lost alongside any counter gap it reveals.
func (r *Receiver) accountBadData(datagram []byte, h vrt.Header, err error) {
	if !errors.Is(err, vrt.ErrSizeMismatch) {
		r.malformed.Add(1)
		r.metrics.observeError(ErrorMalformedHeader)
		return
	}

	sid := uint32(implicitStreamID)
	if h.Type.HasStreamID() {
		if len(datagram) < 8 {
			r.malformed.Add(1)
			r.metrics.observeError(ErrorMalformedHeader)
			return
		}
		sid = uint32(datagram[4])<<24 | uint32(datagram[5])<<16 | uint32(datagram[6])<<8 | uint32(datagram[7])
	}

	st := r.stats.get(sid)
	st.sizeMismatches.Add(1)
	r.metrics.observeError(ErrorSizeMismatch)

	lost := r.dataSeq.Observe(sid, h.Count) + 1
	st.wireLost.Add(uint64(lost))
	r.pendingLost[sid] += uint64(lost)
	r.metrics.observeWireLost(sid, lost)
	r.logger.Warn("data packet rejected", "stream", sid, "error", err)
}

func (r *Receiver) ingestContext(datagram []byte, h vrt.Header) {
	p, err := vrt.ParseContextPacket(datagram, h)
	if err != nil {
		if errors.Is(err, vrt.ErrTruncatedContext) {
			sid := uint32(implicitStreamID)
			if len(datagram) >= 8 {
				sid = uint32(datagram[4])<<24 | uint32(datagram[5])<<16 | uint32(datagram[6])<<8 | uint32(datagram[7])
			}
			r.stats.get(sid).truncatedContexts.Add(1)
			r.metrics.observeError(ErrorTruncatedContext)
			r.logger.Warn("context packet rejected", "stream", sid, "error", err)
			return
		}
		r.malformed.Add(1)
		r.metrics.observeError(ErrorMalformedHeader)
		return
	}

	st := r.stats.get(p.StreamID)
	st.lastArrival.Store(time.Now().UnixNano())

	if lost := r.ctxSeq.Observe(p.StreamID, h.Count); lost > 0 {
		st.wireLost.Add(uint64(lost))
		r.metrics.observeWireLost(p.StreamID, lost)
	}

	r.track.Update(p.StreamID, p.Fields)
	st.contextUpdates.Add(1)
	st.state.Store(int32(StreamActive))
	r.metrics.observeContextUpdate(p.StreamID)
	r.logger.Debug("context updated", "stream", p.StreamID, "indicator", fmt.Sprintf("%#08x", p.Fields.Indicator))
}

func (r *Receiver) makeBatch(streamID uint32, packets []*vrt.DataPacket, flushed bool) *Batch {
	b := &Batch{
		StreamID: streamID,
		Packets:  packets,
		Lost:     r.pendingLost[streamID],
		Flushed:  flushed,
	}
	delete(r.pendingLost, streamID)

	if snap, ok := r.track.Snapshot(streamID); ok {
		b.Context = snap
		b.ContextKnown = true
	}

	st := r.stats.get(streamID)
	st.packets.Add(uint64(len(packets)))
	st.samples.Add(uint64(b.Samples()))
	r.metrics.observeBatch(b)
	return b
}

// emit hands a batch downstream. When the channel stays full past the
// emit timeout the oldest pending batch is shed to keep the ingest loop
// moving.
func (r *Receiver) emit(b *Batch) {
	select {
	case r.out <- b:
		return
	default:
	}

	t := time.NewTimer(r.cfg.EmitTimeout)
	defer t.Stop()
	select {
	case r.out <- b:
		return
	case <-t.C:
	}

	select {
	case old := <-r.out:
		r.dropBatch(old)
	default:
	}
	select {
	case r.out <- b:
	default:
		r.dropBatch(b)
	}
}

func (r *Receiver) dropBatch(b *Batch) {
	r.stats.get(b.StreamID).backpressureDrops.Add(1)
	r.metrics.observeBackpressureDrop(b.StreamID)
	r.logger.Warn("batch dropped, consumer not keeping up",
		"stream", b.StreamID, "packets", len(b.Packets))
}

// flush drains the reorder buffers downstream on shutdown.
func (r *Receiver) flush() {
	for sid, packets := range r.reorder.FlushAll() {
		r.emit(r.makeBatch(sid, packets, true))
	}
}
