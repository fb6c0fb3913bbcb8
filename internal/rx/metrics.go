package rx

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports receiver counters to Prometheus. All vectors are
// labelled by stream id except errors, which are labelled by kind.
type Metrics struct {
	packets           *prometheus.CounterVec
	samples           *prometheus.CounterVec
	wireLost          *prometheus.CounterVec
	lateDrops         *prometheus.CounterVec
	backpressureDrops *prometheus.CounterVec
	contextUpdates    *prometheus.CounterVec
	errors            *prometheus.CounterVec
	batchSamples      prometheus.Histogram
}

// NewMetrics registers the receiver metric set with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		packets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_packets_total",
			Help: "Data packets accepted per stream",
		}, []string{"stream"}),
		samples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_samples_total",
			Help: "Complex samples accepted per stream",
		}, []string{"stream"}),
		wireLost: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_wire_lost_packets_total",
			Help: "Packets lost on the wire, derived from counter gaps",
		}, []string{"stream"}),
		lateDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_late_drops_total",
			Help: "Packets dropped for arriving behind the release point",
		}, []string{"stream"}),
		backpressureDrops: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_backpressure_drops_total",
			Help: "Batches dropped because the consumer fell behind",
		}, []string{"stream"}),
		contextUpdates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_context_updates_total",
			Help: "Context packets merged per stream",
		}, []string{"stream"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vrt_errors_total",
			Help: "Receive errors by kind",
		}, []string{"kind"}),
		batchSamples: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "vrt_batch_samples",
			Help:    "Complex samples per released batch",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8),
		}),
	}
}

func streamLabel(id uint32) string { return fmt.Sprintf("%#08x", id) }

func (m *Metrics) observeBatch(b *Batch) {
	if m == nil {
		return
	}
	l := streamLabel(b.StreamID)
	m.packets.WithLabelValues(l).Add(float64(len(b.Packets)))
	m.samples.WithLabelValues(l).Add(float64(b.Samples()))
	m.batchSamples.Observe(float64(b.Samples()))
}

func (m *Metrics) observeWireLost(streamID uint32, n int) {
	if m == nil || n == 0 {
		return
	}
	m.wireLost.WithLabelValues(streamLabel(streamID)).Add(float64(n))
}

func (m *Metrics) observeLateDrop(streamID uint32) {
	if m == nil {
		return
	}
	m.lateDrops.WithLabelValues(streamLabel(streamID)).Inc()
	m.errors.WithLabelValues(string(ErrorLateDrop)).Inc()
}

func (m *Metrics) observeBackpressureDrop(streamID uint32) {
	if m == nil {
		return
	}
	m.backpressureDrops.WithLabelValues(streamLabel(streamID)).Inc()
	m.errors.WithLabelValues(string(ErrorBackpressureDrop)).Inc()
}

func (m *Metrics) observeContextUpdate(streamID uint32) {
	if m == nil {
		return
	}
	m.contextUpdates.WithLabelValues(streamLabel(streamID)).Inc()
}

func (m *Metrics) observeError(kind ErrorKind) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(string(kind)).Inc()
}
