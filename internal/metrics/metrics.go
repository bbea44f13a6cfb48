package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "market_data"

// Metrics holds the pipeline collectors.
type Metrics struct {
	RowsInserted       *prometheus.CounterVec
	RowsUpdated        *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	Operations         *prometheus.CounterVec
	StreamMessages     *prometheus.CounterVec
	WriterFlushes      *prometheus.CounterVec

	OperationDuration *prometheus.HistogramVec
	FlushDuration     prometheus.Histogram

	BufferedBars prometheus.Gauge
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RowsInserted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_inserted_total",
				Help:      "Rows inserted by destination table",
			},
			[]string{"table"},
		),
		RowsUpdated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rows_updated_total",
				Help:      "Rows updated by destination table",
			},
			[]string{"table"},
		),
		ValidationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Datasets rejected by schema validation",
			},
			[]string{"table"},
		),
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Orchestrator operations by action and status",
			},
			[]string{"action", "status"}, // "success", "error"
		),
		StreamMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_messages_total",
				Help:      "Stream messages received by type",
			},
			[]string{"type"},
		),
		WriterFlushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "writer_flushes_total",
				Help:      "Bar writer flushes by status",
			},
			[]string{"status"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Fetch plus upsert time per operation",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
			},
			[]string{"action"},
		),
		FlushDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "writer_flush_duration_seconds",
				Help:      "Time taken to flush a batch of bars",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		BufferedBars: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "buffered_bars",
				Help:      "Bars waiting in the stream buffer",
			},
		),
	}

	collectors := []prometheus.Collector{
		m.RowsInserted,
		m.RowsUpdated,
		m.ValidationFailures,
		m.Operations,
		m.StreamMessages,
		m.WriterFlushes,
		m.OperationDuration,
		m.FlushDuration,
		m.BufferedBars,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// ObserveOperation records the outcome of one orchestrator operation.
func (m *Metrics) ObserveOperation(action, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(action, status).Inc()
	m.OperationDuration.WithLabelValues(action).Observe(d.Seconds())
}

// AddRows records rows written to table.
func (m *Metrics) AddRows(table string, inserted, updated int64) {
	if m == nil {
		return
	}
	m.RowsInserted.WithLabelValues(table).Add(float64(inserted))
	m.RowsUpdated.WithLabelValues(table).Add(float64(updated))
}

// ValidationFailed counts a dataset rejected for table.
func (m *Metrics) ValidationFailed(table string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(table).Inc()
}

// StreamMessage counts one received stream message of the given type.
func (m *Metrics) StreamMessage(typ string) {
	if m == nil {
		return
	}
	m.StreamMessages.WithLabelValues(typ).Inc()
}

// ObserveFlush records one writer flush.
func (m *Metrics) ObserveFlush(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.WriterFlushes.WithLabelValues(status).Inc()
	m.FlushDuration.Observe(d.Seconds())
}

// SetBuffered sets the number of buffered bars.
func (m *Metrics) SetBuffered(n int) {
	if m == nil {
		return
	}
	m.BufferedBars.Set(float64(n))
}
