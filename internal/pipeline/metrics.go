package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts pipeline activity across all workers. It also implements
// prometheus.Collector.
type Metrics struct {
	linesRead        uint64
	matched          uint64
	delivered        uint64
	filtered         uint64
	timestampErrors  uint64
	validationErrors uint64
	sinkErrors       uint64

	totalLatencyMS uint64
	startTime      time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

func (m *Metrics) IncLinesRead()        { atomic.AddUint64(&m.linesRead, 1) }
func (m *Metrics) IncMatched()          { atomic.AddUint64(&m.matched, 1) }
func (m *Metrics) IncDelivered()        { atomic.AddUint64(&m.delivered, 1) }
func (m *Metrics) IncFiltered()         { atomic.AddUint64(&m.filtered, 1) }
func (m *Metrics) IncTimestampErrors()  { atomic.AddUint64(&m.timestampErrors, 1) }
func (m *Metrics) IncValidationErrors() { atomic.AddUint64(&m.validationErrors, 1) }
func (m *Metrics) IncSinkErrors()       { atomic.AddUint64(&m.sinkErrors, 1) }

func (m *Metrics) AddLatency(ms int64) {
	atomic.AddUint64(&m.totalLatencyMS, uint64(ms))
}

func (m *Metrics) LinesRead() uint64        { return atomic.LoadUint64(&m.linesRead) }
func (m *Metrics) Matched() uint64          { return atomic.LoadUint64(&m.matched) }
func (m *Metrics) Delivered() uint64        { return atomic.LoadUint64(&m.delivered) }
func (m *Metrics) Filtered() uint64         { return atomic.LoadUint64(&m.filtered) }
func (m *Metrics) TimestampErrors() uint64  { return atomic.LoadUint64(&m.timestampErrors) }
func (m *Metrics) ValidationErrors() uint64 { return atomic.LoadUint64(&m.validationErrors) }
func (m *Metrics) SinkErrors() uint64       { return atomic.LoadUint64(&m.sinkErrors) }

// Failed is the number of matched lines that were not delivered because of
// an error.
func (m *Metrics) Failed() uint64 {
	return m.TimestampErrors() + m.ValidationErrors() + m.SinkErrors()
}

func (m *Metrics) AvgLatencyMS() float64 {
	delivered := m.Delivered()
	if delivered == 0 {
		return 0
	}
	total := atomic.LoadUint64(&m.totalLatencyMS)
	return float64(total) / float64(delivered)
}

// EPS is delivered events per second since start.
func (m *Metrics) EPS() float64 {
	secs := time.Since(m.startTime).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(m.Delivered()) / secs
}

func (m *Metrics) StartTime() time.Time {
	return m.startTime
}

// Snapshot returns the counters keyed by their JSON names.
func (m *Metrics) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"lines_read":          m.LinesRead(),
		"events_matched":      m.Matched(),
		"events_delivered":    m.Delivered(),
		"events_filtered":     m.Filtered(),
		"events_failed":       m.Failed(),
		"timestamp_errors":    m.TimestampErrors(),
		"validation_errors":   m.ValidationErrors(),
		"sink_errors":         m.SinkErrors(),
		"average_delivery_ms": m.AvgLatencyMS(),
		"events_per_second":   m.EPS(),
		"uptime_seconds":      int(time.Since(m.startTime).Seconds()),
	}
}

var (
	linesReadDesc = prometheus.NewDesc("fatalwatch_lines_read_total",
		"Log lines consumed from all sources.", nil, nil)
	matchedDesc = prometheus.NewDesc("fatalwatch_events_matched_total",
		"Lines carrying the FATAL marker.", nil, nil)
	deliveredDesc = prometheus.NewDesc("fatalwatch_events_delivered_total",
		"Events accepted by the sink.", nil, nil)
	filteredDesc = prometheus.NewDesc("fatalwatch_events_filtered_total",
		"Events suppressed by the filter expression.", nil, nil)
	errorsDesc = prometheus.NewDesc("fatalwatch_event_errors_total",
		"Events not delivered, by failure kind.", []string{"kind"}, nil)
	latencyDesc = prometheus.NewDesc("fatalwatch_delivery_latency_ms_total",
		"Sum of sink delivery latency in milliseconds.", nil, nil)
)

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- linesReadDesc
	ch <- matchedDesc
	ch <- deliveredDesc
	ch <- filteredDesc
	ch <- errorsDesc
	ch <- latencyDesc
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	counter := func(d *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	counter(linesReadDesc, m.LinesRead())
	counter(matchedDesc, m.Matched())
	counter(deliveredDesc, m.Delivered())
	counter(filteredDesc, m.Filtered())
	counter(errorsDesc, m.TimestampErrors(), KindTimestamp)
	counter(errorsDesc, m.ValidationErrors(), KindValidation)
	counter(errorsDesc, m.SinkErrors(), KindSink)
	counter(latencyDesc, atomic.LoadUint64(&m.totalLatencyMS))
}
