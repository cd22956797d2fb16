package observability

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	metricPrefix = "telemetry_ingest_"

	ResultSuccess = "success"
	ResultError   = "error"
	ResultEmpty   = "empty"
)

var (
	registerOnce sync.Once

	cycleTotal    *prometheus.CounterVec
	cycleLatency  *prometheus.HistogramVec
	bytesRead     prometheus.Counter
	linesRead     prometheus.Counter
	truncations   prometheus.Counter
	recordsParsed prometheus.Counter

	recordsPersisted *prometheus.CounterVec
	recordsDropped   *prometheus.CounterVec
	upsertFailures   *prometheus.CounterVec
	upsertLatency    *prometheus.HistogramVec

	notifyTotal *prometheus.CounterVec
)

// InitMetrics registers pipeline metrics on the default registry. Safe to call more than once.
func InitMetrics() {
	registerOnce.Do(func() {
		cycleTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "cycles_total",
				Help: "Total ingest cycles by result",
			},
			[]string{"result"},
		)
		cycleLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "cycle_duration_seconds",
				Help:    "Ingest cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		bytesRead = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "bytes_read_total",
				Help: "Total bytes read from the telemetry log",
			},
		)
		linesRead = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "lines_read_total",
				Help: "Total complete lines read from the telemetry log",
			},
		)
		truncations = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "truncations_total",
				Help: "Total detected truncations of the telemetry log",
			},
		)
		recordsParsed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_parsed_total",
				Help: "Total records produced by the line interpreters",
			},
		)
		recordsPersisted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_persisted_total",
				Help: "Total records acknowledged by the store by collection and outcome",
			},
			[]string{"collection", "outcome"},
		)
		recordsDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_dropped_total",
				Help: "Total records dropped before persistence by reason",
			},
			[]string{"reason"},
		)
		upsertFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "upsert_failures_total",
				Help: "Total failed collection upserts",
			},
			[]string{"collection"},
		)
		upsertLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "upsert_duration_seconds",
				Help:    "Collection upsert duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "result"},
		)
		notifyTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_total",
				Help: "Total update notifications by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			cycleTotal,
			cycleLatency,
			bytesRead,
			linesRead,
			truncations,
			recordsParsed,
			recordsPersisted,
			recordsDropped,
			upsertFailures,
			upsertLatency,
			notifyTotal,
		)
	})
}

// ObserveCycle records cycle duration and result.
func ObserveCycle(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if cycleTotal != nil {
		cycleTotal.WithLabelValues(result).Inc()
	}
	if cycleLatency != nil {
		cycleLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddRead records bytes and lines consumed from the log.
func AddRead(bytes, lines int) {
	if bytesRead != nil && bytes > 0 {
		bytesRead.Add(float64(bytes))
	}
	if linesRead != nil && lines > 0 {
		linesRead.Add(float64(lines))
	}
}

// IncTruncation counts a detected truncation.
func IncTruncation() {
	if truncations != nil {
		truncations.Inc()
	}
}

// AddParsed counts records produced by the parser.
func AddParsed(count int) {
	if recordsParsed != nil && count > 0 {
		recordsParsed.Add(float64(count))
	}
}

// AddPersisted counts records acknowledged by the store.
func AddPersisted(collection string, inserted, matched int64) {
	if recordsPersisted == nil {
		return
	}
	if inserted > 0 {
		recordsPersisted.WithLabelValues(collection, "inserted").Add(float64(inserted))
	}
	if matched > 0 {
		recordsPersisted.WithLabelValues(collection, "matched").Add(float64(matched))
	}
}

// AddDropped counts records discarded before persistence.
func AddDropped(reason string, count int) {
	if reason == "" {
		reason = "unknown"
	}
	if recordsDropped != nil && count > 0 {
		recordsDropped.WithLabelValues(reason).Add(float64(count))
	}
}

// ObserveUpsert records upsert duration and result for a collection.
func ObserveUpsert(collection, result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if upsertLatency != nil {
		upsertLatency.WithLabelValues(collection, result).Observe(duration.Seconds())
	}
	if result == ResultError && upsertFailures != nil {
		upsertFailures.WithLabelValues(collection).Inc()
	}
}

// IncNotify counts a notification attempt by result.
func IncNotify(result string) {
	if result == "" {
		result = ResultSuccess
	}
	if notifyTotal != nil {
		notifyTotal.WithLabelValues(result).Inc()
	}
}

// StartMetricsServer serves /metrics on addr in the background. Returns a
// shutdown function; an empty addr disables the server.
func StartMetricsServer(addr string) func(context.Context) error {
	if addr == "" {
		return func(context.Context) error { return nil }
	}

	InitMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("Metrics server failed")
		}
	}()

	return srv.Shutdown
}
