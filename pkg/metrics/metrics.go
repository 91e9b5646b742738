// Package metrics records scan and export counters on a private registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Scan outcomes.
const (
	OutcomeOK          = "ok"
	OutcomeEmpty       = "empty"
	OutcomeDenied      = "denied"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

// Recorder holds the application metrics.
type Recorder struct {
	registry *prometheus.Registry

	MessagesScanned       prometheus.Counter
	TransactionsExtracted prometheus.Counter
	FieldsFound           *prometheus.CounterVec
	Scans                 *prometheus.CounterVec
	ScanDuration          prometheus.Histogram
	Exports               *prometheus.CounterVec
}

// New creates a Recorder on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		MessagesScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "smsledger_messages_scanned_total",
			Help: "Total number of inbox messages scanned",
		}),
		TransactionsExtracted: factory.NewCounter(prometheus.CounterOpts{
			Name: "smsledger_transactions_extracted_total",
			Help: "Total number of transactions built from scanned messages",
		}),
		FieldsFound: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smsledger_fields_found_total",
			Help: "Total number of extracted fields by name",
		}, []string{"field"}), // field: amount, utr
		Scans: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smsledger_scans_total",
			Help: "Total number of scans by outcome",
		}, []string{"outcome"}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "smsledger_scan_duration_seconds",
			Help:    "Scan duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}),
		Exports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "smsledger_exports_total",
			Help: "Total number of exports by status",
		}, []string{"status"}), // status: success, failed
	}
}

// RecordScan records one scan pass.
func (r *Recorder) RecordScan(outcome string, messages, transactions, amounts, utrs int, duration time.Duration) {
	r.Scans.WithLabelValues(outcome).Inc()
	r.MessagesScanned.Add(float64(messages))
	r.TransactionsExtracted.Add(float64(transactions))
	r.FieldsFound.WithLabelValues("amount").Add(float64(amounts))
	r.FieldsFound.WithLabelValues("utr").Add(float64(utrs))
	r.ScanDuration.Observe(duration.Seconds())
}

// RecordExport records one export attempt.
func (r *Recorder) RecordExport(err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	r.Exports.WithLabelValues(status).Inc()
}

// Gatherer exposes the registry.
func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
