package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the engine counters. A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	// TxSubmitted counts broadcast transactions per network and step type.
	TxSubmitted *prometheus.CounterVec
	// TxFailed counts transactions that failed per network and stage
	// (sign, broadcast, confirm, reverted).
	TxFailed *prometheus.CounterVec
	// NonceResets counts nonce cache invalidations per network.
	NonceResets *prometheus.CounterVec
	// ActionResults counts queue results per network, action kind and status.
	ActionResults *prometheus.CounterVec
	// ReceiptWait tracks seconds spent waiting for receipts.
	ReceiptWait *prometheus.HistogramVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		TxSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nova_transactions_submitted_total",
				Help: "Total number of broadcast transactions",
			},
			[]string{"network", "type"},
		),
		TxFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nova_transactions_failed_total",
				Help: "Total number of failed transactions by stage",
			},
			[]string{"network", "stage"},
		),
		NonceResets: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nova_nonce_resets_total",
				Help: "Total number of nonce cache resets",
			},
			[]string{"network"},
		),
		ActionResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nova_action_results_total",
				Help: "Total number of action results",
			},
			[]string{"network", "kind", "status"},
		),
		ReceiptWait: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nova_receipt_wait_seconds",
				Help:    "Time spent waiting for transaction receipts",
				Buckets: []float64{1, 3, 5, 10, 20, 40, 80, 160},
			},
			[]string{"network"},
		),
	}
}

func (r *Recorder) Submitted(network, txType string) {
	if r == nil {
		return
	}
	r.TxSubmitted.WithLabelValues(network, txType).Inc()
}

func (r *Recorder) Failed(network, stage string) {
	if r == nil {
		return
	}
	r.TxFailed.WithLabelValues(network, stage).Inc()
}

func (r *Recorder) NonceReset(network string) {
	if r == nil {
		return
	}
	r.NonceResets.WithLabelValues(network).Inc()
}

func (r *Recorder) Result(network, kind, status string) {
	if r == nil {
		return
	}
	r.ActionResults.WithLabelValues(network, kind, status).Inc()
}

func (r *Recorder) ObserveReceiptWait(network string, seconds float64) {
	if r == nil {
		return
	}
	r.ReceiptWait.WithLabelValues(network).Observe(seconds)
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile dumps the counters in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
