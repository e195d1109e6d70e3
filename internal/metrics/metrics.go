// Package metrics exposes the ledger's recovered-error counters and sync
// statistics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/walletledger/internal/domain"
	"github.com/alanyoungcy/walletledger/internal/ledger"
)

const namespace = "walletledger"

// Registry holds every collector the service publishes.
type Registry struct {
	reg *prometheus.Registry

	DecodeFailures       prometheus.Counter
	ConversionFailures   prometheus.Counter
	MissingInstruments   prometheus.Counter
	DegenerateRecords    prometheus.Counter
	DuplicateTakerOrders prometheus.Counter
	MismatchedMakerFills prometheus.Counter
	UnmatchedCloses      prometheus.Counter
	ShortFirstOpens      prometheus.Counter
	UnknownTags          *prometheus.CounterVec

	Syncs          *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
	TradesInserted prometheus.Counter
	TxFetched      prometheus.Counter
}

// New creates a Registry with Go runtime and process collectors attached.
func New() *Registry {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}

	r := &Registry{
		reg: prometheus.NewRegistry(),

		DecodeFailures:       counter("decode_failures_total", "Transactions skipped because their logs could not be decoded"),
		ConversionFailures:   counter("conversion_failures_total", "Numeric fields that defaulted to zero"),
		MissingInstruments:   counter("missing_instruments_total", "Records referencing a market or token absent from the catalog"),
		DegenerateRecords:    counter("degenerate_records_total", "Events dropped for zero price and size"),
		DuplicateTakerOrders: counter("duplicate_taker_orders_total", "Transactions carrying more than one taker order for the wallet"),
		MismatchedMakerFills: counter("mismatched_maker_fills_total", "Maker fills naming a taker order other than the transaction's"),
		UnmatchedCloses:      counter("unmatched_closes_total", "Closing events that exceeded open inventory"),
		ShortFirstOpens:      counter("short_first_opens_total", "Symbols whose earliest known spot event was a Short"),
		UnknownTags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unknown_tags_total",
			Help:      "Decoded records with an unrecognized event tag",
		}, []string{"tag"}),

		Syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Wallet syncs by outcome",
		}, []string{"result"}),
		SyncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of a wallet sync",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"result"}),
		TradesInserted: counter("trades_inserted_total", "Trade events newly written to the cache"),
		TxFetched:      counter("transactions_fetched_total", "Transactions fetched from the RPC node"),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.DecodeFailures, r.ConversionFailures, r.MissingInstruments,
		r.DegenerateRecords, r.DuplicateTakerOrders, r.MismatchedMakerFills, r.UnmatchedCloses, r.ShortFirstOpens, r.UnknownTags,
		r.Syncs, r.SyncDuration, r.TradesInserted, r.TxFetched,
	)
	return r
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveDiagnostics adds one run's recovered-error counts.
func (r *Registry) ObserveDiagnostics(d *ledger.Diagnostics, report ledger.MatchReport) {
	if d != nil {
		r.DecodeFailures.Add(float64(d.DecodeFailures))
		r.ConversionFailures.Add(float64(d.ConversionFailures))
		r.MissingInstruments.Add(float64(d.MissingInstruments))
		r.DegenerateRecords.Add(float64(d.DegenerateRecords))
		r.DuplicateTakerOrders.Add(float64(d.DuplicateTakerOrders))
		r.MismatchedMakerFills.Add(float64(d.MismatchedMakerFills))
		for tag, n := range d.UnknownTags {
			r.UnknownTags.WithLabelValues(tagLabel(tag)).Add(float64(n))
		}
	}
	r.UnmatchedCloses.Add(float64(report.Unmatched))
	r.ShortFirstOpens.Add(float64(report.ShortFirst))
}

// ObserveSync records a finished sync.
func (r *Registry) ObserveSync(result string, elapsed time.Duration, fetched int, inserted int64) {
	r.Syncs.WithLabelValues(result).Inc()
	r.SyncDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	r.TxFetched.Add(float64(fetched))
	r.TradesInserted.Add(float64(inserted))
}

func tagLabel(t domain.Tag) string {
	return t.String()
}
