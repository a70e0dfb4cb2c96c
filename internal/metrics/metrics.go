package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the house collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Operations      *prometheus.CounterVec
	OperationTime   *prometheus.HistogramVec
	LedgerEntries   *prometheus.CounterVec
	LedgerOpen      prometheus.Gauge
	Syncs           *prometheus.CounterVec
	ReplayedEntries prometheus.Counter
	RateLimits      *prometheus.CounterVec
	StakeAccounts   prometheus.Gauge
}

// New registers collectors on reg. Pass prometheus.NewRegistry() to keep
// instances isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "house_operations_total",
			Help: "House operations by name and result",
		}, []string{"op", "result"}),
		OperationTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "house_operation_duration_seconds",
			Help:    "House operation latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}, []string{"op"}),
		LedgerEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "house_ledger_entries_total",
			Help: "Ledger entry lifecycle events (appended, coalesced, collected)",
		}, []string{"event"}),
		LedgerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "house_ledger_entries_open",
			Help: "Ledger entries not yet fully replayed",
		}),
		Syncs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "house_account_syncs_total",
			Help: "Account syncs by mode (final, amortized)",
		}, []string{"mode"}),
		ReplayedEntries: f.NewCounter(prometheus.CounterOpts{
			Name: "house_replayed_entries_total",
			Help: "Ledger entries replayed against accounts",
		}),
		RateLimits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "house_rate_limit_events_total",
			Help: "Rate limit outcomes by scope and kind",
		}, []string{"scope", "kind"}),
		StakeAccounts: f.NewGauge(prometheus.GaugeOpts{
			Name: "house_stake_accounts",
			Help: "Stake accounts including unbonding ones",
		}),
	}
}

// Tally holds per-operation counts flushed after a commit.
type Tally struct {
	Appended   int
	Coalesced  int
	Collected  int
	FinalSyncs int
	Amortized  int
	Replayed   int
	RateLimits map[[2]string]int
}

func (t *Tally) RateLimit(scope, kind string) {
	if t.RateLimits == nil {
		t.RateLimits = make(map[[2]string]int)
	}
	t.RateLimits[[2]string{scope, kind}]++
}

func (m *Metrics) ObserveOp(op string, seconds float64, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.OperationTime.WithLabelValues(op).Observe(seconds)
}

// Flush adds a committed tally and sets the gauges.
func (m *Metrics) Flush(t Tally, openEntries, stakeAccounts uint32) {
	if m == nil {
		return
	}
	m.LedgerEntries.WithLabelValues("appended").Add(float64(t.Appended))
	m.LedgerEntries.WithLabelValues("coalesced").Add(float64(t.Coalesced))
	m.LedgerEntries.WithLabelValues("collected").Add(float64(t.Collected))
	m.Syncs.WithLabelValues("final").Add(float64(t.FinalSyncs))
	m.Syncs.WithLabelValues("amortized").Add(float64(t.Amortized))
	m.ReplayedEntries.Add(float64(t.Replayed))
	for key, n := range t.RateLimits {
		m.RateLimits.WithLabelValues(key[0], key[1]).Add(float64(n))
	}
	m.LedgerOpen.Set(float64(openEntries))
	m.StakeAccounts.Set(float64(stakeAccounts))
}
