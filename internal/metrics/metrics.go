package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rocknwa/Liquidation-Bot/internal/comet"
	"github.com/rocknwa/Liquidation-Bot/internal/liquidation"
)

const namespace = "liquidator"

// Evaluation results.
const (
	ResultNotEligible    = "not_eligible"
	ResultUnprofitable   = "unprofitable"
	ResultActionable     = "actionable"
	ResultTransientError = "transient_error"
	ResultPermanentError = "permanent_error"
)

// Metrics holds the bot's Prometheus collectors.
type Metrics struct {
	evaluations *prometheus.CounterVec
	attempts    *prometheus.CounterVec
	events      *prometheus.CounterVec
	newAccounts prometheus.Counter
	sweeps      prometheus.Histogram
	headBlock   prometheus.Gauge
}

// New registers the collectors on reg. watched, if set, backs the watched
// accounts gauge.
func New(reg prometheus.Registerer, watched func() float64) (*Metrics, error) {
	m := &Metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Account evaluations by result.",
		}, []string{"result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Execution attempt records by outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Decoded Comet events by kind.",
		}, []string{"kind"}),
		newAccounts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "accounts_added_total",
			Help:      "Accounts added to the watched set from events.",
		}),
		sweeps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of a full sweep over the watched set.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		headBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "head_block",
			Help:      "Latest block number seen on the head subscription.",
		}),
	}
	collectors := []prometheus.Collector{m.evaluations, m.attempts, m.events, m.newAccounts, m.sweeps, m.headBlock}
	if watched != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watched_accounts",
			Help:      "Accounts currently in the watched set.",
		}, watched))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Evaluated implements liquidation.Observer.
func (m *Metrics) Evaluated(_ common.Address, c *liquidation.Candidate, err error) {
	m.evaluations.WithLabelValues(evaluationResult(c, err)).Inc()
}

func evaluationResult(c *liquidation.Candidate, err error) string {
	switch {
	case err != nil && comet.IsTransient(err):
		return ResultTransientError
	case err != nil:
		return ResultPermanentError
	case c == nil || !c.Eligible:
		return ResultNotEligible
	case c.Actionable():
		return ResultActionable
	default:
		return ResultUnprofitable
	}
}

// Record implements liquidation.Recorder.
func (m *Metrics) Record(a liquidation.Attempt) {
	m.attempts.WithLabelValues(string(a.Outcome)).Inc()
}

// EventSeen implements trigger.EventObserver.
func (m *Metrics) EventSeen(ev *comet.AccountEvent, added bool) {
	m.events.WithLabelValues(string(ev.Kind)).Inc()
	if added {
		m.newAccounts.Inc()
	}
}

// SweepDone implements trigger.SweepObserver.
func (m *Metrics) SweepDone(_ int, elapsed time.Duration) {
	m.sweeps.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveHead(h *types.Header) {
	if h == nil || h.Number == nil {
		return
	}
	m.headBlock.Set(float64(h.Number.Uint64()))
}

// Serve exposes g on addr at /metrics until ctx is done.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Printf("[info] metrics listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
