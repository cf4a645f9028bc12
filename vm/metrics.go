package vm

import (
	"fmt"
	"time"

	"github.com/go-kit/kit/metrics"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "helloworld"

// Metrics records deployments and contract calls
type Metrics struct {
	deployCount  metrics.Counter
	callCount    metrics.Counter
	callDuration metrics.Histogram
	gasUsed      metrics.Histogram

	// kept for tests
	deployVec *stdprometheus.CounterVec
	callVec   *stdprometheus.CounterVec
}

// NewMetrics creates the engine metrics and registers them on reg
func NewMetrics(reg stdprometheus.Registerer) (*Metrics, error) {
	const subsystem = "vm"

	deployVec := stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      "deploy_count",
		Help:      "Number of modules deployed.",
	}, []string{"kind", "error"})
	callVec := stdprometheus.NewCounterVec(stdprometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      "call_count",
		Help:      "Number of times a contract function has been invoked.",
	}, []string{"method", "kind", "error"})
	durationVec := stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      "call_duration_seconds",
		Help:      "How long a contract function took to execute (in seconds).",
		Buckets:   stdprometheus.ExponentialBuckets(0.0001, 4, 8),
	}, []string{"method", "kind"})
	gasVec := stdprometheus.NewHistogramVec(stdprometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: subsystem,
		Name:      "gas_used",
		Help:      "Gas used by successful contract calls.",
		Buckets:   stdprometheus.ExponentialBuckets(100, 2, 10),
	}, []string{"method"})

	for _, c := range []stdprometheus.Collector{deployVec, callVec, durationVec, gasVec} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	return &Metrics{
		deployCount:  kitprometheus.NewCounter(deployVec),
		callCount:    kitprometheus.NewCounter(callVec),
		callDuration: kitprometheus.NewHistogram(durationVec),
		gasUsed:      kitprometheus.NewHistogram(gasVec),
		deployVec:    deployVec,
		callVec:      callVec,
	}, nil
}

func (m *Metrics) deployed(kind string, err error) {
	m.deployCount.With("kind", kind, "error", fmt.Sprint(err != nil)).Add(1)
}

func (m *Metrics) called(method, kind string, begin time.Time, gas int64, err error) {
	m.callCount.With("method", method, "kind", kind, "error", fmt.Sprint(err != nil)).Add(1)
	m.callDuration.With("method", method, "kind", kind).Observe(time.Since(begin).Seconds())
	if err == nil {
		m.gasUsed.With("method", method).Observe(float64(gas))
	}
}
