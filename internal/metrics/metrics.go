package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Throughput metrics - Track RPC and contract traffic
var (
	RPCRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractkit_rpc_requests_total",
			Help: "Total number of JSON-RPC requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	TransactionsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contractkit_transactions_submitted_total",
		Help: "Total number of signed transactions accepted by the node",
	})

	QueriesExecuted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contractkit_queries_executed_total",
		Help: "Total number of read-only contract calls",
	})

	DeploymentsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contractkit_deployments_confirmed_total",
		Help: "Total number of contract deployments with a successful receipt",
	})

	ReceiptsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractkit_receipts_observed_total",
			Help: "Total number of terminal receipt outcomes by status",
		},
		[]string{"status"},
	)
)

// Performance metrics - Track latency
var (
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contractkit_rpc_duration_seconds",
			Help:    "Time taken by a single JSON-RPC request",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	ReceiptWaitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "contractkit_receipt_wait_duration_seconds",
		Help:    "Time between submission and the terminal receipt outcome",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	})
)

// Reliability metrics - Track retries and failures
var (
	TransportRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contractkit_transport_retries_total",
		Help: "Total number of retried transport operations",
	})

	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractkit_errors_total",
			Help: "Total number of errors by component",
		},
		[]string{"component"},
	)
)

// Scenario metrics - Track harness results
var (
	ScenarioRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractkit_scenario_runs_total",
			Help: "Total number of scenario runs by result",
		},
		[]string{"result"},
	)

	ScenarioSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contractkit_scenario_steps_total",
			Help: "Total number of scenario steps by result",
		},
		[]string{"result"},
	)

	ScenariosInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "contractkit_scenarios_in_flight",
		Help: "Number of scenarios currently running",
	})
)
