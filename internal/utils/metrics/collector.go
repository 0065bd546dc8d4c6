// internal/utils/metrics/collector.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sonic_defi"

// MetricType представляет тип метрики
type MetricType string

const (
	TransactionCounterType  MetricType = "transaction_counter"
	TransactionDurationType MetricType = "transaction_duration"
	RPCLatencyType          MetricType = "rpc_latency"
	QuoteAttemptType        MetricType = "quote_attempts"
	GasEstimateType         MetricType = "gas_estimates"
	SessionStateType        MetricType = "session_state"
	PoolLiquidityType       MetricType = "pool_liquidity"
)

// Collector управляет набором метрик. Nil *Collector допустим: все методы
// записи становятся no-op, что упрощает тесты компонентов.
type Collector struct {
	metrics sync.Map

	transactionCounter  *prometheus.CounterVec
	transactionDuration *prometheus.HistogramVec
	rpcLatency          *prometheus.HistogramVec
	quoteAttempts       *prometheus.CounterVec
	gasEstimates        *prometheus.CounterVec
	sessionState        *prometheus.GaugeVec
	poolLiquidity       *prometheus.GaugeVec
}

// NewCollector создает коллектор и регистрирует метрики в reg.
// Если reg == nil, метрики не регистрируются (удобно для тестов).
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transactionCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transactions_total",
				Help:      "Total number of transactions submitted",
			},
			[]string{"status", "type"},
		),
		transactionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transaction_duration_seconds",
				Help:      "Time from submission to confirmation in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
			},
			[]string{"type"},
		),
		rpcLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rpc_latency_seconds",
				Help:      "RPC request latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"method", "status"},
		),
		quoteAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quote_attempts_total",
				Help:      "Quote strategy attempts by outcome",
			},
			[]string{"strategy", "outcome"},
		),
		gasEstimates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gas_estimates_total",
				Help:      "Gas estimates by operation and degradation tier",
			},
			[]string{"operation", "tier"},
		),
		sessionState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "wallet_session_state",
				Help:      "1 when the wallet session is in the given state",
			},
			[]string{"state"},
		),
		poolLiquidity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pool_liquidity",
				Help:      "Current reserves of tracked liquidity pools",
			},
			[]string{"pool", "token"},
		),
	}
	c.initializeMetrics(reg)
	return c
}

func (c *Collector) initializeMetrics(reg prometheus.Registerer) {
	metricsMap := map[MetricType]prometheus.Collector{
		TransactionCounterType:  c.transactionCounter,
		TransactionDurationType: c.transactionDuration,
		RPCLatencyType:          c.rpcLatency,
		QuoteAttemptType:        c.quoteAttempts,
		GasEstimateType:         c.gasEstimates,
		SessionStateType:        c.sessionState,
		PoolLiquidityType:       c.poolLiquidity,
	}

	for metricType, metric := range metricsMap {
		c.metrics.Store(metricType, metric)
		if reg != nil {
			reg.MustRegister(metric)
		}
	}
}

// Reset сбрасывает все метрики (полезно для тестирования)
func (c *Collector) Reset() {
	if c == nil {
		return
	}
	c.metrics.Range(func(_, value interface{}) bool {
		switch m := value.(type) {
		case *prometheus.CounterVec:
			m.Reset()
		case *prometheus.GaugeVec:
			m.Reset()
		case *prometheus.HistogramVec:
			m.Reset()
		}
		return true
	})
}
