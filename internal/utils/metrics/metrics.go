// internal/utils/metrics/metrics.go
package metrics

import (
	"context"
	"time"
)

// RecordTransaction записывает метрики транзакции с учетом контекста
func (c *Collector) RecordTransaction(ctx context.Context, txType string, duration time.Duration, success bool) {
	if c == nil {
		return
	}
	select {
	case <-ctx.Done():
		// Контекст отменен: помечаем как cancelled
		c.transactionCounter.WithLabelValues("cancelled", txType).Inc()
		return
	default:
		status := "success"
		if !success {
			status = "failed"
		}
		c.transactionCounter.WithLabelValues(status, txType).Inc()
		c.transactionDuration.WithLabelValues(txType).Observe(duration.Seconds())
	}
}

// RecordSimulated учитывает транзакцию, выполненную в simulated-режиме
func (c *Collector) RecordSimulated(txType string) {
	if c == nil {
		return
	}
	c.transactionCounter.WithLabelValues("simulated", txType).Inc()
}

// RecordRPCLatency записывает метрики RPC-запроса
func (c *Collector) RecordRPCLatency(method string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	c.rpcLatency.WithLabelValues(method, status).Observe(duration.Seconds())
}

// RecordQuoteAttempt учитывает попытку стратегии котирования
func (c *Collector) RecordQuoteAttempt(strategy, outcome string) {
	if c == nil {
		return
	}
	c.quoteAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordGasEstimate учитывает оценку газа и уровень деградации
func (c *Collector) RecordGasEstimate(operation, tier string) {
	if c == nil {
		return
	}
	c.gasEstimates.WithLabelValues(operation, tier).Inc()
}

// UpdateSessionState выставляет состояние сессии кошелька
func (c *Collector) UpdateSessionState(connected, wrongNetwork bool) {
	if c == nil {
		return
	}
	c.sessionState.WithLabelValues("connected").Set(boolToFloat(connected))
	c.sessionState.WithLabelValues("wrong_network").Set(boolToFloat(wrongNetwork))
}

// UpdatePoolLiquidity обновляет метрики пула
func (c *Collector) UpdatePoolLiquidity(pool, token string, amount float64) {
	if c == nil {
		return
	}
	c.poolLiquidity.WithLabelValues(pool, token).Set(amount)
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
