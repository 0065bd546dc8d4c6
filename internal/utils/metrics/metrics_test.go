package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorRecordsAndResets(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTransaction(context.Background(), "swap", time.Second, true)
	c.RecordTransaction(context.Background(), "swap", time.Second, false)
	c.RecordSimulated("swap")
	c.RecordQuoteAttempt("multi_fee_tier", "success")
	c.RecordGasEstimate("swap", "mocked")

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transactionCounter.WithLabelValues("success", "swap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transactionCounter.WithLabelValues("failed", "swap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transactionCounter.WithLabelValues("simulated", "swap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.quoteAttempts.WithLabelValues("multi_fee_tier", "success")))

	c.Reset()
	assert.Equal(t, 0.0, testutil.ToFloat64(c.quoteAttempts.WithLabelValues("multi_fee_tier", "success")))
}

func TestCancelledContextIsCountedSeparately(t *testing.T) {
	c := NewCollector(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.RecordTransaction(ctx, "approve", time.Second, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transactionCounter.WithLabelValues("cancelled", "approve")))
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordTransaction(context.Background(), "swap", time.Second, true)
		c.RecordRPCLatency("eth_call", time.Millisecond, nil)
		c.UpdateSessionState(true, false)
		c.UpdatePoolLiquidity("pool", "S", 1)
		c.Reset()
	})
}
