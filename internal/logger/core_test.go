package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestTUILoggerWritesToBuffer(t *testing.T) {
	lb, err := NewLogBuffer(10, "")
	require.NoError(t, err)

	log := NewTUILogger(lb, false).Named("swap").With(zap.String("wallet", "0xabc"))
	log.Debug("hidden")
	log.Info("Swap confirmed", zap.String("tx_hash", "0x01"))

	entries := lb.Recent(0)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "INFO", e.Level)
	assert.Equal(t, "swap", e.Logger)
	assert.Equal(t, "Swap confirmed", e.Message)
	assert.Equal(t, "0xabc", e.Fields["wallet"])
	assert.Equal(t, "0x01", e.Fields["tx_hash"])
}

func TestTUILoggerDebugAndTee(t *testing.T) {
	lb, err := NewLogBuffer(10, "")
	require.NoError(t, err)
	obsCore, logs := observer.New(zapcore.WarnLevel)

	log := NewTUILogger(lb, true, obsCore)
	log.Debug("quote superseded")
	log.Warn("Gas preview unavailable")

	assert.Len(t, lb.Recent(0), 2)
	assert.Nil(t, lb.Recent(0)[0].Fields)
	assert.Equal(t, 1, logs.Len())
}
