package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func trace(sql string) func() (string, int64) {
	return func() (string, int64) { return sql, 1 }
}

func TestGormLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newGormLogger(zap.New(core), logger.Warn)
	ctx := context.Background()

	l.Trace(ctx, time.Now(), trace("SELECT 1"), nil)
	assert.Zero(t, logs.Len(), "fast queries are not logged at warn level")

	l.Trace(ctx, time.Now(), trace("SELECT 1"), gorm.ErrRecordNotFound)
	assert.Zero(t, logs.Len(), "not found is not an error")

	l.Trace(ctx, time.Now(), trace("INSERT"), errors.New("duplicate key"))
	l.Trace(ctx, time.Now().Add(-time.Second), trace("SELECT pg_sleep(1)"), nil)

	entries := logs.TakeAll()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
		assert.Equal(t, "INSERT", entries[0].ContextMap()["sql"])
		assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	}
}

func TestGormLoggerSilent(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newGormLogger(zap.New(core), logger.Info).LogMode(logger.Silent)

	l.Trace(context.Background(), time.Now(), trace("SELECT 1"), errors.New("boom"))
	l.Error(context.Background(), "boom %d", 1)
	assert.Zero(t, logs.Len())
}

func TestGormLoggerInfo(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newGormLogger(zap.New(core), logger.Info)

	l.Info(context.Background(), "migrated %d tables", 2)
	l.Trace(context.Background(), time.Now(), trace("SELECT 1"), nil)

	entries := logs.TakeAll()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "migrated 2 tables", entries[0].Message)
		assert.Equal(t, zapcore.DebugLevel, entries[1].Level)
	}
}
