package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestOpenSQLite(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file::memory:"}, zap.NewNop())
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	assert.Equal(t, 1, one)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"}, zap.NewNop())
	assert.Error(t, err)
}

func TestQueriesAreLoggedThroughZap(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	db, err := Open(Config{Driver: "sqlite", DSN: "file::memory:", LogLevel: "info"}, zap.New(core))
	require.NoError(t, err)

	var one int
	require.NoError(t, db.Raw("SELECT 1").Scan(&one).Error)
	executed := logs.FilterMessage("sql executed").FilterField(zap.String("sql", "SELECT 1")).All()
	require.Len(t, executed, 1)
	assert.Equal(t, "gorm", executed[0].LoggerName)

	require.Error(t, db.Exec("SELECT * FROM missing_table").Error)
	failed := logs.FilterMessage("sql execution failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	assert.Contains(t, failed[0].ContextMap()["sql"], "missing_table")
}

func TestGormLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewGormLogger(zap.New(core), gormlogger.Warn, time.Millisecond)
	ctx := context.Background()
	query := func() (string, int64) { return "SELECT 2", 1 }

	l.Trace(ctx, time.Now(), query, nil)
	assert.Zero(t, logs.Len(), "fast statements are only logged at info")

	l.Trace(ctx, time.Now().Add(-time.Second), query, nil)
	slow := logs.FilterMessage("slow query detected").All()
	require.Len(t, slow, 1)
	assert.Equal(t, zapcore.WarnLevel, slow[0].Level)

	l.Trace(ctx, time.Now(), query, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.FilterMessage("sql execution failed").Len())

	l.Trace(ctx, time.Now(), query, errors.New("boom"))
	assert.Equal(t, 1, logs.FilterMessage("sql execution failed").Len())

	silent := l.LogMode(gormlogger.Silent)
	silent.Trace(ctx, time.Now(), query, errors.New("boom"))
	silent.Warn(ctx, "ignored %d", 1)
	assert.Equal(t, 1, logs.FilterMessage("sql execution failed").Len())
	assert.Zero(t, logs.FilterMessage("ignored 1").Len())

	l.Warn(ctx, "pool %s", "busy")
	assert.Equal(t, 1, logs.FilterMessage("pool busy").Len())
}
