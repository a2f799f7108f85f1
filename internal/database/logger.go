package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"backoffice/pkg/logger"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes gorm's query log through slog and flags slow queries
type GormLogger struct {
	log           *slog.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger maps LOG_LEVEL onto gorm's levels: debug traces every query,
// info and warn keep slow queries and errors, error keeps errors only.
func NewGormLogger(l *slog.Logger, level string, slowThreshold time.Duration) *GormLogger {
	lvl := gormlogger.Warn
	switch logger.ParseLevel(level) {
	case slog.LevelDebug:
		lvl = gormlogger.Info
	case slog.LevelError:
		lvl = gormlogger.Error
	}
	return &GormLogger{log: l, level: lvl, slowThreshold: slowThreshold}
}

func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *g
	clone.level = level
	return &clone
}

func (g *GormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Info {
		g.with(ctx).Info(fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Warn {
		g.with(ctx).Warn(fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Error {
		g.with(ctx).Error(fmt.Sprintf(msg, args...))
	}
}

func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && g.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		g.with(ctx).Error("query failed", "error", err, "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	case g.slowThreshold > 0 && elapsed > g.slowThreshold && g.level >= gormlogger.Warn:
		sql, rows := fc()
		g.with(ctx).Warn("slow query", "elapsed_ms", elapsed.Milliseconds(), "threshold_ms", g.slowThreshold.Milliseconds(), "rows", rows, "sql", sql)
	case g.level >= gormlogger.Info:
		sql, rows := fc()
		g.with(ctx).Debug("query", "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	}
}

func (g *GormLogger) with(ctx context.Context) *slog.Logger {
	l := g.log
	if ctx == nil {
		return l
	}
	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok && requestID != "" {
		l = l.With("request_id", requestID)
	}
	return l
}
