package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"
)

func newBufferedLogger(level string, slow time.Duration) (*GormLogger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	l := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewGormLogger(l, level, slow), buf
}

func TestGormLoggerFlagsSlowQueries(t *testing.T) {
	g, buf := newBufferedLogger("info", 10*time.Millisecond)
	sql := func() (string, int64) { return "SELECT 1", 1 }

	g.Trace(context.Background(), time.Now(), sql, nil)
	if buf.Len() != 0 {
		t.Errorf("Expected fast query to be silent at info level, got %q", buf.String())
	}

	g.Trace(context.Background(), time.Now().Add(-50*time.Millisecond), sql, nil)
	if !strings.Contains(buf.String(), "slow query") {
		t.Errorf("Expected slow query warning, got %q", buf.String())
	}
}

func TestGormLoggerErrors(t *testing.T) {
	g, buf := newBufferedLogger("info", time.Second)
	sql := func() (string, int64) { return "SELECT * FROM x", 0 }

	g.Trace(context.Background(), time.Now(), sql, gorm.ErrRecordNotFound)
	if buf.Len() != 0 {
		t.Errorf("Expected record-not-found to be ignored, got %q", buf.String())
	}

	g.Trace(context.Background(), time.Now(), sql, errors.New("boom"))
	if !strings.Contains(buf.String(), "query failed") {
		t.Errorf("Expected failure to be logged, got %q", buf.String())
	}
}

func TestGormLoggerDebugTracesEverything(t *testing.T) {
	g, buf := newBufferedLogger("debug", time.Second)
	g.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 2", 1 }, nil)
	if !strings.Contains(buf.String(), "SELECT 2") {
		t.Errorf("Expected query to be traced at debug level, got %q", buf.String())
	}
}

func TestMigrateCreatesTables(t *testing.T) {
	db := NewTestDB(t)
	for _, table := range []string{"tenants", "companies", "processing_documents", "document_revisions", "line_items", "document_tags", "audit_logs", "role_permissions"} {
		if !db.Migrator().HasTable(table) {
			t.Errorf("Expected table %s to exist", table)
		}
	}
}
