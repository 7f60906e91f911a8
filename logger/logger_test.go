package logger_test

import (
	"strings"
	"testing"

	"github.com/guoquans/lilyproject/logger"
)

func TestBufferLoggerCapturesLevels(t *testing.T) {
	l := logger.NewBufferLogger()
	l.Infof("hello %s", "world")
	l.Warnf("careful")
	out := l.String()
	if !strings.Contains(out, "INFO:  hello world") {
		t.Fatalf("expected info line in output, got %q", out)
	}
	if !strings.Contains(out, "WARN:  careful") {
		t.Fatalf("expected warn line in output, got %q", out)
	}
}

func TestNopLoggerDiscardsEverything(t *testing.T) {
	// Mostly documents that NopLogger is safe to call with no observer;
	// a panic here would be the failure mode worth catching.
	logger.NopLogger.Infof("anything")
	logger.NopLogger.Errorf("anything")
	if logger.NopLogger.WithPrefix("x") != logger.NopLogger {
		t.Fatal("expected WithPrefix on NopLogger to return itself")
	}
}

func TestBufferLoggerWithPrefixReturnsSameLogger(t *testing.T) {
	l := logger.NewBufferLogger()
	if l.WithPrefix("x") != logger.Logger(l) {
		t.Fatal("expected BufferLogger.WithPrefix to return the same logger")
	}
}

func TestSkippedRowCounterCountsOnlyWarnf(t *testing.T) {
	inner := logger.NewBufferLogger()
	c := logger.NewSkippedRowCounter(inner)
	c.Infof("not a skip")
	c.Warnf("skipping row %d", 1)
	c.Warnf("skipping row %d", 2)
	if got := c.Count(); got != 2 {
		t.Fatalf("expected count 2, got %d", got)
	}
	out := inner.String()
	if !strings.Contains(out, "skipping row 1") || !strings.Contains(out, "skipping row 2") {
		t.Fatalf("expected both warnings forwarded to inner logger, got %q", out)
	}
}

func TestSkippedRowCounterWithPrefixSharesCount(t *testing.T) {
	inner := logger.NewBufferLogger()
	c := logger.NewSkippedRowCounter(inner)
	prefixed := c.WithPrefix("cursor: ")
	prefixed.Warnf("skipping corrupt row")
	c.Warnf("skipping another row")
	if got := c.Count(); got != 2 {
		t.Fatalf("expected shared count 2 across WithPrefix, got %d", got)
	}
}
