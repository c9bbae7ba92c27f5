package logger_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/nova-labs/messagemesh/pkg/logger"
)

func TestInitReturnsUsableLogger(t *testing.T) {
	l := logger.Init(logger.Config{Level: "DEBUG", Format: "JSON", Async: false, Redact: false, SamplingRate: 1.0})
	if l == nil {
		t.Fatal("Init returned nil logger")
	}
	l.InfoContext(context.Background(), "hello", "key", "value")
}

func TestLFallsBackBeforeInit(t *testing.T) {
	// L() must never panic even if Init hasn't run in this test binary.
	if logger.L() == nil {
		t.Fatal("L() returned nil")
	}
}

func TestAsyncHandlerDoesNotBlockOnFullBuffer(t *testing.T) {
	inner := slog.NewJSONHandler(discardWriter{}, nil)
	h := logger.NewAsyncHandler(inner, 1, true)
	defer h.Close()
	l := slog.New(h)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			l.Info("burst", "i", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler blocked on a full buffer despite DropOnFull=true")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
