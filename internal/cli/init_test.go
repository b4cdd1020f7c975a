package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"moneytracker/internal/log"
)

func TestSetupLogger(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	var buf bytes.Buffer
	logger := SetupLogger("debug", &buf)
	logger.Debug("Hello", "k", "v")

	out := buf.String()
	if !strings.Contains(out, `"msg":"Hello"`) || !strings.Contains(out, `"component":"app"`) {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestOnShutdownRunsCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := make(chan struct{})
	done := onShutdown(ctx, cancel, log.Discard(), time.Second, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("cleanup context has no deadline")
		}
		close(ran)
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}
	select {
	case <-ran:
	default:
		t.Fatal("cleanup did not run")
	}
}

func TestOnShutdownTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	defer close(release)
	done := onShutdown(ctx, cancel, log.Discard(), 20*time.Millisecond, func(context.Context) {
		<-release
	})

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout not honoured")
	}
}
