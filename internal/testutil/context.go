// Package testutil holds helpers shared by the package tests: a logging
// context, fake servant factories and an event collector.
package testutil

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/specialistvlad/eventgrid/internal/ctxlog"
)

// LogsEnv enables dumping captured logs at the end of each test when set to "true".
const LogsEnv = "EVENTGRID_TEST_LOGS"

// Context returns a context carrying a debug logger that writes into the
// returned buffer. The context is cancelled when the test ends.
func Context(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()

	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))

	t.Cleanup(func() {
		cancel()
		if os.Getenv(LogsEnv) == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String())
		}
	})
	return ctx, buf
}
