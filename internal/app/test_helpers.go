package app

import (
	"os"
	"testing"

	"github.com/specialistvlad/eventgrid/internal/handlers"
	"github.com/specialistvlad/eventgrid/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. Its output,
// logs and banner included, goes to the returned buffer.
func SetupAppTest(t *testing.T, settings Settings, modules ...handlers.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	out := &testutil.SafeBuffer{}
	settings.LogLevel = "debug"
	testApp, err := New(out, settings, "test", modules...)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	t.Cleanup(func() {
		if os.Getenv(testutil.LogsEnv) == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), out.String())
		}
	})

	return testApp, out
}
