package sync

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures the coordinator and watcher tests in this package never
// leak goroutines, since the watcher's long-lived background loop
// (Watcher.Run) must shut down cleanly on context cancellation.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("sync.runtime_Semacquire"),
	)
}
