package diskio

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain ensures Watcher's debounce goroutine doesn't leak past Close.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}
