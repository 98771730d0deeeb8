package server_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards Start/Shutdown/Stop's goroutines (the dispatcher's
// event loop, the worker pool's workers, Wait's join goroutine) against
// leaking past a test — the gap this would have caught is exactly the
// one TestStopReturnsDrainTimeoutWhenWorkerOutlivesBound exercises
// directly: Stop used to return without ever joining the pool.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
