// Package testing switches binaries into test mode when imported by tests.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CAMPUSMARKET_TEST_MODE", "1")
		_ = os.Setenv("NOTIFY_SELLERS", "false")
	})
}

func init() {
	ensureTestMode()
}

// TestMain may be called from a package TestMain to force test mode.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
