// Package testing flips the process into test mode. Test files import it for
// its side effects.
package testing

import (
	"os"
	"path/filepath"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("MACROS_TEST_MODE", "1")
		if os.Getenv("STORAGE_DIR") == "" {
			_ = os.Setenv("STORAGE_DIR", filepath.Join(os.TempDir(), "macros-test"))
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
