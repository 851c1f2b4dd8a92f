package app

import "os"

const testModeEnv = "MACROS_TEST_MODE"

// InTestMode reports whether the binaries should skip connecting to Postgres,
// Redis and the queue. The testing package sets the flag for every test binary.
func InTestMode() bool {
	return os.Getenv(testModeEnv) == "1"
}
