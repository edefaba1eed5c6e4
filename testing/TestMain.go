// Package testing forces test mode for binaries started from tests so they
// skip connecting to Postgres, Redis and Kafka.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		if os.Getenv("KAFKA_BROKERS") != "" {
			_ = os.Setenv("KAFKA_BROKERS", "")
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
