// Package testing switches the binaries into test mode when imported by a test.
package testing

import (
	"encoding/base64"
	"os"
	"sync"
	stdtesting "testing"
)

var once sync.Once

// JWTSecret is a 32-byte base64 secret for tests.
var JWTSecret = base64.StdEncoding.EncodeToString([]byte("adminkit-test-secret-0123456789ab"))

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("ADMINKIT_TEST_MODE", "1")
		for key, value := range map[string]string{
			"JWT_SECRET":             JWTSecret,
			"JWT_ACCESS_TOKEN_TTL":   "15m",
			"JWT_REFRESH_TOKEN_TTL":  "168h",
			"JWT_RESET_PASSWORD_TTL": "30m",
		} {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
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
