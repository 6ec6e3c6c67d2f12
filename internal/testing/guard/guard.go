package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ADMINKIT_TEST_MODE") == "" {
			_ = os.Setenv("ADMINKIT_TEST_MODE", "1")
		}
	})
}
