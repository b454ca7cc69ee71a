// Package guard forces test mode for any binary that imports it in tests.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("RCNG_TEST_MODE") == "" {
			_ = os.Setenv("RCNG_TEST_MODE", "1")
		}
	})
}
