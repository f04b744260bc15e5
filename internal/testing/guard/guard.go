package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("MONEYMINT_TEST_MODE") == "" {
			_ = os.Setenv("MONEYMINT_TEST_MODE", "1")
		}
	})
}
