package store_test

import (
	"time"

	"github.com/CZERTAINLY/Cracker/internal/store"
	. "github.com/onsi/ginkgo/v2"
)

var _ = Describe("Memory", func() {
	BackendTestSuite(func(ttl time.Duration) (store.Store, func()) {
		s := store.NewMemory(ttl)
		return s, func() { _ = s.Close() }
	})
})
