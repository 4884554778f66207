//go:build sqlite

package store_test

import (
	"path/filepath"
	"time"

	"github.com/CZERTAINLY/Cracker/internal/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SQLite", func() {
	BackendTestSuite(func(ttl time.Duration) (store.Store, func()) {
		s, err := store.NewSQLite(filepath.Join(GinkgoT().TempDir(), "cracker.db"), ttl)
		Expect(err).NotTo(HaveOccurred())
		return s, func() { _ = s.Close() }
	})

	It("is available through Open", func() {
		s, err := store.Open(store.TypeSQLite, filepath.Join(GinkgoT().TempDir(), "open.db"), 0, testLogger())
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())
	})
})
