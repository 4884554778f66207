package store_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/CZERTAINLY/Cracker/internal/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Badger", func() {
	BackendTestSuite(func(ttl time.Duration) (store.Store, func()) {
		s, err := store.NewBadger(GinkgoT().TempDir(), ttl, testLogger())
		Expect(err).NotTo(HaveOccurred())
		return s, func() { _ = s.Close() }
	})

	It("keeps records across reopening", func() {
		dir := GinkgoT().TempDir()
		ctx := context.Background()

		s, err := store.NewBadger(dir, 0, testLogger())
		Expect(err).NotTo(HaveOccurred())
		Expect(s.CreateJob(ctx, newJob("job-1"))).To(Succeed())
		Expect(s.UpdateStatus(ctx, "job-1", store.StatusNotFound, "")).To(Succeed())
		Expect(s.Close()).To(Succeed())

		s, err = store.NewBadger(dir, 0, testLogger())
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = s.Close() }()
		job, err := s.GetJob(ctx, "job-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(job.Status).To(Equal(store.StatusNotFound))
	})

	It("serializes concurrent updates of one job", func() {
		s, err := store.NewBadger("", 0, testLogger())
		Expect(err).NotTo(HaveOccurred())
		defer func() { _ = s.Close() }()
		ctx := context.Background()
		Expect(s.CreateJob(ctx, newJob("job-1"))).To(Succeed())

		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Go(func() {
				errs[i] = s.UpdateStatus(ctx, "job-1", store.StatusFailed, fmt.Sprintf("worker %d", i))
			})
		}
		wg.Wait()

		succeeded := 0
		for _, err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			Expect(err).To(MatchError(store.ErrFinished))
		}
		Expect(succeeded).To(Equal(1))
	})
})
