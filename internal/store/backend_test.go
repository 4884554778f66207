package store_test

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/CZERTAINLY/Cracker/internal/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func newJob(id string) store.Job {
	return store.Job{
		ID:       id,
		Wordlist: "common",
		Target:   "secret.zip",
		Status:   store.StatusStarted,
	}
}

// BackendTestSuite runs the behaviour every Store must have. factory returns
// a fresh store retaining finished records for ttl and its cleanup.
func BackendTestSuite(factory func(ttl time.Duration) (store.Store, func())) {
	var (
		s       store.Store
		cleanup func()
		ctx     context.Context
	)

	BeforeEach(func() {
		s, cleanup = factory(0)
		ctx = context.Background()
	})

	AfterEach(func() {
		if cleanup != nil {
			cleanup()
		}
	})

	Describe("CreateJob", func() {
		It("stores a started job", func() {
			Expect(s.CreateJob(ctx, newJob("job-1"))).To(Succeed())

			job, err := s.GetJob(ctx, "job-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(job.ID).To(Equal("job-1"))
			Expect(job.Wordlist).To(Equal("common"))
			Expect(job.Target).To(Equal("secret.zip"))
			Expect(job.Status).To(Equal(store.StatusStarted))
			Expect(job.CreatedAt).NotTo(BeZero())
			Expect(job.UpdatedAt).NotTo(BeZero())
		})

		It("rejects a duplicate id", func() {
			Expect(s.CreateJob(ctx, newJob("job-1"))).To(Succeed())
			Expect(s.CreateJob(ctx, newJob("job-1"))).To(MatchError(store.ErrExists))
		})

		It("rejects a job which is not started", func() {
			job := newJob("job-1")
			job.Status = store.StatusFound
			Expect(s.CreateJob(ctx, job)).To(MatchError(store.ErrStatus))

			_, err := s.GetJob(ctx, "job-1")
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("UpdateStatus", func() {
		BeforeEach(func() {
			Expect(s.CreateJob(ctx, newJob("job-1"))).To(Succeed())
		})

		DescribeTable("moves a started job to a terminal status",
			func(status store.Status, reason string) {
				Expect(s.UpdateStatus(ctx, "job-1", status, reason)).To(Succeed())

				job, err := s.GetJob(ctx, "job-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(job.Status).To(Equal(status))
				Expect(job.Reason).To(Equal(reason))
			},
			Entry("found", store.StatusFound, ""),
			Entry("not found", store.StatusNotFound, ""),
			Entry("failed", store.StatusFailed, "reading wordlist: boom"),
			Entry("cancelled", store.StatusCancelled, ""),
		)

		It("never leaves a terminal status", func() {
			Expect(s.UpdateStatus(ctx, "job-1", store.StatusNotFound, "")).To(Succeed())
			Expect(s.UpdateStatus(ctx, "job-1", store.StatusFound, "")).To(MatchError(store.ErrFinished))

			job, err := s.GetJob(ctx, "job-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Status).To(Equal(store.StatusNotFound))
		})

		It("rejects non terminal statuses", func() {
			Expect(s.UpdateStatus(ctx, "job-1", store.StatusStarted, "")).To(MatchError(store.ErrStatus))
			Expect(s.UpdateStatus(ctx, "job-1", store.StatusInvalidID, "")).To(MatchError(store.ErrStatus))
		})

		It("fails for unknown jobs", func() {
			Expect(s.UpdateStatus(ctx, "missing", store.StatusFound, "")).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("results", func() {
		It("saves and returns the result of a job", func() {
			Expect(s.CreateJob(ctx, newJob("job-1"))).To(Succeed())
			Expect(s.SaveResult(ctx, store.Result{JobID: "job-1", Password: "secret", DurationMs: 42})).To(Succeed())
			Expect(s.UpdateStatus(ctx, "job-1", store.StatusFound, "")).To(Succeed())

			result, err := s.GetResult(ctx, "job-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.JobID).To(Equal("job-1"))
			Expect(result.Password).To(Equal("secret"))
			Expect(result.DurationMs).To(Equal(int64(42)))
			Expect(result.CreatedAt).NotTo(BeZero())
		})

		It("has no result for a job which wasn't found", func() {
			Expect(s.CreateJob(ctx, newJob("job-1"))).To(Succeed())
			Expect(s.UpdateStatus(ctx, "job-1", store.StatusNotFound, "")).To(Succeed())

			_, err := s.GetResult(ctx, "job-1")
			Expect(err).To(MatchError(store.ErrNotFound))
		})

		It("refuses results of unknown jobs", func() {
			err := s.SaveResult(ctx, store.Result{JobID: "missing", Password: "x"})
			Expect(err).To(MatchError(store.ErrNotFound))
			_, err = s.GetResult(ctx, "missing")
			Expect(err).To(MatchError(store.ErrNotFound))
		})
	})

	Describe("retention", func() {
		var short store.Store

		BeforeEach(func() {
			var done func()
			short, done = factory(time.Second)
			DeferCleanup(done)
		})

		It("expires finished jobs and results", func() {
			Expect(short.CreateJob(ctx, newJob("job-1"))).To(Succeed())
			Expect(short.CreateJob(ctx, newJob("job-2"))).To(Succeed())
			Expect(short.SaveResult(ctx, store.Result{JobID: "job-1", Password: "pw"})).To(Succeed())
			Expect(short.UpdateStatus(ctx, "job-1", store.StatusFound, "")).To(Succeed())

			Eventually(func() error {
				_, err := short.GetJob(ctx, "job-1")
				return err
			}).WithTimeout(5 * time.Second).WithPolling(100 * time.Millisecond).Should(MatchError(store.ErrNotFound))
			_, err := short.GetResult(ctx, "job-1")
			Expect(err).To(MatchError(store.ErrNotFound))

			By("keeping jobs which are still running")
			job, err := short.GetJob(ctx, "job-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(job.Status).To(Equal(store.StatusStarted))

			By("giving the id of an expired job back")
			Expect(short.CreateJob(ctx, newJob("job-1"))).To(Succeed())
		})
	})

	It("honours a cancelled context", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		Expect(s.CreateJob(cancelled, newJob("job-1"))).To(MatchError(context.Canceled))
	})
}

var _ = Describe("Open", func() {
	It("opens the builtin backends", func() {
		for _, typ := range []string{store.TypeMemory, store.TypeBadger} {
			s, err := store.Open(typ, "", 0, nil)
			Expect(err).NotTo(HaveOccurred(), typ)
			Expect(s.Close()).To(Succeed())
		}
	})

	It("rejects unknown backends", func() {
		_, err := store.Open("postgres", "", 0, nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Status", func() {
	It("knows terminal statuses", func() {
		Expect(store.StatusStarted.Terminal()).To(BeFalse())
		Expect(store.StatusInvalidID.Terminal()).To(BeFalse())
		for _, st := range []store.Status{store.StatusFound, store.StatusNotFound, store.StatusFailed, store.StatusCancelled} {
			Expect(st.Terminal()).To(BeTrue(), string(st))
		}
	})
})
