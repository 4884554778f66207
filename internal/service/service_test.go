package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CZERTAINLY/Cracker/internal/crack"
	"github.com/CZERTAINLY/Cracker/internal/service"
	"github.com/CZERTAINLY/Cracker/internal/store"
	"github.com/CZERTAINLY/Cracker/internal/wordlist"
)

func TestService(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    crack.TesterFunc
		status   store.Status
		reason   string
		password string
	}{
		{
			scenario: "found",
			given:    equals("secret"),
			status:   store.StatusFound,
			password: "secret",
		},
		{
			scenario: "not found",
			given:    equals("nope"),
			status:   store.StatusNotFound,
		},
		{
			scenario: "tester error",
			given: func(context.Context, string) (bool, error) {
				return false, errors.New("boom")
			},
			status: store.StatusFailed,
			reason: "boom",
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			svc, st := newService(t, tt.given)

			id, err := svc.Start(t.Context(), "common", "secret.zip")
			require.NoError(t, err)

			job, err := svc.Wait(t.Context(), string(id))
			require.NoError(t, err)
			require.Equal(t, tt.status, job.Status)
			require.Contains(t, job.Reason, tt.reason)
			require.Equal(t, "common", job.Wordlist)
			require.Equal(t, "secret.zip", job.Target)

			status, err := svc.Status(t.Context(), string(id))
			require.NoError(t, err)
			require.Equal(t, tt.status, status)

			result, err := svc.Result(t.Context(), string(id))
			if tt.password == "" {
				require.ErrorIs(t, err, store.ErrNotFound)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.password, result.Password)
			require.GreaterOrEqual(t, result.DurationMs, int64(0))

			stored, err := st.GetResult(t.Context(), string(id))
			require.NoError(t, err)
			require.Equal(t, result, stored)
		})
	}
}

func TestService_InvalidID(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t, equals("x"))

	status, err := svc.Status(t.Context(), "never-started")
	require.NoError(t, err)
	require.Equal(t, store.StatusInvalidID, status)

	_, err = svc.Result(t.Context(), "never-started")
	require.ErrorIs(t, err, store.ErrNotFound)

	// no-op
	svc.Cancel("never-started")
}

func TestService_StartErrors(t *testing.T) {
	t.Parallel()
	svc := service.New(
		crack.New(crack.NewSequential()),
		store.NewMemory(0),
		service.Wordlists{},
		func(string) (crack.Tester, error) {
			return nil, os.ErrNotExist
		},
	)
	t.Cleanup(svc.Close)

	_, err := svc.Start(t.Context(), "missing", "secret.zip")
	require.ErrorIs(t, err, wordlist.ErrNotFound)

	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o600))
	_, err = svc.Start(t.Context(), path, "secret.zip")
	require.ErrorIs(t, err, service.ErrTarget)
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Empty(t, svc.Running())
}

func TestService_WordlistPath(t *testing.T) {
	t.Parallel()
	svc, _ := newService(t, equals("from-path"))

	path := filepath.Join(t.TempDir(), "custom.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\nfrom-path\n"), 0o600))

	id, err := svc.Start(t.Context(), path, "secret.zip")
	require.NoError(t, err)
	job, err := svc.Wait(t.Context(), string(id))
	require.NoError(t, err)
	require.Equal(t, store.StatusFound, job.Status)
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{}, 1)
	svc, _ := newService(t, blocking(entered))

	id, err := svc.Start(t.Context(), "common", "secret.zip")
	require.NoError(t, err)
	<-entered

	status, err := svc.Status(t.Context(), string(id))
	require.NoError(t, err)
	require.Equal(t, store.StatusStarted, status)
	require.Equal(t, []crack.JobID{id}, svc.Running())

	svc.Cancel(string(id))
	job, err := svc.Wait(t.Context(), string(id))
	require.NoError(t, err)
	require.Equal(t, store.StatusCancelled, job.Status)
	require.Empty(t, svc.Running())
}

func TestService_Close(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{}, 1)
	st := store.NewMemory(0)
	t.Cleanup(func() { _ = st.Close() })
	svc := service.New(crack.New(crack.NewSequential()), st, wordlists(t), func(string) (crack.Tester, error) {
		return blocking(entered), nil
	})

	id, err := svc.Start(t.Context(), "common", "secret.zip")
	require.NoError(t, err)
	<-entered

	svc.Close()
	job, err := st.GetJob(t.Context(), string(id))
	require.NoError(t, err)
	require.Equal(t, store.StatusCancelled, job.Status)

	_, err = svc.Start(t.Context(), "common", "secret.zip")
	require.ErrorIs(t, err, crack.ErrClosed)
}

func TestService_WaitContext(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{}, 1)
	svc, _ := newService(t, blocking(entered))

	id, err := svc.Start(t.Context(), "common", "secret.zip")
	require.NoError(t, err)
	<-entered

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = svc.Wait(ctx, string(id))
	require.ErrorIs(t, err, context.Canceled)
}

func newService(t *testing.T, tester crack.Tester) (*service.Service, store.Store) {
	t.Helper()
	st := store.NewMemory(0)
	t.Cleanup(func() { _ = st.Close() })

	pool := crack.NewPool(2)
	svc := service.New(
		crack.New(crack.NewParallel(pool, 2)),
		st,
		wordlists(t),
		func(string) (crack.Tester, error) { return tester, nil },
	)
	t.Cleanup(svc.Close)
	return svc, st
}

func wordlists(t *testing.T) service.Wordlists {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "common.txt"), []byte("123456\npassword\nsecret\nqwerty\nletmein\n"), 0o600))
	d, err := wordlist.OpenDir(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return service.Wordlists{Dir: d}
}

func equals(password string) crack.TesterFunc {
	return func(_ context.Context, candidate string) (bool, error) {
		return candidate == password, nil
	}
}

// blocking signals entered on its first call and waits for cancellation.
func blocking(entered chan<- struct{}) crack.TesterFunc {
	return func(ctx context.Context, _ string) (bool, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return false, ctx.Err()
	}
}
