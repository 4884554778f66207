package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/Cracker/internal/crack"
	"github.com/CZERTAINLY/Cracker/internal/log"
	"github.com/CZERTAINLY/Cracker/internal/metrics"
	"github.com/CZERTAINLY/Cracker/internal/model"
	"github.com/CZERTAINLY/Cracker/internal/service"
	"github.com/CZERTAINLY/Cracker/internal/store"
	"github.com/CZERTAINLY/Cracker/internal/wordlist"
)

var (
	flagWordlist    string
	flagTarget      string
	flagStrategy    string
	flagWorkers     int
	flagBatchSize   int
	flagMetricsAddr string
)

func init() {
	f := crackCmd.Flags()
	f.StringVar(&flagWordlist, "wordlist", "", "wordlist name from the wordlists directory or a path to a file")
	f.StringVar(&flagTarget, "target", "", "password protected ZIP archive")
	f.StringVar(&flagStrategy, "strategy", "", "parallel or sequential, overrides cracker.strategy")
	f.IntVar(&flagWorkers, "workers", 0, "number of workers, overrides cracker.workers")
	f.IntVar(&flagBatchSize, "batch-size", 0, "candidates per worker task, overrides cracker.batch_size")
	f.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, overrides service.metrics_addr")
	_ = crackCmd.MarkFlagRequired("wordlist")
	_ = crackCmd.MarkFlagRequired("target")
}

var crackCmd = &cobra.Command{
	Use:   "crack",
	Short: "crack runs a dictionary attack against an archive and prints the outcome",
	Args:  cobra.NoArgs,
	RunE:  doCrack,
}

var statusCmd = &cobra.Command{
	Use:   "status ID",
	Short: "status prints the status of a job kept in the store",
	Args:  cobra.ExactArgs(1),
	RunE:  doStatus,
}

var resultCmd = &cobra.Command{
	Use:   "result ID",
	Short: "result prints the password found by a job",
	Args:  cobra.ExactArgs(1),
	RunE:  doResult,
}

var wordlistsCmd = &cobra.Command{
	Use:   "wordlists",
	Short: "wordlists lists the wordlists available by name",
	Args:  cobra.NoArgs,
	RunE:  doWordlists,
}

func doCrack(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	ctx = log.ContextAttrs(ctx, slog.Group("cracker",
		slog.String("cmd", "crack"),
		slog.Int("pid", os.Getpid()),
	))
	if err := applyCrackFlags(cmd, config); err != nil {
		return err
	}

	st, err := openStore(config)
	if err != nil {
		return err
	}
	defer func() {
		_ = st.Close()
	}()

	dir, err := openWordlists(ctx, config.Wordlists.Dir)
	if err != nil {
		return err
	}
	if dir != nil {
		defer func() {
			_ = dir.Close()
		}()
	}

	m := metrics.New()
	svc := service.New(
		newCoordinator(config.Cracker).WithMetrics(m),
		st,
		service.Wordlists{Dir: dir},
		service.OpenZip,
	)

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServe := context.WithCancel(gctx)
	defer stopServe()
	if addr := config.Service.MetricsAddr; addr != "" {
		g.Go(func() error {
			slog.InfoContext(ctx, "serving metrics", "addr", addr)
			return m.Serve(serveCtx, addr)
		})
	}

	g.Go(func() error {
		defer stopServe()
		defer svc.Close()

		id, err := svc.Start(gctx, flagWordlist, flagTarget)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "job %s started\n", id)

		// a signal or a failed metrics server cancel the job
		stop := context.AfterFunc(gctx, func() { svc.Cancel(string(id)) })
		defer stop()

		job, err := svc.Wait(context.WithoutCancel(gctx), string(id))
		if err != nil {
			return err
		}
		return report(context.WithoutCancel(gctx), cmd.OutOrStdout(), svc, job)
	})
	return g.Wait()
}

func doStatus(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := readOnlyService()
	if err != nil {
		return err
	}
	defer closeFn()

	status, err := svc.Status(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), status)
	return err
}

func doResult(cmd *cobra.Command, args []string) error {
	svc, closeFn, err := readOnlyService()
	if err != nil {
		return err
	}
	defer closeFn()

	result, err := svc.Result(cmd.Context(), args[0])
	if errors.Is(err, store.ErrNotFound) {
		status, serr := svc.Status(cmd.Context(), args[0])
		if serr != nil {
			return serr
		}
		return fmt.Errorf("job %s has no result: %s", args[0], status)
	}
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Job", "Password", "Duration (ms)"})
	table.Append([]string{result.JobID, result.Password, strconv.FormatInt(result.DurationMs, 10)})
	table.Render()
	return nil
}

func doWordlists(cmd *cobra.Command, _ []string) error {
	dir, err := openWordlists(cmd.Context(), config.Wordlists.Dir)
	if err != nil {
		return err
	}
	if dir == nil {
		return fmt.Errorf("wordlists directory %s does not exist", config.Wordlists.Dir)
	}
	defer func() {
		_ = dir.Close()
	}()

	names, err := dir.List()
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Name", "Path"})
	for _, name := range names {
		table.Append([]string{name, filepath.Join(dir.Name(), name+wordlist.Ext)})
	}
	table.Render()
	return nil
}

// applyCrackFlags lets explicitly set flags win over the configuration.
func applyCrackFlags(cmd *cobra.Command, cfg *model.Config) error {
	f := cmd.Flags()
	if f.Changed("strategy") {
		cfg.Cracker.Strategy = flagStrategy
	}
	if f.Changed("workers") {
		cfg.Cracker.Workers = flagWorkers
	}
	if f.Changed("batch-size") {
		cfg.Cracker.BatchSize = flagBatchSize
	}
	if f.Changed("metrics-addr") {
		cfg.Service.MetricsAddr = flagMetricsAddr
	}
	return cfg.Validate()
}

func newCoordinator(cfg model.Cracker) *crack.Coordinator {
	if cfg.Strategy == model.StrategySequential {
		return crack.New(crack.NewSequential())
	}
	return crack.New(crack.NewParallel(crack.NewPool(cfg.Workers), cfg.BatchSize))
}

func openStore(cfg *model.Config) (store.Store, error) {
	st, err := store.Open(cfg.Store.Type, cfg.Store.Path, cfg.RetentionTTL(), slog.Default())
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Type, err)
	}
	return st, nil
}

// openWordlists returns nil when the directory does not exist, wordlists
// are then accepted as file paths only.
func openWordlists(ctx context.Context, path string) (*wordlist.Dir, error) {
	dir, err := wordlist.OpenDir(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.DebugContext(ctx, "wordlists directory does not exist", "dir", path)
		return nil, nil
	}
	return dir, err
}

// readOnlyService serves status and result queries from the configured store.
func readOnlyService() (*service.Service, func(), error) {
	if config.Store.Type == model.StoreMemory {
		slog.Warn("memory store keeps no jobs between runs, configure store.type badger or sqlite")
	}
	st, err := openStore(config)
	if err != nil {
		return nil, nil, err
	}
	svc := service.New(crack.New(crack.NewSequential()), st, service.Wordlists{}, service.OpenZip)
	return svc, func() {
		svc.Close()
		_ = st.Close()
	}, nil
}

func report(ctx context.Context, w io.Writer, svc *service.Service, job store.Job) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Job", "Status", "Password", "Duration (ms)", "Reason"})
	row := []string{job.ID, string(job.Status), "", "", job.Reason}
	if job.Status == store.StatusFound {
		result, err := svc.Result(ctx, job.ID)
		if err != nil {
			return err
		}
		row[2] = result.Password
		row[3] = strconv.FormatInt(result.DurationMs, 10)
	}
	table.Append(row)
	table.Render()

	switch job.Status {
	case store.StatusFailed:
		return fmt.Errorf("job %s failed: %s", job.ID, job.Reason)
	case store.StatusCancelled:
		return fmt.Errorf("job %s: %w", job.ID, crack.ErrCancelled)
	default:
		return nil
	}
}
