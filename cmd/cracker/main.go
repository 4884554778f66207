package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"gopkg.in/yaml.v3"

	"github.com/CZERTAINLY/Cracker/internal/log"
	"github.com/CZERTAINLY/Cracker/internal/model"
)

var (
	userConfigPath string // /default/config/path/cracker on given OS
	configPath     string // actual config file used (if loaded)
	config         *model.Config
	logOut         io.Closer // log destination, closed when main exits

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		panic(err)
	}
	userConfigPath = filepath.Join(d, "cracker")
}

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "Config file to load - default is cracker.yaml in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse or create a config, setup logging
	rootCmd.PersistentPreRunE = initCracker

	rootCmd.AddCommand(crackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resultCmd)
	rootCmd.AddCommand(wordlistsCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("cracker failed", "err", err)
	}
	if logOut != nil {
		_ = logOut.Close()
	}
	if err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "cracker",
	Short:        "Dictionary attack on password protected archives",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a cracker",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("cracker: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config:  %s\n", configPath)
		}
		fmt.Printf("cracker: %s\n", info.Main.Version)
		fmt.Printf("go:      %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:  %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:    %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:   %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func initCracker(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("CRACKERCONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else {
		for _, d := range []string{userConfigPath, "."} {
			path := filepath.Join(d, "cracker.yaml")
			if exists(path) {
				configPath = path
				break
			}
		}
	}

	var err error
	if configPath == "" {
		config, configPath, err = storeDefaultConfig()
	} else {
		config, err = loadConfig(configPath)
	}
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(); err != nil {
		return fmt.Errorf("environment overrides: %w", err)
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		config.Service.Verbose = true
	}

	w, err := log.Writer(config.Service.Log)
	if err != nil {
		return err
	}
	logOut = w
	slog.SetDefault(log.New(w, config.Service.Verbose))

	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		slog.Debug(fmt.Sprintf(format, args...))
	})); err != nil {
		slog.Warn("setting GOMAXPROCS failed", "error", err)
	}

	slog.Debug("cracker init", "configPath", configPath)
	slog.Debug("cracker init", "config", config)
	return nil
}

func loadConfig(path string) (*model.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	cfg, err := model.LoadConfig(f)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error("invalid config", d.Attr("detail"))
		}
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

// storeDefaultConfig writes the default configuration into the user config
// directory, so it can be edited later.
func storeDefaultConfig() (*model.Config, string, error) {
	cfg := model.DefaultConfig()
	path := filepath.Join(userConfigPath, "cracker.yaml")
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return nil, "", fmt.Errorf("creating directory %s: %w", filepath.Dir(path), err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, "", fmt.Errorf("creating file %s: %w", path, err)
	}
	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	err = errors.Join(enc.Encode(cfg), enc.Close(), f.Close())
	if err != nil {
		return nil, "", fmt.Errorf("storing configuration: %w", err)
	}
	return cfg, path, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
