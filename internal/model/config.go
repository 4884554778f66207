package model

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"
	"github.com/spf13/viper"

	_ "embed"
)

const (
	StrategyParallel   = "parallel"
	StrategySequential = "sequential"

	StoreMemory = "memory"
	StoreBadger = "badger"
	StoreSQLite = "sqlite"

	LogStderr  = "stderr"
	LogStdout  = "stdout"
	LogDiscard = "discard"

	// EnvPrefix prefixes the environment variables overriding the config.
	EnvPrefix = "CRACKER"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}
	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version   int       `json:"version" yaml:"version"` // fixed 0 for now
	Cracker   Cracker   `json:"cracker" yaml:"cracker"`
	Wordlists Wordlists `json:"wordlists" yaml:"wordlists"`
	Store     Store     `json:"store" yaml:"store"`
	Service   Service   `json:"service" yaml:"service"`
}

// Cracker tunes the cracking engine.
type Cracker struct {
	Strategy  string `json:"strategy" yaml:"strategy"`     // "parallel" | "sequential"
	Workers   int    `json:"workers" yaml:"workers"`       // 0 => number of usable CPUs
	BatchSize int    `json:"batch_size" yaml:"batch_size"` // candidates per pool task
}

type Wordlists struct {
	Dir string `json:"dir" yaml:"dir"` // <dir>/<name>.txt
}

// Store selects where jobs and results are kept.
type Store struct {
	Type string `json:"type" yaml:"type"` // "memory" | "badger" | "sqlite"
	Path string `json:"path" yaml:"path"` // badger directory or sqlite file
	TTL  string `json:"ttl" yaml:"ttl"`   // retention of finished jobs, Go duration
}

type Service struct {
	Verbose     bool   `json:"verbose" yaml:"verbose"`
	Log         string `json:"log" yaml:"log"` // "stderr"|"stdout"|"discard"|path
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr"`
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
// Fields missing in r get their schema defaults.
func LoadConfig(r io.Reader) (*Config, error) {
	yamlFile, err := yaml.Extract("config.yaml", r)
	if err != nil {
		return nil, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return nil, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return nil, err
	}
	out.expandEnv()
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	cfg, err := LoadConfig(strings.NewReader("version: 0\n"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// expandEnv expands $VAR in the path settings.
func (c *Config) expandEnv() {
	c.Wordlists.Dir = os.ExpandEnv(c.Wordlists.Dir)
	c.Store.Path = os.ExpandEnv(c.Store.Path)
	if c.Service.Log != LogStderr && c.Service.Log != LogStdout && c.Service.Log != LogDiscard {
		c.Service.Log = os.ExpandEnv(c.Service.Log)
	}
}

// Validate checks what the schema can't express.
func (c *Config) Validate() error {
	var errs []error
	switch c.Cracker.Strategy {
	case StrategyParallel, StrategySequential:
	default:
		errs = append(errs, fmt.Errorf("cracker.strategy: unsupported value %q", c.Cracker.Strategy))
	}
	if c.Cracker.Workers < 0 {
		errs = append(errs, fmt.Errorf("cracker.workers: must be >= 0, got %d", c.Cracker.Workers))
	}
	if c.Cracker.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("cracker.batch_size: must be >= 1, got %d", c.Cracker.BatchSize))
	}
	if c.Store.Type != StoreMemory && c.Store.Path == "" {
		errs = append(errs, fmt.Errorf("store.path: required for store type %s", c.Store.Type))
	}
	if _, err := time.ParseDuration(c.Store.TTL); err != nil {
		errs = append(errs, fmt.Errorf("store.ttl: %w", err))
	}
	return errors.Join(errs...)
}

// RetentionTTL is the parsed store.ttl.
func (c *Config) RetentionTTL() time.Duration {
	d, _ := time.ParseDuration(c.Store.TTL)
	return d
}

// ApplyEnv overrides the cracker settings by CRACKER_WORKERS and
// CRACKER_BATCH_SIZE environment variables.
func (c *Config) ApplyEnv() error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	for _, key := range []string{"workers", "batch_size"} {
		if err := v.BindEnv(key); err != nil {
			return err
		}
	}

	for key, dst := range map[string]*int{
		"workers":    &c.Cracker.Workers,
		"batch_size": &c.Cracker.BatchSize,
	} {
		if !v.IsSet(key) {
			continue
		}
		raw := v.GetString(key)
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s_%s: invalid integer %q", EnvPrefix, strings.ToUpper(key), raw)
		}
		*dst = n
	}
	return c.Validate()
}
