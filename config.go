package dspot

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/paraita/dspot/flags"
	"github.com/paraita/dspot/runner"
	"github.com/paraita/dspot/selection"
	"github.com/paraita/dspot/service"
	"github.com/paraita/dspot/types"
)

// Config holds the application configuration
type Config struct {
	SearchPath   string
	Classes      []types.TestArtifactRef // single request mode
	Methods      []string
	RequestFile  string // batch mode
	SourceDir    string // module root candidates are discovered in
	Package      string
	Match        string
	Selector     string
	Selection    selection.Options
	Timeouts     runner.TimeoutPolicy
	ListTimeout  time.Duration
	KillGrace    time.Duration
	GoBinary     string
	WorkDir      string
	LogDir       string // empty disables per-run file logs
	Output       string // JSON file receiving the kept candidates
	Concurrency  int    // batch requests run at the same time
	ShowProgress bool
	Serve        bool // expose healthz and metrics while running
	Service      service.Config
	Log          log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, log log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	classes := make([]types.TestArtifactRef, 0, len(ctx.StringSlice(flags.Class.Name)))
	for _, c := range ctx.StringSlice(flags.Class.Name) {
		classes = append(classes, types.TestArtifactRef(c))
	}

	threshold := ctx.Float64(flags.DiversityThreshold.Name)
	cfg := &Config{
		SearchPath:  ctx.String(flags.SearchPath.Name),
		Classes:     classes,
		Methods:     ctx.StringSlice(flags.Method.Name),
		RequestFile: ctx.String(flags.Requests.Name),
		SourceDir:   ctx.String(flags.SourceDir.Name),
		Package:     ctx.String(flags.Package.Name),
		Match:       ctx.String(flags.Match.Name),
		Selector:    ctx.String(flags.Selector.Name),
		Selection: selection.Options{
			Seed:      ctx.Uint64(flags.SelectionSeed.Name),
			Ratio:     ctx.Float64(flags.SelectionRatio.Name),
			Threshold: &threshold,
		},
		Timeouts: runner.TimeoutPolicy{
			PerClass:  ctx.Duration(flags.ClassTimeout.Name),
			PerMethod: ctx.Duration(flags.MethodTimeout.Name),
		},
		ListTimeout:  ctx.Duration(flags.ListTimeout.Name),
		KillGrace:    ctx.Duration(flags.KillGrace.Name),
		GoBinary:     ctx.String(flags.GoBinary.Name),
		WorkDir:      ctx.String(flags.WorkDir.Name),
		LogDir:       ctx.String(flags.LogDir.Name),
		Output:       ctx.String(flags.Output.Name),
		Concurrency:  ctx.Int(flags.Concurrency.Name),
		ShowProgress: ctx.Bool(flags.ShowProgress.Name),
		Serve:        ctx.Bool(flags.Serve.Name),
		Service:      serviceConfig(opmetrics.ReadCLIConfig(ctx)),
		Log:          log,
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates the configuration and resolves its paths
func (c *Config) Check() error {
	if c.SearchPath == "" {
		return errors.New("search path is required")
	}
	if (len(c.Classes) == 0) == (c.RequestFile == "") {
		return errors.New("exactly one of classes or a request file is required")
	}
	if c.Package != "" && len(c.Classes) > 1 {
		return fmt.Errorf("candidates from package %s need exactly one class, got %d", c.Package, len(c.Classes))
	}
	if c.Match != "" {
		if _, err := regexp.Compile(c.Match); err != nil {
			return fmt.Errorf("invalid match expression '%s': %w", c.Match, err)
		}
	}
	if _, err := selection.New(c.Selector, c.Selection); err != nil {
		return err
	}
	if c.Timeouts.PerClass <= 0 || c.Timeouts.PerMethod <= 0 {
		return fmt.Errorf("timeouts must be positive, got class=%s method=%s", c.Timeouts.PerClass, c.Timeouts.PerMethod)
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.Log == nil {
		c.Log = log.New()
	}

	// Resolve the absolute paths
	for _, p := range []*string{&c.SourceDir, &c.RequestFile, &c.LogDir, &c.Output, &c.WorkDir} {
		if *p == "" {
			continue
		}
		abs, err := filepath.Abs(*p)
		if err != nil {
			return fmt.Errorf("failed to resolve absolute path for '%s': %w", *p, err)
		}
		*p = abs
	}
	return nil
}

// serviceConfig keeps healthz on its default address and takes the metrics
// endpoint from the metrics flags
func serviceConfig(m opmetrics.CLIConfig) service.Config {
	cfg := service.DefaultConfig()
	cfg.MetricsEnabled = m.Enabled
	if m.ListenAddr != "" {
		cfg.MetricsAddr = net.JoinHostPort(m.ListenAddr, strconv.Itoa(m.ListenPort))
	}
	return cfg
}
