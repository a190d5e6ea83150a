package flags

import (
	"errors"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	opflags "github.com/ethereum-optimism/optimism/op-service/flags"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const EnvVarPrefix = "DSPOT"

var (
	SearchPath = &cli.StringFlag{
		Name:     "search-path",
		Value:    "",
		Required: true,
		EnvVars:  opservice.PrefixEnvVar(EnvVarPrefix, "SEARCH_PATH"),
		Usage:    "List of directories and .zip archives holding compiled test binaries, separated like PATH",
	}
	Class = &cli.StringSliceFlag{
		Name:    "class",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CLASS"),
		Usage:   "Test binary to run, as an import path or binary name (eg. 'example.com/calc/parse' or 'parse.test'). Repeatable.",
	}
	Method = &cli.StringSliceFlag{
		Name:    "method",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METHOD"),
		Usage:   "Restrict the run to this test function. Repeatable; omit to run every test.",
	}
	Requests = &cli.StringFlag{
		Name:    "requests",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "REQUESTS"),
		Usage:   "Path to a YAML file listing several requests to run as a batch (eg. 'requests.yaml')",
	}
	SourceDir = &cli.StringFlag{
		Name:    "source-dir",
		Value:   ".",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SOURCE_DIR"),
		Usage:   "Root of the Go module holding the test sources candidates are discovered in",
	}
	Package = &cli.StringFlag{
		Name:    "package",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "PACKAGE"),
		Usage:   "Package whose test functions are the candidates (eg. './parse'). Without it every executed test is a candidate.",
	}
	Match = &cli.StringFlag{
		Name:    "match",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "MATCH"),
		Usage:   "Regular expression candidate names must match (eg. '_amplified[0-9]+$')",
	}
	Selector = &cli.StringFlag{
		Name:    "selector",
		Value:   "all",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SELECTOR"),
		Usage:   "Selection strategy applied to passing candidates: all, random or diversity",
	}
	SelectionSeed = &cli.Uint64Flag{
		Name:    "selection-seed",
		Value:   0,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SELECTION_SEED"),
		Usage:   "Seed of the random selection strategy",
	}
	SelectionRatio = &cli.Float64Flag{
		Name:    "selection-ratio",
		Value:   0.5,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SELECTION_RATIO"),
		Usage:   "Share of candidates kept by the random selection strategy, in (0, 1]",
	}
	DiversityThreshold = &cli.Float64Flag{
		Name:    "diversity-threshold",
		Value:   0.8,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "DIVERSITY_THRESHOLD"),
		Usage:   "Similarity at or above which the diversity strategy drops a candidate",
	}
	ClassTimeout = &cli.DurationFlag{
		Name:    "class-timeout",
		Value:   120 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CLASS_TIMEOUT"),
		Usage:   "Budget of a run without method filter, and the floor of every budget",
	}
	MethodTimeout = &cli.DurationFlag{
		Name:    "method-timeout",
		Value:   5 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "METHOD_TIMEOUT"),
		Usage:   "Budget granted per filtered test function",
	}
	ListTimeout = &cli.DurationFlag{
		Name:    "list-timeout",
		Value:   30 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LIST_TIMEOUT"),
		Usage:   "Timeout for listing the tests of a binary",
	}
	KillGrace = &cli.DurationFlag{
		Name:    "kill-grace",
		Value:   2 * time.Second,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "KILL_GRACE"),
		Usage:   "How long a cancelled test process may keep its output open",
	}
	GoBinary = &cli.StringFlag{
		Name:    "go-binary",
		Value:   "go",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "GO_BINARY"),
		Usage:   "Path to the Go binary used to run 'go tool test2json'",
	}
	WorkDir = &cli.StringFlag{
		Name:    "workdir",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "WORKDIR"),
		Usage:   "Directory test binaries run in. Defaults to the directory of each binary.",
	}
	LogDir = &cli.StringFlag{
		Name:    "logdir",
		Value:   "logs",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "LOGDIR"),
		Usage:   "Directory to store per-run test logs. Set to '' to disable.",
	}
	Output = &cli.StringFlag{
		Name:    "output",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "OUTPUT"),
		Usage:   "Write the selected candidates as JSON to this file",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   2,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "CONCURRENCY"),
		Usage:   "Number of batch requests run at the same time",
	}
	ShowProgress = &cli.BoolFlag{
		Name:    "show-progress",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SHOW_PROGRESS"),
		Usage:   "Show a progress bar while a batch runs",
	}
	EnvFile = &cli.StringFlag{
		Name:    "env-file",
		Value:   "",
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "ENV_FILE"),
		Usage:   "Load environment variables from this .env file before reading flags",
	}
	Serve = &cli.BoolFlag{
		Name:    "serve",
		Value:   false,
		EnvVars: opservice.PrefixEnvVar(EnvVarPrefix, "SERVE"),
		Usage:   "Serve /healthz next to the metrics endpoint while running",
	}
)

var requiredFlags = []cli.Flag{
	SearchPath,
}

var optionalFlags = []cli.Flag{
	Class,
	Method,
	Requests,
	SourceDir,
	Package,
	Match,
	Selector,
	SelectionSeed,
	SelectionRatio,
	DiversityThreshold,
	ClassTimeout,
	MethodTimeout,
	ListTimeout,
	KillGrace,
	GoBinary,
	WorkDir,
	LogDir,
	Output,
	Concurrency,
	ShowProgress,
	EnvFile,
	Serve,
}
var Flags []cli.Flag

func init() {
	optionalFlags = append(optionalFlags, oplog.CLIFlags(EnvVarPrefix)...)
	optionalFlags = append(optionalFlags, opmetrics.CLIFlags(EnvVarPrefix)...)

	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	hasClasses := len(ctx.StringSlice(Class.Name)) > 0
	hasRequests := ctx.String(Requests.Name) != ""
	if hasClasses == hasRequests {
		return errors.New("exactly one of --class or --requests must be set")
	}
	return opflags.CheckRequiredXor(ctx)
}
