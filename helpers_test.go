package dspot

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/optimism/op-service/testlog"
	"github.com/paraita/dspot/loader"
	"github.com/paraita/dspot/runner"
	"github.com/paraita/dspot/selection"
)

// fakeGo replaces "go tool test2json" with the shell script registered for
// the binary being run
type fakeGo struct {
	mu      sync.Mutex
	scripts map[string]string
	calls   [][]string
}

func newFakeGo() *fakeGo {
	return &fakeGo{scripts: make(map[string]string)}
}

func (f *fakeGo) script(binary string, events ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	quoted := make([]string, len(events))
	for i, e := range events {
		quoted[i] = "'" + e + "'"
	}
	f.scripts[binary] = "printf '%s\\n' " + strings.Join(quoted, " ")
}

func (f *fakeGo) build(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	if name != runner.DefaultGoBinary {
		return loader.DefaultCommandBuilder(ctx, name, arg...)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), arg...))
	return exec.CommandContext(ctx, "sh", "-c", f.scripts[filepath.Base(arg[5])]), func() {}
}

func (f *fakeGo) recorded() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

func pass(test string) string {
	return `{"Action":"pass","Package":"pkg","Test":"` + test + `","Elapsed":0.01}`
}

func fail(test string) string {
	return `{"Action":"fail","Package":"pkg","Test":"` + test + `","Elapsed":0.01}`
}

const packageDone = `{"Action":"pass","Package":"pkg"}`

// writeTestBinary creates an executable that lists the given tests
func writeTestBinary(t *testing.T, dir, name string, tests ...string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("#!/bin/sh\nif [ \"$1\" = \"-test.list\" ]; then\n")
	for _, test := range tests {
		b.WriteString("  echo " + test + "\n")
	}
	b.WriteString("fi\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o755))
}

type fixture struct {
	binDir    string
	sourceDir string
	fake      *fakeGo
}

func newFixture(t *testing.T) *fixture {
	return &fixture{binDir: t.TempDir(), sourceDir: t.TempDir(), fake: newFakeGo()}
}

func (f *fixture) config(t *testing.T) *Config {
	return &Config{
		SearchPath:  f.binDir,
		SourceDir:   f.sourceDir,
		Selector:    selection.StrategyAll,
		Selection:   selection.Options{Ratio: selection.DefaultRatio},
		Timeouts:    runner.DefaultTimeoutPolicy(),
		ListTimeout: 10 * time.Second,
		KillGrace:   100 * time.Millisecond,
		Concurrency: 2,
		Log:         testlog.Logger(t, log.LevelInfo),
	}
}

func (f *fixture) engine(t *testing.T) *runner.Engine {
	t.Helper()
	cfg := f.config(t)
	e, err := runner.NewEngine(runner.EngineConfig{
		SearchPath: cfg.SearchPath,
		Timeouts:   cfg.Timeouts,
		KillGrace:  cfg.KillGrace,
		Log:        cfg.Log,
		CmdBuilder: f.fake.build,
	})
	require.NoError(t, err)
	return e
}

// writeSource adds a _test.go file to a package directory of the source tree
func (f *fixture) writeSource(t *testing.T, pkg, file, src string) {
	t.Helper()
	dir := filepath.Join(f.sourceDir, pkg)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(src), 0o644))
}
