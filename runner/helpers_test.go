package runner

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/paraita/dspot/loader"
)

// fakeGo stands in for "go tool test2json": every run of a binary executes
// the shell script registered for the binary's base name instead, with the
// test2json arguments as positional parameters ("${10}" is the -test.run
// pattern). Anything else (test listing) runs for real.
type fakeGo struct {
	mu      sync.Mutex
	scripts map[string]string
	calls   [][]string
}

func newFakeGo() *fakeGo {
	return &fakeGo{scripts: make(map[string]string)}
}

func (f *fakeGo) script(binary, script string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[binary] = script
}

func (f *fakeGo) build(ctx context.Context, name string, arg ...string) (*exec.Cmd, func()) {
	if name != DefaultGoBinary {
		return loader.DefaultCommandBuilder(ctx, name, arg...)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), arg...))
	script := f.scripts[filepath.Base(arg[5])]
	return exec.CommandContext(ctx, "sh", append([]string{"-c", script, "sh"}, arg...)...), func() {}
}

func (f *fakeGo) recorded() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// emit renders test2json lines as a shell printf
func emit(lines ...string) string {
	quoted := make([]string, len(lines))
	for i, l := range lines {
		quoted[i] = "'" + l + "'"
	}
	return "printf '%s\\n' " + strings.Join(quoted, " ")
}

func script(parts ...string) string {
	return strings.Join(parts, "; ")
}

func passEvent(test string) string {
	return `{"Action":"pass","Package":"pkg","Test":"` + test + `","Elapsed":0.01}`
}

func failEvent(test string) string {
	return `{"Action":"fail","Package":"pkg","Test":"` + test + `","Elapsed":0.01}`
}

func runEvent(test string) string {
	return `{"Action":"run","Package":"pkg","Test":"` + test + `"}`
}

func outputEvent(test, output string) string {
	return `{"Action":"output","Package":"pkg","Test":"` + test + `","Output":"` + output + `\n"}`
}

const packagePass = `{"Action":"pass","Package":"pkg"}`

// writeTestBinary creates an executable that lists the given tests
func writeTestBinary(t *testing.T, dir, name string, tests ...string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("#!/bin/sh\nif [ \"$1\" = \"-test.list\" ]; then\n  :\n")
	for _, test := range tests {
		b.WriteString("  echo " + test + "\n")
	}
	b.WriteString("fi\n")
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o755))
	return p
}
