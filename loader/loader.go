package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/paraita/dspot/types"
)

const DefaultListTimeout = 30 * time.Second

// LoadedClass is a resolved test binary together with the test functions it contains
type LoadedClass struct {
	Name    types.TestArtifactRef
	Package string   // label used for test2json events
	Binary  string   // absolute path of the executable
	Dir     string   // directory the binary runs in
	Methods []string // top-level test functions, in listing order
}

// Config holds configuration for creating a new loader
type Config struct {
	SearchPath  string
	ListTimeout time.Duration
	Log         log.Logger
	CmdBuilder  CommandBuilder
}

// Loader resolves test artifacts against a search path
type Loader struct {
	searchPath  SearchPath
	listTimeout time.Duration
	log         log.Logger
	cmdBuilder  CommandBuilder
}

// New creates a new loader for the configured search path
func New(cfg Config) (*Loader, error) {
	sp, err := ParseSearchPath(cfg.SearchPath)
	if err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = log.New()
		cfg.Log.Error("No logger provided, using default")
	}
	if cfg.ListTimeout <= 0 {
		cfg.ListTimeout = DefaultListTimeout
	}
	if cfg.CmdBuilder == nil {
		cfg.CmdBuilder = DefaultCommandBuilder
	}
	return &Loader{
		searchPath:  sp,
		listTimeout: cfg.ListTimeout,
		log:         cfg.Log.New("component", "loader"),
		cmdBuilder:  cfg.CmdBuilder,
	}, nil
}

// SearchPath returns the parsed search path
func (l *Loader) SearchPath() SearchPath {
	return l.searchPath
}

// NewContext creates a fresh resolution context. Contexts are never shared
// between runs; Close releases the files extracted from archive roots.
func (l *Loader) NewContext() *Context {
	return &Context{loader: l}
}

// Load resolves all names in a fresh context and returns the classes together
// with the context that owns them. On error the context is already closed.
func (l *Loader) Load(ctx context.Context, names []types.TestArtifactRef) (*Context, []*LoadedClass, error) {
	rc := l.NewContext()
	classes, err := rc.Load(ctx, names)
	if err != nil {
		_ = rc.Close()
		return nil, nil, err
	}
	return rc, classes, nil
}

// Context is a single resolution context combining all search path roots
type Context struct {
	loader *Loader

	mu      sync.Mutex
	scratch string
	closed  bool
}

// Load resolves every name in declared order. The first failure aborts the
// load and is returned as a *LoadError.
func (c *Context) Load(ctx context.Context, names []types.TestArtifactRef) ([]*LoadedClass, error) {
	if len(names) == 0 {
		return nil, errors.New("at least one test artifact is required")
	}

	classes := make([]*LoadedClass, 0, len(names))
	for _, name := range names {
		class, err := c.loadOne(ctx, name)
		if err != nil {
			c.loader.log.Error("Failed to load test artifact", "name", name, "err", err)
			return nil, &LoadError{Name: name, Err: err}
		}
		c.loader.log.Debug("Loaded test artifact", "name", name, "binary", class.Binary, "tests", len(class.Methods))
		classes = append(classes, class)
	}
	return classes, nil
}

func (c *Context) loadOne(ctx context.Context, name types.TestArtifactRef) (*LoadedClass, error) {
	if strings.TrimSpace(string(name)) == "" {
		return nil, errors.New("artifact name cannot be empty")
	}

	binary, err := c.resolve(string(name))
	if err != nil {
		return nil, err
	}

	methods, err := c.listTests(ctx, binary)
	if err != nil {
		return nil, fmt.Errorf("listing tests in %s: %w", binary, err)
	}

	return &LoadedClass{
		Name:    name,
		Package: packageName(string(name)),
		Binary:  binary,
		Dir:     filepath.Dir(binary),
		Methods: methods,
	}, nil
}

// resolve finds the binary for a name in the first root that contains it
func (c *Context) resolve(name string) (string, error) {
	candidates := candidateNames(name)
	for _, root := range c.loader.searchPath {
		var (
			found string
			err   error
		)
		if root.Archive {
			found, err = c.resolveInArchive(root, candidates)
		} else {
			found, err = resolveInDir(root, candidates)
		}
		if err != nil {
			return "", err
		}
		if found != "" {
			return found, nil
		}
	}
	return "", fmt.Errorf("%w: %s (search path %s)", ErrArtifactNotFound, name, c.loader.searchPath)
}

func resolveInDir(root Root, candidates []string) (string, error) {
	for _, candidate := range candidates {
		p := filepath.Join(root.Path, filepath.FromSlash(candidate))
		if rel, err := filepath.Rel(root.Path, p); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return "", fmt.Errorf("artifact name %q escapes search path root %s", candidate, root.Path)
		}
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return "", fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if info.Mode().Perm()&0o111 == 0 {
			return "", fmt.Errorf("test binary %s is not executable", p)
		}
		return p, nil
	}
	return "", nil
}

func (c *Context) resolveInArchive(root Root, candidates []string) (string, error) {
	zr, err := zip.OpenReader(root.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open archive %s: %w", root.Path, err)
	}
	defer func() {
		_ = zr.Close()
	}()

	entries := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		entries[path.Clean(f.Name)] = f
	}

	for _, candidate := range candidates {
		f, ok := entries[path.Clean(candidate)]
		if !ok || f.FileInfo().IsDir() {
			continue
		}
		return c.extract(root, f)
	}
	return "", nil
}

// extract copies an archive entry into the context scratch directory
func (c *Context) extract(root Root, f *zip.File) (string, error) {
	scratch, err := c.scratchDir()
	if err != nil {
		return "", err
	}

	archiveDir := filepath.Join(scratch, strings.TrimSuffix(filepath.Base(root.Path), filepath.Ext(root.Path)))
	dest := filepath.Join(archiveDir, filepath.FromSlash(path.Clean(f.Name)))
	if !strings.HasPrefix(dest, archiveDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction directory", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create extraction directory: %w", err)
	}

	src, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer func() {
		_ = src.Close()
	}()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", dest, err)
	}
	return dest, nil
}

func (c *Context) scratchDir() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return "", errors.New("resolution context is closed")
	}
	if c.scratch == "" {
		dir, err := os.MkdirTemp("", "dspot-artifacts-*")
		if err != nil {
			return "", fmt.Errorf("failed to create scratch directory: %w", err)
		}
		c.scratch = dir
	}
	return c.scratch, nil
}

// listTests asks the binary for its top-level tests
func (c *Context) listTests(ctx context.Context, binary string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.loader.listTimeout)
	defer cancel()

	cmd, cleanup := c.loader.cmdBuilder(ctx, binary, "-test.list", ".")
	defer cleanup()
	cmd.Dir = filepath.Dir(binary)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.loader.log.Debug("Listing tests", "command", cmd.String())

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("listing tests timed out after %v", c.loader.listTimeout)
		}
		return nil, fmt.Errorf("command error: %w\nstderr: %s", err, stderr.String())
	}

	return parseTestListOutput(stdout.Bytes()), nil
}

// parseTestListOutput extracts test names from -test.list output
func parseTestListOutput(output []byte) []string {
	var testNames []string
	for _, line := range bytes.Split(output, []byte("\n")) {
		testName := string(bytes.TrimSpace(line))
		if isValidTestName(testName) {
			testNames = append(testNames, testName)
		}
	}
	return testNames
}

// isValidTestName returns true if the line names a top-level test function.
// Benchmarks, examples, fuzz targets and the trailing "ok" summary are dropped.
func isValidTestName(name string) bool {
	if name == "" || name == "ok" || strings.HasPrefix(name, "?") || strings.HasPrefix(name, "ok ") {
		return false
	}
	if strings.ContainsAny(name, " \t/") {
		return false
	}
	return strings.HasPrefix(name, "Test") && name != "TestMain"
}

// Close removes everything extracted by this context. It is safe to call more than once.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.scratch == "" {
		return nil
	}
	if err := os.RemoveAll(c.scratch); err != nil {
		return fmt.Errorf("failed to remove scratch directory %s: %w", c.scratch, err)
	}
	return nil
}
