package logging

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/paraita/dspot/plan"
	"github.com/paraita/dspot/types"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories

	rawGoEventsLog = "raw_go_events.log"
	allLogsFile    = "all.log"
	summaryLog     = "summary.log"
	failedDir      = "failed"
)

var ErrClosed = errors.New("run logger is closed")

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 256),
	}
	af.wg.Add(1)
	go af.processQueue()
	return af, nil
}

// Write queues a copy of data to be written asynchronously
func (af *AsyncFile) Write(data []byte) error {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return ErrClosed
	}
	af.queue <- append([]byte(nil), data...)
	return nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer, drains the queue and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if af.stopped {
		af.mu.Unlock()
		return nil
	}
	af.stopped = true
	close(af.queue)
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}

// RunLogger keeps the on-disk record of one run:
//
//	<base>/testrun-<id>/raw_go_events.log  every line the test processes printed
//	<base>/testrun-<id>/all.log            one line per run event and outcome
//	<base>/testrun-<id>/failed/*.txt       output of each failing test
//	<base>/testrun-<id>/summary.log        the final report
type RunLogger struct {
	runID  string
	logDir string

	raw *AsyncFile
	all *AsyncFile

	mu     sync.Mutex
	closed bool
}

// NewRunLogger creates the run directory and opens its log files
func NewRunLogger(baseDir, runID string) (*RunLogger, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if baseDir == "" {
		return nil, fmt.Errorf("baseDir cannot be empty")
	}

	logDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	for _, dir := range []string{logDir, filepath.Join(logDir, failedDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	raw, err := NewAsyncFile(filepath.Join(logDir, rawGoEventsLog))
	if err != nil {
		return nil, err
	}
	all, err := NewAsyncFile(filepath.Join(logDir, allLogsFile))
	if err != nil {
		_ = raw.Close()
		return nil, err
	}
	return &RunLogger{runID: runID, logDir: logDir, raw: raw, all: all}, nil
}

// Dir returns the run directory
func (l *RunLogger) Dir() string {
	return l.logDir
}

// RawEventsFile returns the path of the raw test2json event log
func (l *RunLogger) RawEventsFile() string {
	return filepath.Join(l.logDir, rawGoEventsLog)
}

// SummaryFile returns the path of the summary written by LogSummary
func (l *RunLogger) SummaryFile() string {
	return filepath.Join(l.logDir, summaryLog)
}

// WriteRaw appends one line printed by a test process
func (l *RunLogger) WriteRaw(_ string, line []byte) error {
	data := make([]byte, 0, len(line)+1)
	data = append(data, line...)
	return l.raw.Write(append(data, '\n'))
}

func (l *RunLogger) RunStarted(p *plan.RunPlan) {
	l.logf("run %s started: %d classes, %d tests, filter=%v", l.runID, len(p.Classes), p.TestCount(), p.Filter)
}

func (l *RunLogger) Outcome(o types.ExecutionOutcome) {
	l.logf("%s %s (%s)", o.Status, o.ID, o.Duration)
	if !o.Status.IsFailure() {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", o.ID, o.Status)
	if o.Failure != nil {
		fmt.Fprintf(&b, "error: %s\n", o.Failure.Error())
	}
	if o.Output != "" {
		b.WriteString("\n")
		b.WriteString(o.Output)
	}
	path := filepath.Join(l.logDir, failedDir, safeFilename(o.ID)+".txt")
	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		l.logf("failed to write %s: %v", path, err)
	}
}

func (l *RunLogger) RunFinished(status types.RunStatus) {
	l.logf("run %s finished: %s", l.runID, status)
}

// LogSummary writes the summary of the run
func (l *RunLogger) LogSummary(summary string) error {
	return os.WriteFile(l.SummaryFile(), []byte(summary), 0644)
}

// Close flushes and closes the log files. It is safe to call more than once.
func (l *RunLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	return errors.Join(l.raw.Close(), l.all.Close())
}

func (l *RunLogger) logf(format string, args ...any) {
	line := fmt.Sprintf("%s "+format+"\n", append([]any{time.Now().Format(time.RFC3339)}, args...)...)
	_ = l.all.Write([]byte(line))
}

// safeFilename converts a string to a safe filename by replacing problematic characters
func safeFilename(s string) string {
	s = strings.NewReplacer(
		"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
		"\"", "_", "<", "_", ">", "_", "|", "_", " ", "_",
	).Replace(s)
	return strings.ReplaceAll(s, "...", "")
}
