package runner

import (
	"fmt"
	"sync"
)

const (
	defaultStderrTailBytes = 64 * 1024 // kept per class process
	defaultOutputTailBytes = 32 * 1024 // kept per failing test
)

// tailBuffer keeps only the last N bytes written to it so a representative
// snippet of a test's output can travel with its outcome without retaining
// the entire log in memory.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
	overflow bool
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultOutputTailBytes
	}
	return &tailBuffer{maxBytes: maxBytes}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		// Trim front to keep the most recent bytes
		b.contents = append(b.contents[:0], b.contents[len(b.contents)-b.maxBytes:]...)
		b.overflow = true
	}
	return len(p), nil
}

func (b *tailBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(b.contents))
	copy(cp, b.contents)
	return cp
}

func (b *tailBuffer) String() string {
	return string(b.Bytes())
}

// Text returns the kept bytes. When older bytes were dropped, a note saying
// how many is appended so readers know the snippet is partial.
func (b *tailBuffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.overflow {
		return string(b.contents)
	}
	return fmt.Sprintf("%s\n[output truncated: kept last %d of %d bytes]", b.contents, len(b.contents), b.total)
}
