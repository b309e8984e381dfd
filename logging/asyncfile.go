package logging

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

var errClosed = errors.New("async file is closed")

// AsyncFile provides non-blocking file writing capabilities. Every Write is
// queued as one unit, so concurrent writers never interleave inside a write.
type AsyncFile struct {
	file    *os.File
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
	errs    atomic.Int32
}

// NewAsyncFile creates a new AsyncFile for non-blocking writes
func NewAsyncFile(path string) (*AsyncFile, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		queue: make(chan []byte, 100), // Buffer channel to reduce blocking
	}

	af.wg.Add(1)
	go af.processQueue()

	return af, nil
}

// Write queues data to be written asynchronously. It implements io.Writer.
func (af *AsyncFile) Write(data []byte) (int, error) {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return 0, errClosed
	}

	// Make a copy of the data to avoid race conditions
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)

	af.queue <- dataCopy
	return len(data), nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()

	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			af.errs.Add(1)
			fmt.Fprintf(os.Stderr, "Error writing to file: %v\n", err)
		}
	}
}

// Close stops the async writer and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	// Wait for all writes to complete
	af.wg.Wait()
	if err := af.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	if n := af.errs.Load(); n > 0 {
		return fmt.Errorf("%d writes to %s failed", n, af.file.Name())
	}
	return nil
}
