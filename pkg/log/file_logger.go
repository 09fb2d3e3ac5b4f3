package log

import (
	"bufio"
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a .plog file. Writes are buffered; events
// reach the file on Flush and Close.
type FileLogger struct {
	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	encoder *cbor.Encoder
	events  int
	err     error
	closed  bool
}

// NewFileLogger opens path for appending, creating it with mode 0644. A new
// or empty file gets the log header first.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	buf := bufio.NewWriter(f)
	if info.Size() == 0 {
		if _, err := buf.Write(fileMagic); err != nil {
			f.Close()
			return nil, err
		}
	}
	return &FileLogger{
		file:    f,
		buf:     buf,
		encoder: eventEncMode.NewEncoder(buf),
	}, nil
}

// Log encodes the event. After the first write error, or after Close,
// events are dropped; the error is reported by Flush or Close.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || l.err != nil {
		return
	}
	if err := l.encoder.Encode(event); err != nil {
		l.err = fmt.Errorf("failed to write event %d: %w", l.events+1, err)
		return
	}
	l.events++
}

// Events returns how many events were written so far.
func (l *FileLogger) Events() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events
}

// Flush writes buffered events to the file.
func (l *FileLogger) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return l.err
	}
	return l.flushLocked()
}

func (l *FileLogger) flushLocked() error {
	if l.err != nil {
		return l.err
	}
	if err := l.buf.Flush(); err != nil {
		l.err = err
	}
	return l.err
}

// Close flushes and closes the file. Later calls return nil.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	flushErr := l.flushLocked()
	if err := l.file.Close(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}

var _ Logger = (*FileLogger)(nil)
