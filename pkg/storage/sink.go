package storage

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// Defaults.
const (
	// DefaultRoot is the storage directory used when none is configured.
	DefaultRoot = "files"

	// DefaultQueueDepth is the number of chunks buffered per open file.
	DefaultQueueDepth = 64
)

// Storage errors.
var (
	// ErrInvalidName indicates the file name sanitizes to nothing usable.
	ErrInvalidName = errors.New("invalid file name")

	// ErrInvalidBase64 indicates a chunk is not valid standard base64.
	ErrInvalidBase64 = errors.New("invalid base64 payload")

	// ErrClosed indicates the file has already been closed.
	ErrClosed = errors.New("file closed")
)

// SanitizeName keeps only letters, digits, '_' and '.' from name. The result
// is rejected when it is empty, "." or "..".
func SanitizeName(name string) (string, error) {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || r == '.' {
			return r
		}
		return -1
	}, name)

	switch clean {
	case "", ".", "..":
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return clean, nil
}

// DecodeChunk decodes one base64 chunk using the standard alphabet in
// strict mode.
func DecodeChunk(text string) ([]byte, error) {
	data, err := base64.StdEncoding.Strict().DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBase64, err)
	}
	return data, nil
}

// Config configures a Sink.
type Config struct {
	// Root is the storage directory. Created on first Open.
	Root string

	// Sync fsyncs each file before it is closed.
	Sync bool

	// QueueDepth bounds the chunks waiting for the writer goroutine.
	QueueDepth int
}

// Sink opens upload files below its root.
type Sink struct {
	config Config
}

// NewSink creates a sink.
func NewSink(config Config) *Sink {
	if config.Root == "" {
		config.Root = DefaultRoot
	}
	if config.QueueDepth <= 0 {
		config.QueueDepth = DefaultQueueDepth
	}
	return &Sink{config: config}
}

// Root returns the storage directory.
func (s *Sink) Root() string {
	return s.config.Root
}

// Open sanitizes name, ensures the root exists and creates (or truncates)
// the file for writing.
func (s *Sink) Open(name string) (*File, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.config.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	path := filepath.Join(s.config.Root, clean)
	fh, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", clean, err)
	}

	f := &File{
		name:  clean,
		path:  path,
		fh:    fh,
		sync:  s.config.Sync,
		queue: make(chan []byte, s.config.QueueDepth),
		done:  make(chan struct{}),
	}
	go f.writeLoop()
	return f, nil
}

// File is one upload being written.
type File struct {
	name string
	path string
	fh   *os.File
	sync bool

	queue chan []byte
	done  chan struct{}

	mu       sync.Mutex
	closed   bool
	closeErr error

	writeErr atomic.Pointer[error]
	written  atomic.Int64
}

// Name returns the sanitized file name.
func (f *File) Name() string {
	return f.name
}

// Path returns the file's location on disk.
func (f *File) Path() string {
	return f.path
}

// Written returns the number of bytes written to disk so far.
func (f *File) Written() int64 {
	return f.written.Load()
}

// Append queues data for writing. A write error from an earlier chunk is
// returned here; data is copied before queueing.
func (f *File) Append(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrClosed
	}
	if err := f.err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	chunk := make([]byte, len(data))
	copy(chunk, data)
	f.queue <- chunk
	return nil
}

// AppendBase64 decodes a base64 chunk and appends it.
func (f *File) AppendBase64(text string) error {
	data, err := DecodeChunk(text)
	if err != nil {
		return err
	}
	return f.Append(data)
}

// Close drains pending writes and releases the file. It is safe to call
// more than once; later calls return the first result.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return f.closeErr
	}
	f.closed = true

	close(f.queue)
	<-f.done

	err := f.err()
	if f.sync && err == nil {
		if syncErr := f.fh.Sync(); syncErr != nil {
			err = fmt.Errorf("failed to sync %s: %w", f.name, syncErr)
		}
	}
	if closeErr := f.fh.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("failed to close %s: %w", f.name, closeErr)
	}

	f.closeErr = err
	return err
}

func (f *File) err() error {
	if p := f.writeErr.Load(); p != nil {
		return *p
	}
	return nil
}

// writeLoop writes queued chunks in order. After the first failure the
// remaining chunks are discarded.
func (f *File) writeLoop() {
	defer close(f.done)

	for chunk := range f.queue {
		if f.err() != nil {
			continue
		}
		n, err := f.fh.Write(chunk)
		f.written.Add(int64(n))
		if err != nil {
			err = fmt.Errorf("failed to write %s: %w", f.name, err)
			f.writeErr.Store(&err)
		}
	}
}
