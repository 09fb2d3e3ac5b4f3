package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/TomasCostaK/secure-comms/pkg/log"
)

// Framing constants.
const (
	// Delimiter terminates every frame on the wire.
	Delimiter = "\r\n"

	// DefaultMaxBufferSize is the largest amount of undelimited input kept
	// before the connection is dropped (4 GiB).
	DefaultMaxBufferSize = 4096 * 1024 * 1024

	// MaxLogFrameDataSize is the maximum frame data size to include in logs (4 KB).
	// Larger frames are truncated in log events to avoid excessive memory usage.
	MaxLogFrameDataSize = 4096
)

// Framing errors.
var (
	// ErrBufferOverflow indicates the input buffer grew past its ceiling
	// without a delimiter. The buffered data has been discarded.
	ErrBufferOverflow = errors.New("frame buffer overflow")

	// ErrMessageEmpty indicates an attempt to write an empty frame.
	ErrMessageEmpty = errors.New("message is empty")

	// ErrDelimiterInFrame indicates the outgoing payload contains the delimiter.
	ErrDelimiterInFrame = errors.New("frame contains delimiter")
)

var delimiter = []byte(Delimiter)

// LineReader splits an inbound byte stream into CRLF-delimited frames.
// It is not safe for concurrent use; each connection owns its own reader.
type LineReader struct {
	buf           []byte
	maxBufferSize int

	// scanned is how much of buf is known to hold no delimiter start.
	scanned int

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewLineReader creates a reader with the default buffer ceiling.
func NewLineReader() *LineReader {
	return NewLineReaderWithMaxSize(DefaultMaxBufferSize)
}

// NewLineReaderWithMaxSize creates a reader with a custom buffer ceiling.
func NewLineReaderWithMaxSize(maxSize int) *LineReader {
	if maxSize <= 0 {
		maxSize = DefaultMaxBufferSize
	}
	return &LineReader{maxBufferSize: maxSize}
}

// SetLogger configures logging for this reader.
// Pass nil to disable logging.
func (r *LineReader) SetLogger(logger log.Logger, connID string) {
	r.logger = logger
	r.connID = connID
}

// Feed appends data to the buffer and returns every complete frame, in
// order, trimmed of surrounding whitespace. A trailing partial frame stays
// buffered for the next call. When the remaining buffer exceeds the ceiling
// it is discarded and ErrBufferOverflow is returned along with any frames
// already extracted.
func (r *LineReader) Feed(data []byte) ([][]byte, error) {
	r.buf = append(r.buf, data...)

	var frames [][]byte
	for {
		idx := bytes.Index(r.buf[r.scanned:], delimiter)
		if idx < 0 {
			// The tail may hold the first half of a delimiter.
			r.scanned = max(0, len(r.buf)-len(delimiter)+1)
			break
		}
		idx += r.scanned

		raw := r.buf[:idx]
		frame := append([]byte(nil), bytes.TrimSpace(raw)...)
		r.buf = r.buf[idx+len(delimiter):]
		r.scanned = 0

		if r.logger != nil {
			r.logger.Log(makeFrameEvent(r.connID, raw, log.DirectionIn))
		}
		frames = append(frames, frame)
	}

	// Release the consumed prefix so the backing array does not grow forever.
	if len(r.buf) == 0 {
		r.buf = nil
	}

	if len(r.buf) > r.maxBufferSize {
		r.buf = nil
		r.scanned = 0
		return frames, fmt.Errorf("%w: more than %d bytes without delimiter", ErrBufferOverflow, r.maxBufferSize)
	}

	return frames, nil
}

// Buffered returns the number of bytes waiting for a delimiter.
func (r *LineReader) Buffered() int {
	return len(r.buf)
}

// Reset discards any buffered input.
func (r *LineReader) Reset() {
	r.buf = nil
	r.scanned = 0
}

// LineWriter writes CRLF-terminated frames to an underlying writer.
type LineWriter struct {
	w  io.Writer
	mu sync.Mutex

	// Logging support (optional)
	logger log.Logger
	connID string
}

// NewLineWriter creates a new frame writer.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// SetLogger configures logging for this writer.
// Pass nil to disable logging.
func (lw *LineWriter) SetLogger(logger log.Logger, connID string) {
	lw.logger = logger
	lw.connID = connID
}

// WriteFrame writes data followed by the delimiter in a single write.
// Thread-safe: can be called from multiple goroutines.
func (lw *LineWriter) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrMessageEmpty
	}
	if bytes.Contains(data, delimiter) {
		return ErrDelimiterInFrame
	}

	frame := make([]byte, 0, len(data)+len(delimiter))
	frame = append(frame, data...)
	frame = append(frame, delimiter...)

	lw.mu.Lock()
	defer lw.mu.Unlock()

	if _, err := lw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	if lw.logger != nil {
		lw.logger.Log(makeFrameEvent(lw.connID, data, log.DirectionOut))
	}

	return nil
}

// makeFrameEvent creates a log event for a frame.
func makeFrameEvent(connID string, data []byte, direction log.Direction) log.Event {
	frameData := append([]byte(nil), data...)
	truncated := false

	if len(frameData) > MaxLogFrameDataSize {
		frameData = frameData[:MaxLogFrameDataSize]
		truncated = true
	}

	return log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    direction,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      FrameSize(len(data)),
			Data:      frameData,
			Truncated: truncated,
		},
	}
}

// FrameSize returns the total frame size including the delimiter.
func FrameSize(payloadSize int) int {
	return payloadSize + len(delimiter)
}
