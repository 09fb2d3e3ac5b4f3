package transport

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/TomasCostaK/secure-comms/pkg/log"
)

func TestLineReaderFeed(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   []string
		rest   int
	}{
		{
			name:   "single frame",
			chunks: []string{`{"type":"OPEN"}` + "\r\n"},
			want:   []string{`{"type":"OPEN"}`},
		},
		{
			name:   "two frames in one chunk",
			chunks: []string{"a\r\nb\r\n"},
			want:   []string{"a", "b"},
		},
		{
			name:   "frame split across chunks",
			chunks: []string{`{"type":"OP`, `EN","file_name":"a.txt"}` + "\r\n"},
			want:   []string{`{"type":"OPEN","file_name":"a.txt"}`},
		},
		{
			name:   "delimiter split across chunks",
			chunks: []string{"abc\r", "\ndef"},
			want:   []string{"abc"},
			rest:   3,
		},
		{
			name:   "surrounding whitespace trimmed",
			chunks: []string{"  {\"type\":\"CLOSE\"} \t\r\n"},
			want:   []string{`{"type":"CLOSE"}`},
		},
		{
			name:   "empty frame is yielded",
			chunks: []string{"\r\n"},
			want:   []string{""},
		},
		{
			name:   "partial frame kept",
			chunks: []string{"no delimiter yet"},
			want:   nil,
			rest:   len("no delimiter yet"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewLineReader()
			var got []string
			for _, c := range tt.chunks {
				frames, err := r.Feed([]byte(c))
				if err != nil {
					t.Fatalf("Feed failed: %v", err)
				}
				for _, f := range frames {
					got = append(got, string(f))
				}
			}

			if len(got) != len(tt.want) {
				t.Fatalf("got %d frames %q, want %d %q", len(got), got, len(tt.want), tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("frame %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
			if r.Buffered() != tt.rest {
				t.Errorf("Buffered() = %d, want %d", r.Buffered(), tt.rest)
			}
		})
	}
}

func TestLineReaderFramesAreCopies(t *testing.T) {
	r := NewLineReader()
	frames, err := r.Feed([]byte("first\r\n"))
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if _, err := r.Feed([]byte("XXXXXXXXXXXX\r\n")); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if string(frames[0]) != "first" {
		t.Errorf("earlier frame was overwritten: %q", frames[0])
	}
}

func TestLineReaderOverflow(t *testing.T) {
	r := NewLineReaderWithMaxSize(16)

	frames, err := r.Feed([]byte("ok\r\n" + strings.Repeat("x", 17)))
	if !errors.Is(err, ErrBufferOverflow) {
		t.Fatalf("expected ErrBufferOverflow, got %v", err)
	}
	if len(frames) != 1 || string(frames[0]) != "ok" {
		t.Errorf("frames before overflow should be returned, got %q", frames)
	}
	if r.Buffered() != 0 {
		t.Errorf("buffer should be discarded, has %d bytes", r.Buffered())
	}
}

func TestLineReaderLargeFrameInPieces(t *testing.T) {
	const size = 16 << 20
	const piece = 64 << 10
	r := NewLineReader()
	payload := bytes.Repeat([]byte("z"), size)

	for off := 0; off < size; off += piece {
		frames, err := r.Feed(payload[off : off+piece])
		if err != nil || len(frames) != 0 {
			t.Fatalf("feed at %d: frames=%d err=%v", off, len(frames), err)
		}
		// Each feed only scans the new bytes plus one held back for a split delimiter.
		if r.scanned != r.Buffered()-len(delimiter)+1 {
			t.Fatalf("feed at %d: scanned %d of %d buffered", off, r.scanned, r.Buffered())
		}
	}

	frames, err := r.Feed([]byte("\r"))
	if err != nil || len(frames) != 0 {
		t.Fatalf("lone CR: frames=%d err=%v", len(frames), err)
	}
	frames, err = r.Feed([]byte("\nnext"))
	if err != nil {
		t.Fatal(err)
	}
	if len(frames) != 1 || len(frames[0]) != size {
		t.Fatalf("expected one %d-byte frame, got %d frames", size, len(frames))
	}
	if r.Buffered() != len("next") || r.scanned != len("next")-len(delimiter)+1 {
		t.Errorf("rest: buffered=%d scanned=%d", r.Buffered(), r.scanned)
	}
}

func TestLineReaderAtCeilingIsAllowed(t *testing.T) {
	r := NewLineReaderWithMaxSize(16)
	if _, err := r.Feed(bytes.Repeat([]byte("y"), 16)); err != nil {
		t.Errorf("buffer at ceiling should not overflow: %v", err)
	}
}

func TestLineWriterAppendsDelimiter(t *testing.T) {
	var buf bytes.Buffer
	w := NewLineWriter(&buf)

	if err := w.WriteFrame([]byte(`{"type":"OK"}`)); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if got := buf.String(); got != "{\"type\":\"OK\"}\r\n" {
		t.Errorf("wrote %q", got)
	}
}

func TestLineWriterRejects(t *testing.T) {
	w := NewLineWriter(&bytes.Buffer{})

	if err := w.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
	if err := w.WriteFrame([]byte("a\r\nb")); !errors.Is(err, ErrDelimiterInFrame) {
		t.Errorf("expected ErrDelimiterInFrame, got %v", err)
	}
}

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(e log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func TestFramingLogsEvents(t *testing.T) {
	logger := &captureLogger{}

	r := NewLineReader()
	r.SetLogger(logger, "conn-1")
	if _, err := r.Feed([]byte("hello\r\n")); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}

	w := NewLineWriter(&bytes.Buffer{})
	w.SetLogger(logger, "conn-1")
	big := bytes.Repeat([]byte("z"), MaxLogFrameDataSize+10)
	if err := w.WriteFrame(big); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	if len(logger.events) != 2 {
		t.Fatalf("got %d events, want 2", len(logger.events))
	}
	in, out := logger.events[0], logger.events[1]
	if in.Direction != log.DirectionIn || in.Frame.Size != FrameSize(5) {
		t.Errorf("unexpected inbound event: %+v", in.Frame)
	}
	if out.Direction != log.DirectionOut || !out.Frame.Truncated || len(out.Frame.Data) != MaxLogFrameDataSize {
		t.Errorf("outbound event should be truncated: size=%d truncated=%v", out.Frame.Size, out.Frame.Truncated)
	}
}
