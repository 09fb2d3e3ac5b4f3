package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestLog(t *testing.T, events []Event) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.plog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, e := range events {
		logger.Log(e)
	}
	require.NoError(t, logger.Close())
	return path
}

func readAll(t *testing.T, r *Reader) []Event {
	t.Helper()
	var out []Event
	for {
		ev, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, ev)
	}
}

func TestEncodeDecodeEventWithMessage(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 678, time.UTC)
	in := Event{
		Timestamp:    ts,
		ConnectionID: "conn-1",
		Direction:    DirectionIn,
		Layer:        LayerWire,
		Category:     CategoryMessage,
		RemoteAddr:   "127.0.0.1:5000",
		Message: &MessageEvent{
			Type:        "DATA",
			PayloadSize: 4096,
		},
	}

	data, err := MarshalEvent(in)
	require.NoError(t, err)

	out, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.True(t, out.Timestamp.Equal(ts), "timestamp keeps nanoseconds")
	assert.Equal(t, "conn-1", out.ConnectionID)
	require.NotNil(t, out.Message)
	assert.Equal(t, "DATA", out.Message.Type)
	assert.Equal(t, 4096, out.Message.PayloadSize)
	assert.Nil(t, out.Frame)
}

func TestFileLoggerAppendsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "append.plog")

	for _, id := range []string{"conn-1", "conn-2"} {
		logger, err := NewFileLogger(path)
		require.NoError(t, err)
		logger.Log(Event{Timestamp: time.Now(), ConnectionID: id})
		require.NoError(t, logger.Close())
	}

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	events := readAll(t, r)
	require.Len(t, events, 2)
	assert.Equal(t, "conn-1", events[0].ConnectionID)
	assert.Equal(t, "conn-2", events[1].ConnectionID)
}

func TestFileLoggerConcurrentUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concurrent.plog")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				logger.Log(Event{Timestamp: time.Now(), ConnectionID: "c", Frame: &FrameEvent{Size: j}})
			}
		}()
	}
	wg.Wait()
	require.NoError(t, logger.Close())

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 200)
}

func TestFileLoggerIgnoresLogAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "closed.plog")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)

	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())
	logger.Log(Event{ConnectionID: "late"})
	assert.Zero(t, logger.Events())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, fileMagic, data, "only the header is written")

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Empty(t, readAll(t, r))
}

func TestFileLoggerBuffersUntilFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buffered.plog")
	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	defer logger.Close()

	logger.Log(Event{ConnectionID: "a"})
	logger.Log(Event{ConnectionID: "b"})
	assert.Equal(t, 2, logger.Events())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	require.NoError(t, logger.Flush())
	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 2)
}

func TestReaderAcceptsFileWithoutHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.plog")
	var buf bytes.Buffer
	for _, id := range []string{"x", "y"} {
		data, err := MarshalEvent(Event{ConnectionID: id})
		require.NoError(t, err)
		buf.Write(data)
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	events := readAll(t, r)
	require.Len(t, events, 2)
	assert.Equal(t, "y", events[1].ConnectionID)
}

func TestReaderEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.plog")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Empty(t, readAll(t, r))
}

func TestReaderTruncatedTail(t *testing.T) {
	path := writeTestLog(t, []Event{
		{ConnectionID: "complete"},
		{ConnectionID: "cut-short", Message: &MessageEvent{Type: "DATA", PayloadSize: 10}},
	})
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-4], 0644))

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "complete", ev.ConnectionID)

	_, err = r.Next()
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, 1, r.Count())
}

func TestReaderEachStopsOnCallbackError(t *testing.T) {
	path := writeTestLog(t, []Event{{ConnectionID: "1"}, {ConnectionID: "2"}, {ConnectionID: "3"}})

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	stop := errors.New("stop")
	var seen []string
	err = r.Each(func(e Event) error {
		seen = append(seen, e.ConnectionID)
		if e.ConnectionID == "2" {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, []string{"1", "2"}, seen)
}

func TestReaderFilters(t *testing.T) {
	base := time.Now()
	in := DirectionIn
	session := LayerSession
	path := writeTestLog(t, []Event{
		{Timestamp: base, ConnectionID: "a", Direction: DirectionIn, Layer: LayerTransport},
		{Timestamp: base.Add(time.Second), ConnectionID: "a", Direction: DirectionOut, Layer: LayerWire},
		{Timestamp: base.Add(2 * time.Second), ConnectionID: "b", Direction: DirectionIn, Layer: LayerSession, RemoteAddr: "10.0.0.1:1"},
		{Timestamp: base.Add(3 * time.Second), ConnectionID: "b", Direction: DirectionIn, Layer: LayerWire,
			Category: CategoryMessage, Message: &MessageEvent{Type: "OPEN", FileName: "a.txt"}},
	})
	start := base.Add(time.Second)
	end := base.Add(3 * time.Second)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"none", Filter{}, 4},
		{"connection", Filter{ConnectionID: "a"}, 2},
		{"direction", Filter{Direction: &in}, 3},
		{"layer", Filter{Layer: &session}, 1},
		{"remote", Filter{RemoteAddr: "10.0.0.1:1"}, 1},
		{"message type", Filter{MessageType: "open"}, 1},
		{"message type absent", Filter{MessageType: "DATA"}, 0},
		{"time window", Filter{TimeStart: &start, TimeEnd: &end}, 2},
		{"combined", Filter{ConnectionID: "a", Direction: &in}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			require.NoError(t, err)
			defer r.Close()
			assert.Len(t, readAll(t, r), tt.want)
		})
	}
}

func TestSlogAdapterWritesAttributes(t *testing.T) {
	var buf bytes.Buffer
	slogger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewSlogAdapter(slogger).Log(Event{
		Timestamp:    time.Now(),
		ConnectionID: "conn-9",
		Direction:    DirectionOut,
		Layer:        LayerSession,
		Category:     CategoryState,
		StateChange: &StateChangeEvent{
			Entity:   StateEntitySession,
			OldState: "OPEN",
			NewState: "DATA",
		},
	})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "conn-9", entry["conn_id"])
	assert.Equal(t, "OUT", entry["direction"])
	assert.Equal(t, "SESSION", entry["layer"])
	assert.Equal(t, "DATA", entry["new_state"])
}

type recordingLogger struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingLogger) Log(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func TestSlogAdapterLevels(t *testing.T) {
	var buf bytes.Buffer
	slogger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	adapter := NewSlogAdapter(slogger)

	adapter.Log(Event{ConnectionID: "c", Category: CategoryMessage, Message: &MessageEvent{Type: "DATA"}})
	assert.Zero(t, buf.Len(), "messages are debug")

	adapter.Log(Event{ConnectionID: "c", Category: CategoryError,
		Error: &ErrorEventData{Layer: LayerSession, Message: "bad state", Kind: "STATE"}})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "STATE", entry["error_kind"])
}

func TestTeeFansOut(t *testing.T) {
	a, b := &recordingLogger{}, &recordingLogger{}
	Tee(a, NoopLogger{}, nil, b).Log(Event{ConnectionID: "x"})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestTeeCollapses(t *testing.T) {
	assert.Nil(t, Tee())
	assert.Nil(t, Tee(nil, NoopLogger{}))

	a := &recordingLogger{}
	assert.Same(t, a, Tee(nil, a))
}

func TestLoggerFunc(t *testing.T) {
	var got string
	LoggerFunc(func(e Event) { got = e.ConnectionID }).Log(Event{ConnectionID: "fn"})
	assert.Equal(t, "fn", got)
}

func TestEnumNames(t *testing.T) {
	l, err := ParseLayer("wire")
	require.NoError(t, err)
	assert.Equal(t, LayerWire, l)

	d, err := ParseDirection("OUT")
	require.NoError(t, err)
	assert.Equal(t, DirectionOut, d)

	_, err = ParseCategory("warning")
	assert.ErrorContains(t, err, "message, state, error")

	assert.Equal(t, "UNKNOWN", Layer(9).String())
	assert.Equal(t, "SESSION", StateEntitySession.String())

	data, err := json.Marshal(Event{Direction: DirectionOut, Layer: LayerSession, Category: CategoryError})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"Direction":"OUT"`)
	assert.Contains(t, string(data), `"Layer":"SESSION"`)
	assert.Contains(t, string(data), `"Category":"ERROR"`)
}
