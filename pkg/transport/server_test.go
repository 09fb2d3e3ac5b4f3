package transport_test

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomasCostaK/secure-comms/pkg/transport"
)

// echoHandler sends every complete frame back and closes on "bye".
type echoHandler struct {
	conn   *transport.ServerConn
	reader *transport.LineReader
	closed chan error
}

func (h *echoHandler) OnConnect() error {
	return h.conn.Send([]byte("hello"))
}

func (h *echoHandler) OnData(chunk []byte) {
	frames, err := h.reader.Feed(chunk)
	if err != nil {
		h.conn.Close()
		return
	}
	for _, f := range frames {
		if string(f) == "bye" {
			h.conn.Close()
			return
		}
		h.conn.Send(f)
	}
}

func (h *echoHandler) OnClose(err error) {
	h.closed <- err
}

func startEchoServer(t *testing.T, idle time.Duration) (*transport.Server, chan error) {
	t.Helper()
	closed := make(chan error, 4)

	server, err := transport.NewServer(transport.ServerConfig{
		Address:     "127.0.0.1:0",
		IdleTimeout: idle,
		NewHandler: func(conn *transport.ServerConn) transport.Handler {
			return &echoHandler{conn: conn, reader: transport.NewLineReader(), closed: closed}
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, server.Start(ctx))
	t.Cleanup(func() { server.Stop() })

	return server, closed
}

func TestNewServerRequiresHandler(t *testing.T) {
	_, err := transport.NewServer(transport.ServerConfig{})
	assert.Error(t, err)
}

func TestServerEchoesFramesInOrder(t *testing.T) {
	server, closed := startEchoServer(t, 0)

	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	rd := bufio.NewReader(conn)
	line, err := rd.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "hello\r\n", line)

	// Split writes exercise reassembly on the server side.
	_, err = conn.Write([]byte("one\r\ntw"))
	require.NoError(t, err)
	_, err = conn.Write([]byte("o\r\n"))
	require.NoError(t, err)

	for _, want := range []string{"one\r\n", "two\r\n"} {
		line, err := rd.ReadString('\n')
		require.NoError(t, err)
		assert.Equal(t, want, line)
	}

	_, err = conn.Write([]byte("bye\r\n"))
	require.NoError(t, err)

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not closed")
	}
}

func TestServerIdleTimeout(t *testing.T) {
	server, closed := startEchoServer(t, 100*time.Millisecond)

	conn, err := net.Dial("tcp", server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	select {
	case err := <-closed:
		assert.True(t, errors.Is(err, transport.ErrIdleTimeout), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("idle connection was not closed")
	}
}

func TestServerStopClosesConnections(t *testing.T) {
	server, closed := startEchoServer(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		conn, err := net.Dial("tcp", server.Addr().String())
		require.NoError(t, err)
		defer conn.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			bufio.NewReader(conn).ReadString('\n')
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool { return server.ConnectionCount() == 3 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, server.Stop())
	assert.Equal(t, 0, server.ConnectionCount())

	for i := 0; i < 3; i++ {
		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatal("handler not notified on stop")
		}
	}
}
