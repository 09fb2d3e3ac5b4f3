package client_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TomasCostaK/secure-comms/pkg/client"
	"github.com/TomasCostaK/secure-comms/pkg/handshake"
	"github.com/TomasCostaK/secure-comms/pkg/negotiation"
	"github.com/TomasCostaK/secure-comms/pkg/session"
	"github.com/TomasCostaK/secure-comms/pkg/storage"
	"github.com/TomasCostaK/secure-comms/pkg/transport"
)

func startServer(t *testing.T) (addr, root string) {
	t.Helper()
	root = filepath.Join(t.TempDir(), "files")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server, err := transport.NewServer(transport.ServerConfig{
		Address: "127.0.0.1:0",
		NewHandler: session.NewFactory(ctx, session.Config{
			Parameters: handshake.FixedParameters(handshake.MODPGroup2()),
			Sink:       storage.NewSink(storage.Config{Root: root}),
		}),
	})
	require.NoError(t, err)
	require.NoError(t, server.Start(ctx))
	t.Cleanup(func() { server.Stop() })

	return server.Addr().String(), root
}

func dial(t *testing.T, addr string, config client.Config) *client.Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := client.Dial(ctx, addr, config)
	require.NoError(t, err)
	return c
}

func TestUploadRoundTrip(t *testing.T) {
	addr, root := startServer(t)

	payload := make([]byte, 100*1024+17)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	c := dial(t, addr, client.Config{ChunkSize: 4096})
	assert.Len(t, c.Key(), handshake.KeySize)

	n, err := c.Upload("payload.bin", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)

	got, err := os.ReadFile(filepath.Join(root, "payload.bin"))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestNegotiateThenUpload(t *testing.T) {
	addr, root := startServer(t)
	c := dial(t, addr, client.Config{})

	suite, err := c.Negotiate(negotiation.Offer{
		Ciphers: []string{"AES", "ChaCha20"},
		Modes:   []string{"CBC", "GCM"},
		Digests: []string{"SHA-256", "SHA-512"},
	})
	require.NoError(t, err)
	assert.Equal(t, negotiation.Suite{Cipher: "ChaCha20", Mode: "GCM", Digest: "SHA-512"}, suite)

	_, err = c.Upload("x.txt", bytes.NewReader([]byte("hello")))
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "x.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestNegotiateFailure(t *testing.T) {
	addr, _ := startServer(t)
	c := dial(t, addr, client.Config{})

	suite, err := c.Negotiate(negotiation.Offer{
		Ciphers: []string{"DES"},
		Modes:   []string{"GCM"},
		Digests: []string{"SHA-512"},
	})
	assert.ErrorIs(t, err, client.ErrNegotiationFailed)
	assert.Equal(t, negotiation.Suite{}, suite)
}

func TestOpenRejected(t *testing.T) {
	addr, root := startServer(t)
	c := dial(t, addr, client.Config{})

	err := c.Open("///")
	assert.ErrorIs(t, err, client.ErrServerError)

	_, statErr := os.Stat(root)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteRequiresOpen(t *testing.T) {
	addr, _ := startServer(t)
	c := dial(t, addr, client.Config{})
	defer c.Close()

	_, err := c.Write([]byte("data"))
	assert.ErrorIs(t, err, client.ErrNotOpen)
}
