package tftpserver_test

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/gotftp/gotftp/pkg/tftpengine"
	"github.com/gotftp/gotftp/pkg/tftpserver"
	"github.com/gotftp/gotftp/pkg/tftpstore"
	"github.com/gotftp/gotftp/pkg/tftpwire"
)

type memWriter struct{ buf bytes.Buffer }

func (w *memWriter) Write(p []byte) (int, error)   { return w.buf.Write(p) }
func (w *memWriter) Preallocate(int64) error       { return nil }
func (w *memWriter) Close() error                  { return nil }

type memReader struct {
	data []byte
	pos  int
}

func (r *memReader) ReadFull(buf []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, nil
	}

	n := copy(buf, r.data[r.pos:])
	r.pos += n

	return n, nil
}

func (r *memReader) SizeHint() (int64, bool) { return int64(len(r.data)), true }
func (r *memReader) Close() error            { return nil }

func startServer(t *testing.T, store tftpstore.Store) net.Addr {
	t.Helper()

	srv := tftpserver.New(tftpserver.Config{
		ListenAddr: "127.0.0.1:0",
		Engine:     tftpengine.Config{Timeout: 150 * time.Millisecond, RetryLimit: 3},
	}, store, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe(ctx) }()

	addrCtx, addrCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer addrCancel()

	addr, err := srv.Addr(addrCtx)
	require.NoError(t, err)

	t.Cleanup(func() {
		cancel()
		<-serveErr
	})

	return addr
}

func TestServer_PutThenGet(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := tftpstore.NewFSStore(fs, "/srv", false)
	addr := startServer(t, store)

	payload := bytes.Repeat([]byte("z"), 900)

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = clientConn.Close() }()

	put := tftpengine.NewReaderInitiator(clientConn, addr, &memReader{data: payload}, tftpengine.Config{Timeout: 150 * time.Millisecond, RetryLimit: 3}, nil)
	require.NoError(t, put.RunInitiator(context.Background(), "roundtrip.bin", tftpwire.ModeOctet, nil))

	getConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = getConn.Close() }()

	w := &memWriter{}
	get := tftpengine.NewWriterInitiator(getConn, addr, w, tftpengine.Config{Timeout: 150 * time.Millisecond, RetryLimit: 3}, nil)
	require.NoError(t, get.RunInitiator(context.Background(), "roundtrip.bin", tftpwire.ModeOctet, nil))

	require.Equal(t, payload, w.buf.Bytes())
}

func TestServer_GetMissingFile_RepliesFileNotFound(t *testing.T) {
	store := tftpstore.NewFSStore(afero.NewMemMapFs(), "/srv", false)
	addr := startServer(t, store)

	clientConn, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = clientConn.Close() }()

	w := &memWriter{}
	get := tftpengine.NewWriterInitiator(clientConn, addr, w, tftpengine.Config{Timeout: 150 * time.Millisecond, RetryLimit: 2}, nil)
	err = get.RunInitiator(context.Background(), "missing.bin", tftpwire.ModeOctet, nil)
	require.ErrorIs(t, err, tftpengine.ErrPeerAborted)
}

func TestServer_SequentialWritesToSamePathAfterLockRelease(t *testing.T) {
	store := tftpstore.NewFSStore(afero.NewMemMapFs(), "/srv", true)
	addr := startServer(t, store)

	// A slow reader that blocks the first PUT open long enough for a
	// second PUT to the same path to race it is impractical to script
	// over real sockets without extra hooks, so this instead verifies
	// the second PUT sent immediately after the first completes is
	// still accepted (the lock releases on completion) as a sanity
	// check that the lock table doesn't leak. The store allows
	// overwrite, so only a leaked lock could reject the second PUT.
	payload := []byte("first")

	for i := 0; i < 2; i++ {
		conn, err := net.ListenPacket("udp", "127.0.0.1:0")
		require.NoError(t, err)

		put := tftpengine.NewReaderInitiator(conn, addr, &memReader{data: payload}, tftpengine.Config{Timeout: 150 * time.Millisecond, RetryLimit: 3}, nil)
		require.NoError(t, put.RunInitiator(context.Background(), "reused.bin", tftpwire.ModeOctet, nil))
		_ = conn.Close()
	}
}
