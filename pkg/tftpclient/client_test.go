package tftpclient_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/gotftp/gotftp/pkg/tftpclient"
	"github.com/gotftp/gotftp/pkg/tftpengine"
	"github.com/gotftp/gotftp/pkg/tftpserver"
	"github.com/gotftp/gotftp/pkg/tftpstore"
)

func startTestServer(t *testing.T, store tftpstore.Store) string {
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

	return addr.String()
}

func TestClient_PutThenGetRoundTrip(t *testing.T) {
	serverFs := afero.NewMemMapFs()
	serverStore := tftpstore.NewFSStore(serverFs, "/srv", false)
	addr := startTestServer(t, serverStore)

	localFs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(localFs, "upload.bin", []byte("hello tftp client"), 0o644))

	uploader := tftpclient.NewClientWithStore(nil, tftpstore.NewFSStore(localFs, ".", true))

	require.NoError(t, uploader.Connect(addr))
	require.NoError(t, uploader.Put(context.Background(), "upload.bin"))

	downloadFs := afero.NewMemMapFs()
	downloader := tftpclient.NewClientWithStore(nil, tftpstore.NewFSStore(downloadFs, ".", true))
	require.NoError(t, downloader.Connect(addr))
	require.NoError(t, downloader.Get(context.Background(), "upload.bin"))

	got, err := afero.ReadFile(downloadFs, "upload.bin")
	require.NoError(t, err)
	require.Equal(t, "hello tftp client", string(got))
}

func TestClient_GetWithoutConnect_Errors(t *testing.T) {
	c := tftpclient.NewClientWithStore(nil, tftpstore.NewFSStore(afero.NewMemMapFs(), ".", true))
	err := c.Get(context.Background(), "whatever.bin")
	require.Error(t, err)
}

func TestClient_GetMissingRemoteFile_Errors(t *testing.T) {
	serverStore := tftpstore.NewFSStore(afero.NewMemMapFs(), "/srv", false)
	addr := startTestServer(t, serverStore)

	c := tftpclient.NewClientWithStore(nil, tftpstore.NewFSStore(afero.NewMemMapFs(), ".", true))
	require.NoError(t, c.Connect(addr))

	err := c.Get(context.Background(), "nope.bin")
	require.True(t, errors.Is(err, tftpengine.ErrPeerAborted))
}
