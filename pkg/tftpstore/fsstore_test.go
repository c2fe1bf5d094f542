package tftpstore_test

import (
	"context"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/gotftp/gotftp/pkg/tftpstore"
)

func TestFSStore_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := tftpstore.NewFSStore(fs, "/srv/tftp", false)

	w, err := store.OpenWriter(ctx, "sub/dir/file.bin")
	require.NoError(t, err)

	_, err = w.Write([]byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := store.OpenReader(ctx, "sub/dir/file.bin")
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	size, ok := r.SizeHint()
	require.True(t, ok)
	require.EqualValues(t, 11, size)

	buf := make([]byte, 64)
	n, err := r.ReadFull(buf)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(buf[:n]))
}

func TestFSStore_ReadMissingFile(t *testing.T) {
	store := tftpstore.NewFSStore(afero.NewMemMapFs(), "/srv/tftp", false)

	_, err := store.OpenReader(context.Background(), "nope.bin")
	require.ErrorIs(t, err, tftpstore.ErrNotFound)
}

func TestFSStore_OverwriteRejectedByDefault(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := tftpstore.NewFSStore(fs, "/srv/tftp", false)

	w, err := store.OpenWriter(ctx, "a.bin")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = store.OpenWriter(ctx, "a.bin")
	require.ErrorIs(t, err, tftpstore.ErrExists)
}

func TestFSStore_OverwriteAllowedWhenConfigured(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := tftpstore.NewFSStore(fs, "/srv/tftp", true)

	w, err := store.OpenWriter(ctx, "a.bin")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	w2, err := store.OpenWriter(ctx, "a.bin")
	require.NoError(t, err)
	require.NoError(t, w2.Close())
}

func TestFSStore_RejectsPathTraversal(t *testing.T) {
	store := tftpstore.NewFSStore(afero.NewMemMapFs(), "/srv/tftp", false)
	ctx := context.Background()

	_, err := store.OpenReader(ctx, "../../etc/passwd")
	require.ErrorIs(t, err, tftpstore.ErrInvalidPath)

	_, err = store.OpenWriter(ctx, "/etc/passwd")
	require.ErrorIs(t, err, tftpstore.ErrInvalidPath)
}

func TestFSStore_AbortRemovesPartialFile(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	store := tftpstore.NewFSStore(fs, "/srv/tftp", false)

	w, err := store.OpenWriter(ctx, "partial.bin")
	require.NoError(t, err)

	_, err = w.Write([]byte("half"))
	require.NoError(t, err)

	aborter, ok := w.(interface{ Abort() error })
	require.True(t, ok)
	require.NoError(t, aborter.Abort())

	_, err = store.OpenReader(ctx, "partial.bin")
	require.ErrorIs(t, err, tftpstore.ErrNotFound)
}
