package tftpstore

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/gotftp/gotftp/pkg/tftpengine"
)

// FSStore is a root-jailed local filesystem Store, backed by an
// afero.Fs so tests can swap in an in-memory filesystem without
// touching disk.
type FSStore struct {
	fs             afero.Fs
	root           string
	allowOverwrite bool
}

// NewFSStore builds an FSStore rooted at root. When allowOverwrite is
// false (the default policy), a WRQ for a file that already exists is
// rejected with ErrExists.
func NewFSStore(fs afero.Fs, root string, allowOverwrite bool) *FSStore {
	return &FSStore{fs: fs, root: root, allowOverwrite: allowOverwrite}
}

func (s *FSStore) fullPath(name string) (string, error) {
	clean, err := sanitize(name)
	if err != nil {
		return "", err
	}

	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

func (s *FSStore) OpenReader(_ context.Context, name string) (tftpengine.Reader, error) {
	full, err := s.fullPath(name)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	size, ok := int64(-1), false
	if info, statErr := f.Stat(); statErr == nil {
		size, ok = info.Size(), true
	}

	return &fsReader{f: f, size: size, sizeOK: ok}, nil
}

func (s *FSStore) OpenWriter(_ context.Context, name string) (tftpengine.Writer, error) {
	full, err := s.fullPath(name)
	if err != nil {
		return nil, err
	}

	if !s.allowOverwrite {
		if _, statErr := s.fs.Stat(full); statErr == nil {
			return nil, ErrExists
		}
	}

	if dir := filepath.Dir(full); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	f, err := s.fs.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}

	return &fsWriter{fs: s.fs, f: f, path: full}, nil
}

type fsReader struct {
	f      afero.File
	size   int64
	sizeOK bool
}

func (r *fsReader) ReadFull(buf []byte) (int, error) {
	n, err := io.ReadFull(r.f, buf)
	if err != nil && (err == io.ErrUnexpectedEOF || err == io.EOF) {
		return n, nil
	}

	return n, err
}

func (r *fsReader) SizeHint() (int64, bool) { return r.size, r.sizeOK }

func (r *fsReader) Close() error { return r.f.Close() }

// fsWriter implements tftpengine.Writer and tftpengine.Aborter: a
// cancelled WRQ removes the partially-written file instead of leaving a
// truncated one behind.
type fsWriter struct {
	fs   afero.Fs
	f    afero.File
	path string
}

func (w *fsWriter) Write(p []byte) (int, error) { return w.f.Write(p) }

// Preallocate is a no-op: afero has no portable fallocate equivalent.
func (w *fsWriter) Preallocate(int64) error { return nil }

func (w *fsWriter) Close() error { return w.f.Close() }

func (w *fsWriter) Abort() error {
	_ = w.f.Close()

	return w.fs.Remove(w.path)
}
