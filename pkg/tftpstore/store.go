// Package tftpstore provides the file-stream backends a transfer engine
// reads from and writes to: a root-jailed local filesystem store and an
// S3-backed store, both exposing tftpengine.Reader/tftpengine.Writer.
package tftpstore

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/gotftp/gotftp/pkg/tftpengine"
)

var (
	ErrInvalidPath = errors.New("tftpstore: invalid or unsafe path")
	ErrNotFound    = errors.New("tftpstore: file not found")
	ErrExists      = errors.New("tftpstore: file already exists")
)

// Store opens the file-stream endpoints a transfer engine consumes.
// Implementations apply their own path policy and overwrite policy.
type Store interface {
	OpenReader(ctx context.Context, name string) (tftpengine.Reader, error)
	OpenWriter(ctx context.Context, name string) (tftpengine.Writer, error)
}

// sanitize rejects absolute paths and any ".." traversal, returning the
// cleaned, slash-separated relative path to use under a store's root.
func sanitize(name string) (string, error) {
	if name == "" {
		return "", ErrInvalidPath
	}

	slashed := strings.ReplaceAll(name, `\`, "/")
	clean := path.Clean(slashed)

	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrInvalidPath
	}

	return clean, nil
}
