package tftpstore

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gotftp/gotftp/pkg/tftpengine"
)

// S3Store is a Store backed by an S3 (or S3-compatible) bucket, for
// `tftpd --root s3://bucket/prefix`. Unlike FSStore it has no overwrite
// rejection: a WRQ for an existing key replaces the object, whatever
// --allow-overwrite says (bucket versioning aside). The dispatcher's
// per-path lock table only rejects a second WRQ to a name that is still
// being written; it does not check whether the object already exists.
//
// Writes are buffered in memory and flushed with a single PutObject on
// Close; TFTP's transfer sizes don't warrant S3 multipart upload.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store builds an S3Store. client is expected to already be
// configured (region, credentials, endpoint) by the caller, e.g. via
// aws-sdk-go-v2/config.LoadDefaultConfig.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(name string) (string, error) {
	clean, err := sanitize(name)
	if err != nil {
		return "", err
	}

	return s.prefix + clean, nil
}

func (s *S3Store) OpenReader(ctx context.Context, name string) (tftpengine.Reader, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	size, ok := int64(-1), false
	if out.ContentLength != nil {
		size, ok = *out.ContentLength, true
	}

	return &s3Reader{body: out.Body, size: size, sizeOK: ok}, nil
}

func (s *S3Store) OpenWriter(ctx context.Context, name string) (tftpengine.Writer, error) {
	key, err := s.key(name)
	if err != nil {
		return nil, err
	}

	return &s3Writer{ctx: ctx, client: s.client, bucket: s.bucket, key: key}, nil
}

type s3Reader struct {
	body   io.ReadCloser
	size   int64
	sizeOK bool
}

func (r *s3Reader) ReadFull(buf []byte) (int, error) {
	n, err := io.ReadFull(r.body, buf)
	if err != nil && (err == io.ErrUnexpectedEOF || err == io.EOF) {
		return n, nil
	}

	return n, err
}

func (r *s3Reader) SizeHint() (int64, bool) { return r.size, r.sizeOK }

func (r *s3Reader) Close() error { return r.body.Close() }

// s3Writer buffers the whole transfer, then issues one PutObject. ctx is
// captured at OpenWriter time because tftpengine.Writer.Close takes none.
type s3Writer struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *s3Writer) Preallocate(size int64) error {
	if size > 0 && size < 1<<30 {
		w.buf.Grow(int(size))
	}

	return nil
}

func (w *s3Writer) Close() error {
	_, err := w.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.bucket),
		Key:           aws.String(w.key),
		Body:          bytes.NewReader(w.buf.Bytes()),
		ContentLength: aws.Int64(int64(w.buf.Len())),
	})

	return err
}

// Abort discards the buffered bytes without ever contacting S3.
func (w *s3Writer) Abort() error {
	w.buf.Reset()

	return nil
}
