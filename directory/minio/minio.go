// Package minio implements directory.Directory on MinIO and other
// S3-compatible object stores.
package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/minio/minio-go/v7"

	"github.com/Mesteery/tantivy-1/directory"
)

// Directory stores index files as objects under a key prefix.
type Directory struct {
	client *minio.Client
	bucket string
	prefix string
}

// New creates a MinIO-backed directory.
// rootPrefix is prepended to all keys (e.g. "indexes/foo/").
func New(client *minio.Client, bucket, rootPrefix string) *Directory {
	return &Directory{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (d *Directory) key(name string) string {
	return path.Join(d.prefix, name)
}

// Open opens an existing object for reading.
func (d *Directory) Open(ctx context.Context, name string) (directory.Blob, error) {
	key := d.key(name)

	info, err := d.client.StatObject(ctx, d.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, directory.ErrNotFound
		}
		return nil, err
	}

	return &minioBlob{
		client: d.client,
		bucket: d.bucket,
		key:    key,
		size:   info.Size,
	}, nil
}

// Put writes an object in one call. Object store PUTs are atomic.
func (d *Directory) Put(ctx context.Context, name string, data []byte) error {
	key := d.key(name)
	_, err := d.client.PutObject(ctx, d.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

// Create starts a streaming upload. The object becomes visible only once
// Close returns nil.
func (d *Directory) Create(ctx context.Context, name string) (directory.WritableBlob, error) {
	key := d.key(name)
	pr, pw := io.Pipe()

	blob := &minioWritableBlob{
		pw:   pw,
		done: make(chan error, 1),
	}

	go func() {
		_, err := d.client.PutObject(ctx, d.bucket, key, pr, -1, minio.PutObjectOptions{})
		_ = pr.CloseWithError(err)
		blob.done <- err
	}()

	return blob, nil
}

// Delete removes an object. Deleting a missing object is not an error.
func (d *Directory) Delete(ctx context.Context, name string) error {
	err := d.client.RemoveObject(ctx, d.bucket, d.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// List returns all object names under the given prefix, sorted.
func (d *Directory) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := d.key(prefix)

	var names []string
	for obj := range d.client.ListObjects(ctx, d.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, d.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

func isNotFound(err error) bool {
	errResp := minio.ToErrorResponse(err)
	return errResp.Code == "NoSuchKey" || errResp.Code == "NotFound"
}

type minioBlob struct {
	client *minio.Client
	bucket string
	key    string
	size   int64
}

func (b *minioBlob) Size() int64 {
	return b.size
}

// ReadAt issues a ranged GET per call. directory.Blob reads carry no
// context, so the request runs under context.Background().
func (b *minioBlob) ReadAt(p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}
	end := off + int64(len(p)) - 1
	if end >= b.size {
		end = b.size - 1
	}

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(off, end); err != nil {
		return 0, err
	}

	obj, err := b.client.GetObject(context.Background(), b.bucket, b.key, opts)
	if err != nil {
		return 0, err
	}
	defer obj.Close()

	n, err := io.ReadFull(obj, p[:end-off+1])
	if err == nil && int64(n) < int64(len(p)) {
		err = io.EOF
	}
	return n, err
}

func (b *minioBlob) Close() error {
	return nil
}

type minioWritableBlob struct {
	pw       *io.PipeWriter
	done     chan error
	finished atomic.Bool
}

func (b *minioWritableBlob) Write(p []byte) (int, error) {
	return b.pw.Write(p)
}

func (b *minioWritableBlob) Sync() error {
	return nil // streaming upload, durability is decided at Close
}

func (b *minioWritableBlob) Close() error {
	if !b.finished.CompareAndSwap(false, true) {
		return errors.New("already closed")
	}
	if err := b.pw.Close(); err != nil {
		return err
	}
	return <-b.done
}
