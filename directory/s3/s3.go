// Package s3 implements directory.Directory on Amazon S3.
//
// Reads are ranged GETs, so tombstone and manifest files can be fetched
// partially without downloading whole objects. Large writes stream through
// the S3 transfer manager as multipart uploads. Plain S3 cannot
// compare-and-swap the CURRENT pointer; CommitDirectory layers DynamoDB
// conditional writes on top for safe concurrent committers.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Mesteery/tantivy-1/directory"
)

// Directory stores index files as S3 objects under a key prefix.
type Directory struct {
	client Client
	bucket string
	prefix string
}

// New creates an S3-backed directory.
// rootPrefix is prepended to all keys (e.g. "indexes/foo/").
func New(client Client, bucket, rootPrefix string) *Directory {
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

	head, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return nil, directory.ErrNotFound
		}
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, directory.ErrNotFound
		}
		return nil, err
	}

	return &s3Blob{
		client: d.client,
		bucket: d.bucket,
		key:    key,
		size:   aws.ToInt64(head.ContentLength),
	}, nil
}

// Put writes an object in one call. S3 PUTs are atomic.
func (d *Directory) Put(ctx context.Context, name string, data []byte) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.bucket),
		Key:           aws.String(d.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	return err
}

// Create starts a streaming multipart upload. The object becomes visible
// only once Close returns nil.
func (d *Directory) Create(ctx context.Context, name string) (directory.WritableBlob, error) {
	key := d.key(name)
	pr, pw := io.Pipe()

	blob := &s3WritableBlob{
		pw:   pw,
		done: make(chan error, 1),
	}

	uploader := manager.NewUploader(d.client)
	go func() {
		_, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		_ = pr.CloseWithError(err)
		blob.done <- err
	}()

	return blob, nil
}

// Delete removes an object. S3 DeleteObject succeeds on missing keys, so
// no not-found mapping is needed.
func (d *Directory) Delete(ctx context.Context, name string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(name)),
	})
	return err
}

// List returns all object names under the given prefix, sorted.
func (d *Directory) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := d.key(prefix)

	var names []string
	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := aws.ToString(obj.Key)
			if len(d.prefix) > 0 && len(name) > len(d.prefix) && name[:len(d.prefix)] == d.prefix {
				name = name[len(d.prefix):]
				if len(name) > 0 && name[0] == '/' {
					name = name[1:]
				}
			}
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}

type s3Blob struct {
	client Client
	bucket string
	key    string
	size   int64
}

func (b *s3Blob) Close() error {
	return nil
}

func (b *s3Blob) Size() int64 {
	return b.size
}

// ReadAt issues a ranged GET per call. directory.Blob reads carry no
// context, so the request runs under context.Background().
func (b *s3Blob) ReadAt(p []byte, off int64) (int, error) {
	if off >= b.size {
		return 0, io.EOF
	}

	end := off + int64(len(p)) - 1
	if end >= b.size {
		end = b.size - 1
	}
	rangeHeader := fmt.Sprintf("bytes=%d-%d", off, end)

	resp, err := b.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key),
		Range:  aws.String(rangeHeader),
	})
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.ReadFull(resp.Body, p[:end-off+1])
	if err == nil && int64(n) < int64(len(p)) {
		err = io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}
	return n, err
}

type s3WritableBlob struct {
	pw     *io.PipeWriter
	done   chan error
	closed atomic.Bool
}

func (b *s3WritableBlob) Write(p []byte) (int, error) {
	if b.closed.Load() {
		return 0, io.ErrClosedPipe
	}
	return b.pw.Write(p)
}

// Sync is a no-op; the upload is only finalized by Close.
func (b *s3WritableBlob) Sync() error {
	return nil
}

func (b *s3WritableBlob) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return io.ErrClosedPipe
	}
	if err := b.pw.Close(); err != nil {
		return err
	}
	return <-b.done
}
