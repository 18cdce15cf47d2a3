package minio

import (
	"bytes"
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mesteery/tantivy-1/directory"
	"github.com/Mesteery/tantivy-1/tombstone"
)

// TestMinioDirectory_Integration requires a running MinIO instance.
// Skip if not available.
func TestMinioDirectory_Integration(t *testing.T) {
	endpoint := "localhost:9000"
	accessKey := "minioadmin"
	secretKey := "minioadmin"
	bucket := "test-tantivy"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	ctx := context.Background()

	_, err = client.ListBuckets(ctx)
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	require.NoError(t, err)
	if !exists {
		err = client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		require.NoError(t, err)
	}

	dir := New(client, bucket, "test-prefix/")

	// Put and Open
	data := []byte("hello minio world")
	err = dir.Put(ctx, "test.txt", data)
	require.NoError(t, err)

	blob, err := dir.Open(ctx, "test.txt")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	buf := make([]byte, len(data))
	n, err := blob.ReadAt(buf, 0)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf)
	require.NoError(t, blob.Close())

	// Ranged read
	blob2, err := dir.Open(ctx, "test.txt")
	require.NoError(t, err)
	partBuf := make([]byte, 5)
	_, err = blob2.ReadAt(partBuf, 6)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(partBuf))
	require.NoError(t, blob2.Close())

	// List
	names, err := dir.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "test.txt")

	// Delete
	err = dir.Delete(ctx, "test.txt")
	require.NoError(t, err)
	_, err = dir.Open(ctx, "test.txt")
	require.ErrorIs(t, err, directory.ErrNotFound)

	// Create (streaming) with a real tombstone payload
	var tomb bytes.Buffer
	require.NoError(t, tombstone.Write(roaring.BitmapOf(1, 9), 10, &tomb))

	wb, err := dir.Create(ctx, "seg-1.del")
	require.NoError(t, err)
	_, err = wb.Write(tomb.Bytes())
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	blob3, err := dir.Open(ctx, "seg-1.del")
	require.NoError(t, err)
	bs, err := tombstone.Open(blob3)
	require.NoError(t, err)
	assert.Equal(t, 2, bs.NumDeleted())
	require.NoError(t, bs.Close())

	_ = dir.Delete(ctx, "seg-1.del")
}
