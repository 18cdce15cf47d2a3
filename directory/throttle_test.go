package directory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestThrottledPassthrough(t *testing.T) {
	ctx := context.Background()
	inner := NewRAMDirectory()

	// Limit 0 disables throttling entirely.
	dir := NewThrottled(inner, 0)

	require.NoError(t, dir.Put(ctx, "a", []byte("abc")))

	blob, err := dir.Open(ctx, "a")
	require.NoError(t, err)
	defer blob.Close()

	p := make([]byte, 3)
	n, err := blob.ReadAt(p, 0)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("abc"), p)
}

func TestThrottledDataIntact(t *testing.T) {
	ctx := context.Background()
	inner := NewRAMDirectory()
	dir := NewThrottled(inner, 1<<20)

	w, err := dir.Create(ctx, "big")
	require.NoError(t, err)
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	blob, err := dir.Open(ctx, "big")
	require.NoError(t, err)
	defer blob.Close()

	got := make([]byte, len(payload))
	_, err = blob.ReadAt(got, 0)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	// The throttled view never exposes zero-copy access.
	_, mappable := blob.(Mappable)
	require.False(t, mappable)

	names, err := dir.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"big"}, names)
	require.NoError(t, dir.Delete(ctx, "big"))
}
