package directory

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttled wraps a Directory with a byte-throughput limit.
//
// Background work (tombstone merges, segment rewrites) shares storage
// bandwidth with query traffic; routing its Directory through Throttled
// bounds how much it can take. A limit of 0 disables throttling.
//
// Zero-copy access is deliberately not forwarded: a Throttled blob never
// implements Mappable, since mapped reads would bypass accounting.
type Throttled struct {
	inner   Directory
	limiter *rate.Limiter
}

// NewThrottled wraps inner with a bytesPerSec read/write limit.
func NewThrottled(inner Directory, bytesPerSec int) *Throttled {
	t := &Throttled{inner: inner}
	if bytesPerSec > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec)
	}
	return t
}

// acquire waits until the limiter allows n bytes, in burst-sized chunks so
// requests larger than the burst still succeed.
func (t *Throttled) acquire(ctx context.Context, n int) error {
	if t.limiter == nil {
		return nil
	}
	burst := t.limiter.Burst()
	for n > 0 {
		take := min(n, burst)
		if err := t.limiter.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

// Open opens a file whose reads count against the limit.
func (t *Throttled) Open(ctx context.Context, name string) (Blob, error) {
	blob, err := t.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &throttledBlob{t: t, inner: blob}, nil
}

// Create creates a file whose writes count against the limit.
func (t *Throttled) Create(ctx context.Context, name string) (WritableBlob, error) {
	w, err := t.inner.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	return &throttledWritableBlob{t: t, inner: w}, nil
}

// Put writes a file atomically, counting against the limit.
func (t *Throttled) Put(ctx context.Context, name string, data []byte) error {
	if err := t.acquire(ctx, len(data)); err != nil {
		return err
	}
	return t.inner.Put(ctx, name, data)
}

// Delete removes a file.
func (t *Throttled) Delete(ctx context.Context, name string) error {
	return t.inner.Delete(ctx, name)
}

// List returns all file names with the given prefix.
func (t *Throttled) List(ctx context.Context, prefix string) ([]string, error) {
	return t.inner.List(ctx, prefix)
}

type throttledBlob struct {
	t     *Throttled
	inner Blob
}

func (b *throttledBlob) ReadAt(p []byte, off int64) (int, error) {
	if err := b.t.acquire(context.Background(), len(p)); err != nil {
		return 0, err
	}
	return b.inner.ReadAt(p, off)
}

func (b *throttledBlob) Size() int64 {
	return b.inner.Size()
}

func (b *throttledBlob) Close() error {
	return b.inner.Close()
}

type throttledWritableBlob struct {
	t     *Throttled
	inner WritableBlob
}

func (w *throttledWritableBlob) Write(p []byte) (int, error) {
	if err := w.t.acquire(context.Background(), len(p)); err != nil {
		return 0, err
	}
	return w.inner.Write(p)
}

func (w *throttledWritableBlob) Sync() error {
	return w.inner.Sync()
}

func (w *throttledWritableBlob) Close() error {
	return w.inner.Close()
}
