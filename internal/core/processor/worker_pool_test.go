package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"face-gate-go/internal/integrations/extractor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider ist ein steuerbarer Provider für Pool-Tests
type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	delay  time.Duration
	result *extractor.TemplateResult
	boxes  []extractor.BoundingBox
	err    error
}

func (f *fakeProvider) Name() string                         { return "fake" }
func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeProvider) Dimension() int                       { return 4 }

func (f *fakeProvider) Extract(ctx context.Context, imageBytes []byte) (*extractor.TemplateResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.result, f.err
}

func (f *fakeProvider) DetectFaces(ctx context.Context, imageBytes []byte) ([]extractor.BoundingBox, error) {
	return f.boxes, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestWorkerPoolExtract(t *testing.T) {
	provider := &fakeProvider{
		result: &extractor.TemplateResult{Vector: []float32{1, 2, 3, 4}},
	}
	pool := NewWorkerPool(provider)
	defer pool.Shutdown()

	tmpl, err := pool.Extract(context.Background(), []byte("img"), "test")
	require.NoError(t, err)
	require.NotNil(t, tmpl)
	assert.Equal(t, []float32{1, 2, 3, 4}, tmpl.Vector)
	assert.Equal(t, 1, provider.callCount())
}

func TestWorkerPoolPropagatesError(t *testing.T) {
	provider := &fakeProvider{err: extractor.ErrNoFaceDetected}
	pool := NewWorkerPool(provider)
	defer pool.Shutdown()

	_, err := pool.Extract(context.Background(), []byte("img"), "test")
	assert.True(t, errors.Is(err, extractor.ErrNoFaceDetected))
}

func TestWorkerPoolDetectFaces(t *testing.T) {
	provider := &fakeProvider{
		boxes: []extractor.BoundingBox{{Top: 1, Right: 2, Bottom: 3, Left: 4}},
	}
	pool := NewWorkerPool(provider)
	defer pool.Shutdown()

	boxes, err := pool.DetectFaces(context.Background(), []byte("img"), "test")
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, 2, boxes[0].Right)
}

func TestWorkerPoolContextCancellation(t *testing.T) {
	provider := &fakeProvider{
		delay:  2 * time.Second,
		result: &extractor.TemplateResult{Vector: []float32{1}},
	}
	pool := NewWorkerPool(provider)
	defer pool.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := pool.Extract(ctx, []byte("img"), "test")
	assert.Error(t, err)
}

func TestWorkerPoolConcurrentJobs(t *testing.T) {
	provider := &fakeProvider{
		delay:  10 * time.Millisecond,
		result: &extractor.TemplateResult{Vector: []float32{1}},
	}
	pool := NewWorkerPool(provider)
	defer pool.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Extract(context.Background(), []byte("img"), "test")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 8, provider.callCount())
	assert.GreaterOrEqual(t, pool.GetWorkerCount(), 2)
	assert.Zero(t, pool.ActiveJobCount())
}
