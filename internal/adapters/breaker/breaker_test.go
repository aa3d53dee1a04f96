package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/reply-triage/internal/core"
)

type scriptedClassifier struct {
	result *core.InferenceResult
	err    error
	calls  int
}

func (c *scriptedClassifier) Infer(ctx context.Context, req *core.InferenceRequest) (*core.InferenceResult, error) {
	c.calls++
	return c.result, c.err
}

func (c *scriptedClassifier) Healthy(ctx context.Context) error { return c.err }

func TestBreakerPassesThrough(t *testing.T) {
	backend := &scriptedClassifier{result: &core.InferenceResult{
		Label:      core.LabelInterested,
		Confidence: 0.9,
	}}
	b := NewBreakerClassifier(backend, 3, time.Minute, zap.NewNop())

	result, err := b.Infer(context.Background(), &core.InferenceRequest{})
	require.NoError(t, err)
	assert.Equal(t, core.LabelInterested, result.Label)
	assert.NoError(t, b.Healthy(context.Background()))
	assert.Equal(t, "closed", b.State())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	backend := &scriptedClassifier{err: errors.New("provider down")}
	b := NewBreakerClassifier(backend, 3, time.Minute, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := b.Infer(ctx, &core.InferenceRequest{})
		require.Error(t, err)
		assert.False(t, core.IsTransient(err))
	}
	assert.Equal(t, 3, backend.calls)
	assert.Equal(t, "open", b.State())

	// Open breaker sheds load without touching the backend
	_, err := b.Infer(ctx, &core.InferenceRequest{})
	require.Error(t, err)
	assert.True(t, core.IsTransient(err))
	assert.Equal(t, 3, backend.calls)

	assert.Error(t, b.Healthy(ctx))
}
