package context_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	ctxutil "github.com/hyperterse/fanout/core/shared/context"
)

func TestWithRequestID(t *testing.T) {
	ctx := context.Background()
	requestID := "test-request-id"
	ctxWithID := ctxutil.WithRequestID(ctx, requestID)

	retrievedID := ctxutil.GetRequestID(ctxWithID)
	assert.Equal(t, requestID, retrievedID)
}

func TestGetRequestID_NotSet(t *testing.T) {
	ctx := context.Background()
	id := ctxutil.GetRequestID(ctx)
	assert.Empty(t, id)
}

func TestWithTraceID(t *testing.T) {
	ctx := ctxutil.WithTraceID(context.Background(), "test-trace-id")
	assert.Equal(t, "test-trace-id", ctxutil.GetTraceID(ctx))
	assert.Empty(t, ctxutil.GetTraceID(context.Background()))
}

func TestGenerateRequestID(t *testing.T) {
	id1 := ctxutil.GenerateRequestID()
	id2 := ctxutil.GenerateRequestID()

	assert.NotEmpty(t, id1)
	assert.Len(t, id1, 36)
	assert.NotEqual(t, id1, id2)
}

func TestEnsureDispatchID(t *testing.T) {
	t.Run("reuses request id", func(t *testing.T) {
		ctx := ctxutil.WithRequestID(context.Background(), "req-1")
		ctx, id := ctxutil.EnsureDispatchID(ctx)
		assert.Equal(t, "req-1", id)
		assert.Equal(t, "req-1", ctxutil.GetDispatchID(ctx))
	})

	t.Run("keeps existing dispatch id", func(t *testing.T) {
		ctx := ctxutil.WithDispatchID(context.Background(), "d-1")
		_, id := ctxutil.EnsureDispatchID(ctx)
		assert.Equal(t, "d-1", id)
	})

	t.Run("generates when empty", func(t *testing.T) {
		ctx, id := ctxutil.EnsureDispatchID(context.Background())
		assert.NotEmpty(t, id)
		assert.Equal(t, id, ctxutil.GetDispatchID(ctx))
	})
}
