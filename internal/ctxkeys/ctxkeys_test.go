package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTaskID(ctx, "task-1")
	ctx = WithSubject(ctx, "alice")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)

	id, ok = TaskID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "task-1", id)

	id, ok = Subject(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", id)
}

func TestEmptyValueIsAbsent(t *testing.T) {
	_, ok := TaskID(WithTaskID(context.Background(), ""))
	assert.False(t, ok)
}

func TestFields(t *testing.T) {
	assert.Empty(t, Fields(context.Background()))

	ctx := WithTaskID(WithRequestID(context.Background(), "r"), "t")
	fields := Fields(ctx)
	assert.Len(t, fields, 2)
	assert.Equal(t, "request_id", fields[0].Key)
	assert.Equal(t, "task_id", fields[1].Key)
}
