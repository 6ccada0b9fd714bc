package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID_Length(t *testing.T) {
	id := NewID()
	assert.Len(t, id, 12)
}

func TestNewID_Unique(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range 100 {
		ids[NewID()] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestWithID_and_ID_Roundtrip(t *testing.T) {
	ctx := WithID(context.Background(), "abc123def456")
	id, ok := ID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc123def456", id)
}

func TestID_Missing(t *testing.T) {
	id, ok := ID(context.Background())
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestEnsureID_PreservesExisting(t *testing.T) {
	ctx := WithID(context.Background(), "existing")
	ctx = EnsureID(ctx)
	id, ok := ID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "existing", id)
}

func TestEnsureID_GeneratesWhenMissing(t *testing.T) {
	ctx := EnsureID(context.Background())
	id, ok := ID(ctx)
	assert.True(t, ok)
	assert.Len(t, id, 12)
}

func TestHandler_InjectsCorrelationID(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, nil)
	logger := slog.New(NewHandler(inner))

	ctx := WithID(context.Background(), "deadbeef0001")
	logger.InfoContext(ctx, "hello")

	assert.Contains(t, buf.String(), "correlation_id=deadbeef0001")
}

func TestHandler_NoIDNoAttribute(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, nil)
	logger := slog.New(NewHandler(inner))

	logger.InfoContext(context.Background(), "hello")

	assert.NotContains(t, buf.String(), "correlation_id")
}
