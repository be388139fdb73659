package clog_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopydev/flowboard/pkg/clog"
)

func TestAttributesHandlerFoldsContextAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(clog.NewAttributesHandler(
		slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx := clog.ContextWithSlog(context.Background())
	clog.AddAttribute(ctx, "component", "move")
	clog.AddAttribute(ctx, "task_id", "T1")
	clog.AddError(ctx, errors.New("gateway down"))

	logger.WarnContext(ctx, "settlement failed")

	out := buf.String()
	assert.Contains(t, out, "component=move")
	assert.Contains(t, out, "task_id=T1")
	assert.Contains(t, out, `error.message="gateway down"`)
	assert.Contains(t, out, "settlement failed")
}

func TestAttributesHandlerWithoutPreparedContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(clog.NewAttributesHandler(
		slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	// A bare context logs fine, just without folded attributes.
	logger.InfoContext(context.Background(), "plain record", "key", "value")
	assert.Contains(t, buf.String(), "key=value")
}

func TestGetAttribute(t *testing.T) {
	ctx := clog.ContextWithSlog(context.Background())
	clog.AddAttribute(ctx, "retries", 3)

	assert.Equal(t, 3, clog.GetAttribute[int](ctx, "retries"))
	assert.Equal(t, 0, clog.GetAttribute[int](ctx, "missing"))
	assert.Equal(t, "", clog.GetAttribute[string](ctx, "retries"), "wrong type yields the zero value")

	attrs := clog.GetAttributes(ctx)
	require.Len(t, attrs, 1)
	assert.Nil(t, clog.GetAttributes(context.Background()))
}
