package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAttrsAreLogged(t *testing.T) {
	var (
		buf bytes.Buffer
		l   = New(&buf, "json", "debug")
		ctx = Ctx(context.Background(), slog.String("session_id", "s1"))
	)

	l.InfoContext(ctx, "toggled")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "toggled", line["msg"])
	assert.Equal(t, "s1", line["session_id"])
}

func TestCtx_SiblingsDontShareAttrs(t *testing.T) {
	base := Ctx(context.Background(), slog.String("a", "1"))
	left := Ctx(base, slog.String("b", "2"))
	right := Ctx(base, slog.String("c", "3"))

	assert.Len(t, left.Value(attrKey), 2)
	assert.Equal(t, "c", right.Value(attrKey).([]slog.Attr)[1].Key)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "text", "warn")

	l.Info("quiet")
	assert.Empty(t, buf.String())

	l.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}
