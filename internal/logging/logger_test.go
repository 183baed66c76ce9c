package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_LevelAndFormat(t *testing.T) {
	l := New("payflow", "debug", "json")
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, l.Formatter)
	assert.Equal(t, "payflow", l.Service())

	l = New("payflow", "nonsense", "text")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, l.Formatter)
}

func TestWithContext_AttachesIDs(t *testing.T) {
	var buf bytes.Buffer
	l := New("payflow", "info", "json")
	l.SetOutput(&buf)

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "42")
	l.WithContext(ctx).Info("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "trace-1", entry["trace_id"])
	assert.Equal(t, "42", entry["user_id"])
	assert.Equal(t, "payflow", entry["service"])
}

func TestContextHelpers_Empty(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithTraceID(ctx, ""))
	assert.Empty(t, GetTraceID(ctx))
	assert.Empty(t, GetUserID(ctx))
}
