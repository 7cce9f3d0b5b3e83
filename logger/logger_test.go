package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInitializeDoesNotPanic(t *testing.T) {
	require.NoError(t, Initialize(false))
	Infow("test message", FieldUserID, "u_test", FieldCursor, int64(42))
	require.NoError(t, Initialize(true))
	Infow("test message json", FieldUserID, "u_test")
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	ctx = WithRequestID(ctx, "req-1")
	ctx = WithUserID(ctx, "u_abc")
	ctx = WithComponent(ctx, "sync.push")

	fields := FieldsFromContext(ctx)
	assert.Len(t, fields, 6)
	assert.Contains(t, fields, "req-1")
	assert.Contains(t, fields, "u_abc")
	assert.Contains(t, fields, "sync.push")
}

func TestFieldsFromContextEmpty(t *testing.T) {
	fields := FieldsFromContext(context.Background())
	assert.Empty(t, fields)
}

func TestAbbreviateName(t *testing.T) {
	assert.Equal(t, "server", abbreviateName("server"))
	assert.Equal(t, "s.push", abbreviateName("sync.push"))
	assert.Equal(t, "r.memos", abbreviateName("reconcile.memos"))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abcd", shortID("abcd"))
	assert.Equal(t, "12345678", shortID("123456789abc"))
}

func TestSetTheme(t *testing.T) {
	SetTheme("gruvbox")
	assert.Equal(t, "gruvbox", currentTheme)
	SetTheme("nonsense")
	assert.Equal(t, "gruvbox", currentTheme)
	SetTheme("everforest")
}

func TestMinimalEncoderRendersFields(t *testing.T) {
	enc := newMinimalEncoder()
	buf, err := enc.EncodeEntry(zapcore.Entry{Message: "Push committed"}, []zapcore.Field{
		{Key: FieldUserID, Type: zapcore.StringType, String: "u_1234567890"},
		{Key: FieldCursor, Type: zapcore.Int64Type, Integer: 118},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "Push committed")
	assert.Contains(t, out, "u_123456")
	assert.Contains(t, out, "118")
}
