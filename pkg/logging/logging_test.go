package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevFlags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(prevOut)
		log.SetFlags(prevFlags)
	})
	return &buf
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-123")
	assert.Equal(t, "req-123", RequestIDFromCtx(ctx))
	assert.Empty(t, RequestIDFromCtx(context.Background()))
}

func TestEnsureRequestID(t *testing.T) {
	ctx, id := EnsureRequestID(context.Background())
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, RequestIDFromCtx(ctx))

	same, again := EnsureRequestID(ctx)
	assert.Equal(t, id, again)
	assert.Equal(t, ctx, same)
}

func TestError_WritesStructuredLine(t *testing.T) {
	buf := captureLog(t)
	ctx := WithRequestID(context.Background(), "req-9")

	Error(ctx, "Failed to fetch top questions. Please try again.", errors.New("status 500"), Fields{"op": "topQuestions"})

	line := strings.TrimSpace(buf.String())
	require.True(t, strings.HasPrefix(line, "[ERROR] "), line)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "[ERROR] ")), &entry))
	assert.Equal(t, "req-9", entry["request_id"])
	assert.Equal(t, "topQuestions", entry["op"])
	assert.Equal(t, "status 500", entry["error"])
	assert.Equal(t, "Failed to fetch top questions. Please try again.", entry["message"])
}

func TestInfoAndWarnLevels(t *testing.T) {
	buf := captureLog(t)

	Info(context.Background(), "session created", nil)
	Warn(context.Background(), "session expired", Fields{"idle": "31m"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "[INFO] "))
	assert.True(t, strings.HasPrefix(lines[1], "[WARN] "))
}
