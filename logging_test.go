package reactor

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWriterLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(LevelWarn, &buf)

	logger.Log(LogEntry{Level: LevelInfo, Message: "should be dropped"})
	assert.Empty(t, buf.String())

	logger.Log(LogEntry{Level: LevelError, Category: "fault", Message: "boom", FiberID: 3})
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "fiber=3")
}

func TestWriterLoggerSetLevelIsDynamic(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(LevelError, &buf)
	assert.False(t, logger.IsEnabled(LevelInfo))

	logger.SetLevel(LevelDebug)
	assert.True(t, logger.IsEnabled(LevelInfo))
}

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	logger := NewNoOpLogger()
	assert.False(t, logger.IsEnabled(LevelError))
	logger.Log(LogEntry{Level: LevelError, Message: "ignored"}) // must not panic
}

func TestSetStructuredLoggerIsProcessWide(t *testing.T) {
	var buf bytes.Buffer
	SetStructuredLogger(NewWriterLogger(LevelDebug, &buf))
	defer SetStructuredLogger(nil)

	getGlobalLogger().Log(LogEntry{Level: LevelInfo, Message: "via global", Timestamp: time.Now()})
	assert.Contains(t, buf.String(), "via global")
}
