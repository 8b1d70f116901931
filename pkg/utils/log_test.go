package utils

import (
	"bytes"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testLogPipeMsg = "Test LogPipe message"

func TestLogPipe(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := log.New()
	logger.SetOutput(buf)
	logger.SetLevel(log.DebugLevel)
	logger.SetFormatter(&log.TextFormatter{DisableTimestamp: true})

	input := strings.NewReader(testLogPipeMsg + "\n\nsecond line\n")
	err := LogPipe(input, logger.WithField("cmd", "wp"), log.DebugLevel)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `level=debug msg="Test LogPipe message" cmd=wp`)
	assert.Contains(t, out, `msg="second line"`)
	assert.Equal(t, 2, strings.Count(out, "level=debug"))
}

func TestLogPipeFiltersByLevel(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := log.New()
	logger.SetOutput(buf)
	logger.SetLevel(log.InfoLevel)

	require.NoError(t, LogPipe(strings.NewReader("hidden\n"), log.NewEntry(logger), log.DebugLevel))
	assert.Empty(t, buf.String())
}
