package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type bufferWriteCloser struct {
	sync.Mutex
	bytes.Buffer
	closed bool
}

func (b *bufferWriteCloser) Write(p []byte) (int, error) {
	b.Lock()
	defer b.Unlock()
	return b.Buffer.Write(p)
}

func (b *bufferWriteCloser) Close() error {
	b.Lock()
	defer b.Unlock()
	b.closed = true
	return nil
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		in       string
		expected Level
		ok       bool
	}{
		{"trace", LevelTrace, true},
		{"DBG", LevelDebug, true},
		{"warn", LevelWarn, true},
		{"critical", LevelCritical, true},
		{"off", LevelOff, true},
		{"verbose", LevelInfo, false},
	}
	for _, test := range tests {
		level, ok := LevelFromString(test.in)
		require.Equal(t, test.ok, ok, "input %q", test.in)
		require.Equal(t, test.expected, level, "input %q", test.in)
	}
}

func TestBackendFiltersByWriterLevel(t *testing.T) {
	backend := NewBackendWithFlags(0)
	all := &bufferWriteCloser{}
	errorsOnly := &bufferWriteCloser{}
	require.NoError(t, backend.AddLogWriter(all, LevelTrace))
	require.NoError(t, backend.AddLogWriter(errorsOnly, LevelError))
	require.NoError(t, backend.Run())
	require.Error(t, backend.Run(), "running the backend twice should fail")

	log := backend.Logger("TEST")
	log.SetLevel(LevelDebug)
	log.Tracef("filtered by the logger level")
	log.Infof("hello %d", 1)
	log.Errorf("boom")

	backend.Close()
	backend.Close()

	require.True(t, all.closed)
	require.Contains(t, all.String(), "[INF] TEST: hello 1")
	require.Contains(t, all.String(), "[ERR] TEST: boom")
	require.NotContains(t, all.String(), "filtered by the logger level")
	require.Equal(t, 1, strings.Count(errorsOnly.String(), "\n"))
}

func TestParseAndSetLogLevels(t *testing.T) {
	log := RegisterSubSystem("TSTA")
	require.Same(t, log, RegisterSubSystem("TSTA"))

	require.NoError(t, ParseAndSetLogLevels("debug"))
	require.Equal(t, LevelDebug, log.Level())

	require.NoError(t, ParseAndSetLogLevels("TSTA=trace"))
	require.Equal(t, LevelTrace, log.Level())

	require.Error(t, ParseAndSetLogLevels("loud"))
	require.Error(t, ParseAndSetLogLevels("NOPE=info"))
	require.Error(t, ParseAndSetLogLevels("TSTA=info,garbage"))
}
