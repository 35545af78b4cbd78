package logging

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetLogDir points file logging at a temp dir for the duration of a test.
func resetLogDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("REGPILOT_LOG_DIR", dir)
	logDir = ""
	initErr = nil
	initOnce = sync.Once{}
	t.Cleanup(func() {
		logDir = ""
		initErr = nil
		initOnce = sync.Once{}
	})
	return dir
}

func TestNewLogger_WritesToRunFile(t *testing.T) {
	dir := resetLogDir(t)

	logger, err := NewLogger("orchestrator")
	require.NoError(t, err)
	defer logger.Close()

	logger.Infof("session %s created", "abc")

	assert.True(t, strings.HasPrefix(logger.LogPath(), dir))
	data, err := os.ReadFile(logger.LogPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[orchestrator] [INFO] session abc created")
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New("runner", &buf)
	logger.SetLevel(LevelWarn)

	logger.Debugf("debug")
	logger.Infof("info")
	logger.Warnf("warn")
	logger.Errorf("error")

	out := buf.String()
	assert.NotContains(t, out, "[DEBUG]")
	assert.NotContains(t, out, "[INFO]")
	assert.Contains(t, out, "[runner] [WARN] warn")
	assert.Contains(t, out, "[runner] [ERROR] error")
}

func TestLogger_ComponentSharesOutputAndLevel(t *testing.T) {
	var buf bytes.Buffer
	root := New("root", &buf)
	child := root.Component("api")

	root.SetLevel(LevelError)
	child.Infof("dropped")
	child.Errorf("kept")

	out := buf.String()
	assert.NotContains(t, out, "dropped")
	assert.Contains(t, out, "[api] [ERROR] kept")
	assert.Equal(t, root.RunID(), child.RunID())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"", LevelInfo, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	resetLogDir(t)

	logger, err := NewLogger("close")
	require.NoError(t, err)
	assert.NoError(t, logger.Close())
	assert.NoError(t, logger.Close())
}

func TestLogger_ConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := New("concurrent", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Infof("line %d", n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20)
}
