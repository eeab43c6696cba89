package logger

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"
)

func TestAsyncLoggerWriteAndClose(t *testing.T) {
	tempDir := t.TempDir()
	logPath := filepath.Join(tempDir, "test.log")
	lj := &lumberjack.Logger{Filename: logPath}
	al := NewAsyncLogger(lj, 10)

	fmt.Fprintln(al, "message 1")
	fmt.Fprintln(al, "message 2")
	fmt.Fprintln(al, "message 3")
	require.NoError(t, al.Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Equal(t, "message 1\nmessage 2\nmessage 3\n", string(content))
}

// blockingWriter blocks every Write on release, letting the test hold the
// async logger's writer goroutine busy long enough to fill and overflow its
// buffer; closing release (once) unblocks every call, past and future, since
// a receive from a closed channel never blocks.
type blockingWriter struct {
	buf     *bytes.Buffer
	release chan struct{}
}

func (w *blockingWriter) Write(p []byte) (int, error) {
	<-w.release
	return w.buf.Write(p)
}

func captureStderr(f func()) string {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() { os.Stderr = oldStderr }()

	f()
	w.Close()

	var buf bytes.Buffer
	buf.ReadFrom(r)
	r.Close()
	return buf.String()
}

func TestAsyncLoggerDropsMessageWhenBufferFull(t *testing.T) {
	var buf bytes.Buffer
	w := &blockingWriter{buf: &buf, release: make(chan struct{})}
	al := NewAsyncLogger(w, 1)

	output := captureStderr(func() {
		for i := 0; i < 20; i++ {
			fmt.Fprintf(al, "message %d\n", i)
		}
		close(w.release)
		require.NoError(t, al.Close())
	})

	assert.Contains(t, output, "asynclogger: log buffer is full, dropping message.")
}
