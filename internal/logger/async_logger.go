package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// AsyncLogger decouples log writers from the underlying io.Writer (typically
// a rotating file) via a buffered channel drained by one background
// goroutine: a write that would block because the buffer is full is dropped
// with a warning to stderr instead, mirroring gcsfuse's internal/logger
// AsyncLogger (async_logger_test.go).
type AsyncLogger struct {
	out       io.Writer
	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewAsyncLogger starts the background writer goroutine draining into out,
// with room for bufferSize pending messages before writes start dropping.
func NewAsyncLogger(out io.Writer, bufferSize int) *AsyncLogger {
	l := &AsyncLogger{
		out:      out,
		messages: make(chan []byte, bufferSize),
		done:     make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *AsyncLogger) run() {
	defer close(l.done)
	for msg := range l.messages {
		if _, err := l.out.Write(msg); err != nil {
			fmt.Fprintf(os.Stderr, "asynclogger: write failed: %v\n", err)
		}
	}
}

// Write copies p (the caller may reuse its buffer) and queues it, dropping
// the message with a stderr warning if the buffer is full rather than
// blocking the caller.
func (l *AsyncLogger) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	select {
	case l.messages <- buf:
	default:
		fmt.Fprintln(os.Stderr, "asynclogger: log buffer is full, dropping message.")
	}
	return len(p), nil
}

// Close stops accepting new messages and blocks until every already-queued
// message has been written.
func (l *AsyncLogger) Close() error {
	l.closeOnce.Do(func() {
		close(l.messages)
	})
	<-l.done
	if closer, ok := l.out.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
