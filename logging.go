package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var logger = newAsyncLogger()

const (
	logLevelDebug logLevel = iota
	logLevelInfo
	logLevelWarn
	logLevelError
)

var levelNames = []string{
	"DEBUG",
	"INFO",
	"WARN",
	"ERROR",
}

type logLevel int

type logRecord struct {
	level logLevel
	msg   string
	attrs []any
}

// asyncLogger writes timestamped key=value entries from a single drain
// goroutine so store and ingest paths never block on file I/O.
type asyncLogger struct {
	level    atomic.Int32
	queue    chan logRecord
	done     chan struct{}
	writerMu sync.RWMutex
	file     io.Writer
	stdout   bool
	wg       sync.WaitGroup
	stopOnce sync.Once
	closing  atomic.Bool
}

func newAsyncLogger() *asyncLogger {
	l := &asyncLogger{
		queue:  make(chan logRecord, 1024),
		done:   make(chan struct{}),
		file:   io.Discard,
		stdout: true,
	}
	l.level.Store(int32(logLevelInfo))
	l.wg.Add(1)
	go l.run()
	return l
}

func (l *asyncLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case rec := <-l.queue:
			l.writeEntry(rec)
		case <-l.done:
			for {
				select {
				case rec := <-l.queue:
					l.writeEntry(rec)
				default:
					return
				}
			}
		}
	}
}

func (l *asyncLogger) log(level logLevel, msg string, attrs ...any) {
	if level < logLevel(l.level.Load()) || l.closing.Load() {
		return
	}
	select {
	case l.queue <- logRecord{level: level, msg: msg, attrs: append([]any(nil), attrs...)}:
	case <-l.done:
	}
}

func (l *asyncLogger) Debug(msg string, attrs ...any) { l.log(logLevelDebug, msg, attrs...) }
func (l *asyncLogger) Info(msg string, attrs ...any)  { l.log(logLevelInfo, msg, attrs...) }
func (l *asyncLogger) Warn(msg string, attrs ...any)  { l.log(logLevelWarn, msg, attrs...) }
func (l *asyncLogger) Error(msg string, attrs ...any) { l.log(logLevelError, msg, attrs...) }

func (l *asyncLogger) setLevel(level logLevel) {
	l.level.Store(int32(level))
}

func (l *asyncLogger) configureOutput(file io.Writer, stdout bool) {
	if file == nil {
		file = io.Discard
	}
	l.writerMu.Lock()
	l.file = file
	l.stdout = stdout
	l.writerMu.Unlock()
}

func (l *asyncLogger) Stop() {
	l.stopOnce.Do(func() {
		l.closing.Store(true)
		close(l.done)
		l.wg.Wait()
		l.writerMu.Lock()
		if closer, ok := l.file.(io.Closer); ok {
			_ = closer.Close()
		}
		l.file = io.Discard
		l.writerMu.Unlock()
	})
}

func (l *asyncLogger) writeEntry(rec logRecord) {
	var entry strings.Builder
	entry.WriteString(time.Now().UTC().Format(time.RFC3339))
	entry.WriteString(" [")
	if int(rec.level) >= 0 && int(rec.level) < len(levelNames) {
		entry.WriteString(levelNames[rec.level])
	} else {
		entry.WriteString("UNKNOWN")
	}
	entry.WriteString("] ")
	entry.WriteString(rec.msg)
	if attrs := formatAttrs(rec.attrs); attrs != "" {
		entry.WriteByte(' ')
		entry.WriteString(attrs)
	}
	entry.WriteByte('\n')
	line := []byte(entry.String())

	l.writerMu.RLock()
	file := l.file
	stdout := l.stdout
	l.writerMu.RUnlock()

	if stdout {
		_, _ = os.Stdout.Write(line)
	}
	if file != nil {
		_, _ = file.Write(line)
	}
}

func formatAttrs(attrs []any) string {
	if len(attrs) == 0 {
		return ""
	}
	var b strings.Builder
	for i := 0; i < len(attrs); i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		key := fmt.Sprint(attrs[i])
		if i+1 < len(attrs) {
			b.WriteString(key)
			b.WriteByte('=')
			b.WriteString(fmt.Sprint(attrs[i+1]))
			i++
		} else {
			b.WriteString(key)
		}
	}
	return b.String()
}

// appendFileWriter reopens its target if the file disappears, so external
// log rotation does not leave the process writing to a deleted inode.
type appendFileWriter struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

func newAppendFileWriter(path string) io.Writer {
	if path == "" {
		return io.Discard
	}
	return &appendFileWriter{path: path}
}

func (w *appendFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := os.Stat(w.path); err != nil {
		if !os.IsNotExist(err) {
			return 0, err
		}
		if w.f != nil {
			_ = w.f.Close()
			w.f = nil
		}
	}
	if w.f == nil {
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return 0, err
		}
		w.f = f
	}
	return w.f.Write(p)
}

func (w *appendFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	return err
}

func configureLogging(filePath string, stdout bool, debug bool) {
	logger.configureOutput(newAppendFileWriter(filePath), stdout)
	if debug {
		logger.setLevel(logLevelDebug)
	}
}

func fatal(msg string, err error, attrs ...any) {
	attrPairs := append(attrs, "error", err)
	logger.Error(msg, attrPairs...)
	logger.Stop()
	os.Exit(1)
}
