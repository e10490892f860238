package gossip

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Level classifies a log line. The file sink keeps everything from
// debug up, the console starts at info.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
)

// Logger writes the node's line-oriented log. Every line carries a
// wall clock, the node port, and the epoch milliseconds:
//
//	15:04:05.123 [8000] [1724500000123] GOSSIP new   msg_id=4fa2c81b  data=hello
//
// Lines go to logs/node_<port>.log (truncated on start) and, from info
// level up, to the console. An optional mirror writer receives every
// line; the telemetry bridge attaches there.
type Logger struct {
	port         int
	consoleLevel Level

	mu      sync.Mutex
	file    io.WriteCloser
	console io.Writer
	mirror  io.Writer
}

// NewLogger opens the per-node log file under dir. Console output goes
// to stderr.
func NewLogger(port int, dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("log dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("node_%d.log", port))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("log file: %w", err)
	}
	return &Logger{
		port:         port,
		consoleLevel: LevelInfo,
		file:         f,
		console:      os.Stderr,
	}, nil
}

// NewLoggerTo writes every line, debug included, to w alone. Used in
// tests and wherever no file sink is wanted.
func NewLoggerTo(port int, w io.Writer) *Logger {
	return &Logger{port: port, consoleLevel: LevelDebug, console: w}
}

// SetMirror attaches a writer that receives a copy of every line.
// Attach before the node starts; the logger does not lock around the
// field itself.
func (l *Logger) SetMirror(w io.Writer) { l.mirror = w }

func (l *Logger) Debugf(format string, args ...any) { l.output(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.output(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.output(LevelWarn, format, args...) }

func (l *Logger) output(level Level, format string, args ...any) {
	now := time.Now()
	line := fmt.Sprintf("%s.%03d [%d] [%d] %s\n",
		now.Format("15:04:05"), now.Nanosecond()/1e6,
		l.port, now.UnixMilli(),
		fmt.Sprintf(format, args...))

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		io.WriteString(l.file, line)
	}
	if l.console != nil && level >= l.consoleLevel {
		io.WriteString(l.console, line)
	}
	if l.mirror != nil {
		io.WriteString(l.mirror, line)
	}
}

// Close flushes and closes the file sink.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
