package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config controls where and how log lines are written.
type Config struct {
	// Level is the minimum level written (DEBUG, INFO, WARN, ERROR).
	Level string

	// Format is "text" or "json".
	Format string

	// Output is "stdout", "stderr" or a file path. File outputs are
	// rotated daily and every SplitLines lines.
	Output string

	// SplitLines is the line count after which a file output rolls over.
	// 0 disables line-based rotation.
	SplitLines int64

	// AsyncQueueSize enables asynchronous writes through a bounded queue
	// of this size. 0 writes synchronously.
	AsyncQueueSize int
}

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	jsonFormat   bool
	colorize     bool
	out          io.Writer = os.Stdout
	closer       io.Closer
	queue        *asyncQueue
)

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgCyan),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	setLevelLocked(level)
}

func setLevelLocked(level string) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		currentLevel = LevelDebug
	case "INFO":
		currentLevel = LevelInfo
	case "WARN":
		currentLevel = LevelWarn
	case "ERROR":
		currentLevel = LevelError
	}
}

// Init replaces the logger output according to cfg. Any previous file
// output is flushed and closed first.
func Init(cfg Config) error {
	if err := Close(); err != nil {
		return err
	}

	var (
		w   io.Writer
		c   io.Closer
		tty bool
	)
	switch cfg.Output {
	case "", "stdout":
		w, tty = os.Stdout, true
	case "stderr":
		w, tty = os.Stderr, true
	default:
		f, err := newRotatingFile(cfg.Output, cfg.SplitLines, time.Now)
		if err != nil {
			return fmt.Errorf("failed to open log output %s: %w", cfg.Output, err)
		}
		w, c = f, f
	}

	mu.Lock()
	defer mu.Unlock()

	setLevelLocked(cfg.Level)
	jsonFormat = cfg.Format == "json"
	colorize = tty && !jsonFormat && !color.NoColor
	out = w
	closer = c
	if cfg.AsyncQueueSize > 0 {
		queue = newAsyncQueue(w, cfg.AsyncQueueSize)
	}
	return nil
}

// Close drains any asynchronous queue and closes a file output. The logger
// falls back to stdout afterwards.
func Close() error {
	mu.Lock()
	q, c := queue, closer
	queue, closer = nil, nil
	out = os.Stdout
	colorize = false
	mu.Unlock()

	if q != nil {
		q.close()
	}
	if c != nil {
		return c.Close()
	}
	return nil
}

// SetOutput redirects log lines to w, disabling colours. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	colorize = false
}

type jsonLine struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"msg"`
}

func formatLine(level Level, now time.Time, message string) string {
	if jsonFormat {
		b, err := json.Marshal(jsonLine{
			Time:    now.Format(time.RFC3339Nano),
			Level:   level.String(),
			Message: message,
		})
		if err == nil {
			return string(b) + "\n"
		}
	}

	tag := level.String()
	if colorize {
		tag = levelColors[level].Sprint(tag)
	}
	return fmt.Sprintf("[%s] [%s] %s\n", now.Format("2006-01-02 15:04:05"), tag, message)
}

func log(level Level, format string, v ...any) {
	mu.Lock()
	if level < currentLevel {
		mu.Unlock()
		return
	}
	line := formatLine(level, time.Now(), fmt.Sprintf(format, v...))
	q, w := queue, out
	if q != nil && q.push(line) {
		mu.Unlock()
		return
	}
	_, _ = io.WriteString(w, line)
	mu.Unlock()
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}

// Access writes one access-log line at INFO. On a terminal the status is
// green for 2xx and red for 4xx/5xx.
func Access(method, path string, status int, d time.Duration) {
	mu.Lock()
	tty := colorize
	mu.Unlock()

	code := fmt.Sprintf("%d", status)
	if tty {
		switch {
		case status >= 200 && status < 300:
			code = color.GreenString(code)
		case status >= 400:
			code = color.RedString(code)
		}
	}
	log(LevelInfo, "%s %s %s %v", method, path, code, d)
}

// asyncQueue hands formatted lines to a single writer goroutine.
type asyncQueue struct {
	lines chan string
	done  chan struct{}
}

func newAsyncQueue(w io.Writer, size int) *asyncQueue {
	q := &asyncQueue{
		lines: make(chan string, size),
		done:  make(chan struct{}),
	}
	go func() {
		defer close(q.done)
		for line := range q.lines {
			_, _ = io.WriteString(w, line)
		}
	}()
	return q
}

// push enqueues without blocking. A full queue reports false so the caller
// writes synchronously.
func (q *asyncQueue) push(line string) bool {
	select {
	case q.lines <- line:
		return true
	default:
		return false
	}
}

func (q *asyncQueue) close() {
	close(q.lines)
	<-q.done
}
