package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Entry is a single emitted log record as seen by subscribers.
type Entry struct {
	Time    time.Time
	Level   Level
	Message string
	// KV holds the key/value pairs in the order they were passed.
	KV []any
}

// Line renders the entry in the same format as the stderr output,
// without the timestamp.
func (e Entry) Line() string {
	return "[" + string(e.Level) + "] " + e.Message + formatKVs(e.KV...)
}

var (
	mu          sync.RWMutex
	logger      *stdlog.Logger
	loggerOnce  sync.Once
	minLevel    = LevelInfo
	subscribers = map[int]func(Entry){}
	nextSubID   int
)

// initLogger initializes the global logger to write to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		mu.Lock()
		defer mu.Unlock()
		if logger == nil {
			logger = stdlog.New(os.Stderr, "", 0)
		}
	})
}

func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

// ParseLevel maps a config string to a Level. Unknown values yield LevelInfo.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetOutput redirects log lines. Mainly useful in tests.
func SetOutput(w io.Writer) {
	initLogger()
	mu.Lock()
	logger = stdlog.New(w, "", 0)
	mu.Unlock()
}

// Subscribe registers fn to receive every entry that passes the level
// filter. The returned func removes the subscription.
func Subscribe(fn func(Entry)) (cancel func()) {
	mu.Lock()
	id := nextSubID
	nextSubID++
	subscribers[id] = fn
	mu.Unlock()

	return func() {
		mu.Lock()
		delete(subscribers, id)
		mu.Unlock()
	}
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

func logWithLevel(level Level, msg string, kv ...any) {
	initLogger()

	mu.RLock()
	ok := enabled(level)
	out := logger
	subs := make([]func(Entry), 0, len(subscribers))
	for _, fn := range subscribers {
		subs = append(subs, fn)
	}
	mu.RUnlock()

	if !ok {
		return
	}

	now := time.Now()

	// 2025-01-01T00:00:00Z [LEVEL] msg key=value ...
	line := now.Format(time.RFC3339Nano) + " [" + string(level) + "] " + msg
	if len(kv) > 0 {
		line += formatKVs(kv...)
	}
	out.Println(line)

	if len(subs) == 0 {
		return
	}
	entry := Entry{Time: now, Level: level, Message: msg, KV: kv}
	for _, fn := range subs {
		fn(entry)
	}
}

func rank(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 1
	}
}

func enabled(level Level) bool {
	return rank(level) >= rank(minLevel)
}

func formatKVs(kv ...any) string {
	var b strings.Builder
	// Expect kv as pairs: key, value, key, value, ...
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(fmt.Sprint(kv[i+1]))
	}
	// If odd number of args, last one is ignored.
	return b.String()
}
