package logger

import (
	"io"
	"os"
	"sync"

	"github.com/go-kratos/kratos/v2/log"
)

var (
	mu      sync.RWMutex
	base    log.Logger
	helper  *log.Helper
	logFile *os.File
)

const (
	INFO = iota
	DEBUG
)

// InitLogger initializes the logger with a file output and console output
func InitLogger(filename string, level int) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}

	mu.Lock()
	logFile = f
	mu.Unlock()

	SetOutput(io.MultiWriter(os.Stdout, f), level)
	return nil
}

// SetOutput replaces the destination of every log line. Lines are written as
// key=value pairs with a timestamp and caller.
func SetOutput(w io.Writer, level int) {
	l := log.With(log.NewStdLogger(w), "ts", log.DefaultTimestamp, "caller", log.Caller(5))

	minLevel := log.LevelInfo
	if level == DEBUG {
		minLevel = log.LevelDebug
	}
	filtered := log.NewFilter(l, log.FilterLevel(minLevel))

	mu.Lock()
	base = filtered
	helper = log.NewHelper(filtered)
	mu.Unlock()
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

// Init sets up stdout logging at INFO level.
func Init() {
	SetOutput(os.Stdout, INFO)
}

func current() *log.Helper {
	mu.RLock()
	h := helper
	mu.RUnlock()
	if h == nil {
		Init()
		mu.RLock()
		h = helper
		mu.RUnlock()
	}
	return h
}

// Logger exposes the underlying kratos logger for components that take one.
func Logger() log.Logger {
	current()
	mu.RLock()
	defer mu.RUnlock()
	return base
}

func Info(format string, v ...interface{}) {
	current().Infof(format, v...)
}

func Infof(format string, v ...interface{}) {
	Info(format, v...)
}

func Debugf(format string, v ...interface{}) {
	current().Debugf(format, v...)
}

func Error(format string, v ...interface{}) {
	current().Errorf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	Error(format, v...)
}

func Warn(format string, v ...interface{}) {
	current().Warnf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	Warn(format, v...)
}

// Event writes a structured record: msg followed by alternating keys and values.
func Event(msg string, keyvals ...interface{}) {
	current().Infow(append([]interface{}{"msg", msg}, keyvals...)...)
}

// EventError is Event at error level.
func EventError(msg string, keyvals ...interface{}) {
	current().Errorw(append([]interface{}{"msg", msg}, keyvals...)...)
}
