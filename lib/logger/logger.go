package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Settings stores config for Logger
type Settings struct {
	Path string `cfg:"logdir"`
	Name string `cfg:"logname"`
	Ext  string `cfg:"logext"`
	// MaxSizeMB is the size in megabytes after which the log file is rotated
	MaxSizeMB int `cfg:"log-max-size"`
	// MaxBackups is the number of rotated files kept, 0 keeps all of them
	MaxBackups int `cfg:"log-max-backups"`
	// Level drops messages below it
	Level LogLevel
}

type LogLevel int

// Output levels
const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
	FATAL
)

const (
	flags              = log.LstdFlags
	defaultCallerDepth = 2
	bufferSize         = 1e5
)

type logEntry struct {
	msg   string
	level LogLevel
}

var (
	levelFlags = []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
)

// ILogger defines the methods that any logger should implement
type ILogger interface {
	Output(level LogLevel, callerDepth int, msg string)
}

// Logger writes entries asynchronously through a buffered channel
type Logger struct {
	writer    io.Writer
	logger    *log.Logger
	level     LogLevel
	entryChan chan *logEntry
	entryPool *sync.Pool
	closeOnce sync.Once
	done      chan struct{}
}

var DefaultLogger ILogger = NewStdoutLogger()

func newLogger(w io.Writer, level LogLevel) *Logger {
	logger := &Logger{
		writer:    w,
		logger:    log.New(w, "", flags),
		level:     level,
		entryChan: make(chan *logEntry, bufferSize),
		entryPool: &sync.Pool{
			New: func() interface{} {
				return &logEntry{}
			},
		},
		done: make(chan struct{}),
	}
	go func() {
		defer close(logger.done)
		for e := range logger.entryChan {
			_ = logger.logger.Output(0, e.msg) // msg includes call stack, no need for calldepth
			logger.entryPool.Put(e)
		}
	}()
	return logger
}

// NewStdoutLogger creates a logger which print msg to stdout
func NewStdoutLogger() *Logger {
	return newLogger(os.Stdout, DEBUG)
}

// NewFileLogger creates a logger which print msg to stdout and a log file rotated by size
func NewFileLogger(settings *Settings) (*Logger, error) {
	if err := os.MkdirAll(settings.Path, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create log dir %s failed: %w", settings.Path, err)
	}
	ext := settings.Ext
	if ext == "" {
		ext = "log"
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(settings.Path, settings.Name+"."+ext),
		MaxSize:    settings.MaxSizeMB,
		MaxBackups: settings.MaxBackups,
		LocalTime:  true,
	}
	return newLogger(io.MultiWriter(os.Stdout, rotator), settings.Level), nil
}

// Setup initializes DefaultLogger
func Setup(settings *Settings) {
	logger, err := NewFileLogger(settings)
	if err != nil {
		panic(err)
	}
	DefaultLogger = logger
}

// Output sends a msg to logger
func (logger *Logger) Output(level LogLevel, callerDepth int, msg string) {
	if level < logger.level {
		return
	}
	var formattedMsg string
	_, file, line, ok := runtime.Caller(callerDepth)
	if ok {
		formattedMsg = fmt.Sprintf("[%s][%s:%d] %s", levelFlags[level], filepath.Base(file), line, msg)
	} else {
		formattedMsg = fmt.Sprintf("[%s] %s", levelFlags[level], msg)
	}
	entry := logger.entryPool.Get().(*logEntry)
	entry.msg = formattedMsg
	entry.level = level
	logger.entryChan <- entry
}

// Close flushes pending entries, the logger must not be used afterwards
func (logger *Logger) Close() {
	logger.closeOnce.Do(func() {
		close(logger.entryChan)
		<-logger.done
		if c, ok := logger.writer.(io.Closer); ok {
			_ = c.Close()
		}
	})
}

// Debug logs debug message through DefaultLogger
func Debug(v ...interface{}) {
	msg := fmt.Sprintln(v...)
	DefaultLogger.Output(DEBUG, defaultCallerDepth, msg)
}

// Debugf logs debug message through DefaultLogger
func Debugf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	DefaultLogger.Output(DEBUG, defaultCallerDepth, msg)
}

// Info logs message through DefaultLogger
func Info(v ...interface{}) {
	msg := fmt.Sprintln(v...)
	DefaultLogger.Output(INFO, defaultCallerDepth, msg)
}

// Infof logs message through DefaultLogger
func Infof(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	DefaultLogger.Output(INFO, defaultCallerDepth, msg)
}

// Warn logs warning message through DefaultLogger
func Warn(v ...interface{}) {
	msg := fmt.Sprintln(v...)
	DefaultLogger.Output(WARNING, defaultCallerDepth, msg)
}

// Warnf logs warning message through DefaultLogger
func Warnf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	DefaultLogger.Output(WARNING, defaultCallerDepth, msg)
}

// Error logs error message through DefaultLogger
func Error(v ...interface{}) {
	msg := fmt.Sprintln(v...)
	DefaultLogger.Output(ERROR, defaultCallerDepth, msg)
}

// Errorf logs error message through DefaultLogger
func Errorf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	DefaultLogger.Output(ERROR, defaultCallerDepth, msg)
}

// Fatal prints error message, the caller decides whether to stop the program
func Fatal(v ...interface{}) {
	msg := fmt.Sprintln(v...)
	DefaultLogger.Output(FATAL, defaultCallerDepth, msg)
}

// Fatalf prints error message, the caller decides whether to stop the program
func Fatalf(format string, v ...interface{}) {
	msg := fmt.Sprintf(format, v...)
	DefaultLogger.Output(FATAL, defaultCallerDepth, msg)
}
