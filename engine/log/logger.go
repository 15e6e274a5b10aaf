// Package log provides named, leveled loggers shared by every engine package.
// All loggers write through a single backend whose sink and verbosity can be
// changed at runtime (the command line maps -v / -vv onto SetLevel).
package log

import (
	"io"
	"os"
	"sync"

	"github.com/op/go-logging"
)

// Level is the verbosity threshold applied to every logger.
type Level int

// The levels that can be passed to SetLevel.
const (
	Debug Level = iota
	Info
	Notice
	Warning
	Error
)

// format is the line layout shared by all module loggers.
var format = logging.MustStringFormatter(
	`%{color}[%{time:15:04:05.000}] [%{module}] [%{level:.4s}]%{color:reset} %{message}`,
)

var (
	mu             sync.Mutex
	leveledBackend logging.LeveledBackend
	currentLevel   = Notice
)

// Logger is the logging surface used across the engine.
type Logger interface {
	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Notice(v ...interface{})
	Noticef(format string, v ...interface{})

	Warning(v ...interface{})
	Warningf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})
}

// New creates a named logger. The name shows up in the [module] column.
//
// Parameters:
//   - name: the module name, e.g. "sky/scheduler"
//
// Returns:
//   - Logger: a logger bound to the shared backend
func New(name string) Logger {
	return logging.MustGetLogger(name)
}

// SetSink redirects all logger output to the given writer, keeping the
// current level.
//
// Parameters:
//   - sink: the destination writer
func SetSink(sink io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	backend := logging.NewLogBackend(sink, "", 0)
	formatted := logging.NewBackendFormatter(backend, format)
	leveledBackend = logging.AddModuleLevel(formatted)
	leveledBackend.SetLevel(toLoggingLevel(currentLevel), "")
	logging.SetBackend(leveledBackend)
}

// SetLevel changes the verbosity of every logger.
//
// Parameters:
//   - level: the minimum level that is written
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()

	currentLevel = level
	leveledBackend.SetLevel(toLoggingLevel(level), "")
}

// CurrentLevel returns the active verbosity.
func CurrentLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return currentLevel
}

func toLoggingLevel(level Level) logging.Level {
	switch level {
	case Debug:
		return logging.DEBUG
	case Info:
		return logging.INFO
	case Warning:
		return logging.WARNING
	case Error:
		return logging.ERROR
	default:
		return logging.NOTICE
	}
}

func init() {
	SetSink(os.Stderr)
}
