package common

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

// LogLevel controls which messages a logger emits
type LogLevel int

const (
	ERROR LogLevel = iota
	WARNING
	INFO
	DEBUG
)

// ILogger is the leveled logging interface used across the library
type ILogger interface {
	SetLevel(level LogLevel)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// --------------------------------------------------------------------------
// Custom Logger
// --------------------------------------------------------------------------

// loggerImpl implements the ILogger interface with custom formatting
type loggerImpl struct {
	name   string
	level  LogLevel
	logger *log.Logger
}

func (l *loggerImpl) SetLevel(level LogLevel) {
	l.level = level
}

func (l *loggerImpl) Debugf(format string, args ...interface{}) {
	if l.level >= DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *loggerImpl) Infof(format string, args ...interface{}) {
	if l.level >= INFO {
		l.log("INFO", format, args...)
	}
}

func (l *loggerImpl) Warningf(format string, args ...interface{}) {
	if l.level >= WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *loggerImpl) Errorf(format string, args ...interface{}) {
	if l.level >= ERROR {
		l.log("ERROR", format, args...)
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *loggerImpl) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Registry
// --------------------------------------------------------------------------

var loggers = xsync.NewMapOf[string, ILogger]()

// GetLogger returns the named logger, creating it on first use. Loggers are
// process-global so every package logging under the same name shares one
// level.
func GetLogger(pkgName string) ILogger {
	l, _ := loggers.LoadOrCompute(pkgName, func() ILogger {
		return &loggerImpl{
			name:   pkgName,
			level:  INFO,
			logger: log.New(os.Stdout, "", log.Ldate|log.Ltime),
		}
	})
	return l
}

// SetAllLevels applies one level to every logger created so far.
func SetAllLevels(level LogLevel) {
	loggers.Range(func(_ string, l ILogger) bool {
		l.SetLevel(level)
		return true
	})
}

// ParseLogLevel converts a string level to a LogLevel
func ParseLogLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warning", "warn":
		return WARNING, nil
	case "error":
		return ERROR, nil
	default:
		return INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}
