// logger/logger.go
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelTags = [...]string{"[DEBUG] ", "[INFO]  ", "[WARN]  ", "[ERROR] "}
var levelColors = [...]string{colorGray, colorReset, colorYellow, colorRed}

// sink is one destination; colored sinks get ANSI-prefixed tags.
type sink struct {
	loggers [4]*log.Logger
}

func newSink(w io.Writer, colored bool) *sink {
	flags := log.Ldate | log.Ltime | log.Lshortfile
	s := &sink{}
	for lvl, tag := range levelTags {
		prefix := "webpconv " + tag
		if colored {
			prefix = levelColors[lvl] + prefix + colorReset
		}
		s.loggers[lvl] = log.New(w, prefix, flags)
	}
	return s
}

type Logger struct {
	console  *sink
	file     *sink
	handle   *os.File
	minLevel LogLevel
}

var (
	defaultLogger *Logger
	mu            sync.Mutex
)

// colorConsole reports whether stderr is a terminal; redirected output gets
// no ANSI codes.
func colorConsole() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// current returns the active logger, creating a console one on first use.
// Callers must hold mu.
func current() *Logger {
	if defaultLogger == nil {
		defaultLogger = &Logger{console: newSink(os.Stderr, colorConsole()), minLevel: INFO}
	}
	return defaultLogger
}

// Init configures file and/or console output.
// An empty filename logs to console only; console=false logs to file only.
func Init(filename string, console bool) error {
	mu.Lock()
	defer mu.Unlock()

	next := &Logger{minLevel: INFO}
	if defaultLogger != nil {
		next.minLevel = defaultLogger.minLevel
	}

	if filename != "" {
		file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		next.handle = file
		next.file = newSink(file, false)
	}
	if console {
		next.console = newSink(os.Stderr, colorConsole())
	}
	if next.file == nil && next.console == nil {
		return fmt.Errorf("no output destination specified")
	}

	closeHandle(defaultLogger)
	defaultLogger = next
	return nil
}

// SetOutput sends uncolored output to w only. Used by tests and by callers
// that embed the converter.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	level := INFO
	if defaultLogger != nil {
		level = defaultLogger.minLevel
	}
	closeHandle(defaultLogger)
	defaultLogger = &Logger{file: newSink(w, false), minLevel: level}
}

// SetLevel sets the minimum level that gets written.
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	current().minLevel = level
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a level.
// Anything else is INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	default:
		return INFO
	}
}

// Close closes the log file if one is open
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeHandle(defaultLogger)
	if defaultLogger != nil {
		defaultLogger.file = nil
	}
}

func closeHandle(l *Logger) {
	if l != nil && l.handle != nil {
		l.handle.Close()
		l.handle = nil
	}
}

func output(level LogLevel, msg string) {
	mu.Lock()
	l := current()
	min := l.minLevel
	mu.Unlock()

	if level < min {
		return
	}
	// depth 3: output -> Infof -> caller
	if l.console != nil {
		l.console.loggers[level].Output(3, msg)
	}
	if l.file != nil {
		l.file.loggers[level].Output(3, msg)
	}
}

func Debug(v ...interface{})                 { output(DEBUG, fmt.Sprint(v...)) }
func Debugf(format string, v ...interface{}) { output(DEBUG, fmt.Sprintf(format, v...)) }
func Info(v ...interface{})                  { output(INFO, fmt.Sprint(v...)) }
func Infof(format string, v ...interface{})  { output(INFO, fmt.Sprintf(format, v...)) }
func Warn(v ...interface{})                  { output(WARN, fmt.Sprint(v...)) }
func Warnf(format string, v ...interface{})  { output(WARN, fmt.Sprintf(format, v...)) }
func Error(v ...interface{})                 { output(ERROR, fmt.Sprint(v...)) }
func Errorf(format string, v ...interface{}) { output(ERROR, fmt.Sprintf(format, v...)) }

// Fatalf logs at ERROR and exits the program
func Fatalf(format string, v ...interface{}) {
	output(ERROR, fmt.Sprintf(format, v...))
	os.Exit(1)
}
