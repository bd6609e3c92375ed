// Package logger provides a small leveled logger shared by all linechat
// components. Output destination and format (text or json) are selected
// once at startup from the logging configuration.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	mu            sync.RWMutex
	currentLevel  = LevelInfo
	currentFormat = FormatText
	logger        = stdlog.New(os.Stdout, "", 0)
	closer        io.Closer
)

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

func parseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLevel changes the minimum level that will be emitted.
func SetLevel(level string) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = parseLevel(level)
}

// Setup configures level, format and output in one call.
//
// output is "stdout", "stderr" or a file path. A file is opened in append
// mode; the previous log file, if any, is closed. Setup falls back to stdout
// if the file cannot be opened and returns the error.
func Setup(level, format, output string) error {
	mu.Lock()
	defer mu.Unlock()

	currentLevel = parseLevel(level)

	if strings.ToLower(format) == FormatJSON {
		currentFormat = FormatJSON
	} else {
		currentFormat = FormatText
	}

	var w io.Writer
	var openErr error
	switch output {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			w = os.Stdout
			openErr = fmt.Errorf("open log file %q: %w", output, err)
		} else {
			w = f
			if closer != nil {
				_ = closer.Close()
			}
			closer = f
		}
	}

	logger = stdlog.New(w, "", 0)
	return openErr
}

func emit(level Level, format string, v ...any) {
	mu.RLock()
	minLevel, outFormat, out := currentLevel, currentFormat, logger
	mu.RUnlock()

	if level < minLevel {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(format, v...)

	if outFormat == FormatJSON {
		entry := map[string]string{
			"time":    now.Format(time.RFC3339),
			"level":   level.String(),
			"message": message,
		}
		if encoded, err := json.Marshal(entry); err == nil {
			out.Println(string(encoded))
			return
		}
	}

	out.Println(fmt.Sprintf("[%s] [%s] ", now.Format("2006-01-02 15:04:05"), level.String()) + message)
}

func Debug(format string, v ...any) {
	emit(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	emit(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	emit(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	emit(LevelError, format, v...)
}
