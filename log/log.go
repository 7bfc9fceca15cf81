// Copyright 2025 The Filen Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package log exports logging primitives that log to stderr and,
// optionally, to a rotating log file or an external log processor.
package log

// We call this log instead of logging for two reasons:
// 1) It's shorter to type;
// 2) it mimics Go's log package and can be used as a drop-in replacement for it.

import (
	"fmt"
	"io"
	goLog "log"
	"os"

	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the interface for logging messages.
type Logger interface {
	// Printf writes a formatted message to the log.
	Printf(format string, v ...interface{})

	// Print writes a message to the log.
	Print(v ...interface{})

	// Println writes a line to the log.
	Println(v ...interface{})

	// Fatal writes a message to the log and aborts.
	Fatal(v ...interface{})

	// Fatalf writes a formatted message to the log and aborts.
	Fatalf(format string, v ...interface{})
}

// Level represents the level of logging.
type Level int

// Different levels of logging.
const (
	DebugLevel Level = iota
	InfoLevel
	ErrorLevel
	DisabledLevel
)

// ExternalLogger describes a service that processes logs.
type ExternalLogger interface {
	Log(Level, string)
	Flush()
}

// The set of default loggers for each log level.
var (
	Debug = &logger{DebugLevel}
	Info  = &logger{InfoLevel}
	Error = &logger{ErrorLevel}
)

var (
	currentLevel  = InfoLevel
	defaultLogger Logger = newDefaultLogger(os.Stderr)
	external      ExternalLogger
	rotating      *lumberjack.Logger
)

// Rotation policy for file logs. Files are gzip-compressed when rotated
// and the three most recent archives are retained.
const (
	logMaxSizeMB  = 10
	logMaxAgeDays = 7
	logMaxBackups = 3
)

func newDefaultLogger(w io.Writer) Logger {
	return goLog.New(w, "", goLog.Ldate|goLog.Ltime|goLog.LUTC|goLog.Lmicroseconds)
}

// Register connects an ExternalLogger to the default logger. This may only be
// called once.
func Register(e ExternalLogger) {
	external = e
}

// SetOutput sets the default loggers to write to w.
// If w is nil, the default loggers are disabled.
func SetOutput(w io.Writer) {
	if w == nil {
		defaultLogger = nil
		return
	}
	defaultLogger = newDefaultLogger(w)
}

// ToFile tees the default loggers into a rotating log file at path,
// keeping stderr output. The file rotates at 10 MiB or 7 days,
// whichever comes first; rotated files are gzip-compressed and the
// three most recent are kept.
func ToFile(path string) {
	rotating = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    logMaxSizeMB,
		MaxAge:     logMaxAgeDays,
		MaxBackups: logMaxBackups,
		Compress:   true,
	}
	SetOutput(io.MultiWriter(os.Stderr, rotating))
}

type logger struct {
	level Level
}

var _ Logger = (*logger)(nil)

// Printf writes a formatted message to the log.
func (l *logger) Printf(format string, v ...interface{}) {
	if l.level < currentLevel {
		return // Don't log at lower levels.
	}
	writeLog(l.level, fmt.Sprintf(format, v...))
}

// Print writes a message to the log.
func (l *logger) Print(v ...interface{}) {
	if l.level < currentLevel {
		return // Don't log at lower levels.
	}
	writeLog(l.level, fmt.Sprint(v...))
}

// Println writes a line to the log.
func (l *logger) Println(v ...interface{}) {
	if l.level < currentLevel {
		return // Don't log at lower levels.
	}
	writeLog(l.level, fmt.Sprintln(v...))
}

// Fatal writes a message to the log and aborts, regardless of the
// current log level.
func (l *logger) Fatal(v ...interface{}) {
	writeLog(l.level, fmt.Sprint(v...))
	Flush()
	os.Exit(1)
}

// Fatalf writes a formatted message to the log and aborts, regardless of
// the current log level.
func (l *logger) Fatalf(format string, v ...interface{}) {
	writeLog(l.level, fmt.Sprintf(format, v...))
	Flush()
	os.Exit(1)
}

// writeLog delivers the message to the default logger and the external
// one, if registered.
func writeLog(level Level, msg string) {
	if defaultLogger != nil {
		defaultLogger.Print(msg)
	}
	if external != nil {
		external.Log(level, msg)
	}
}

// String returns the name of the logger's level.
func (l *logger) String() string {
	return toString(l.level)
}

func toString(level Level) string {
	switch level {
	case InfoLevel:
		return "info"
	case DebugLevel:
		return "debug"
	case ErrorLevel:
		return "error"
	case DisabledLevel:
		return "disabled"
	}
	return "unknown"
}

func toLevel(level string) (Level, error) {
	switch level {
	case "info":
		return InfoLevel, nil
	case "debug":
		return DebugLevel, nil
	case "error":
		return ErrorLevel, nil
	case "disabled":
		return DisabledLevel, nil
	}
	return DisabledLevel, fmt.Errorf("invalid log level %q", level)
}

// GetLevel returns the current logging level.
func GetLevel() string {
	return toString(currentLevel)
}

// CurrentLevel returns the current logging level as a Level.
func CurrentLevel() Level {
	return currentLevel
}

// SetLevel sets the current level of logging.
func SetLevel(level string) error {
	l, err := toLevel(level)
	if err != nil {
		return err
	}
	currentLevel = l
	return nil
}

// At returns whether the level will be logged currently.
func At(level string) bool {
	l, err := toLevel(level)
	if err != nil {
		return false
	}
	return currentLevel <= l
}

// Printf writes a formatted message to the log.
func Printf(format string, v ...interface{}) {
	Info.Printf(format, v...)
}

// Print writes a message to the log.
func Print(v ...interface{}) {
	Info.Print(v...)
}

// Println writes a line to the log.
func Println(v ...interface{}) {
	Info.Println(v...)
}

// Fatal writes a message to the log and aborts.
func Fatal(v ...interface{}) {
	Info.Fatal(v...)
}

// Fatalf writes a formatted message to the log and aborts.
func Fatalf(format string, v ...interface{}) {
	Info.Fatalf(format, v...)
}

// Flush flushes any buffered log sinks. It is registered with the
// shutdown machinery so it runs last on exit.
func Flush() {
	if external != nil {
		external.Flush()
	}
	if rotating != nil {
		rotating.Close()
		rotating = nil
	}
}

// stdWriter adapts a Logger to io.Writer so it can back a standard
// *log.Logger.
type stdWriter struct {
	l Logger
}

func (w stdWriter) Write(p []byte) (int, error) {
	w.l.Print(string(p))
	return len(p), nil
}

// NewStdLogger creates a *log.Logger that forwards everything written
// to it to l. It is handy for handing our leveled loggers to libraries
// that expect the standard type, such as http.Server.ErrorLog.
func NewStdLogger(l Logger) *goLog.Logger {
	return goLog.New(stdWriter{l}, "", 0)
}
