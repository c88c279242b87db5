// Copyright 2024 The PolliNet Authors
// This file is part of the PolliNet core.
//
// The PolliNet core is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The PolliNet core is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the PolliNet core. If not, see <http://www.gnu.org/licenses/>.

// Package log provides the structured, leveled logger used across the
// relay core. Call sites follow the "message, key, value, key, value..."
// convention: log.Info("Fragment reassembled", "tx_id", id, "total", n).
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a logging severity, ordered least to most severe.
type Level int

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelCrit
)

func ParseLevel(s string) (Level, error) {
	switch s {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "crit":
		return LevelCrit, nil
	default:
		return LevelInfo, fmt.Errorf("log: unknown level %q", s)
	}
}

var levelNames = map[Level]string{
	LevelTrace: "TRACE",
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelCrit:  "CRIT",
}

var levelColor = map[Level]*color.Color{
	LevelTrace: color.New(color.FgHiBlack),
	LevelDebug: color.New(color.FgCyan),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
	LevelCrit:  color.New(color.FgHiRed, color.Bold),
}

// Logger is a component-scoped structured logger, analogous to the
// teacher's log.L(ctx) helper but explicit about its component name.
type Logger struct {
	component string
	ctx       []interface{}
}

var (
	mu       sync.Mutex
	minLevel = LevelInfo
	out      io.Writer
	isTTY    bool
)

func init() {
	out = colorable.NewColorableStdout()
	isTTY = isatty.IsTerminal(os.Stdout.Fd())
}

// SetLevel sets the process-wide minimum level that is emitted.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = l
}

// SetOutput redirects log output, e.g. to a file when enable_logging
// routes to disk instead of the console.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	isTTY = false
}

// New returns a component-scoped logger, e.g. log.New("relay").
func New(component string, ctx ...interface{}) *Logger {
	return &Logger{component: component, ctx: ctx}
}

// With returns a derived logger carrying additional fixed key/value pairs.
func (l *Logger) With(ctx ...interface{}) *Logger {
	merged := make([]interface{}, 0, len(l.ctx)+len(ctx))
	merged = append(merged, l.ctx...)
	merged = append(merged, ctx...)
	return &Logger{component: l.component, ctx: merged}
}

func (l *Logger) Trace(msg string, ctx ...interface{}) { l.log(LevelTrace, msg, ctx...) }
func (l *Logger) Debug(msg string, ctx ...interface{}) { l.log(LevelDebug, msg, ctx...) }
func (l *Logger) Info(msg string, ctx ...interface{})  { l.log(LevelInfo, msg, ctx...) }
func (l *Logger) Warn(msg string, ctx ...interface{})  { l.log(LevelWarn, msg, ctx...) }
func (l *Logger) Error(msg string, ctx ...interface{}) { l.log(LevelError, msg, ctx...) }

// Crit logs at the highest severity and captures the caller stack, mirroring
// the teacher's use of go-stack for fatal-adjacent diagnostics.
func (l *Logger) Crit(msg string, ctx ...interface{}) {
	trace := stack.Trace().TrimRuntime()
	ctx = append(append([]interface{}{}, ctx...), "stack", trace.String())
	l.log(LevelCrit, msg, ctx...)
}

func (l *Logger) log(level Level, msg string, ctx ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if level < minLevel {
		return
	}
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	line := fmt.Sprintf("%s [%s] %-18s %s", ts, levelNames[level], l.component, msg)

	all := make([]interface{}, 0, len(l.ctx)+len(ctx))
	all = append(all, l.ctx...)
	all = append(all, ctx...)
	for i := 0; i+1 < len(all); i += 2 {
		line += fmt.Sprintf(" %v=%v", all[i], all[i+1])
	}
	if isTTY {
		line = levelColor[level].Sprint(line)
	}
	fmt.Fprintln(out, line)
}

// Package-level default logger, used by components that do not carry
// their own scoped logger.
var root = New("pollinet")

func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }
