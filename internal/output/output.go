// Package output is a minimal logging wrapper around a pair of io.Writers
// with the three colored progress tags the CLI reports (green
// Starting/Fixed, yellow Detect/Failed/Fixing, red error) and an explicit
// verbosity level instead of a global quiet flag.
package output

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Level controls how much is streamed to the user. It is threaded
// explicitly through function parameters (never a thread-local/global) so
// that test-mode sub-phases can run quiet without disturbing top-level
// verbosity.
type Level int

const (
	// Quiet suppresses the staged progress tags; Fixed, Failed and error
	// lines are still printed.
	Quiet Level = iota
	// Normal prints the staged "Starting"/"Detect"/"Fixing"/"Fixed" tags.
	Normal
	// Verbose additionally streams child-process stderr.
	Verbose
)

// Logger wraps stdout/stderr writers with leveled, colored logging.
type Logger struct {
	Out, Err io.Writer
	Level    Level
}

// New returns a Logger at the given level.
func New(out, err io.Writer, level Level) *Logger {
	return &Logger{Out: out, Err: err, Level: level}
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
)

// Starting reports the beginning of an audit run. Suppressed at Quiet.
func (l *Logger) Starting(format string, args ...interface{}) {
	l.tag(green, "Starting", format, args...)
}

// Fixed reports a successful repair. Always printed.
func (l *Logger) Fixed(format string, args ...interface{}) {
	fmt.Fprintf(l.Out, "%s %s\n", green("Fixed"), fmt.Sprintf(format, args...))
}

// Detect reports an offending node found during BFS. Suppressed at Quiet.
func (l *Logger) Detect(format string, args ...interface{}) {
	l.tag(yellow, "Detect", format, args...)
}

// Fixing reports an in-progress repair attempt. Suppressed at Quiet.
func (l *Logger) Fixing(format string, args ...interface{}) {
	l.tag(yellow, "Fixing", format, args...)
}

// Failed reports that no repair could be found. Always printed.
func (l *Logger) Failed(format string, args ...interface{}) {
	fmt.Fprintf(l.Out, "%s %s\n", yellow("Failed"), fmt.Sprintf(format, args...))
}

// Error reports an infrastructure fault. Always printed, to Err.
func (l *Logger) Error(format string, args ...interface{}) {
	fmt.Fprintf(l.Err, "%s %s\n", red("error"), fmt.Sprintf(format, args...))
}

// Verbosef streams a line of child-process output; only printed at Verbose.
func (l *Logger) Verbosef(format string, args ...interface{}) {
	if l.Level < Verbose {
		return
	}
	fmt.Fprintf(l.Err, format, args...)
}

func (l *Logger) tag(colorFn func(a ...interface{}) string, tag, format string, args ...interface{}) {
	if l.Level < Normal {
		return
	}
	fmt.Fprintf(l.Out, "%s %s\n", colorFn(tag), fmt.Sprintf(format, args...))
}
