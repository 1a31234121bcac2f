// Package debug is the leveled logger shared by the hardware, motion and
// web layers. Control loops log from their own goroutines, so the level
// is atomic and the output is swapped under the logger's own lock.
package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Debug levels
const (
	LevelOff     = 0 // No output
	LevelInfo    = 1 // Config summary, routine start/finish, final poses
	LevelLive    = 2 // Motion start/stop with exit reasons
	LevelVerbose = 3 // Parameter snapshots, odometry resets, init steps
	LevelTrace   = 4 // Per-tick control values, GPIO writes
)

const (
	banner    = "═══════════════════════════════════════"
	separator = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"
)

var (
	level  atomic.Int32
	logger = log.New(os.Stdout, "[GoDrive] ", log.LstdFlags|log.Lmicroseconds)
)

// Init sets the level (0-4). 0 silences everything.
func Init(debugLevel int) {
	level.Store(int32(debugLevel))
}

// SetOutput redirects debug output, e.g. tee to the web status stream.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Level returns the current debug level.
func Level() int {
	return int(level.Load())
}

// IsEnabled reports whether messages at minLevel are printed.
func IsEnabled(minLevel int) bool {
	return minLevel > LevelOff && Level() >= minLevel
}

func logf(minLevel int, tag, format string, args ...interface{}) {
	if !IsEnabled(minLevel) {
		return
	}
	if tag != "" {
		format = tag + " " + format
	}
	logger.Printf(format, args...)
}

// Info prints an important message.
func Info(format string, args ...interface{}) {
	logf(LevelInfo, "[INFO]", format, args...)
}

// Summary prints a banner around title.
func Summary(title string) {
	logf(LevelInfo, "", banner)
	logf(LevelInfo, "", "  %s", title)
	logf(LevelInfo, "", banner)
}

// Pose prints a field pose.
func Pose(label string, x, y, heading float64) {
	logf(LevelInfo, "[INFO]", "%s: x=%.2f in, y=%.2f in, heading=%.2f°", label, x, y, heading)
}

// Value prints a named value.
func Value(name string, value interface{}) {
	logf(LevelInfo, "[INFO]", "  %s = %v", name, value)
}

// Error reports a non-fatal error, such as a failed motor write inside a
// control loop.
func Error(err error) {
	logf(LevelInfo, "[ERROR]", "%v", err)
}

// Live prints a motion-level message.
func Live(format string, args ...interface{}) {
	logf(LevelLive, "[LIVE]", format, args...)
}

// Motion announces a motion and its target.
func Motion(kind, target string) {
	logf(LevelLive, "[LIVE]", "Motion %s -> %s", kind, target)
}

// Exit reports why a motion loop ended.
func Exit(kind, reason string, traveled float64) {
	logf(LevelLive, "[LIVE]", "Motion %s ended (%s), traveled %.2f", kind, reason, traveled)
}

// Verbose prints a detail message.
func Verbose(format string, args ...interface{}) {
	logf(LevelVerbose, "[VERBOSE]", format, args...)
}

// Printf is an alias for Verbose.
func Printf(format string, args ...interface{}) {
	Verbose(format, args...)
}

// PrintStruct dumps v with field names.
func PrintStruct(name string, v interface{}) {
	logf(LevelVerbose, "[VERBOSE]", "%s: %+v", name, v)
}

// Section prints a separator titled name.
func Section(name string) {
	logf(LevelVerbose, "", separator)
	logf(LevelVerbose, "", "  %s", name)
	logf(LevelVerbose, "", separator)
}

// Step prints a numbered init or routine step.
func Step(num int, description string) {
	logf(LevelVerbose, "[VERBOSE]", "Step %d: %s", num, description)
}

// Trace prints a low-level message.
func Trace(format string, args ...interface{}) {
	logf(LevelTrace, "[TRACE]", format, args...)
}

// Tick prints one control loop iteration.
func Tick(kind string, errorValue, output float64) {
	logf(LevelTrace, "[TRACE]", "%s error=%.3f output=%.3f", kind, errorValue, output)
}

// GPIO prints a pin operation.
func GPIO(operation string, pin int, value interface{}) {
	logf(LevelTrace, "[GPIO]", "%s pin=%d value=%v", operation, pin, value)
}

// Fmt formats only when logging is on, keeping control loops
// allocation-free when it is off.
func Fmt(format string, args ...interface{}) string {
	if Level() <= LevelOff {
		return ""
	}
	return fmt.Sprintf(format, args...)
}
