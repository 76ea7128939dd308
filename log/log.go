// Package log provides the module-scoped leveled logger used across the
// node. It follows the same NewModuleLogger(name) shape the rest of the
// codebase is written against, with colorized terminal output and a
// call-site frame when running at debug level.
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
)

// Level is a logging severity.
type Level int

const (
	LvlError Level = iota
	LvlWarn
	LvlInfo
	LvlDebug
)

func (l Level) String() string {
	switch l {
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	default:
		return "?????"
	}
}

var levelColor = map[Level]*color.Color{
	LvlError: color.New(color.FgRed, color.Bold),
	LvlWarn:  color.New(color.FgYellow),
	LvlInfo:  color.New(color.FgGreen),
	LvlDebug: color.New(color.FgCyan),
}

// Module names, mirroring the teacher's log.<Module> constants.
const (
	Core = "core"
	Miner = "miner"
	Protocol = "protocol"
	P2P = "p2p"
	Node = "node"
	CMD  = "cmd"
)

var (
	root      = colorable.NewColorableStdout()
	rootLevel = LvlInfo
	mu        sync.Mutex
)

// SetOutput redirects all module loggers to w (tests use this to silence
// output or to capture it).
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	root = struct{ io.Writer }{w}
}

// SetLevel changes the minimum level printed by every module logger.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	rootLevel = l
}

// Logger is a module-scoped, leveled, structured logger.
type Logger struct {
	module string
}

// NewModuleLogger returns the logger bound to the given module name.
func NewModuleLogger(module string) *Logger {
	return &Logger{module: module}
}

func (lg *Logger) log(lvl Level, msg string, ctx ...interface{}) {
	mu.Lock()
	out, threshold := root, rootLevel
	mu.Unlock()
	if lvl > threshold {
		return
	}

	c := levelColor[lvl]
	ts := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	line := fmt.Sprintf("%s [%s] %-18s %s", ts, c.Sprint(lvl.String()), lg.module, msg)
	if lvl == LvlDebug {
		call := stack.Caller(2)
		line += fmt.Sprintf(" (%n:%d)", call, call)
	}
	for i := 0; i+1 < len(ctx); i += 2 {
		line += fmt.Sprintf(" %v=%v", ctx[i], ctx[i+1])
	}
	fmt.Fprintln(out, line)
}

func (lg *Logger) Error(msg string, ctx ...interface{}) { lg.log(LvlError, msg, ctx...) }
func (lg *Logger) Warn(msg string, ctx ...interface{})  { lg.log(LvlWarn, msg, ctx...) }
func (lg *Logger) Info(msg string, ctx ...interface{})  { lg.log(LvlInfo, msg, ctx...) }
func (lg *Logger) Debug(msg string, ctx ...interface{}) { lg.log(LvlDebug, msg, ctx...) }

func init() {
	if os.Getenv("NODE_LOG_DEBUG") != "" {
		rootLevel = LvlDebug
	}
}
