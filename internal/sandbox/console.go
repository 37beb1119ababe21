// File: internal/sandbox/console.go
// Description: Minimal console shim for the validation sandbox. Generated
// scripts lean on console.log while debugging; capturing it bounded keeps
// runaway loops from exhausting memory.

package sandbox

import (
	"fmt"
	"strings"

	"github.com/dop251/goja"
)

type consoleCapture struct {
	buf      strings.Builder
	maxBytes int
	clipped  bool
}

func newConsoleCapture(maxBytes int) *consoleCapture {
	return &consoleCapture{maxBytes: maxBytes}
}

// install registers a console object with log/info/warn/error methods. All
// levels write to the same capped buffer.
func (c *consoleCapture) install(vm *goja.Runtime) {
	console := vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		_ = console.Set(level, c.write)
	}
	_ = vm.Set("console", console)
}

func (c *consoleCapture) write(call goja.FunctionCall) goja.Value {
	if c.clipped {
		return goja.Undefined()
	}
	parts := make([]string, 0, len(call.Arguments))
	for _, arg := range call.Arguments {
		parts = append(parts, fmt.Sprintf("%v", arg.Export()))
	}
	line := strings.Join(parts, " ")

	if c.maxBytes > 0 && c.buf.Len()+len(line)+1 > c.maxBytes {
		remaining := c.maxBytes - c.buf.Len()
		if remaining > 0 {
			c.buf.WriteString(line[:min(remaining, len(line))])
		}
		c.buf.WriteString("\n[console output truncated]")
		c.clipped = true
		return goja.Undefined()
	}

	c.buf.WriteString(line)
	c.buf.WriteByte('\n')
	return goja.Undefined()
}

func (c *consoleCapture) String() string {
	return strings.TrimRight(c.buf.String(), "\n")
}
