// Package breakpoint provides a gated breakpoint on top of the native marker.
//
// A Gate stays closed until a debugger console reports that it is attached.
// Callers of Set block until then, pass through mark.BreakpointMark, and the
// pass is recorded as a hit. A disabled gate returns at once without touching
// the marker.
package breakpoint

import (
	"fmt"

	"github.com/aivorynet/breakmark/pkg/capture"
)

// Site describes the call site of a Set call.
type Site struct {
	File     string
	Line     int
	Function string

	ScriptFrames []capture.StackFrame
	NativeFrames []capture.StackFrame
	Params       map[string]capture.Variable
	Globals      map[string]capture.Variable
	Source       []capture.SourceLine
}

// Location returns the file:line key used to group hits.
func (s Site) Location() string {
	if s.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}
