package capture

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// ScriptFrames returns the Starlark call stack of thread, innermost first.
// Frames of builtins carry no line number and are marked native.
func ScriptFrames(thread *starlark.Thread) []StackFrame {
	depth := thread.CallStackDepth()
	frames := make([]StackFrame, 0, depth)
	for i := 0; i < depth && i < MaxFrames; i++ {
		fr := thread.CallFrame(i)
		native := !fr.Pos.IsValid() || fr.Pos.Line == 0
		sf := StackFrame{
			MethodName: fr.Name,
			IsNative:   native,
		}
		if !native {
			sf.FilePath = fr.Pos.Filename()
			sf.FileName = extractFileName(sf.FilePath)
			sf.LineNumber = int(fr.Pos.Line)
			sf.Column = int(fr.Pos.Col)
		}
		frames = append(frames, sf)
	}
	return frames
}

// ScriptParams captures the parameters of the Starlark function running at
// depth (0 is the innermost frame). It returns nil if that frame is not a
// script function.
func ScriptParams(thread *starlark.Thread, depth, maxDepth int) map[string]Variable {
	if depth < 0 || depth >= thread.CallStackDepth() {
		return nil
	}
	fr := thread.DebugFrame(depth)
	fn, ok := fr.Callable().(*starlark.Function)
	if !ok {
		return nil
	}

	vars := make(map[string]Variable, fn.NumParams())
	for i := 0; i < fn.NumParams(); i++ {
		name, _ := fn.Param(i)
		vars[name] = captureStarlark(name, fr.Local(i), 0, maxDepth)
	}
	return vars
}

// ScriptGlobals captures the module globals of the Starlark function running
// at depth, sorted by name and capped at MaxCollectionSize. It returns nil if
// that frame is not a script function.
func ScriptGlobals(thread *starlark.Thread, depth, maxDepth int) map[string]Variable {
	if depth < 0 || depth >= thread.CallStackDepth() {
		return nil
	}
	fn, ok := thread.DebugFrame(depth).Callable().(*starlark.Function)
	if !ok {
		return nil
	}

	globals := fn.Globals()
	names := globals.Keys()
	vars := make(map[string]Variable, min(len(names), MaxCollectionSize))
	for i := 0; i < len(names) && i < MaxCollectionSize; i++ {
		vars[names[i]] = captureStarlark(names[i], globals[names[i]], 0, maxDepth)
	}
	return vars
}

// CaptureStarlark captures a Starlark value.
func CaptureStarlark(name string, v starlark.Value, maxDepth int) Variable {
	return captureStarlark(name, v, 0, maxDepth)
}

func captureStarlark(name string, v starlark.Value, depth, maxDepth int) Variable {
	if v == nil {
		return Variable{Name: name, Type: "unbound", Value: "<unbound>", IsNull: true}
	}
	if v == starlark.None {
		return Variable{Name: name, Type: v.Type(), Value: "None", IsNull: true}
	}
	if depth > maxDepth {
		return Variable{Name: name, Type: v.Type(), Value: "<max depth exceeded>", IsTruncated: true}
	}

	switch x := v.(type) {
	case starlark.String:
		s, truncated := truncate(string(x))
		return Variable{Name: name, Type: x.Type(), Value: s, IsTruncated: truncated}

	case starlark.Bytes:
		s, truncated := truncate(x.String())
		return Variable{Name: name, Type: x.Type(), Value: s, IsTruncated: truncated}

	case *starlark.Dict:
		items := x.Items()
		children := make(map[string]Variable, len(items))
		for i := 0; i < len(items) && i < MaxCollectionSize; i++ {
			key := keyString(items[i][0])
			children[key] = captureStarlark(key, items[i][1], depth+1, maxDepth)
		}
		return Variable{
			Name:        name,
			Type:        x.Type(),
			Value:       fmt.Sprintf("dict[%d]", len(items)),
			Children:    children,
			IsTruncated: len(items) > MaxCollectionSize,
		}

	case starlark.Indexable:
		length := x.Len()
		elements := make([]Variable, 0, min(length, MaxCollectionSize))
		for i := 0; i < length && i < MaxCollectionSize; i++ {
			elements = append(elements, captureStarlark(fmt.Sprintf("[%d]", i), x.Index(i), depth+1, maxDepth))
		}
		return Variable{
			Name:          name,
			Type:          x.Type(),
			Value:         fmt.Sprintf("[%d items]", length),
			ArrayElements: elements,
			ArrayLength:   &length,
			IsTruncated:   length > MaxCollectionSize,
		}

	case *starlarkstruct.Struct:
		names := x.AttrNames()
		sort.Strings(names)
		children := make(map[string]Variable, len(names))
		for i := 0; i < len(names) && i < MaxCollectionSize; i++ {
			attr, err := x.Attr(names[i])
			if err != nil {
				continue
			}
			children[names[i]] = captureStarlark(names[i], attr, depth+1, maxDepth)
		}
		return Variable{Name: name, Type: x.Type(), Value: "<struct>", Children: children}

	default:
		s, truncated := truncate(v.String())
		out := Variable{Name: name, Type: v.Type(), Value: s, IsTruncated: truncated}
		if hostValue(v) {
			gv := captureValue(name, v, depth, maxDepth)
			out.Children = gv.Children
			out.ArrayElements = gv.ArrayElements
			out.ArrayLength = gv.ArrayLength
		}
		return out
	}
}

// hostValue reports whether v is a Starlark value type defined by the host
// program rather than by the interpreter.
func hostValue(v starlark.Value) bool {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	pkg := t.PkgPath()
	return pkg != "" && !strings.HasPrefix(pkg, "go.starlark.net/")
}

func keyString(k starlark.Value) string {
	if s, ok := k.(starlark.String); ok {
		return string(s)
	}
	return k.String()
}
