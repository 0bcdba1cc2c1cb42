// Package capture records what was executing when a breakpoint was hit: the
// Starlark call stack, the parameters and globals of the calling script
// function, the source around the hit and the native Go stack.
package capture

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

// Limits applied to captured values.
const (
	MaxStringLength   = 1000
	MaxCollectionSize = 100
	MaxFrames         = 50
)

// StackFrame represents a single frame in a script or native stack.
type StackFrame struct {
	MethodName  string `json:"method_name"`
	FileName    string `json:"file_name,omitempty"`
	FilePath    string `json:"file_path,omitempty"`
	LineNumber  int    `json:"line_number,omitempty"`
	Column      int    `json:"column,omitempty"`
	PackageName string `json:"package_name,omitempty"`
	IsNative    bool   `json:"is_native"`
}

// Variable represents a captured value.
type Variable struct {
	Name          string              `json:"name"`
	Type          string              `json:"type"`
	Value         string              `json:"value"`
	IsNull        bool                `json:"is_null"`
	IsTruncated   bool                `json:"is_truncated"`
	Children      map[string]Variable `json:"children,omitempty"`
	ArrayElements []Variable          `json:"array_elements,omitempty"`
	ArrayLength   *int                `json:"array_length,omitempty"`
}

// NativeFrames returns the Go call stack of the caller, skipping skip frames
// above NativeFrames itself. runtime frames are dropped.
func NativeFrames(skip int) []StackFrame {
	var frames []StackFrame
	pcs := make([]uintptr, MaxFrames)
	n := runtime.Callers(skip+2, pcs)
	pcs = pcs[:n]

	frameIter := runtime.CallersFrames(pcs)
	for {
		frame, more := frameIter.Next()

		if !strings.HasPrefix(frame.Function, "runtime.") {
			frames = append(frames, StackFrame{
				MethodName:  extractFunctionName(frame.Function),
				FilePath:    frame.File,
				FileName:    extractFileName(frame.File),
				LineNumber:  frame.Line,
				PackageName: extractPackageName(frame.Function),
				IsNative:    true,
			})
		}

		if !more || len(frames) >= MaxFrames {
			break
		}
	}

	return frames
}

// captureValue walks a Go value by reflection. It backs the capture of
// host-defined Starlark values.
func captureValue(name string, value interface{}, depth, maxDepth int) Variable {
	if value == nil {
		return Variable{
			Name:   name,
			Type:   "nil",
			Value:  "nil",
			IsNull: true,
		}
	}

	if depth > maxDepth {
		return Variable{
			Name:        name,
			Type:        reflect.TypeOf(value).String(),
			Value:       "<max depth exceeded>",
			IsTruncated: true,
		}
	}

	v := reflect.ValueOf(value)
	t := v.Type()

	switch v.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return Variable{
			Name:  name,
			Type:  t.String(),
			Value: fmt.Sprintf("%v", value),
		}

	case reflect.String:
		s, truncated := truncate(v.String())
		return Variable{
			Name:        name,
			Type:        "string",
			Value:       s,
			IsTruncated: truncated,
		}

	case reflect.Ptr, reflect.Interface:
		if v.IsNil() {
			return Variable{
				Name:   name,
				Type:   t.String(),
				Value:  "nil",
				IsNull: true,
			}
		}
		return captureValue(name, v.Elem().Interface(), depth, maxDepth)

	case reflect.Slice, reflect.Array:
		length := v.Len()
		elements := []Variable{}
		for i := 0; i < length && i < MaxCollectionSize; i++ {
			elements = append(elements, captureValue(fmt.Sprintf("[%d]", i), v.Index(i).Interface(), depth+1, maxDepth))
		}
		return Variable{
			Name:          name,
			Type:          t.String(),
			Value:         fmt.Sprintf("[%d items]", length),
			ArrayElements: elements,
			ArrayLength:   &length,
			IsTruncated:   length > MaxCollectionSize,
		}

	case reflect.Map:
		children := make(map[string]Variable)
		keys := v.MapKeys()
		for i := 0; i < len(keys) && i < MaxCollectionSize; i++ {
			keyStr := fmt.Sprintf("%v", keys[i].Interface())
			children[keyStr] = captureValue(keyStr, v.MapIndex(keys[i]).Interface(), depth+1, maxDepth)
		}
		return Variable{
			Name:        name,
			Type:        t.String(),
			Value:       fmt.Sprintf("map[%d]", len(keys)),
			Children:    children,
			IsTruncated: len(keys) > MaxCollectionSize,
		}

	case reflect.Struct:
		children := make(map[string]Variable)
		for i := 0; i < t.NumField() && i < MaxCollectionSize; i++ {
			field := t.Field(i)
			if !field.IsExported() {
				continue
			}
			children[field.Name] = captureValue(field.Name, v.Field(i).Interface(), depth+1, maxDepth)
		}
		return Variable{
			Name:     name,
			Type:     t.String(),
			Value:    fmt.Sprintf("<%s>", t.Name()),
			Children: children,
		}

	default:
		return Variable{
			Name:  name,
			Type:  t.String(),
			Value: fmt.Sprintf("<%s>", t.Kind()),
		}
	}
}

func truncate(s string) (string, bool) {
	if len(s) > MaxStringLength {
		return s[:MaxStringLength], true
	}
	return s, false
}

func extractFunctionName(fullName string) string {
	parts := strings.Split(fullName, "/")
	last := parts[len(parts)-1]
	dotParts := strings.Split(last, ".")
	if len(dotParts) > 1 {
		return strings.Join(dotParts[1:], ".")
	}
	return last
}

func extractPackageName(fullName string) string {
	lastSlash := strings.LastIndex(fullName, "/")
	if lastSlash >= 0 {
		fullName = fullName[lastSlash+1:]
	}
	firstDot := strings.Index(fullName, ".")
	if firstDot >= 0 {
		return fullName[:firstDot]
	}
	return fullName
}

func extractFileName(path string) string {
	lastSlash := strings.LastIndex(path, "/")
	if lastSlash >= 0 {
		return path[lastSlash+1:]
	}
	return path
}
