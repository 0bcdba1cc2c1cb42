package binding

import (
	"context"

	"go.starlark.net/starlark"
)

const contextKey = "breakmark.context"

// NewThread returns a Starlark thread wired to the registration table. When ctx
// is done the thread is cancelled and its context is handed to blocking
// builtins such as breakpoint.set.
func NewThread(ctx context.Context, name string) *starlark.Thread {
	thread := &starlark.Thread{
		Name: name,
		Load: Load,
		Print: func(t *starlark.Thread, msg string) {
			Log.WithField("thread", t.Name).Info(msg)
		},
	}
	WithContext(thread, ctx)
	return thread
}

// WithContext attaches ctx to thread and cancels the thread once ctx is done.
func WithContext(thread *starlark.Thread, ctx context.Context) {
	thread.SetLocal(contextKey, ctx)
	context.AfterFunc(ctx, func() {
		thread.Cancel(context.Cause(ctx).Error())
	})
}

// ContextOf returns the context attached to thread, or context.Background.
func ContextOf(thread *starlark.Thread) context.Context {
	if ctx, ok := thread.Local(contextKey).(context.Context); ok && ctx != nil {
		return ctx
	}
	return context.Background()
}

// ExecFile runs a script with every registered module predeclared. src is
// interpreted as by starlark.ExecFile.
func ExecFile(thread *starlark.Thread, filename string, src interface{}) (starlark.StringDict, error) {
	data, err := readSource(filename, src)
	if err != nil {
		return nil, err
	}
	RememberSource(filename, data)
	return starlark.ExecFile(thread, filename, data, Predeclared())
}
