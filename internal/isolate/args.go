package isolate

import (
	"reflect"

	"github.com/huandu/go-clone"
)

// CopyArgs deep-copies args so an isolated context never shares memory
// with its caller. Types are preserved: pointers stay pointers, empty
// slices stay non-nil and unexported struct fields are copied. Cycles are
// handled.
//
// Top-level channels and funcs are passed through unchanged, since a copy
// of either is not the same value. Channels nested inside other values are
// replaced by new empty channels. copied is false when any element was
// passed through.
func CopyArgs(args []any) (out []any, copied bool) {
	if args == nil {
		return nil, true
	}
	out = make([]any, len(args))
	copied = true
	for i, a := range args {
		c, ok := copyValue(a)
		if !ok {
			copied = false
		}
		out[i] = c
	}
	return out, copied
}

func copyValue(v any) (out any, ok bool) {
	if v == nil {
		return nil, true
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return v, false
	}

	defer func() {
		if r := recover(); r != nil {
			out, ok = v, false
		}
	}()
	return clone.Slowly(v), true
}
