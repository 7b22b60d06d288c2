package tracegc

import (
	"reflect"
	"sync"

	"github.com/modern-go/reflect2"
)

// layout describes how a Go type may be placed in heap memory.
type layout struct {
	name string
	size uintptr
	err  error // non-nil if the type holds Go pointers
}

var layouts sync.Map // reflect2.RTypeOf(*T) -> *layout

func layoutOf[T any]() *layout {
	var zero *T
	key := reflect2.RTypeOf(zero)
	if v, ok := layouts.Load(key); ok {
		return v.(*layout)
	}

	typ := reflect2.TypeOfPtr(zero).Elem()
	l := &layout{
		name: typ.String(),
		size: typ.Type1().Size(),
	}
	if field, ok := pointerField(typ.Type1(), ""); ok {
		l.err = &ErrPointerType{Type: l.name, Field: field}
	}

	v, _ := layouts.LoadOrStore(key, l)
	return v.(*layout)
}

// pointerField reports whether t contains a Go pointer and returns the path
// of the first offending field. Handles are plain integers and pass.
func pointerField(t reflect.Type, path string) (string, bool) {
	switch t.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Slice,
		reflect.String, reflect.Interface, reflect.Chan, reflect.Func:
		return path, true
	case reflect.Array:
		if t.Len() == 0 {
			return "", false
		}
		return pointerField(t.Elem(), path+"[]")
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := f.Name
			if path != "" {
				name = path + "." + name
			}
			if p, ok := pointerField(f.Type, name); ok {
				return p, true
			}
		}
	}
	return "", false
}
