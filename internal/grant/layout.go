package grant

import (
	"fmt"
	"reflect"
	"unsafe"
)

// wordSize is the ABI word of the emulated 32-bit machine. The upcall count
// header occupies one word.
const wordSize = 4

// SavedUpcall is one stored upcall slot: the process-supplied appdata word
// and the upcall function pointer, zero meaning unsubscribed.
type SavedUpcall struct {
	AppData uint32
	FnPtr   uint32
}

var savedUpcallSize = unsafe.Sizeof(SavedUpcall{})

// blockLayout computes the size, alignment, and T offset of a grant block
// for the given upcall count and grant type.
//
// The padding between the upcall array and T is computed as
// alignof(T) - (upcallsSize mod alignof(T)), which inserts a full extra
// alignment unit when the upcalls already end aligned. That waste is part of
// the allocation contract and is preserved deliberately; tooling and tests
// depend on the exact block size.
func blockLayout(upcallCount int, t reflect.Type) (size, align, tOffset uintptr) {
	tAlign := uintptr(t.Align())
	upcallsSize := uintptr(wordSize) + uintptr(upcallCount)*savedUpcallSize
	pad := tAlign - (upcallsSize % tAlign)
	tOffset = upcallsSize + pad
	size = tOffset + t.Size()
	align = uintptr(unsafe.Alignof(uint32(0)))
	if tAlign > align {
		align = tAlign
	}
	return size, align, tOffset
}

// Layout exposes the block geometry for a grant type, primarily for
// diagnostics and allocation accounting.
func Layout[T any](upcallCount int) (size, align, tOffset uintptr) {
	return blockLayout(upcallCount, reflect.TypeOf((*T)(nil)).Elem())
}

// checkPointerFree panics if t contains Go pointers. Grant storage lives in
// the process's untyped memory image, which the garbage collector treats as
// raw bytes; a pointer stored there would be invisible to GC.
func checkPointerFree(t reflect.Type) {
	if hasPointers(t) {
		panic(fmt.Sprintf("grant: type %s contains pointers and cannot live in a grant region", t))
	}
}

func hasPointers(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return false
	case reflect.Array:
		return hasPointers(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if hasPointers(t.Field(i).Type) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
