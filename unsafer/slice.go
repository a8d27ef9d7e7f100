package unsafer

import (
	"unsafe"
)

// SliceToBytes interprets an arbitrary input slice as a byte slice.
//
// Note that the returned slice points to the same underlying data in memory. It
// does not make a copy.
func SliceToBytes[T any](input []T) []byte {
	if len(input) == 0 {
		return nil
	}

	size := int(unsafe.Sizeof(input[0])) * len(input)
	return unsafe.Slice((*byte)(unsafe.Pointer(&input[0])), size)
}

// SliceBytesToUint32 reinterprets a byte slice as a slice of 32 bit words. The
// trailing bytes which do not form a full word are dropped. SPIR-V byte-code is
// always a multiple of four bytes long.
func SliceBytesToUint32(input []byte) []uint32 {
	if len(input) < 4 {
		return nil
	}

	return unsafe.Slice((*uint32)(unsafe.Pointer(&input[0])), len(input)/4)
}
