// Package uniform implements the in-memory representation of GLSL uniform
// values and their upload to the GPU.
package uniform

import (
	"errors"
	"slices"
	"strconv"
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// ErrUnknownKind is returned when flushing a value whose kind is not one of
// the declared [Kind] constants.
var ErrUnknownKind = errors.New("uniform: unknown boxed value kind")

// Kind is the scalar type stored in a [BoxedValue].
type Kind uint8

const (
	// KindNone is the kind of a value that was declared but never set.
	KindNone Kind = iota
	KindInt
	KindFloat
	KindMatrix
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindMatrix:
		return "matrix"
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// maxInline is the number of 32 bit words held without heap allocation,
// enough for a single mat4.
const maxInline = 16

// BoxedValue holds the current value of one uniform: a scalar, vector or
// matrix of Count elements. The zero value is an unset value of [KindNone].
//
// Values with Count == 1 live in an inline buffer. Arrays live in a heap slice
// whose length is exactly Size*Count words (Size*Size*Count for matrices).
// Ints and floats are both stored as their raw 32 bit patterns.
type BoxedValue struct {
	kind   Kind
	size   int
	count  int
	inline [maxInline]uint32
	heap   []uint32
}

// Uploader receives uniform uploads. Implemented by gldriver.Driver.
type Uploader interface {
	UniformIntv(location int32, size, count int, v []int32)
	UniformFloatv(location int32, size, count int, v []float32)
	UniformMatrixv(location int32, dim, count int, v []float32)
}

func (bv *BoxedValue) Kind() Kind { return bv.kind }
func (bv *BoxedValue) Size() int  { return bv.size }
func (bv *BoxedValue) Count() int { return bv.count }

// words returns the active storage.
func (bv *BoxedValue) words() []uint32 {
	if bv.count > 1 {
		return bv.heap
	}
	return bv.inline[:bv.elemWords()]
}

func (bv *BoxedValue) elemWords() int {
	if bv.kind == KindMatrix {
		return bv.size * bv.size
	}
	return bv.size
}

// Ints returns the stored values reinterpreted as int32. Only meaningful for [KindInt].
func (bv *BoxedValue) Ints() []int32 {
	w := bv.words()
	if len(w) == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&w[0])), len(w))
}

// Floats returns the stored values reinterpreted as float32. Matrices are column-major.
func (bv *BoxedValue) Floats() []float32 {
	w := bv.words()
	if len(w) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&w[0])), len(w))
}

// SetInt sets a single int.
func (bv *BoxedValue) SetInt(v int32) {
	bv.SetIntVector(1, 1, []int32{v})
}

// SetFloat sets a single float.
func (bv *BoxedValue) SetFloat(v float32) {
	bv.SetFloatVector(1, 1, []float32{v})
}

// SetIntVector sets count vectors of size components (int, ivec2..ivec4).
func (bv *BoxedValue) SetIntVector(size, count int, v []int32) {
	checkDims(KindInt, size, count, len(v))
	dst := bv.prepare(KindInt, size, count)
	for i := range dst {
		dst[i] = uint32(v[i])
	}
}

// SetFloatVector sets count vectors of size components (float, vec2..vec4).
func (bv *BoxedValue) SetFloatVector(size, count int, v []float32) {
	checkDims(KindFloat, size, count, len(v))
	dst := bv.prepare(KindFloat, size, count)
	for i := range dst {
		dst[i] = math32.Float32bits(v[i])
	}
}

// SetMatrix sets count dim×dim matrices. v is column-major unless transpose
// is set, in which case v is row-major and is transposed into storage. The
// transpose is never delegated to the driver since not every target supports it.
func (bv *BoxedValue) SetMatrix(dim, count int, transpose bool, v []float32) {
	checkDims(KindMatrix, dim, count, len(v))
	dst := bv.prepare(KindMatrix, dim, count)
	n := dim * dim
	for m := 0; m < count; m++ {
		src := v[m*n : m*n+n]
		out := dst[m*n : m*n+n]
		for col := 0; col < dim; col++ {
			for row := 0; row < dim; row++ {
				if transpose {
					out[col*dim+row] = math32.Float32bits(src[row*dim+col])
				} else {
					out[col*dim+row] = math32.Float32bits(src[col*dim+row])
				}
			}
		}
	}
}

// SetMat2 sets a single mat2 from a row-major geometry matrix.
func (bv *BoxedValue) SetMat2(m ms2.Mat2) {
	arr := m.Array()
	bv.SetMatrix(2, 1, true, arr[:])
}

// SetMat3 sets a single mat3 from a row-major geometry matrix.
func (bv *BoxedValue) SetMat3(m ms3.Mat3) {
	arr := m.Array()
	bv.SetMatrix(3, 1, true, arr[:])
}

// SetMat4 sets a single mat4 from a row-major geometry matrix.
func (bv *BoxedValue) SetMat4(m ms3.Mat4) {
	arr := m.Array()
	bv.SetMatrix(4, 1, true, arr[:])
}

// prepare readies storage for the requested shape and returns it. A heap
// array is only reused when kind, size and count all match.
func (bv *BoxedValue) prepare(kind Kind, size, count int) []uint32 {
	elem := size
	if kind == KindMatrix {
		elem = size * size
	}
	if count == 1 {
		bv.heap = nil
	} else if bv.count <= 1 || bv.kind != kind || bv.size != size || bv.count != count {
		bv.heap = make([]uint32, elem*count)
	}
	bv.kind = kind
	bv.size = size
	bv.count = count
	if count == 1 {
		clear(bv.inline[:])
		return bv.inline[:elem]
	}
	return bv.heap
}

func checkDims(kind Kind, size, count, n int) {
	minSize := 1
	elem := size
	if kind == KindMatrix {
		minSize = 2
		elem = size * size
	}
	if size < minSize || size > 4 {
		panic("uniform: unsupported " + kind.String() + " size " + strconv.Itoa(size))
	} else if count < 1 {
		panic("uniform: zero or negative count")
	} else if n < elem*count {
		panic("uniform: value slice too short for size and count")
	}
}

// Equal reports whether a and b hold the same kind, shape and raw bits.
func Equal(a, b *BoxedValue) bool {
	if a.kind != b.kind {
		return false
	} else if a.kind == KindNone {
		return true
	}
	return a.size == b.size && a.count == b.count && slices.Equal(a.words(), b.words())
}

// Copy makes dst a deep copy of src.
func Copy(dst, src *BoxedValue) {
	*dst = *src
	if src.count > 1 {
		dst.heap = slices.Clone(src.heap)
	}
}

// Destroy releases any heap storage and resets bv to [KindNone].
// It is safe to call Destroy more than once.
func (bv *BoxedValue) Destroy() {
	*bv = BoxedValue{}
}

// Flush uploads bv to location. A value of [KindNone] is never uploaded.
func (bv *BoxedValue) Flush(up Uploader, location int32) error {
	switch bv.kind {
	case KindNone:
		return nil
	case KindInt:
		up.UniformIntv(location, bv.size, bv.count, bv.Ints())
	case KindFloat:
		up.UniformFloatv(location, bv.size, bv.count, bv.Floats())
	case KindMatrix:
		up.UniformMatrixv(location, bv.size, bv.count, bv.Floats())
	default:
		return ErrUnknownKind
	}
	return nil
}
