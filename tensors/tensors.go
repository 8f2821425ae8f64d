// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements dense in-memory tensors: the concrete payloads
// of graph attributes, initializers and propagated constant values.
//
// A Tensor is immutable by convention: constructors copy their input and
// accessors hand out the backing data only for reading. Values are stored
// flat, row-major, and serialize to the raw little-endian tensor encoding.
package tensors

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/gomlx/onnxgraph/types"
	"github.com/x448/float16"
)

// Tensor is a dense tensor: element type, dimensions and flat row-major
// data. The zero value is not usable; build tensors with the From*
// constructors or Zeros.
type Tensor struct {
	dtype dtypes.DType
	dims  []int64
	data  any // flat []T with T matching dtype
}

func checkDims(dims []int64) int64 {
	size := int64(1)
	for i, d := range dims {
		if d < 0 {
			exceptions.Panicf("tensors: dimension #%d is negative (%d)", i, d)
		}
		size *= d
	}
	return size
}

// FromScalar builds a rank-0 tensor holding value. Go int is stored as
// Int64.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	if v, ok := any(value).(int); ok {
		return &Tensor{dtype: dtypes.Int64, data: []int64{int64(v)}}
	}
	return &Tensor{dtype: dtypes.FromGenericsType[T](), data: []T{value}}
}

// FromFlatDataAndDimensions builds a tensor with the given dimensions from
// the flat row-major data, which is copied. The data length must match the
// product of the dimensions. Go int is stored as Int64.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int64) *Tensor {
	size := checkDims(dimensions)
	if int64(len(data)) != size {
		exceptions.Panicf("tensors: flat data has %d elements, dimensions %v require %d", len(data), dimensions, size)
	}
	t := &Tensor{dims: append([]int64(nil), dimensions...)}
	if ints, ok := any(data).([]int); ok {
		flat := make([]int64, len(ints))
		for i, v := range ints {
			flat[i] = int64(v)
		}
		t.dtype, t.data = dtypes.Int64, flat
		return t
	}
	flat := make([]T, len(data))
	copy(flat, data)
	t.dtype, t.data = dtypes.FromGenericsType[T](), flat
	return t
}

// Zeros builds a zero-initialized tensor of the given type and dimensions.
func Zeros(dtype dtypes.DType, dimensions ...int64) *Tensor {
	size := checkDims(dimensions)
	t := &Tensor{dtype: dtype, dims: append([]int64(nil), dimensions...)}
	switch dtype {
	case dtypes.Bool:
		t.data = make([]bool, size)
	case dtypes.Int8:
		t.data = make([]int8, size)
	case dtypes.Int16:
		t.data = make([]int16, size)
	case dtypes.Int32:
		t.data = make([]int32, size)
	case dtypes.Int64:
		t.data = make([]int64, size)
	case dtypes.Uint8:
		t.data = make([]uint8, size)
	case dtypes.Uint16:
		t.data = make([]uint16, size)
	case dtypes.Uint32:
		t.data = make([]uint32, size)
	case dtypes.Uint64:
		t.data = make([]uint64, size)
	case dtypes.Float16:
		t.data = make([]float16.Float16, size)
	case dtypes.BFloat16:
		t.data = make([]bfloat16.BFloat16, size)
	case dtypes.Float32:
		t.data = make([]float32, size)
	case dtypes.Float64:
		t.data = make([]float64, size)
	case dtypes.Complex64:
		t.data = make([]complex64, size)
	case dtypes.Complex128:
		t.data = make([]complex128, size)
	default:
		exceptions.Panicf("tensors: Zeros does not support data type %s", dtype)
	}
	return t
}

// FromValue builds a tensor from a Go scalar or (nested) slice. Slices must
// be rectangular. Go int maps to Int64 and uint to Uint64.
func FromValue(value any) *Tensor {
	switch v := value.(type) {
	case *Tensor:
		return v
	case bool:
		return FromScalar(v)
	case int:
		return FromScalar(int64(v))
	case int8:
		return FromScalar(v)
	case int16:
		return FromScalar(v)
	case int32:
		return FromScalar(v)
	case int64:
		return FromScalar(v)
	case uint:
		return FromScalar(uint64(v))
	case uint8:
		return FromScalar(v)
	case uint16:
		return FromScalar(v)
	case uint32:
		return FromScalar(v)
	case uint64:
		return FromScalar(v)
	case float32:
		return FromScalar(v)
	case float64:
		return FromScalar(v)
	case float16.Float16:
		return FromScalar(v)
	case bfloat16.BFloat16:
		return FromScalar(v)
	case complex64:
		return FromScalar(v)
	case complex128:
		return FromScalar(v)
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		exceptions.Panicf("tensors: FromValue does not support %T", value)
	}
	var dims []int64
	elem := rv.Type()
	for elem.Kind() == reflect.Slice || elem.Kind() == reflect.Array {
		elem = elem.Elem()
	}
	for v := rv; v.Kind() == reflect.Slice || v.Kind() == reflect.Array; {
		dims = append(dims, int64(v.Len()))
		if v.Len() == 0 {
			break
		}
		v = v.Index(0)
	}
	t := Zeros(dtypeForGoType(elem), dims...)
	flat := reflect.ValueOf(t.data)
	pos := 0
	fillFlat(rv, dims, flat, &pos, t.dtype)
	return t
}

func fillFlat(v reflect.Value, dims []int64, flat reflect.Value, pos *int, dtype dtypes.DType) {
	if len(dims) == 0 {
		elem := flat.Index(*pos)
		src := v
		// int and uint scalars widen to the 64-bit dtypes.
		if src.Type() != elem.Type() {
			src = src.Convert(elem.Type())
		}
		elem.Set(src)
		*pos++
		return
	}
	if int64(v.Len()) != dims[0] {
		exceptions.Panicf("tensors: FromValue slice is not rectangular: got length %d, want %d", v.Len(), dims[0])
	}
	for i := 0; i < v.Len(); i++ {
		fillFlat(v.Index(i), dims[1:], flat, pos, dtype)
	}
}

func dtypeForGoType(t reflect.Type) dtypes.DType {
	switch t {
	case reflect.TypeOf(float16.Float16(0)):
		return dtypes.Float16
	case reflect.TypeOf(bfloat16.BFloat16(0)):
		return dtypes.BFloat16
	}
	switch t.Kind() {
	case reflect.Bool:
		return dtypes.Bool
	case reflect.Int:
		return dtypes.Int64
	case reflect.Int8:
		return dtypes.Int8
	case reflect.Int16:
		return dtypes.Int16
	case reflect.Int32:
		return dtypes.Int32
	case reflect.Int64:
		return dtypes.Int64
	case reflect.Uint:
		return dtypes.Uint64
	case reflect.Uint8:
		return dtypes.Uint8
	case reflect.Uint16:
		return dtypes.Uint16
	case reflect.Uint32:
		return dtypes.Uint32
	case reflect.Uint64:
		return dtypes.Uint64
	case reflect.Float32:
		return dtypes.Float32
	case reflect.Float64:
		return dtypes.Float64
	case reflect.Complex64:
		return dtypes.Complex64
	case reflect.Complex128:
		return dtypes.Complex128
	}
	exceptions.Panicf("tensors: FromValue does not support element type %s", t)
	return dtypes.InvalidDType
}

// DType returns the element type.
func (t *Tensor) DType() dtypes.DType { return t.dtype }

// Dimensions returns a copy of the dimensions. Empty for scalars.
func (t *Tensor) Dimensions() []int64 { return append([]int64(nil), t.dims...) }

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.dims) }

// Size returns the number of elements.
func (t *Tensor) Size() int64 {
	size := int64(1)
	for _, d := range t.dims {
		size *= d
	}
	return size
}

// Memory returns the bytes needed to store the flat data.
func (t *Tensor) Memory() int64 { return t.Size() * int64(t.dtype.Memory()) }

// Type returns the fully known tensor type.
func (t *Tensor) Type() types.Tensor {
	return types.Tensor{DType: t.dtype, Shape: types.ShapeOfInts(t.dims...)}
}

// IsScalar reports whether the tensor has rank 0.
func (t *Tensor) IsScalar() bool { return len(t.dims) == 0 }

// WithShape returns a tensor sharing the flat data under new dimensions.
// The element count must be preserved.
func (t *Tensor) WithShape(dims ...int64) *Tensor {
	size := int64(1)
	for _, d := range dims {
		if d < 0 {
			exceptions.Panicf("tensors: WithShape with negative dimension %d", d)
		}
		size *= d
	}
	if size != t.Size() {
		exceptions.Panicf("tensors: WithShape(%v) changes element count of %s", dims, t)
	}
	return &Tensor{dtype: t.dtype, dims: append([]int64(nil), dims...), data: t.data}
}

// FlatData returns the flat row-major backing data. The slice is shared
// with the tensor and must be treated as read-only; it panics if T does not
// match the tensor's data type.
func FlatData[T dtypes.Supported](t *Tensor) []T {
	data, ok := t.data.([]T)
	if !ok {
		exceptions.Panicf("tensors: FlatData[%s] called on %s tensor", dtypes.FromGenericsType[T](), t.dtype)
	}
	return data
}

// Scalar returns the single element of a rank-0 tensor.
func Scalar[T dtypes.Supported](t *Tensor) T {
	if !t.IsScalar() {
		exceptions.Panicf("tensors: Scalar called on tensor of rank %d", t.Rank())
	}
	return FlatData[T](t)[0]
}

// Equal reports whether both tensors have the same type, dimensions and
// element-wise equal data. NaN elements compare unequal.
func (t *Tensor) Equal(other *Tensor) bool {
	if t == nil || other == nil {
		return t == other
	}
	if t.dtype != other.dtype || len(t.dims) != len(other.dims) {
		return false
	}
	for i, d := range t.dims {
		if other.dims[i] != d {
			return false
		}
	}
	return reflect.DeepEqual(t.data, other.data)
}

const maxStringElements = 12

// String implements fmt.Stringer. Small tensors print their values; large
// ones print the type and memory footprint instead.
func (t *Tensor) String() string {
	typ := t.Type().String()
	if t.Size() > maxStringElements {
		return fmt.Sprintf("%s (%s)", typ, humanize.Bytes(uint64(t.Memory())))
	}
	var sb strings.Builder
	sb.WriteString(typ)
	sb.WriteString(": [")
	rv := reflect.ValueOf(t.data)
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "%v", rv.Index(i).Interface())
	}
	sb.WriteString("]")
	return sb.String()
}
