// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package types models the value types flowing through a computation graph:
// tensors with partially known shapes, and the sequence, optional and map
// composites built from them.
//
// Types are immutable values. Element types are dtypes.DType from gopjrt,
// the same enum used across the GoMLX projects; string tensors of the ONNX
// format have no DType counterpart and are not supported.
//
// A nil Type is the "untyped" marker: it appears only on values inside
// function bodies, whose concrete types are bound per call site.
package types

import (
	"fmt"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/protos"
)

// Type is the symbolic type of a graph value. Implementations are Tensor,
// Sequence, Optional and Map.
type Type interface {
	fmt.Stringer

	// ToProto converts to the serialized type message.
	ToProto() *protos.TypeProto

	// variant names the type constructor, for error messages and
	// variant-equality checks.
	variant() string
}

// Tensor is a dense tensor type: element type plus (partial) shape.
type Tensor struct {
	DType dtypes.DType
	Shape Shape
}

// Sequence is a homogeneous ordered collection of values of Elem type.
type Sequence struct {
	Elem Type
}

// Optional wraps a type whose values may be absent at runtime.
type Optional struct {
	Elem Type
}

// Map associates keys of an integral DType with values of a fixed type.
type Map struct {
	Key   dtypes.DType
	Value Type
}

// MakeTensor builds a ranked tensor type. Dimensions follow the MakeShape
// conventions: int/int32/int64 for known extents, string for symbolic
// names, nil for unknown. MakeTensor(dtype) is the scalar type.
func MakeTensor(dtype dtypes.DType, dims ...any) Tensor {
	checkDType(dtype)
	return Tensor{DType: dtype, Shape: MakeShape(dims...)}
}

// MakeScalar builds a rank-0 tensor type.
func MakeScalar(dtype dtypes.DType) Tensor { return MakeTensor(dtype) }

// MakeUnranked builds a tensor type with unknown rank.
func MakeUnranked(dtype dtypes.DType) Tensor {
	checkDType(dtype)
	return Tensor{DType: dtype, Shape: Unranked()}
}

// MakeSequence builds the sequence type over elem.
func MakeSequence(elem Type) Sequence {
	if elem == nil {
		exceptions.Panicf("types: sequence element type must not be nil")
	}
	return Sequence{Elem: elem}
}

// MakeOptional builds the optional type over elem.
func MakeOptional(elem Type) Optional {
	if elem == nil {
		exceptions.Panicf("types: optional element type must not be nil")
	}
	return Optional{Elem: elem}
}

// MakeMap builds a map type. Keys must be an integral DType.
func MakeMap(key dtypes.DType, value Type) Map {
	checkDType(key)
	if !key.IsInt() {
		exceptions.Panicf("types: map key type must be integral, got %s", key)
	}
	if value == nil {
		exceptions.Panicf("types: map value type must not be nil")
	}
	return Map{Key: key, Value: value}
}

func checkDType(dtype dtypes.DType) {
	if _, ok := dtypeToProto[dtype]; !ok {
		exceptions.Panicf("types: data type %s has no serialized form", dtype)
	}
}

func (Tensor) variant() string   { return "Tensor" }
func (Sequence) variant() string { return "Sequence" }
func (Optional) variant() string { return "Optional" }
func (Map) variant() string      { return "Map" }

// String implements fmt.Stringer, e.g. "Float32[2 batch ?]".
func (t Tensor) String() string { return t.DType.String() + t.Shape.String() }

// String implements fmt.Stringer.
func (s Sequence) String() string { return "Seq(" + typeString(s.Elem) + ")" }

// String implements fmt.Stringer.
func (o Optional) String() string { return "Optional(" + typeString(o.Elem) + ")" }

// String implements fmt.Stringer.
func (m Map) String() string {
	return "Map(" + m.Key.String() + ", " + typeString(m.Value) + ")"
}

func typeString(t Type) string {
	if t == nil {
		return "<untyped>"
	}
	return t.String()
}

// Equal reports exact structural equality of two types. Two nil types are
// equal; symbolic dimension names must match literally.
func Equal(a, b Type) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch at := a.(type) {
	case Tensor:
		bt, ok := b.(Tensor)
		return ok && at.DType == bt.DType && at.Shape.Equal(bt.Shape)
	case Sequence:
		bt, ok := b.(Sequence)
		return ok && Equal(at.Elem, bt.Elem)
	case Optional:
		bt, ok := b.(Optional)
		return ok && Equal(at.Elem, bt.Elem)
	case Map:
		bt, ok := b.(Map)
		return ok && at.Key == bt.Key && Equal(at.Value, bt.Value)
	}
	exceptions.Panicf("types: Equal does not handle %T", a)
	return false
}

// Accepts reports whether a value of type found can bind where want is
// expected. Variant and element types must match exactly; want's unknown
// rank accepts any shape, want's unknown dimensions accept any extent, and
// want's symbolic dimensions accept the same symbol or any known extent
// (the symbol binds to it). A nil want accepts anything, including nil.
func Accepts(want, found Type) bool {
	if want == nil {
		return true
	}
	if found == nil {
		return false
	}
	switch wt := want.(type) {
	case Tensor:
		ft, ok := found.(Tensor)
		if !ok || wt.DType != ft.DType {
			return false
		}
		return shapeAccepts(wt.Shape, ft.Shape)
	case Sequence:
		ft, ok := found.(Sequence)
		return ok && Accepts(wt.Elem, ft.Elem)
	case Optional:
		ft, ok := found.(Optional)
		return ok && Accepts(wt.Elem, ft.Elem)
	case Map:
		ft, ok := found.(Map)
		return ok && wt.Key == ft.Key && Accepts(wt.Value, ft.Value)
	}
	exceptions.Panicf("types: Accepts does not handle %T", want)
	return false
}

func shapeAccepts(want, found Shape) bool {
	if !want.HasRank() {
		return true
	}
	if !found.HasRank() || want.Rank() != found.Rank() {
		return false
	}
	for i, wd := range want.dims {
		fd := found.dims[i]
		switch wd.kind {
		case dimUnknown:
			// Accepts anything.
		case dimKnown:
			if !fd.IsKnown() || fd.value != wd.value {
				return false
			}
		case dimSymbolic:
			if fd.IsUnknown() {
				return false
			}
			if fd.IsSymbolic() && fd.param != wd.param {
				return false
			}
		}
	}
	return true
}
