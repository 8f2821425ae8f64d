// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package types

import (
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
)

type dimKind uint8

const (
	dimUnknown dimKind = iota
	dimKnown
	dimSymbolic
)

// Dim is one axis of a tensor shape: a known extent, a named symbolic
// extent (shared names denote equal extents), or fully unknown.
//
// The zero Dim is the unknown dimension.
type Dim struct {
	kind  dimKind
	value int64
	param string
}

// KnownDim returns a dimension with the given extent. Extents are
// non-negative; zero-sized axes are legal in ONNX.
func KnownDim(value int64) Dim {
	if value < 0 {
		exceptions.Panicf("types: dimension extent must be non-negative, got %d", value)
	}
	return Dim{kind: dimKnown, value: value}
}

// SymbolicDim returns a dimension identified by a non-empty parameter name.
// Two symbolic dimensions with the same name denote the same extent.
func SymbolicDim(name string) Dim {
	if name == "" {
		exceptions.Panicf("types: symbolic dimension requires a non-empty name")
	}
	return Dim{kind: dimSymbolic, param: name}
}

// UnknownDim returns the fully unconstrained dimension.
func UnknownDim() Dim { return Dim{} }

// IsKnown reports whether the dimension has a concrete extent.
func (d Dim) IsKnown() bool { return d.kind == dimKnown }

// IsSymbolic reports whether the dimension is a named parameter.
func (d Dim) IsSymbolic() bool { return d.kind == dimSymbolic }

// IsUnknown reports whether nothing is known about the dimension.
func (d Dim) IsUnknown() bool { return d.kind == dimUnknown }

// Value returns the concrete extent. It panics unless IsKnown.
func (d Dim) Value() int64 {
	if d.kind != dimKnown {
		exceptions.Panicf("types: Dim.Value called on %s dimension", d)
	}
	return d.value
}

// Param returns the symbolic parameter name. It panics unless IsSymbolic.
func (d Dim) Param() string {
	if d.kind != dimSymbolic {
		exceptions.Panicf("types: Dim.Param called on %s dimension", d)
	}
	return d.param
}

// Equal reports whether the dimensions carry the same constraint.
func (d Dim) Equal(other Dim) bool { return d == other }

// String implements fmt.Stringer: the extent, the parameter name, or "?".
func (d Dim) String() string {
	switch d.kind {
	case dimKnown:
		return strconv.FormatInt(d.value, 10)
	case dimSymbolic:
		return d.param
	}
	return "?"
}

// Shape is the (possibly partial) shape of a tensor: either unranked, or a
// fixed-rank list of dimensions each of which may be known, symbolic or
// unknown. Shapes are immutable values.
//
// The zero Shape is the unranked shape; use MakeShape (with no arguments)
// for scalars.
type Shape struct {
	dims    []Dim
	hasRank bool
}

// MakeShape builds a ranked shape. Each dimension may be given as an int,
// int32 or int64 (known extent), a string (symbolic name), nil (unknown),
// or a Dim. MakeShape() is the scalar shape.
func MakeShape(dims ...any) Shape {
	out := Shape{dims: make([]Dim, len(dims)), hasRank: true}
	for i, dim := range dims {
		switch v := dim.(type) {
		case nil:
			out.dims[i] = UnknownDim()
		case int:
			out.dims[i] = KnownDim(int64(v))
		case int32:
			out.dims[i] = KnownDim(int64(v))
		case int64:
			out.dims[i] = KnownDim(v)
		case string:
			out.dims[i] = SymbolicDim(v)
		case Dim:
			out.dims[i] = v
		default:
			exceptions.Panicf("types: MakeShape dimension #%d has unsupported type %T", i, dim)
		}
	}
	return out
}

// ShapeOfInts builds a fully known shape from integer extents.
func ShapeOfInts(dims ...int64) Shape {
	out := Shape{dims: make([]Dim, len(dims)), hasRank: true}
	for i, v := range dims {
		out.dims[i] = KnownDim(v)
	}
	return out
}

// Unranked returns the shape about which nothing is known, not even the rank.
func Unranked() Shape { return Shape{} }

// HasRank reports whether the rank of the shape is known.
func (s Shape) HasRank() bool { return s.hasRank }

// Rank returns the number of axes, or -1 for unranked shapes.
func (s Shape) Rank() int {
	if !s.hasRank {
		return -1
	}
	return len(s.dims)
}

// IsScalar reports whether the shape is the rank-0 shape.
func (s Shape) IsScalar() bool { return s.hasRank && len(s.dims) == 0 }

// Dims returns a copy of the dimensions. It is empty for scalars and for
// unranked shapes; disambiguate with HasRank.
func (s Shape) Dims() []Dim {
	out := make([]Dim, len(s.dims))
	copy(out, s.dims)
	return out
}

// Dim returns the dimension of the given axis. Negative axes count from the
// end, as in Dim(-1) for the last axis.
func (s Shape) Dim(axis int) Dim {
	if !s.hasRank {
		exceptions.Panicf("types: Shape.Dim called on unranked shape")
	}
	adjusted := axis
	if adjusted < 0 {
		adjusted += len(s.dims)
	}
	if adjusted < 0 || adjusted >= len(s.dims) {
		exceptions.Panicf("types: Shape.Dim axis %d out of range for rank %d", axis, len(s.dims))
	}
	return s.dims[adjusted]
}

// Known returns the extents when every dimension is known.
func (s Shape) Known() ([]int64, bool) {
	if !s.hasRank {
		return nil, false
	}
	out := make([]int64, len(s.dims))
	for i, d := range s.dims {
		if !d.IsKnown() {
			return nil, false
		}
		out[i] = d.value
	}
	return out, true
}

// NumElements returns the total element count when the shape is fully known.
func (s Shape) NumElements() (int64, bool) {
	dims, ok := s.Known()
	if !ok {
		return 0, false
	}
	n := int64(1)
	for _, d := range dims {
		n *= d
	}
	return n, true
}

// Equal reports exact equality: same rankedness, rank and per-axis
// constraints, including symbolic names.
func (s Shape) Equal(other Shape) bool {
	if s.hasRank != other.hasRank {
		return false
	}
	if !s.hasRank {
		return true
	}
	if len(s.dims) != len(other.dims) {
		return false
	}
	for i, d := range s.dims {
		if d != other.dims[i] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer. Examples: "[2 batch ?]", "[]" for
// scalars, "[...]" for unranked shapes.
func (s Shape) String() string {
	if !s.hasRank {
		return "[...]"
	}
	parts := make([]string, len(s.dims))
	for i, d := range s.dims {
		parts[i] = d.String()
	}
	return "[" + strings.Join(parts, " ") + "]"
}
