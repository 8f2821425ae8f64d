// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ops provides constructors for the standard operators the library
// serializes, each applying eager type inference and, where it is cheap,
// constant value propagation.
//
// Constructors panic (wrapping graph.ErrInference) when input types are
// incompatible; convert panics to errors with exceptions.TryCatch at API
// boundaries. Untyped inputs, as found inside function bodies, are always
// accepted and yield untyped outputs.
//
// The set is curated, not a full operator registry: arithmetic,
// comparisons, shape surgery and the two control flow operators, pinned at
// the versions of operator set 17.
package ops

import (
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
)

// opSpec is the graph.OpSpec shared by the package's constructors: a
// default-domain operator whose inference closes over the constructor's
// parameters.
type opSpec struct {
	name    string
	version int64
	infer   func(inputs []*graph.Value, attrs []graph.Attr) ([]types.Type, error)
}

func (s opSpec) OpType() graph.OpType {
	return graph.OpType{Name: s.name, Version: s.version}
}

func (s opSpec) InferOutputTypes(inputs []*graph.Value, attrs []graph.Attr) ([]types.Type, error) {
	return s.infer(inputs, attrs)
}

// propSpec adds folding over constant inputs.
type propSpec struct {
	opSpec
	prop func(inputs []*tensors.Tensor, attrs []graph.Attr) []*tensors.Tensor
}

func (s propSpec) PropagateValues(inputs []*tensors.Tensor, attrs []graph.Attr) []*tensors.Tensor {
	return s.prop(inputs, attrs)
}

// staticSpec adds output derivation from the input types alone.
type staticSpec struct {
	opSpec
	static func(inputs []*graph.Value, attrs []graph.Attr) []*tensors.Tensor
}

func (s staticSpec) PropagateStatic(inputs []*graph.Value, attrs []graph.Attr) []*tensors.Tensor {
	return s.static(inputs, attrs)
}

// Const embeds value as a Constant node: a *tensors.Tensor, a Go scalar
// or a nested slice, per tensors.FromValue.
func Const(value any) *graph.Value {
	return graph.Constant(tensors.FromValue(value))
}

// tensorIn resolves input #i as a tensor type. ok is false when the value
// is untyped, which inference tolerates throughout.
func tensorIn(inputs []*graph.Value, i int, what string) (types.Tensor, bool, error) {
	if i >= len(inputs) || inputs[i] == nil {
		return types.Tensor{}, false, errors.Errorf("missing %s input", what)
	}
	typ := inputs[i].Type()
	if typ == nil {
		return types.Tensor{}, false, nil
	}
	t, ok := typ.(types.Tensor)
	if !ok {
		return types.Tensor{}, false, errors.Errorf("%s input must be a tensor, got %s", what, typ)
	}
	return t, true, nil
}

// untyped is the inference result of single-output operators whose inputs
// do not determine a type.
func untyped() ([]types.Type, error) {
	return []types.Type{nil}, nil
}

func anyNumeric(dt dtypes.DType) error {
	if dt == dtypes.Bool {
		return errors.New("booleans have no arithmetic")
	}
	return nil
}

func boolOnly(dt dtypes.DType) error {
	if dt != dtypes.Bool {
		return errors.Errorf("requires boolean elements, got %s", dt)
	}
	return nil
}

// inferBroadcastBinary infers a binary elementwise operator: both inputs
// share an element type passing check (nil check accepts every type), the
// shapes broadcast together, and the result elements are boolean for
// comparisons.
func inferBroadcastBinary(check func(dtypes.DType) error, boolOut bool) func([]*graph.Value, []graph.Attr) ([]types.Type, error) {
	return func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
		at, aok, err := tensorIn(inputs, 0, "left")
		if err != nil {
			return nil, err
		}
		bt, bok, err := tensorIn(inputs, 1, "right")
		if err != nil {
			return nil, err
		}
		if !aok || !bok {
			return untyped()
		}
		if at.DType != bt.DType {
			return nil, errors.Errorf("element types differ: %s vs %s", at.DType, bt.DType)
		}
		if check != nil {
			if err := check(at.DType); err != nil {
				return nil, err
			}
		}
		shape, err := broadcastShapes(at.Shape, bt.Shape)
		if err != nil {
			return nil, err
		}
		dt := at.DType
		if boolOut {
			dt = dtypes.Bool
		}
		return []types.Type{types.Tensor{DType: dt, Shape: shape}}, nil
	}
}

// broadcastShapes merges two shapes under the multidirectional rule:
// align right, missing leading axes count as 1, a 1 takes the other
// side's extent. Unknown extents resolve to the other side whenever that
// side cannot be 1, since a valid execution then forces the result.
func broadcastShapes(a, b types.Shape) (types.Shape, error) {
	if !a.HasRank() || !b.HasRank() {
		return types.Unranked(), nil
	}
	ad, bd := a.Dims(), b.Dims()
	rank := max(len(ad), len(bd))
	out := make([]any, rank)
	for i := range out {
		da, db := types.KnownDim(1), types.KnownDim(1)
		if j := i - (rank - len(ad)); j >= 0 {
			da = ad[j]
		}
		if j := i - (rank - len(bd)); j >= 0 {
			db = bd[j]
		}
		d, err := broadcastDim(da, db)
		if err != nil {
			return types.Shape{}, errors.WithMessagef(err, "cannot broadcast %s with %s at axis %d", a, b, i)
		}
		out[i] = d
	}
	return types.MakeShape(out...), nil
}

func broadcastDim(a, b types.Dim) (types.Dim, error) {
	switch {
	case a.Equal(b):
		return a, nil
	case a.IsKnown() && a.Value() == 1:
		return b, nil
	case b.IsKnown() && b.Value() == 1:
		return a, nil
	case a.IsKnown() && b.IsKnown():
		return types.Dim{}, errors.Errorf("extents %d and %d", a.Value(), b.Value())
	case a.IsKnown():
		return a, nil
	case b.IsKnown():
		return b, nil
	case a.IsSymbolic() != b.IsSymbolic():
		if a.IsSymbolic() {
			return a, nil
		}
		return b, nil
	}
	return types.UnknownDim(), nil
}

// normAxis resolves a possibly negative axis against a known rank.
func normAxis(axis int64, rank int, what string) (int, error) {
	a := axis
	if a < 0 {
		a += int64(rank)
	}
	if a < 0 || a >= int64(rank) {
		return 0, errors.Errorf("%s axis %d out of range for rank %d", what, axis, rank)
	}
	return int(a), nil
}

// dimsShape rebuilds a ranked shape from a dimension list.
func dimsShape(dims []types.Dim) types.Shape {
	out := make([]any, len(dims))
	for i, d := range dims {
		out[i] = d
	}
	return types.MakeShape(out...)
}

// constOf returns the propagated constant of input #i, nil when absent
// or unknown.
func constOf(inputs []*graph.Value, i int) *tensors.Tensor {
	if i >= len(inputs) || inputs[i] == nil {
		return nil
	}
	return inputs[i].Const()
}

// int64Vector reads a 1-D Int64 tensor, the form of every axes and shape
// operand.
func int64Vector(t *tensors.Tensor) ([]int64, bool) {
	if t == nil || t.DType() != dtypes.Int64 || t.Rank() != 1 {
		return nil, false
	}
	return tensors.FlatData[int64](t), true
}

// checkIndexVector validates the type of an axes-style input: a 1-D
// Int64 tensor, when the type is known at all.
func checkIndexVector(t types.Tensor, what string) error {
	if t.DType != dtypes.Int64 {
		return errors.Errorf("%s input must have Int64 elements, got %s", what, t.DType)
	}
	if t.Shape.HasRank() && t.Shape.Rank() != 1 {
		return errors.Errorf("%s input must be 1-D, got rank %d", what, t.Shape.Rank())
	}
	return nil
}

// checkScalar validates a scalar operand of the given element type where
// the shape is known; single-element vectors pass, matching the leniency
// of the runtimes.
func checkScalar(t types.Tensor, dt dtypes.DType, what string) error {
	if t.DType != dt {
		return errors.Errorf("%s must have %s elements, got %s", what, dt, t.DType)
	}
	if !t.Shape.HasRank() {
		return nil
	}
	switch t.Shape.Rank() {
	case 0:
		return nil
	case 1:
		d := t.Shape.Dim(0)
		if d.IsKnown() && d.Value() != 1 {
			return errors.Errorf("%s must be a scalar, got %s", what, t.Shape)
		}
		return nil
	}
	return errors.Errorf("%s must be a scalar, got %s", what, t.Shape)
}
