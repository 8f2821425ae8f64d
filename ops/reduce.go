// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/types"
)

// ReduceSum sums data over the axes named by the optional 1-D Int64
// axes operand. A nil axes operand reduces every axis, unless
// noopWithEmptyAxes makes it the identity instead. With keepDims the
// reduced axes stay as 1-extents, otherwise they are removed.
func ReduceSum(data, axes *graph.Value, keepDims, noopWithEmptyAxes bool) *graph.Value {
	inputs := []*graph.Value{data}
	if axes != nil {
		inputs = append(inputs, axes)
	}
	var attrs []graph.Attr
	if !keepDims {
		attrs = append(attrs, graph.Attr{Name: "keepdims", Value: graph.Int(0)})
	}
	if noopWithEmptyAxes {
		attrs = append(attrs, graph.Attr{Name: "noop_with_empty_axes", Value: graph.Int(1)})
	}
	s := opSpec{name: "ReduceSum", version: 13, infer: inferReduce(keepDims, noopWithEmptyAxes)}
	return graph.Apply1(s, inputs, attrs)
}

func inferReduce(keepDims, noop bool) func([]*graph.Value, []graph.Attr) ([]types.Type, error) {
	return func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
		dt, dok, err := tensorIn(inputs, 0, "data")
		if err != nil {
			return nil, err
		}
		hasAxes := len(inputs) > 1
		var at types.Tensor
		var aok bool
		if hasAxes {
			at, aok, err = tensorIn(inputs, 1, "axes")
			if err != nil {
				return nil, err
			}
			if aok {
				if err := checkIndexVector(at, "axes"); err != nil {
					return nil, err
				}
			}
		}
		if !dok {
			return untyped()
		}
		axes, axesConst := int64Vector(constOf(inputs, 1))
		if !hasAxes || (axesConst && len(axes) == 0) {
			if noop {
				return []types.Type{types.Tensor{DType: dt.DType, Shape: dt.Shape}}, nil
			}
			// Reduce everything.
			if !keepDims {
				return []types.Type{types.MakeScalar(dt.DType)}, nil
			}
			if !dt.Shape.HasRank() {
				return []types.Type{types.MakeUnranked(dt.DType)}, nil
			}
			ones := make([]types.Dim, dt.Shape.Rank())
			for i := range ones {
				ones[i] = types.KnownDim(1)
			}
			return []types.Type{types.Tensor{DType: dt.DType, Shape: dimsShape(ones)}}, nil
		}
		if !dt.Shape.HasRank() {
			return []types.Type{types.MakeUnranked(dt.DType)}, nil
		}
		rank := dt.Shape.Rank()
		dims := dt.Shape.Dims()
		if axesConst {
			reduce := make([]bool, rank)
			for _, a := range axes {
				ax, err := normAxis(a, rank, "reduction")
				if err != nil {
					return nil, err
				}
				reduce[ax] = true
			}
			var out []types.Dim
			for i, d := range dims {
				switch {
				case !reduce[i]:
					out = append(out, d)
				case keepDims:
					out = append(out, types.KnownDim(1))
				}
			}
			return []types.Type{types.Tensor{DType: dt.DType, Shape: dimsShape(out)}}, nil
		}
		// Unknown axes values. With keepDims the rank survives, without
		// it even the rank depends on them.
		if keepDims {
			out := make([]any, rank)
			return []types.Type{types.Tensor{DType: dt.DType, Shape: types.MakeShape(out...)}}, nil
		}
		return []types.Type{types.MakeUnranked(dt.DType)}, nil
	}
}
