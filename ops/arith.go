// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"slices"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
)

// Add returns the elementwise sum of a and b, with multidirectional
// broadcasting.
func Add(a, b *graph.Value) *graph.Value {
	return arith("Add", a, b, arithKernel{
		i64: func(x, y int64) int64 { return x + y },
		f32: func(x, y float32) float32 { return x + y },
	})
}

// Sub returns the elementwise difference of a and b, with
// multidirectional broadcasting.
func Sub(a, b *graph.Value) *graph.Value {
	return arith("Sub", a, b, arithKernel{
		i64: func(x, y int64) int64 { return x - y },
		f32: func(x, y float32) float32 { return x - y },
	})
}

// Mul returns the elementwise product of a and b, with multidirectional
// broadcasting.
func Mul(a, b *graph.Value) *graph.Value {
	return arith("Mul", a, b, arithKernel{
		i64: func(x, y int64) int64 { return x * y },
		f32: func(x, y float32) float32 { return x * y },
	})
}

// Div returns the elementwise quotient of a and b, with multidirectional
// broadcasting. Integer division truncates toward zero.
func Div(a, b *graph.Value) *graph.Value {
	return arith("Div", a, b, arithKernel{
		i64: func(x, y int64) int64 { return x / y },
		f32: func(x, y float32) float32 { return x / y },
	})
}

func arith(name string, a, b *graph.Value, k arithKernel) *graph.Value {
	s := propSpec{
		opSpec: opSpec{name: name, version: 14, infer: inferBroadcastBinary(anyNumeric, false)},
		prop:   k.fold,
	}
	return graph.Apply1(s, []*graph.Value{a, b}, nil)
}

// arithKernel folds Int64 and Float32 arithmetic over constant inputs,
// covering same-shaped operands and scalar broadcasts. That is what the
// shape plumbing needs; the interpreter carries the full kernels.
type arithKernel struct {
	i64 func(x, y int64) int64
	f32 func(x, y float32) float32
}

func (k arithKernel) fold(inputs []*tensors.Tensor, _ []graph.Attr) []*tensors.Tensor {
	if len(inputs) != 2 || inputs[0] == nil || inputs[1] == nil {
		return nil
	}
	a, b := inputs[0], inputs[1]
	if a.DType() != b.DType() {
		return nil
	}
	var out *tensors.Tensor
	switch a.DType() {
	case dtypes.Int64:
		out = foldElementwise(a, b, k.i64)
	case dtypes.Float32:
		out = foldElementwise(a, b, k.f32)
	default:
		return nil
	}
	if out == nil {
		return nil
	}
	return []*tensors.Tensor{out}
}

func foldElementwise[T int64 | float32](a, b *tensors.Tensor, f func(T, T) T) *tensors.Tensor {
	ad, bd := tensors.FlatData[T](a), tensors.FlatData[T](b)
	switch {
	case slices.Equal(a.Dimensions(), b.Dimensions()):
		out := make([]T, len(ad))
		for i := range out {
			out[i] = f(ad[i], bd[i])
		}
		return tensors.FromFlatDataAndDimensions(out, a.Dimensions()...)
	case a.IsScalar():
		out := make([]T, len(bd))
		for i := range out {
			out[i] = f(ad[0], bd[i])
		}
		return tensors.FromFlatDataAndDimensions(out, b.Dimensions()...)
	case b.IsScalar():
		out := make([]T, len(ad))
		for i := range out {
			out[i] = f(ad[i], bd[0])
		}
		return tensors.FromFlatDataAndDimensions(out, a.Dimensions()...)
	}
	return nil
}

// Mod returns the elementwise remainder of a divided by b. With fmod the
// sign follows the dividend, C-style; without it the sign follows the
// divisor, and floating point elements are rejected.
func Mod(a, b *graph.Value, fmod bool) *graph.Value {
	check := func(dt dtypes.DType) error {
		if dt == dtypes.Bool {
			return errors.New("booleans have no arithmetic")
		}
		if dt.IsFloat() && !fmod {
			return errors.Errorf("%s elements require fmod", dt)
		}
		return nil
	}
	var attrs []graph.Attr
	if fmod {
		attrs = append(attrs, graph.Attr{Name: "fmod", Value: graph.Int(1)})
	}
	s := opSpec{name: "Mod", version: 13, infer: inferBroadcastBinary(check, false)}
	return graph.Apply1(s, []*graph.Value{a, b}, attrs)
}

// MatMul returns the matrix product of a and b, with numpy semantics:
// stacks of matrices broadcast over the leading axes, and 1-D operands
// are promoted to matrices and the extra axis dropped from the result.
func MatMul(a, b *graph.Value) *graph.Value {
	s := opSpec{name: "MatMul", version: 13, infer: inferMatMul}
	return graph.Apply1(s, []*graph.Value{a, b}, nil)
}

func inferMatMul(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
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
	if err := anyNumeric(at.DType); err != nil {
		return nil, err
	}
	if !at.Shape.HasRank() || !bt.Shape.HasRank() {
		return []types.Type{types.MakeUnranked(at.DType)}, nil
	}
	if at.Shape.IsScalar() || bt.Shape.IsScalar() {
		return nil, errors.New("operands must have rank 1 or higher")
	}
	ad, bd := at.Shape.Dims(), bt.Shape.Dims()
	aVec, bVec := len(ad) == 1, len(bd) == 1
	if aVec {
		ad = append([]types.Dim{types.KnownDim(1)}, ad...)
	}
	if bVec {
		bd = append(bd, types.KnownDim(1))
	}
	ka, kb := ad[len(ad)-1], bd[len(bd)-2]
	if ka.IsKnown() && kb.IsKnown() && ka.Value() != kb.Value() {
		return nil, errors.Errorf("contraction extents differ: %d vs %d", ka.Value(), kb.Value())
	}
	batch, err := broadcastShapes(dimsShape(ad[:len(ad)-2]), dimsShape(bd[:len(bd)-2]))
	if err != nil {
		return nil, errors.WithMessage(err, "stack dimensions")
	}
	out := make([]any, 0, batch.Rank()+2)
	for _, d := range batch.Dims() {
		out = append(out, d)
	}
	if !aVec {
		out = append(out, ad[len(ad)-2])
	}
	if !bVec {
		out = append(out, bd[len(bd)-1])
	}
	return []types.Type{types.Tensor{DType: at.DType, Shape: types.MakeShape(out...)}}, nil
}
