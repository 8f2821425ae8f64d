// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ops

import (
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
)

// Not returns the elementwise negation of a boolean tensor.
func Not(x *graph.Value) *graph.Value {
	infer := func(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
		xt, ok, err := tensorIn(inputs, 0, "operand")
		if err != nil {
			return nil, err
		}
		if !ok {
			return untyped()
		}
		if err := boolOnly(xt.DType); err != nil {
			return nil, err
		}
		return []types.Type{xt}, nil
	}
	s := opSpec{name: "Not", version: 1, infer: infer}
	return graph.Apply1(s, []*graph.Value{x}, nil)
}

// And returns the elementwise conjunction of two boolean tensors, with
// multidirectional broadcasting.
func And(a, b *graph.Value) *graph.Value {
	s := opSpec{name: "And", version: 7, infer: inferBroadcastBinary(boolOnly, true)}
	return graph.Apply1(s, []*graph.Value{a, b}, nil)
}

// Or returns the elementwise disjunction of two boolean tensors, with
// multidirectional broadcasting.
func Or(a, b *graph.Value) *graph.Value {
	s := opSpec{name: "Or", version: 7, infer: inferBroadcastBinary(boolOnly, true)}
	return graph.Apply1(s, []*graph.Value{a, b}, nil)
}

// Equal compares a and b elementwise, with multidirectional broadcasting.
func Equal(a, b *graph.Value) *graph.Value {
	s := opSpec{name: "Equal", version: 13, infer: inferBroadcastBinary(nil, true)}
	return graph.Apply1(s, []*graph.Value{a, b}, nil)
}

// Less compares a and b elementwise, with multidirectional broadcasting.
func Less(a, b *graph.Value) *graph.Value {
	return compare("Less", 13, a, b)
}

// Greater compares a and b elementwise, with multidirectional
// broadcasting.
func Greater(a, b *graph.Value) *graph.Value {
	return compare("Greater", 13, a, b)
}

// LessOrEqual compares a and b elementwise, with multidirectional
// broadcasting.
func LessOrEqual(a, b *graph.Value) *graph.Value {
	return compare("LessOrEqual", 16, a, b)
}

// GreaterOrEqual compares a and b elementwise, with multidirectional
// broadcasting.
func GreaterOrEqual(a, b *graph.Value) *graph.Value {
	return compare("GreaterOrEqual", 16, a, b)
}

func compare(name string, version int64, a, b *graph.Value) *graph.Value {
	s := opSpec{name: name, version: version, infer: inferBroadcastBinary(anyNumeric, true)}
	return graph.Apply1(s, []*graph.Value{a, b}, nil)
}

// Where selects elementwise from x where cond holds and from y where it
// does not, broadcasting all three operands together.
func Where(cond, x, y *graph.Value) *graph.Value {
	s := opSpec{name: "Where", version: 16, infer: inferWhere}
	return graph.Apply1(s, []*graph.Value{cond, x, y}, nil)
}

func inferWhere(inputs []*graph.Value, _ []graph.Attr) ([]types.Type, error) {
	ct, cok, err := tensorIn(inputs, 0, "condition")
	if err != nil {
		return nil, err
	}
	xt, xok, err := tensorIn(inputs, 1, "true-branch")
	if err != nil {
		return nil, err
	}
	yt, yok, err := tensorIn(inputs, 2, "false-branch")
	if err != nil {
		return nil, err
	}
	if cok {
		if err := boolOnly(ct.DType); err != nil {
			return nil, errors.WithMessage(err, "condition")
		}
	}
	if !cok || !xok || !yok {
		return untyped()
	}
	if xt.DType != yt.DType {
		return nil, errors.Errorf("branch element types differ: %s vs %s", xt.DType, yt.DType)
	}
	shape, err := broadcastShapes(xt.Shape, yt.Shape)
	if err != nil {
		return nil, err
	}
	shape, err = broadcastShapes(shape, ct.Shape)
	if err != nil {
		return nil, err
	}
	return []types.Type{types.Tensor{DType: xt.DType, Shape: shape}}, nil
}
