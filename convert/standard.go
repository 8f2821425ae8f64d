// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package convert

import (
	"math"
	"slices"

	"github.com/pkg/errors"

	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/ops"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
)

// Standard returns a registry covering the builtin operator constructors.
// Axis-carrying operators are registered at two versions: opset 13 moved
// their axes from attributes to inputs, and both serialized forms appear in
// circulating models. Control flow is not covered, since importing If and
// Loop means rebuilding their subgraphs and the adapter callback carries no
// scope for that; an importer handles those nodes itself.
func Standard() *Registry {
	r := NewRegistry()
	for name, f := range map[string]func(a, b *graph.Value) *graph.Value{
		"Add":            ops.Add,
		"Sub":            ops.Sub,
		"Mul":            ops.Mul,
		"Div":            ops.Div,
		"MatMul":         ops.MatMul,
		"And":            ops.And,
		"Or":             ops.Or,
		"Equal":          ops.Equal,
		"Less":           ops.Less,
		"Greater":        ops.Greater,
		"LessOrEqual":    ops.LessOrEqual,
		"GreaterOrEqual": ops.GreaterOrEqual,
	} {
		r.Register(graph.OpType{Name: name, Version: 1}, binary(f))
	}
	r.Register(graph.OpType{Name: "Identity", Version: 1}, unary(ops.Identity))
	r.Register(graph.OpType{Name: "Not", Version: 1}, unary(ops.Not))
	r.Register(graph.OpType{Name: "Shape", Version: 1}, convertShape)
	r.Register(graph.OpType{Name: "Size", Version: 1}, unary(ops.Size))
	r.Register(graph.OpType{Name: "Mod", Version: 1}, convertMod)
	r.Register(graph.OpType{Name: "Where", Version: 1}, convertWhere)
	r.Register(graph.OpType{Name: "Cast", Version: 1}, convertCast)
	r.Register(graph.OpType{Name: "Constant", Version: 1}, convertConstant)
	r.Register(graph.OpType{Name: "Reshape", Version: 5}, convertReshape)
	r.Register(graph.OpType{Name: "Concat", Version: 1}, convertConcat)
	r.Register(graph.OpType{Name: "Squeeze", Version: 1}, convertSqueezeAxesAttr)
	r.Register(graph.OpType{Name: "Squeeze", Version: 13}, convertSqueeze)
	r.Register(graph.OpType{Name: "Unsqueeze", Version: 1}, convertUnsqueezeAxesAttr)
	r.Register(graph.OpType{Name: "Unsqueeze", Version: 13}, convertUnsqueeze)
	r.Register(graph.OpType{Name: "ReduceSum", Version: 1}, convertReduceSumAxesAttr)
	r.Register(graph.OpType{Name: "ReduceSum", Version: 13}, convertReduceSum)
	r.Register(graph.OpType{Name: "Split", Version: 1}, convertSplitAttr)
	r.Register(graph.OpType{Name: "Split", Version: 13}, convertSplit)
	return r
}

func binary(f func(a, b *graph.Value) *graph.Value) Adapter {
	return func(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
		if err := exact(n, inputs, 2); err != nil {
			return nil, err
		}
		return []*graph.Value{f(inputs[0], inputs[1])}, nil
	}
}

func unary(f func(x *graph.Value) *graph.Value) Adapter {
	return func(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
		if err := exact(n, inputs, 1); err != nil {
			return nil, err
		}
		return []*graph.Value{f(inputs[0])}, nil
	}
}

func convertMod(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 2); err != nil {
		return nil, err
	}
	return []*graph.Value{ops.Mod(inputs[0], inputs[1], intAttrOr(n, "fmod", 0) != 0)}, nil
}

func convertWhere(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 3); err != nil {
		return nil, err
	}
	return []*graph.Value{ops.Where(inputs[0], inputs[1], inputs[2])}, nil
}

func convertCast(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 1); err != nil {
		return nil, err
	}
	a := attrOf(n, "to")
	if a == nil {
		return nil, errors.New("Cast requires the to attribute")
	}
	to, err := types.DTypeFromProto(protos.DataType(a.I))
	if err != nil {
		return nil, err
	}
	return []*graph.Value{ops.Cast(inputs[0], to)}, nil
}

func convertConstant(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 0); err != nil {
		return nil, err
	}
	for _, a := range n.Attribute {
		switch a.Name {
		case "value":
			if a.T == nil {
				return nil, errors.New("Constant has a nil value tensor")
			}
			t, err := tensors.FromProto(a.T)
			if err != nil {
				return nil, err
			}
			return []*graph.Value{graph.Constant(t)}, nil
		case "value_int":
			return []*graph.Value{graph.Constant(tensors.FromScalar(a.I))}, nil
		case "value_ints":
			return []*graph.Value{graph.Constant(tensors.FromFlatDataAndDimensions(slices.Clone(a.Ints), int64(len(a.Ints))))}, nil
		case "value_float":
			return []*graph.Value{graph.Constant(tensors.FromScalar(a.F))}, nil
		case "value_floats":
			return []*graph.Value{graph.Constant(tensors.FromFlatDataAndDimensions(slices.Clone(a.Floats), int64(len(a.Floats))))}, nil
		case "value_string", "value_strings":
			return nil, errors.New("string constants are not supported")
		}
	}
	return nil, errors.New("Constant carries no value attribute")
}

func convertReshape(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 2); err != nil {
		return nil, err
	}
	return []*graph.Value{ops.Reshape(inputs[0], inputs[1], intAttrOr(n, "allowzero", 0) != 0)}, nil
}

func convertConcat(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := atLeast(n, inputs, 1); err != nil {
		return nil, err
	}
	if err := missing(n, inputs, len(inputs)); err != nil {
		return nil, err
	}
	a := attrOf(n, "axis")
	if a == nil {
		return nil, errors.New("Concat requires the axis attribute")
	}
	return []*graph.Value{ops.Concat(a.I, inputs...)}, nil
}

func convertShape(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 1); err != nil {
		return nil, err
	}
	start := intAttrOr(n, "start", 0)
	end := attrOf(n, "end")
	if start == 0 && end == nil {
		return []*graph.Value{ops.Shape(inputs[0])}, nil
	}
	// A missing end means "through the last axis"; the window clamps to
	// the rank at evaluation time.
	stop := int64(math.MaxInt64)
	if end != nil {
		stop = end.I
	}
	return []*graph.Value{ops.ShapeRange(inputs[0], start, stop)}, nil
}

func convertSqueeze(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := atLeast(n, inputs, 1); err != nil {
		return nil, err
	}
	var axes *graph.Value
	if len(inputs) > 1 {
		axes = inputs[1]
	}
	return []*graph.Value{ops.Squeeze(inputs[0], axes)}, nil
}

func convertSqueezeAxesAttr(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 1); err != nil {
		return nil, err
	}
	var axes *graph.Value
	if a := attrOf(n, "axes"); a != nil {
		axes = axesConst(a)
	}
	return []*graph.Value{ops.Squeeze(inputs[0], axes)}, nil
}

func convertUnsqueeze(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 2); err != nil {
		return nil, err
	}
	return []*graph.Value{ops.Unsqueeze(inputs[0], inputs[1])}, nil
}

func convertUnsqueezeAxesAttr(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 1); err != nil {
		return nil, err
	}
	a := attrOf(n, "axes")
	if a == nil {
		return nil, errors.New("Unsqueeze requires the axes attribute")
	}
	return []*graph.Value{ops.Unsqueeze(inputs[0], axesConst(a))}, nil
}

func convertReduceSum(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := atLeast(n, inputs, 1); err != nil {
		return nil, err
	}
	var axes *graph.Value
	if len(inputs) > 1 {
		axes = inputs[1]
	}
	keep := intAttrOr(n, "keepdims", 1) != 0
	noop := intAttrOr(n, "noop_with_empty_axes", 0) != 0
	return []*graph.Value{ops.ReduceSum(inputs[0], axes, keep, noop)}, nil
}

func convertReduceSumAxesAttr(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 1); err != nil {
		return nil, err
	}
	var axes *graph.Value
	if a := attrOf(n, "axes"); a != nil {
		axes = axesConst(a)
	}
	keep := intAttrOr(n, "keepdims", 1) != 0
	return []*graph.Value{ops.ReduceSum(inputs[0], axes, keep, false)}, nil
}

func convertSplit(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := atLeast(n, inputs, 1); err != nil {
		return nil, err
	}
	var split *graph.Value
	if len(inputs) > 1 {
		split = inputs[1]
	}
	axis := intAttrOr(n, "axis", 0)
	count := int(intAttrOr(n, "num_outputs", int64(len(n.Output))))
	return ops.Split(inputs[0], split, axis, count), nil
}

func convertSplitAttr(n *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	if err := exact(n, inputs, 1); err != nil {
		return nil, err
	}
	var split *graph.Value
	if a := attrOf(n, "split"); a != nil {
		split = axesConst(a)
	}
	return ops.Split(inputs[0], split, intAttrOr(n, "axis", 0), len(n.Output)), nil
}

func exact(n *protos.NodeProto, inputs []*graph.Value, want int) error {
	if len(inputs) != want {
		return errors.Errorf("%s takes %d inputs, the node has %d", n.OpType, want, len(inputs))
	}
	return missing(n, inputs, want)
}

func atLeast(n *protos.NodeProto, inputs []*graph.Value, want int) error {
	if len(inputs) < want {
		return errors.Errorf("%s takes at least %d inputs, the node has %d", n.OpType, want, len(inputs))
	}
	return missing(n, inputs, want)
}

func missing(n *protos.NodeProto, inputs []*graph.Value, upTo int) error {
	for i := 0; i < upTo; i++ {
		if inputs[i] == nil {
			return errors.Errorf("%s input #%d is omitted but required", n.OpType, i)
		}
	}
	return nil
}

func attrOf(n *protos.NodeProto, name string) *protos.AttributeProto {
	for _, a := range n.Attribute {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func intAttrOr(n *protos.NodeProto, name string, def int64) int64 {
	if a := attrOf(n, name); a != nil {
		return a.I
	}
	return def
}

// axesConst freezes an attribute-era axis list as a constant vector, the
// operand form the builder constructors take.
func axesConst(a *protos.AttributeProto) *graph.Value {
	return graph.Constant(tensors.FromFlatDataAndDimensions(slices.Clone(a.Ints), int64(len(a.Ints))))
}
