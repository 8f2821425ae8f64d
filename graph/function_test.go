// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph_test

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/ops"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// celuSpec is a minimal custom operator with a float attribute, used to
// exercise attribute references inside function bodies.
type celuSpec struct{}

func (celuSpec) OpType() graph.OpType { return graph.OpType{Name: "Celu", Version: 12} }

func (celuSpec) InferOutputTypes(inputs []*graph.Value, attrs []graph.Attr) ([]types.Type, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, errors.Errorf("Celu takes exactly one input")
	}
	return []types.Type{inputs[0].Type()}, nil
}

func TestFunctionCall(t *testing.T) {
	double := graph.NewFunction("custom", "Double", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		return []*graph.Value{ops.Add(args[0], args[0])}
	})
	x := f32Arg("x", 2)
	y := double.Call([]*graph.Value{x})[0]
	// The body runs over untyped arguments, so the call output carries no
	// type of its own.
	assert.Nil(t, y.Type())

	out := graph.UnsafeCast(y, types.MakeTensor(dtypes.Float32, 2))
	m, err := graph.Results(graph.Out("y", out)).ToONNXModel()
	require.NoError(t, err)

	call := nodeOfType(t, m.Graph, "Double")
	assert.Equal(t, "custom", call.Domain)
	assert.Equal(t, "Double_0", call.Name)
	assert.Equal(t, []string{"x"}, call.Input)
	assert.Equal(t, []string{"Double_0_o0"}, call.Output)
	bridge := nodeOfType(t, m.Graph, "Identity")
	assert.Equal(t, []string{"Double_0_o0"}, bridge.Input)
	assert.Equal(t, []string{"y"}, bridge.Output)

	require.Len(t, m.Functions, 1)
	f := m.Functions[0]
	assert.Equal(t, "Double", f.Name)
	assert.Equal(t, "custom", f.Domain)
	assert.Equal(t, []string{"in0"}, f.Input)
	assert.Equal(t, []string{"out0"}, f.Output)
	require.Len(t, f.Node, 1)
	assert.Equal(t, "Add", f.Node[0].OpType)
	assert.Equal(t, []string{"in0", "in0"}, f.Node[0].Input)
	assert.Equal(t, []string{"out0"}, f.Node[0].Output)
	// The body's operator set requirements travel with the function.
	var base *protos.OperatorSetIdProto
	for _, o := range f.OpsetImport {
		if o.Domain == "" {
			base = o
		}
	}
	require.NotNil(t, base)
	assert.Equal(t, int64(14), base.Version)

	require.Len(t, m.OpsetImport, 2)
	assert.Equal(t, "", m.OpsetImport[0].Domain)
	assert.Equal(t, int64(14), m.OpsetImport[0].Version)
	assert.Equal(t, "custom", m.OpsetImport[1].Domain)
	assert.Equal(t, int64(1), m.OpsetImport[1].Version)
}

func TestFunctionDefaultDomain(t *testing.T) {
	f := graph.NewFunction("", "Dbl", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		return []*graph.Value{ops.Add(args[0], args[0])}
	})
	assert.Equal(t, graph.DefaultFunctionDomain, f.Domain())
}

func TestFunctionOutputTypeFromBody(t *testing.T) {
	zeros := graph.NewFunction("custom", "Zeros2", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		return []*graph.Value{ops.Const([]float32{0, 0})}
	})
	z := zeros.Call(nil)[0]
	// The body derives its result type without looking at any argument, so
	// the call output is typed and serializes directly.
	require.NotNil(t, z.Type())
	assert.Equal(t, "Float32[2]", z.Type().String())

	m, err := graph.Results(graph.Out("z", z)).ToONNXModel()
	require.NoError(t, err)
	call := nodeOfType(t, m.Graph, "Zeros2")
	assert.Empty(t, call.Input)
	assert.Equal(t, []string{"z"}, call.Output)
	require.Len(t, m.Functions, 1)
	assert.Empty(t, m.Functions[0].Input)
	assert.Equal(t, "Constant", m.Functions[0].Node[0].OpType)
}

func TestFunctionArityFixedByFirstCall(t *testing.T) {
	f := graph.NewFunction("custom", "First", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		return []*graph.Value{ops.Add(args[0], args[0])}
	})
	x := f32Arg("x", 2)
	require.Len(t, f.Call([]*graph.Value{x}), 1)
	constructionError(t, "since its first call, the call passes 2", func() {
		f.Call([]*graph.Value{x, x})
	})
}

func TestFunctionNilInput(t *testing.T) {
	f := graph.NewFunction("custom", "NoNil", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		return []*graph.Value{ops.Add(args[0], args[0])}
	})
	constructionError(t, "cannot be omitted", func() {
		f.Call([]*graph.Value{nil})
	})
}

func TestFunctionAttributes(t *testing.T) {
	celu := graph.NewFunction("custom", "ScaledCelu", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		return graph.Apply(celuSpec{}, args, []graph.Attr{{Name: "alpha", Value: fc.AttrRef("alpha")}})
	}, graph.AttrDecl{Name: "alpha", Type: protos.AttributeTypeFloat, Default: graph.Float(1)})

	x := f32Arg("x", 2)
	a := celu.Call([]*graph.Value{x})[0]
	b := celu.Call([]*graph.Value{x}, graph.Attr{Name: "alpha", Value: graph.Float(2)})[0]
	ta := graph.UnsafeCast(a, types.MakeTensor(dtypes.Float32, 2))
	tb := graph.UnsafeCast(b, types.MakeTensor(dtypes.Float32, 2))
	m, err := graph.Results(graph.Out("a", ta), graph.Out("b", tb)).ToONNXModel()
	require.NoError(t, err)

	require.Len(t, m.Functions, 1)
	f := m.Functions[0]
	assert.Empty(t, f.Attribute)
	require.Len(t, f.AttributeProto, 1)
	assert.Equal(t, "alpha", f.AttributeProto[0].Name)
	assert.Equal(t, float32(1), f.AttributeProto[0].F)
	// The body node defers its attribute to the function's.
	ref := attrNamed(f.Node[0], "alpha")
	require.NotNil(t, ref)
	assert.Equal(t, "alpha", ref.RefAttrName)
	assert.Equal(t, protos.AttributeTypeFloat, ref.Type)

	var withAttr, withoutAttr *protos.NodeProto
	for _, n := range m.Graph.Node {
		if n.OpType != "ScaledCelu" {
			continue
		}
		if attrNamed(n, "alpha") != nil {
			withAttr = n
		} else {
			withoutAttr = n
		}
	}
	require.NotNil(t, withAttr)
	require.NotNil(t, withoutAttr)
	assert.Equal(t, float32(2), attrNamed(withAttr, "alpha").F)
}

func TestFunctionRequiredAttribute(t *testing.T) {
	celu := graph.NewFunction("custom", "NeedsAlpha", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		return graph.Apply(celuSpec{}, args, []graph.Attr{{Name: "alpha", Value: fc.AttrRef("alpha")}})
	}, graph.AttrDecl{Name: "alpha", Type: protos.AttributeTypeFloat})

	x := f32Arg("x", 2)
	constructionError(t, "misses the required attribute", func() {
		celu.Call([]*graph.Value{x})
	})
	constructionError(t, "has no attribute", func() {
		celu.Call([]*graph.Value{x}, graph.Attr{Name: "beta", Value: graph.Float(1)})
	})
	constructionError(t, "is declared as", func() {
		celu.Call([]*graph.Value{x}, graph.Attr{Name: "alpha", Value: graph.Int(3)})
	})

	y := celu.Call([]*graph.Value{x}, graph.Attr{Name: "alpha", Value: graph.Float(3)})[0]
	out := graph.UnsafeCast(y, types.MakeTensor(dtypes.Float32, 2))
	m, err := graph.Results(graph.Out("y", out)).ToONNXModel()
	require.NoError(t, err)
	require.Len(t, m.Functions, 1)
	assert.Equal(t, []string{"alpha"}, m.Functions[0].Attribute)
	assert.Empty(t, m.Functions[0].AttributeProto)
}

func TestFunctionDeclValidation(t *testing.T) {
	ctor := func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value { return args }
	constructionError(t, "empty name", func() { graph.NewFunction("custom", "", ctor) })
	constructionError(t, "is reserved", func() { graph.NewFunction(graph.InternalDomain, "F", ctor) })
	constructionError(t, "nil body constructor", func() { graph.NewFunction("custom", "F", nil) })
	constructionError(t, "twice", func() {
		graph.NewFunction("custom", "F", ctor,
			graph.AttrDecl{Name: "a", Type: protos.AttributeTypeInt},
			graph.AttrDecl{Name: "a", Type: protos.AttributeTypeInt})
	})
	constructionError(t, "has no type", func() {
		graph.NewFunction("custom", "F", ctor, graph.AttrDecl{Name: "a"})
	})
	constructionError(t, "cannot serve as a default", func() {
		sub := graph.EnumResults("out", ops.Const([]float32{1}))
		graph.NewFunction("custom", "F", ctor,
			graph.AttrDecl{Name: "a", Type: protos.AttributeTypeGraph, Default: graph.GraphAttr{Value: sub}})
	})
	constructionError(t, "but defaults to", func() {
		graph.NewFunction("custom", "F", ctor,
			graph.AttrDecl{Name: "a", Type: protos.AttributeTypeInt, Default: graph.Float(1)})
	})
}

func TestFunctionBadAttrRef(t *testing.T) {
	bad := graph.NewFunction("custom", "BadRef", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		return graph.Apply(celuSpec{}, args, []graph.Attr{{Name: "alpha", Value: fc.AttrRef("nope")}})
	})
	x := f32Arg("x", 2)
	constructionError(t, `has no attribute "nope"`, func() {
		bad.Call([]*graph.Value{x})
	})
}

func TestFunctionDeduplication(t *testing.T) {
	mk := func() *graph.Function {
		return graph.NewFunction("custom", "Scale2", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
			return []*graph.Value{ops.Mul(args[0], ops.Const([]float32{2}))}
		})
	}
	f1, f2 := mk(), mk()
	x := f32Arg("x", 1)
	ft := types.MakeTensor(dtypes.Float32, 1)
	a := graph.UnsafeCast(f1.Call([]*graph.Value{x})[0], ft)
	b := graph.UnsafeCast(f2.Call([]*graph.Value{x})[0], ft)
	m, err := graph.Results(graph.Out("a", a), graph.Out("b", b)).ToONNXModel()
	require.NoError(t, err)
	// Distinct Function instances with byte-identical bodies collapse into
	// one definition.
	assert.Len(t, m.Functions, 1)
}

func TestFunctionConflict(t *testing.T) {
	mk := func(scale float32) *graph.Function {
		return graph.NewFunction("custom", "Scale3", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
			return []*graph.Value{ops.Mul(args[0], ops.Const([]float32{scale}))}
		})
	}
	f1, f2 := mk(2), mk(3)
	x := f32Arg("x", 1)
	ft := types.MakeTensor(dtypes.Float32, 1)
	a := graph.UnsafeCast(f1.Call([]*graph.Value{x})[0], ft)
	b := graph.UnsafeCast(f2.Call([]*graph.Value{x})[0], ft)
	_, err := graph.Results(graph.Out("a", a), graph.Out("b", b)).ToONNXModel()
	require.ErrorIs(t, err, graph.ErrBuild)
	assert.Contains(t, err.Error(), "with different bodies; rename one")
}

func TestNestedFunctions(t *testing.T) {
	inner := graph.NewFunction("custom", "Inner4", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		return []*graph.Value{ops.Add(args[0], args[0])}
	})
	outer := graph.NewFunction("custom", "Outer4", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		return inner.Call(args)
	})
	x := f32Arg("x", 2)
	y := outer.Call([]*graph.Value{x})[0]
	out := graph.UnsafeCast(y, types.MakeTensor(dtypes.Float32, 2))
	m, err := graph.Results(graph.Out("y", out)).ToONNXModel()
	require.NoError(t, err)

	// Callees serialize before their callers.
	require.Len(t, m.Functions, 2)
	assert.Equal(t, "Inner4", m.Functions[0].Name)
	assert.Equal(t, "Outer4", m.Functions[1].Name)
	assert.Equal(t, "Inner4", m.Functions[1].Node[0].OpType)
	assert.Equal(t, "custom", m.Functions[1].Node[0].Domain)
}

func TestFunctionBodyCannotCarryInitializers(t *testing.T) {
	bad := graph.NewFunction("custom", "Frozen5", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		w := graph.Initializer(tensors.FromValue([]float32{1}))
		return []*graph.Value{ops.Mul(args[0], w)}
	})
	x := f32Arg("x", 1)
	err := exceptions.TryCatch[error](func() { bad.Call([]*graph.Value{x}) })
	require.ErrorIs(t, err, graph.ErrBuild)
	assert.Contains(t, err.Error(), "functions cannot carry initializers")

	// The body failure is memoized; later calls re-raise it.
	err2 := exceptions.TryCatch[error](func() { bad.Call([]*graph.Value{x}) })
	require.Error(t, err2)
	assert.Equal(t, err.Error(), err2.Error())
}
