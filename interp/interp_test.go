// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package interp_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/interp"
	"github.com/gomlx/onnxgraph/ops"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32Arg(name string, dims ...any) *graph.Value {
	return graph.Arg(types.MakeTensor(dtypes.Float32, dims...), name)
}

func i64Arg(name string, dims ...any) *graph.Value {
	return graph.Arg(types.MakeTensor(dtypes.Int64, dims...), name)
}

func boolArg(name string, dims ...any) *graph.Value {
	return graph.Arg(types.MakeTensor(dtypes.Bool, dims...), name)
}

func buildModel(t *testing.T, g *graph.Graph) *protos.ModelProto {
	t.Helper()
	m, err := g.ToONNXModel()
	require.NoError(t, err)
	return m
}

func run(t *testing.T, m *protos.ModelProto, inputs map[string]*tensors.Tensor) map[string]*tensors.Tensor {
	t.Helper()
	outs, err := interp.Run(m, inputs)
	require.NoError(t, err)
	return outs
}

// wantTensor checks element type, dimensions and contents in one shot.
// No dims means a scalar is expected.
func wantTensor[T interface {
	bool | int64 | float32 | float64
}](t *testing.T, got *tensors.Tensor, want []T, dims ...int64) {
	t.Helper()
	require.NotNil(t, got)
	require.Equal(t, dtypes.FromGenericsType[T](), got.DType())
	if len(dims) == 0 {
		assert.True(t, got.IsScalar(), "want a scalar, got %s", got.Type())
	} else {
		assert.Equal(t, dims, got.Dimensions())
	}
	assert.Equal(t, want, tensors.FlatData[T](got))
}

func runError(t *testing.T, m *protos.ModelProto, inputs map[string]*tensors.Tensor, want string) {
	t.Helper()
	_, err := interp.Run(m, inputs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), want)
}

func TestRunArithBroadcast(t *testing.T) {
	x := f32Arg("x", 2, 3)
	b := ops.Const([]float32{10, 20, 30})
	m := buildModel(t, graph.Results(
		graph.Out("sum", ops.Add(x, b)),
		graph.Out("diff", ops.Sub(x, b)),
		graph.Out("prod", ops.Mul(x, b)),
		graph.Out("quot", ops.Div(x, b)),
	))
	outs := run(t, m, map[string]*tensors.Tensor{
		"x": tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}}),
	})
	wantTensor(t, outs["sum"], []float32{11, 22, 33, 14, 25, 36}, 2, 3)
	wantTensor(t, outs["diff"], []float32{-9, -18, -27, -6, -15, -24}, 2, 3)
	wantTensor(t, outs["prod"], []float32{10, 40, 90, 40, 100, 180}, 2, 3)
	wantTensor(t, outs["quot"], []float32{0.1, 0.1, 0.1, 0.4, 0.25, 0.2}, 2, 3)
}

func TestRunIntegerDiv(t *testing.T) {
	x := i64Arg("x", 4)
	y := i64Arg("y", 4)
	m := buildModel(t, graph.Results(graph.Out("q", ops.Div(x, y))))

	outs := run(t, m, map[string]*tensors.Tensor{
		"x": tensors.FromValue([]int64{7, -7, 9, -9}),
		"y": tensors.FromValue([]int64{2, 2, -4, -4}),
	})
	// Integer division truncates toward zero.
	wantTensor(t, outs["q"], []int64{3, -3, -2, 2}, 4)

	runError(t, m, map[string]*tensors.Tensor{
		"x": tensors.FromValue([]int64{1, 2, 3, 4}),
		"y": tensors.FromValue([]int64{1, 0, 1, 1}),
	}, "integer division by zero")
}

func TestRunModConventions(t *testing.T) {
	x := i64Arg("x", 4)
	y := i64Arg("y", 4)
	m := buildModel(t, graph.Results(
		graph.Out("floored", ops.Mod(x, y, false)),
		graph.Out("truncated", ops.Mod(x, y, true)),
	))
	outs := run(t, m, map[string]*tensors.Tensor{
		"x": tensors.FromValue([]int64{-5, 5, -5, 5}),
		"y": tensors.FromValue([]int64{3, 3, -3, -3}),
	})
	// Without fmod the sign follows the divisor, with fmod the dividend.
	wantTensor(t, outs["floored"], []int64{1, 2, -2, -1}, 4)
	wantTensor(t, outs["truncated"], []int64{-2, 2, -2, 2}, 4)

	fx := f32Arg("fx", 2)
	fy := f32Arg("fy", 2)
	fm := buildModel(t, graph.Results(graph.Out("r", ops.Mod(fx, fy, true))))
	fouts := run(t, fm, map[string]*tensors.Tensor{
		"fx": tensors.FromValue([]float32{5.5, -5.5}),
		"fy": tensors.FromValue([]float32{2, 2}),
	})
	wantTensor(t, fouts["r"], []float32{1.5, -1.5}, 2)
}

func TestRunMatMul(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		dims []int64
		want []float32
	}{
		{"matrix", [][]float32{{1, 2}, {3, 4}}, [][]float32{{5, 6}, {7, 8}}, []int64{2, 2}, []float32{19, 22, 43, 50}},
		{"vector left", []float32{1, 2}, [][]float32{{1, 2}, {3, 4}}, []int64{2}, []float32{7, 10}},
		{"vector right", [][]float32{{1, 2}, {3, 4}}, []float32{1, 2}, []int64{2}, []float32{5, 11}},
		{"both vectors", []float32{1, 2}, []float32{3, 4}, nil, []float32{11}},
		{"stacked", [][][]float32{{{1, 2}}, {{3, 4}}}, [][]float32{{1, 0}, {0, 1}}, []int64{2, 1, 2}, []float32{1, 2, 3, 4}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ta, tb := tensors.FromValue(tc.a), tensors.FromValue(tc.b)
			a := graph.Arg(ta.Type(), "a")
			b := graph.Arg(tb.Type(), "b")
			m := buildModel(t, graph.Results(graph.Out("y", ops.MatMul(a, b))))
			outs := run(t, m, map[string]*tensors.Tensor{"a": ta, "b": tb})
			wantTensor(t, outs["y"], tc.want, tc.dims...)
		})
	}

	t.Run("extent mismatch", func(t *testing.T) {
		// An open extent defers the check to evaluation time.
		a := graph.Arg(types.MakeTensor(dtypes.Float32, "n"), "a")
		b := ops.Const([][]float32{{1, 0}, {0, 1}})
		m := buildModel(t, graph.Results(graph.Out("y", ops.MatMul(a, b))))
		runError(t, m, map[string]*tensors.Tensor{
			"a": tensors.FromValue([]float32{1, 2, 3}),
		}, "contraction extents differ: 3 vs 2")
	})
}

func TestRunLogicAndComparisons(t *testing.T) {
	a := boolArg("a", 4)
	b := boolArg("b", 4)
	x := i64Arg("x", 3)
	y := i64Arg("y", 3)
	m := buildModel(t, graph.Results(
		graph.Out("and", ops.And(a, b)),
		graph.Out("or", ops.Or(a, b)),
		graph.Out("not", ops.Not(a)),
		graph.Out("beq", ops.Equal(a, b)),
		graph.Out("eq", ops.Equal(x, y)),
		graph.Out("lt", ops.Less(x, y)),
		graph.Out("ge", ops.GreaterOrEqual(x, y)),
	))
	outs := run(t, m, map[string]*tensors.Tensor{
		"a": tensors.FromValue([]bool{true, true, false, false}),
		"b": tensors.FromValue([]bool{true, false, true, false}),
		"x": tensors.FromValue([]int64{1, 2, 3}),
		"y": tensors.FromValue([]int64{3, 2, 1}),
	})
	wantTensor(t, outs["and"], []bool{true, false, false, false}, 4)
	wantTensor(t, outs["or"], []bool{true, true, true, false}, 4)
	wantTensor(t, outs["not"], []bool{false, false, true, true}, 4)
	wantTensor(t, outs["beq"], []bool{true, false, false, true}, 4)
	wantTensor(t, outs["eq"], []bool{false, true, false}, 3)
	wantTensor(t, outs["lt"], []bool{true, false, false}, 3)
	wantTensor(t, outs["ge"], []bool{false, true, true}, 3)
}

func TestRunWhere(t *testing.T) {
	c := boolArg("c", 2)
	x := f32Arg("x", 2)
	i := i64Arg("i", 2)
	j := i64Arg("j", 2)
	m := buildModel(t, graph.Results(
		graph.Out("sel", ops.Where(c, x, ops.Const(float32(0)))),
		graph.Out("all", ops.Where(ops.Const(true), i, j)),
	))
	outs := run(t, m, map[string]*tensors.Tensor{
		"c": tensors.FromValue([]bool{true, false}),
		"x": tensors.FromValue([]float32{3.5, 4.5}),
		"i": tensors.FromValue([]int64{7, 8}),
		"j": tensors.FromValue([]int64{9, 10}),
	})
	wantTensor(t, outs["sel"], []float32{3.5, 0}, 2)
	wantTensor(t, outs["all"], []int64{7, 8}, 2)
}

func TestRunCast(t *testing.T) {
	f := f32Arg("f", 3)
	i := i64Arg("i", 3)
	m := buildModel(t, graph.Results(
		graph.Out("f2i", ops.Cast(f, dtypes.Int64)),
		graph.Out("f2b", ops.Cast(f, dtypes.Bool)),
		graph.Out("i2d", ops.Cast(i, dtypes.Float64)),
		graph.Out("b2f", ops.Cast(ops.Cast(i, dtypes.Bool), dtypes.Float32)),
		graph.Out("same", ops.Cast(f, dtypes.Float32)),
	))
	outs := run(t, m, map[string]*tensors.Tensor{
		"f": tensors.FromValue([]float32{1.7, -2.5, 0}),
		"i": tensors.FromValue([]int64{0, 2, -1}),
	})
	wantTensor(t, outs["f2i"], []int64{1, -2, 0}, 3)
	wantTensor(t, outs["f2b"], []bool{true, true, false}, 3)
	wantTensor(t, outs["i2d"], []float64{0, 2, -1}, 3)
	wantTensor(t, outs["b2f"], []float32{0, 1, 1}, 3)
	wantTensor(t, outs["same"], []float32{1.7, -2.5, 0}, 3)
}

func TestRunReshape(t *testing.T) {
	x := f32Arg("x", 2, 3)
	m := buildModel(t, graph.Results(
		graph.Out("r", ops.Reshape(x, ops.Const([]int64{3, -1}), false)),
		graph.Out("z", ops.Reshape(x, ops.Const([]int64{0, 3}), false)),
	))
	in := tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}})
	outs := run(t, m, map[string]*tensors.Tensor{"x": in})
	wantTensor(t, outs["r"], []float32{1, 2, 3, 4, 5, 6}, 3, 2)
	wantTensor(t, outs["z"], []float32{1, 2, 3, 4, 5, 6}, 2, 3)

	// A shape fed at run time resolves, and validates, at run time.
	s := i64Arg("s", 2)
	dm := buildModel(t, graph.Results(graph.Out("d", ops.Reshape(x, s, false))))
	douts := run(t, dm, map[string]*tensors.Tensor{
		"x": in,
		"s": tensors.FromValue([]int64{6, 1}),
	})
	wantTensor(t, douts["d"], []float32{1, 2, 3, 4, 5, 6}, 6, 1)
	runError(t, dm, map[string]*tensors.Tensor{
		"x": in,
		"s": tensors.FromValue([]int64{4, 2}),
	}, "shape holds 8 elements, the data has 6")
}

func TestRunSqueezeUnsqueeze(t *testing.T) {
	x := f32Arg("x", 1, 2, 1, 3)
	m := buildModel(t, graph.Results(
		graph.Out("all", ops.Squeeze(x, nil)),
		graph.Out("ax", ops.Squeeze(x, ops.Const([]int64{0}))),
		graph.Out("un", ops.Unsqueeze(ops.Squeeze(x, nil), ops.Const([]int64{0, -1}))),
	))
	outs := run(t, m, map[string]*tensors.Tensor{
		"x": tensors.FromValue([][][][]float32{{{{1, 2, 3}}, {{4, 5, 6}}}}),
	})
	flat := []float32{1, 2, 3, 4, 5, 6}
	wantTensor(t, outs["all"], flat, 2, 3)
	wantTensor(t, outs["ax"], flat, 2, 1, 3)
	wantTensor(t, outs["un"], flat, 1, 2, 3, 1)
}

func TestRunConcatSplit(t *testing.T) {
	a := f32Arg("a", 2, 2)
	b := f32Arg("b", 2, 1)
	cat := ops.Concat(1, a, b)
	parts := ops.Split(cat, ops.Const([]int64{2, 1}), 1, 2)
	halves := ops.Split(cat, nil, 0, 2)
	m := buildModel(t, graph.Results(
		graph.Out("cat", cat),
		graph.Out("p0", parts[0]),
		graph.Out("p1", parts[1]),
		graph.Out("h0", halves[0]),
		graph.Out("h1", halves[1]),
	))
	outs := run(t, m, map[string]*tensors.Tensor{
		"a": tensors.FromValue([][]float32{{1, 2}, {4, 5}}),
		"b": tensors.FromValue([][]float32{{3}, {6}}),
	})
	wantTensor(t, outs["cat"], []float32{1, 2, 3, 4, 5, 6}, 2, 3)
	wantTensor(t, outs["p0"], []float32{1, 2, 4, 5}, 2, 2)
	wantTensor(t, outs["p1"], []float32{3, 6}, 2, 1)
	wantTensor(t, outs["h0"], []float32{1, 2, 3}, 1, 3)
	wantTensor(t, outs["h1"], []float32{4, 5, 6}, 1, 3)
}

func TestRunReduceSum(t *testing.T) {
	x := f32Arg("x", 2, 3)
	m := buildModel(t, graph.Results(
		graph.Out("keep", ops.ReduceSum(x, ops.Const([]int64{1}), true, false)),
		graph.Out("drop", ops.ReduceSum(x, ops.Const([]int64{-1}), false, false)),
		graph.Out("all", ops.ReduceSum(x, nil, false, false)),
		graph.Out("idem", ops.ReduceSum(x, nil, true, true)),
	))
	outs := run(t, m, map[string]*tensors.Tensor{
		"x": tensors.FromValue([][]float32{{1, 2, 3}, {4, 5, 6}}),
	})
	wantTensor(t, outs["keep"], []float32{6, 15}, 2, 1)
	wantTensor(t, outs["drop"], []float32{6, 15}, 2)
	wantTensor(t, outs["all"], []float32{21})
	wantTensor(t, outs["idem"], []float32{1, 2, 3, 4, 5, 6}, 2, 3)
}

func TestRunShapeSize(t *testing.T) {
	x := f32Arg("x", 2, 3, 4)
	m := buildModel(t, graph.Results(
		graph.Out("full", ops.Shape(x)),
		graph.Out("mid", ops.ShapeRange(x, 1, -1)),
		graph.Out("size", ops.Size(x)),
	))
	outs := run(t, m, map[string]*tensors.Tensor{
		"x": tensors.Zeros(dtypes.Float32, 2, 3, 4),
	})
	wantTensor(t, outs["full"], []int64{2, 3, 4}, 3)
	wantTensor(t, outs["mid"], []int64{3}, 1)
	wantTensor(t, outs["size"], []int64{24})
}

func TestRunIf(t *testing.T) {
	cond := boolArg("cond")
	x := f32Arg("x", 2)
	then := graph.EnumResults("out", ops.Mul(x, ops.Const(float32(2))))
	els := graph.EnumResults("out", ops.Identity(x))
	y := ops.If(cond, then, els)[0]
	m := buildModel(t, graph.Results(graph.Out("y", y)))

	in := tensors.FromValue([]float32{1, 2})
	outs := run(t, m, map[string]*tensors.Tensor{"cond": tensors.FromScalar(true), "x": in})
	wantTensor(t, outs["y"], []float32{2, 4}, 2)
	outs = run(t, m, map[string]*tensors.Tensor{"cond": tensors.FromScalar(false), "x": in})
	wantTensor(t, outs["y"], []float32{1, 2}, 2)
}

// doubler is a Loop body over one carried Float32[3] value: it doubles
// the carried value and scans the pre-update value each iteration.
func doubler() *graph.Graph {
	iter := graph.Arg(types.MakeScalar(dtypes.Int64), "iter")
	keep := graph.Arg(types.MakeScalar(dtypes.Bool), "keep")
	c := f32Arg("c", 3)
	return graph.EnumResults("out", ops.Identity(keep), ops.Add(c, c), c).
		WithArguments(iter, keep, c)
}

func TestRunLoop(t *testing.T) {
	t.Run("trip count", func(t *testing.T) {
		init := f32Arg("init", 3)
		outs := ops.Loop(ops.Const(int64(3)), ops.Const(true), []*graph.Value{init}, doubler())
		m := buildModel(t, graph.Results(graph.Out("final", outs[0]), graph.Out("scan", outs[1])))
		got := run(t, m, map[string]*tensors.Tensor{"init": tensors.FromValue([]float32{1, 2, 3})})
		wantTensor(t, got["final"], []float32{8, 16, 24}, 3)
		wantTensor(t, got["scan"], []float32{1, 2, 3, 2, 4, 6, 4, 8, 12}, 3, 3)
	})

	t.Run("condition", func(t *testing.T) {
		iter := graph.Arg(types.MakeScalar(dtypes.Int64), "iter")
		keep := graph.Arg(types.MakeScalar(dtypes.Bool), "keep")
		c := f32Arg("c", 3)
		again := ops.Less(iter, ops.Const(int64(2)))
		body := graph.EnumResults("out", again, ops.Add(c, c), c).WithArguments(iter, keep, c)

		init := f32Arg("init", 3)
		outs := ops.Loop(nil, nil, []*graph.Value{init}, body)
		m := buildModel(t, graph.Results(graph.Out("final", outs[0]), graph.Out("scan", outs[1])))
		got := run(t, m, map[string]*tensors.Tensor{"init": tensors.FromValue([]float32{1, 2, 3})})
		// The body runs while the previous iteration said to continue, so
		// the flip at iter=2 still completes that iteration.
		wantTensor(t, got["final"], []float32{8, 16, 24}, 3)
		wantTensor(t, got["scan"], []float32{1, 2, 3, 2, 4, 6, 4, 8, 12}, 3, 3)
	})

	t.Run("zero trips", func(t *testing.T) {
		iter := graph.Arg(types.MakeScalar(dtypes.Int64), "iter")
		keep := graph.Arg(types.MakeScalar(dtypes.Bool), "keep")
		c := f32Arg("c", 3)
		body := graph.EnumResults("out", ops.Identity(keep), ops.Add(c, c)).WithArguments(iter, keep, c)

		init := f32Arg("init", 3)
		outs := ops.Loop(ops.Const(int64(0)), nil, []*graph.Value{init}, body)
		require.Len(t, outs, 1)
		m := buildModel(t, graph.Results(graph.Out("final", outs[0])))
		got := run(t, m, map[string]*tensors.Tensor{"init": tensors.FromValue([]float32{5, 6, 7})})
		wantTensor(t, got["final"], []float32{5, 6, 7}, 3)
	})

	t.Run("zero trips with scan", func(t *testing.T) {
		init := f32Arg("init", 3)
		outs := ops.Loop(ops.Const(int64(0)), nil, []*graph.Value{init}, doubler())
		m := buildModel(t, graph.Results(graph.Out("final", outs[0]), graph.Out("scan", outs[1])))
		runError(t, m, map[string]*tensors.Tensor{"init": tensors.FromValue([]float32{1, 2, 3})},
			"no iterations to stack")
	})
}

// floatConstSpec serializes a Constant node whose value_float defers to
// a function attribute.
type floatConstSpec struct{}

func (floatConstSpec) OpType() graph.OpType { return graph.OpType{Name: "Constant", Version: 13} }

func (floatConstSpec) InferOutputTypes(inputs []*graph.Value, attrs []graph.Attr) ([]types.Type, error) {
	return []types.Type{types.MakeScalar(dtypes.Float32)}, nil
}

func TestRunFunctionCall(t *testing.T) {
	scale := graph.NewFunction("custom", "ScaleBy", func(fc *graph.FunctionContext, args []*graph.Value) []*graph.Value {
		k := graph.Apply1(floatConstSpec{}, nil, []graph.Attr{{Name: "value_float", Value: fc.AttrRef("k")}})
		return []*graph.Value{ops.Mul(args[0], k)}
	}, graph.AttrDecl{Name: "k", Type: protos.AttributeTypeFloat, Default: graph.Float(2)})

	x := f32Arg("x", 3)
	ft := types.MakeTensor(dtypes.Float32, 3)
	a := graph.UnsafeCast(scale.Call([]*graph.Value{x})[0], ft)
	b := graph.UnsafeCast(scale.Call([]*graph.Value{x}, graph.Attr{Name: "k", Value: graph.Float(3)})[0], ft)
	m := buildModel(t, graph.Results(graph.Out("a", a), graph.Out("b", b)))

	outs := run(t, m, map[string]*tensors.Tensor{"x": tensors.FromValue([]float32{1, 2, 3})})
	wantTensor(t, outs["a"], []float32{2, 4, 6}, 3)
	wantTensor(t, outs["b"], []float32{3, 6, 9}, 3)
}

func TestRunInitializerDefaults(t *testing.T) {
	w := graph.Initializer(tensors.FromValue([]float32{10, 20}))
	x := graph.ArgWithDefault(types.MakeTensor(dtypes.Float32, 2), "x", tensors.FromValue([]float32{1, 2}))
	m := buildModel(t, graph.Results(graph.Out("y", ops.Mul(x, w))))

	outs := run(t, m, nil)
	wantTensor(t, outs["y"], []float32{10, 40}, 2)

	outs = run(t, m, map[string]*tensors.Tensor{"x": tensors.FromValue([]float32{3, 3})})
	wantTensor(t, outs["y"], []float32{30, 60}, 2)
}

func intAttr(name string, v int64) *protos.AttributeProto {
	return &protos.AttributeProto{Name: name, Type: protos.AttributeTypeInt, I: v}
}

func intsAttr(name string, vals ...int64) *protos.AttributeProto {
	return &protos.AttributeProto{Name: name, Type: protos.AttributeTypeInts, Ints: vals}
}

// Models pinned to an old operator set carry axes as attributes; the
// evaluator accepts that form as well.
func TestRunAttributeEraAxes(t *testing.T) {
	m := &protos.ModelProto{
		IrVersion:   8,
		OpsetImport: []*protos.OperatorSetIdProto{{Version: 11}},
		Graph: &protos.GraphProto{
			Name:   "legacy",
			Input:  []*protos.ValueInfoProto{{Name: "x"}},
			Output: []*protos.ValueInfoProto{{Name: "sum"}, {Name: "a"}, {Name: "b"}},
			Node: []*protos.NodeProto{
				{OpType: "Squeeze", Input: []string{"x"}, Output: []string{"sq"},
					Attribute: []*protos.AttributeProto{intsAttr("axes", 0)}},
				{OpType: "ReduceSum", Input: []string{"sq"}, Output: []string{"sum"},
					Attribute: []*protos.AttributeProto{intsAttr("axes", 1), intAttr("keepdims", 0)}},
				{OpType: "Split", Input: []string{"sq"}, Output: []string{"a", "b"},
					Attribute: []*protos.AttributeProto{intsAttr("split", 1, 2), intAttr("axis", 1)}},
			},
		},
	}
	outs := run(t, m, map[string]*tensors.Tensor{
		"x": tensors.FromValue([][][]float32{{{1, 2, 3}, {4, 5, 6}}}),
	})
	wantTensor(t, outs["sum"], []float32{6, 15}, 2)
	wantTensor(t, outs["a"], []float32{1, 4}, 2, 1)
	wantTensor(t, outs["b"], []float32{2, 3, 5, 6}, 2, 2)
}

// geluSpec serializes a default-domain operator the evaluator has no
// kernel for.
type geluSpec struct{}

func (geluSpec) OpType() graph.OpType { return graph.OpType{Name: "Gelu", Version: 20} }

func (geluSpec) InferOutputTypes(inputs []*graph.Value, attrs []graph.Attr) ([]types.Type, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, errors.New("Gelu takes exactly one input")
	}
	return []types.Type{inputs[0].Type()}, nil
}

// externSpec serializes a node in a domain no function covers.
type externSpec struct{}

func (externSpec) OpType() graph.OpType {
	return graph.OpType{Domain: "my.ops", Name: "Twist", Version: 2}
}

func (externSpec) InferOutputTypes(inputs []*graph.Value, attrs []graph.Attr) ([]types.Type, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, errors.New("Twist takes exactly one input")
	}
	return []types.Type{inputs[0].Type()}, nil
}

func TestRunErrors(t *testing.T) {
	x := f32Arg("x", 2)
	m := buildModel(t, graph.Results(graph.Out("y", ops.Identity(x))))
	in := tensors.FromValue([]float32{1, 2})

	t.Run("nil model", func(t *testing.T) {
		_, err := interp.Run(nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nil model")
	})

	t.Run("unknown input name", func(t *testing.T) {
		runError(t, m, map[string]*tensors.Tensor{"bogus": in}, `"bogus" is not an input of graph "main"`)
	})

	t.Run("missing input", func(t *testing.T) {
		runError(t, m, nil, `graph input "x" has no value`)
	})

	t.Run("no kernel", func(t *testing.T) {
		g := graph.Apply1(geluSpec{}, []*graph.Value{f32Arg("x", 2)}, nil)
		gm := buildModel(t, graph.Results(graph.Out("y", g)))
		runError(t, gm, map[string]*tensors.Tensor{"x": in}, "no kernel for Gelu")
	})

	t.Run("unknown custom domain", func(t *testing.T) {
		v := graph.Apply1(externSpec{}, []*graph.Value{f32Arg("x", 2)}, nil)
		em := buildModel(t, graph.Results(graph.Out("y", v)))
		runError(t, em, map[string]*tensors.Tensor{"x": in}, "no function or kernel for my.ops::Twist")
	})
}
