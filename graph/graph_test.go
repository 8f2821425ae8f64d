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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f32Arg(name string, dims ...any) *graph.Value {
	return graph.Arg(types.MakeTensor(dtypes.Float32, dims...), name)
}

func boolArg(name string) *graph.Value {
	return graph.Arg(types.MakeTensor(dtypes.Bool), name)
}

// mustONNX serializes g expecting success.
func mustONNX(t *testing.T, g *graph.Graph, opts ...graph.Option) *protos.GraphProto {
	t.Helper()
	p, err := g.ToONNX(opts...)
	require.NoError(t, err)
	return p
}

// buildError asserts that serializing g fails with a build error mentioning
// substr.
func buildError(t *testing.T, substr string, g *graph.Graph) {
	t.Helper()
	_, err := g.ToONNX()
	require.ErrorIs(t, err, graph.ErrBuild)
	assert.Contains(t, err.Error(), substr)
}

// constructionError runs fn expecting an eager construction panic mentioning
// substr.
func constructionError(t *testing.T, substr string, fn func()) {
	t.Helper()
	err := exceptions.TryCatch[error](fn)
	require.ErrorIs(t, err, graph.ErrConstruction)
	assert.Contains(t, err.Error(), substr)
}

func attrNamed(n *protos.NodeProto, name string) *protos.AttributeProto {
	for _, a := range n.Attribute {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func nodeOfType(t *testing.T, g *protos.GraphProto, opType string) *protos.NodeProto {
	t.Helper()
	for _, n := range g.Node {
		if n.OpType == opType {
			return n
		}
	}
	t.Fatalf("no %s node in graph %q", opType, g.Name)
	return nil
}

func opTypes(g *protos.GraphProto) []string {
	out := make([]string, 0, len(g.Node))
	for _, n := range g.Node {
		out = append(out, n.OpType)
	}
	return out
}

func TestResultsValidation(t *testing.T) {
	x := f32Arg("x", 2)
	y := f32Arg("y", 2)
	constructionError(t, "empty name", func() { graph.Results(graph.Out("", x)) })
	constructionError(t, "nil value", func() { graph.Results(graph.Out("a", nil)) })
	constructionError(t, `result name "a" given twice`, func() {
		graph.Results(graph.Out("a", x), graph.Out("a", y))
	})
}

func TestEmptyGraph(t *testing.T) {
	buildError(t, "graph has no results", graph.Results())
}

func TestDuplicateResultValue(t *testing.T) {
	x := f32Arg("x", 2)
	s := ops.Add(x, x)
	buildError(t, "already serializes as", graph.Results(graph.Out("a", s), graph.Out("b", s)))

	// Wrapping one exposure in Identity resolves the clash.
	p := mustONNX(t, graph.Results(graph.Out("a", s), graph.Out("b", ops.Identity(s))))
	require.Len(t, p.Output, 2)
	assert.Equal(t, "a", p.Output[0].Name)
	assert.Equal(t, "b", p.Output[1].Name)
	assert.Equal(t, []string{"Add", "Identity"}, opTypes(p))
	assert.Equal(t, []string{"a"}, nodeOfType(t, p, "Identity").Input)
}

func TestArgumentDiscoveryOrder(t *testing.T) {
	a := f32Arg("x", 2)
	b := f32Arg("x", 2)
	c := f32Arg("", 2)
	p := mustONNX(t, graph.Results(graph.Out("out", ops.Add(ops.Add(a, b), c))))

	require.Len(t, p.Input, 3)
	assert.Equal(t, "x", p.Input[0].Name)
	assert.Equal(t, "x_0", p.Input[1].Name)
	assert.Equal(t, "arg", p.Input[2].Name)
}

func TestArgumentNameSanitization(t *testing.T) {
	a := graph.Arg(types.MakeTensor(dtypes.Float32, 2), "weird name!")
	p := mustONNX(t, graph.Results(graph.Out("out", ops.Identity(a))))
	require.Len(t, p.Input, 1)
	assert.Equal(t, "weird_name_", p.Input[0].Name)
}

func TestWithArgumentsOrder(t *testing.T) {
	x := f32Arg("x", 2)
	y := f32Arg("y", 2)
	g := graph.Results(graph.Out("out", ops.Add(x, y))).WithArguments(y, x)
	p := mustONNX(t, g)
	require.Len(t, p.Input, 2)
	assert.Equal(t, "y", p.Input[0].Name)
	assert.Equal(t, "x", p.Input[1].Name)
}

func TestWithArgumentsCoverage(t *testing.T) {
	x := f32Arg("x", 2)
	y := f32Arg("y", 2)

	// Used but not listed.
	buildError(t, "is used but not listed in WithArguments",
		graph.Results(graph.Out("out", ops.Add(x, y))).WithArguments(x))

	// Listed but unused: a main graph may not declare dead inputs.
	buildError(t, "is not used by the results of the main graph",
		graph.Results(graph.Out("out", ops.Identity(x))).WithArguments(x, y))
}

func TestWithArgumentsValidation(t *testing.T) {
	x := f32Arg("x", 2)
	g := graph.Results(graph.Out("out", ops.Identity(x)))
	constructionError(t, "is not an argument", func() { g.WithArguments(ops.Add(x, x)) })
	constructionError(t, "listed twice", func() { g.WithArguments(x, x) })
	constructionError(t, "nil value", func() { g.WithArguments(nil) })
}

func TestArgWithDefault(t *testing.T) {
	bias := graph.ArgWithDefault(types.MakeTensor(dtypes.Float32, 2), "bias",
		tensors.FromValue([]float32{1, 2}))
	x := f32Arg("x", 2)
	p := mustONNX(t, graph.Results(graph.Out("out", ops.Add(x, bias))))

	// The default serializes as an initializer under the input's own name.
	require.Len(t, p.Input, 2)
	assert.Equal(t, "x", p.Input[0].Name)
	assert.Equal(t, "bias", p.Input[1].Name)
	require.Len(t, p.Initializer, 1)
	assert.Equal(t, "bias", p.Initializer[0].Name)
	assert.Equal(t, protos.DataTypeFloat, p.Initializer[0].DataType)
}

func TestArgWithDefaultValidation(t *testing.T) {
	def := tensors.FromValue([]float32{1, 2})
	constructionError(t, "does not fit declared type", func() {
		graph.ArgWithDefault(types.MakeTensor(dtypes.Float32, 3), "b", def)
	})
	err := exceptions.TryCatch[error](func() { graph.ArgWithDefault(nil, "b", def) })
	require.ErrorIs(t, err, graph.ErrConstruction)
	err = exceptions.TryCatch[error](func() {
		graph.ArgWithDefault(types.MakeTensor(dtypes.Float32, 2), "b", nil)
	})
	require.ErrorIs(t, err, graph.ErrConstruction)
}

func TestSubgraphAttachedTwice(t *testing.T) {
	cond := boolArg("cond")
	branch := graph.EnumResults("out", ops.Const([]float32{1}))
	buildError(t, "attached twice", graph.Results(
		graph.Out("y", ops.If(cond, branch, branch)[0])))
}

func TestSubgraphSharedBetweenNodes(t *testing.T) {
	cond := boolArg("cond")
	shared := graph.EnumResults("out", ops.Const([]float32{1}))
	a := ops.If(cond, shared, graph.EnumResults("out", ops.Const([]float32{2})))[0]
	b := ops.If(cond, shared, graph.EnumResults("out", ops.Const([]float32{3})))[0]
	buildError(t, "is attached to two nodes", graph.Results(graph.Out("a", a), graph.Out("b", b)))
}

func TestArgumentDeclaredOnTwoGraphs(t *testing.T) {
	it := graph.Arg(types.MakeTensor(dtypes.Int64), "")
	cond := graph.Arg(types.MakeTensor(dtypes.Bool), "")
	carried := graph.Arg(types.MakeTensor(dtypes.Float32, 2), "")
	body := graph.EnumResults("out", ops.Identity(cond), ops.Add(carried, carried)).
		WithArguments(it, cond, carried)
	other := graph.EnumResults("out", ops.Identity(cond), ops.Identity(carried)).
		WithArguments(it, cond, carried)

	init := f32Arg("x", 2)
	a := ops.Loop(nil, nil, []*graph.Value{init}, body)[0]
	b := ops.Loop(nil, nil, []*graph.Value{init}, other)[0]
	buildError(t, "is declared on both", graph.Results(graph.Out("a", a), graph.Out("b", b)))
}

func TestSubgraphArgumentLeak(t *testing.T) {
	var leaked *graph.Value
	body := graph.Subgraph([]types.Type{
		types.MakeTensor(dtypes.Int64),
		types.MakeTensor(dtypes.Bool),
		types.MakeTensor(dtypes.Float32, 2),
	}, func(args []*graph.Value) []*graph.Value {
		leaked = args[2]
		return []*graph.Value{ops.Identity(args[1]), ops.Add(args[2], args[2])}
	})
	init := f32Arg("x", 2)
	out := ops.Loop(nil, nil, []*graph.Value{init}, body)[0]
	buildError(t, "is used outside of it", graph.Results(graph.Out("y", ops.Add(out, leaked))))
}

func TestSubgraphMayDeclareUnusedArguments(t *testing.T) {
	// A loop body must declare the full iteration signature even when its
	// results ignore parts of it.
	body := graph.Subgraph([]types.Type{
		types.MakeTensor(dtypes.Int64),
		types.MakeTensor(dtypes.Bool),
		types.MakeTensor(dtypes.Float32, 2),
	}, func(args []*graph.Value) []*graph.Value {
		return []*graph.Value{ops.Identity(args[1]), ops.Const([]float32{0, 0})}
	})
	init := f32Arg("x", 2)
	out := ops.Loop(nil, nil, []*graph.Value{init}, body)[0]
	p := mustONNX(t, graph.Results(graph.Out("y", out)))

	loop := nodeOfType(t, p, "Loop")
	bodyProto := attrNamed(loop, "body")
	require.NotNil(t, bodyProto)
	require.NotNil(t, bodyProto.G)
	assert.Len(t, bodyProto.G.Input, 3)
}

func TestGraphAccessors(t *testing.T) {
	x := f32Arg("x", 2)
	y := f32Arg("y", 2)
	g := graph.Results(graph.Out("sum", ops.Add(x, y)))

	assert.Equal(t, "", g.Name())
	assert.Equal(t, "Graph[main](1 results)", g.String())
	require.Len(t, g.ResultValues(), 1)
	assert.Nil(t, g.DeclaredArguments())

	assert.Equal(t, map[string]int64{"": 14}, g.OpsetReq())
	assert.Equal(t, []*graph.Value{x, y}, g.ArgumentValues())
	assert.Empty(t, g.Initializers())
	assert.Empty(t, g.Functions())

	named := g.WithName("model").WithDoc("docs")
	assert.Equal(t, "model", named.Name())
	assert.Equal(t, "docs", named.Doc())
	declared := g.WithArguments(y, x)
	require.Len(t, declared.DeclaredArguments(), 2)
	assert.Same(t, y, declared.DeclaredArguments()[0])
}

func TestConfigurationCopies(t *testing.T) {
	x := f32Arg("x", 2)
	g := graph.Results(graph.Out("out", ops.Identity(x)))
	named := g.WithName("model")

	assert.Equal(t, "main", mustONNX(t, g).Name)
	assert.Equal(t, "model", mustONNX(t, named).Name)
	// The original is untouched by the derived configuration.
	assert.Equal(t, "", g.Name())
}

func TestBuildFailureIsCached(t *testing.T) {
	x := f32Arg("x", 2)
	s := ops.Add(x, x)
	g := graph.Results(graph.Out("a", s), graph.Out("b", s))

	_, err1 := g.ToONNX()
	require.ErrorIs(t, err1, graph.ErrBuild)
	_, err2 := g.ToONNX()
	require.Error(t, err2)
	assert.Equal(t, err1.Error(), err2.Error())
	_, err3 := g.ToONNXModel()
	require.Error(t, err3)
	assert.Equal(t, err1.Error(), err3.Error())
}

func TestInitializerValues(t *testing.T) {
	w := graph.Initializer(tensors.FromValue([]float32{1, 2, 3}))
	require.NotNil(t, w.Const())
	x := f32Arg("x", 3)
	g := graph.Results(graph.Out("out", ops.Add(w, x)))
	assert.Len(t, g.Initializers(), 1)

	p := mustONNX(t, g)
	require.Len(t, p.Initializer, 1)
	assert.Equal(t, "init", p.Initializer[0].Name)
	// Initializers are not graph inputs.
	require.Len(t, p.Input, 1)
	assert.Equal(t, "x", p.Input[0].Name)
	assert.Equal(t, []string{"init", "x"}, p.Node[0].Input)
}
