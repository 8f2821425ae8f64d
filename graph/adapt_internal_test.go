// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// protoGraph wraps nodes in a minimal serialized graph. adaptNodes scans
// the whole tree for names in use, so inputs and outputs matter.
func protoGraph(nodes ...*protos.NodeProto) *protos.GraphProto {
	return &protos.GraphProto{
		Name:   "g",
		Node:   nodes,
		Input:  []*protos.ValueInfoProto{{Name: "x"}},
		Output: []*protos.ValueInfoProto{{Name: "y"}},
	}
}

// squeezeWithAxesAttr builds a Squeeze node in the pre-13 form, axes
// carried as an attribute.
func squeezeWithAxesAttr(name string, axes ...int64) *protos.NodeProto {
	return &protos.NodeProto{
		Name:   name,
		OpType: "Squeeze",
		Input:  []string{"x"},
		Output: []string{"y"},
		Attribute: []*protos.AttributeProto{{
			Name: "axes",
			Type: protos.AttributeTypeInts,
			Ints: axes,
		}},
	}
}

func TestAdaptSqueezeAxesToInput(t *testing.T) {
	n := squeezeWithAxesAttr("sq", 0, 2)
	g := protoGraph(n)
	versions := map[*protos.NodeProto]int64{n: 11}
	adaptNodes(g, versions, 13)

	require.Len(t, g.Node, 2)
	c, adapted := g.Node[0], g.Node[1]

	// The axes move into a trailing input fed by an inserted Constant.
	assert.Equal(t, "Constant", c.OpType)
	assert.Equal(t, "sq_axes_const", c.Name)
	assert.Equal(t, []string{"sq_axes"}, c.Output)
	require.Len(t, c.Attribute, 1)
	va := c.Attribute[0]
	assert.Equal(t, "value", va.Name)
	assert.Equal(t, protos.AttributeTypeTensor, va.Type)
	require.NotNil(t, va.T)
	assert.Equal(t, "sq_axes", va.T.Name)
	payload, err := tensors.FromProto(va.T)
	require.NoError(t, err)
	assert.Equal(t, dtypes.Int64, payload.DType())
	assert.Equal(t, []int64{2}, payload.Dimensions())
	assert.Equal(t, []int64{0, 2}, tensors.FlatData[int64](payload))

	assert.Equal(t, "sq", adapted.Name)
	assert.Equal(t, []string{"x", "sq_axes"}, adapted.Input)
	assert.Empty(t, adapted.Attribute)

	// Adaptation works on a copy; the node as built keeps its form.
	require.NotSame(t, n, adapted)
	assert.Equal(t, []string{"x"}, n.Input)
	require.Len(t, n.Attribute, 1)

	assert.Equal(t, int64(13), versions[adapted])
	assert.Equal(t, int64(13), versions[c])
}

func TestAdaptFreshNamesAvoidCollisions(t *testing.T) {
	n := squeezeWithAxesAttr("sq", 0)
	g := protoGraph(n)
	g.Input = append(g.Input, &protos.ValueInfoProto{Name: "sq_axes"})
	adaptNodes(g, map[*protos.NodeProto]int64{n: 11}, 13)

	require.Len(t, g.Node, 2)
	assert.Equal(t, "sq_axes_0_const", g.Node[0].Name)
	assert.Equal(t, []string{"sq_axes_0"}, g.Node[0].Output)
	assert.Equal(t, []string{"x", "sq_axes_0"}, g.Node[1].Input)
}

func TestAdaptRefusalKeepsOriginalNode(t *testing.T) {
	// A present axes input is a runtime value and cannot be folded back
	// into an attribute. The node is kept at its emission version.
	n := &protos.NodeProto{
		Name:   "sq",
		OpType: "Squeeze",
		Input:  []string{"x", "axes"},
		Output: []string{"y"},
	}
	g := protoGraph(n)
	versions := map[*protos.NodeProto]int64{n: 13}
	adaptNodes(g, versions, 11)

	require.Len(t, g.Node, 1)
	assert.Same(t, n, g.Node[0])
	assert.Equal(t, []string{"x", "axes"}, n.Input)
	assert.Equal(t, int64(13), versions[n])
}

func TestAdaptDropsEmptyOptionalInput(t *testing.T) {
	n := &protos.NodeProto{
		Name:   "sq",
		OpType: "Squeeze",
		Input:  []string{"x", ""},
		Output: []string{"y"},
	}
	g := protoGraph(n)
	versions := map[*protos.NodeProto]int64{n: 13}
	adaptNodes(g, versions, 11)

	adapted := g.Node[0]
	require.NotSame(t, n, adapted)
	assert.Equal(t, []string{"x"}, adapted.Input)
	assert.Equal(t, int64(11), versions[adapted])
	assert.Equal(t, []string{"x", ""}, n.Input)
}

func TestAdaptReduceSumNoopAttr(t *testing.T) {
	node := func(noop int64) *protos.NodeProto {
		return &protos.NodeProto{
			Name:   "rs",
			OpType: "ReduceSum",
			Input:  []string{"x"},
			Output: []string{"y"},
			Attribute: []*protos.AttributeProto{
				{Name: "keepdims", Type: protos.AttributeTypeInt, I: 1},
				{Name: "noop_with_empty_axes", Type: protos.AttributeTypeInt, I: noop},
			},
		}
	}

	// The default noop_with_empty_axes is implied before 13 and folds away.
	n := node(0)
	g := protoGraph(n)
	adaptNodes(g, map[*protos.NodeProto]int64{n: 13}, 11)
	adapted := g.Node[0]
	require.NotSame(t, n, adapted)
	require.Len(t, adapted.Attribute, 1)
	assert.Equal(t, "keepdims", adapted.Attribute[0].Name)

	// The non-default setting has no older equivalent.
	n = node(1)
	g = protoGraph(n)
	adaptNodes(g, map[*protos.NodeProto]int64{n: 13}, 11)
	assert.Same(t, n, g.Node[0])
	assert.Len(t, n.Attribute, 2)
}

func TestAdaptShapeSlicing(t *testing.T) {
	shape := func(attrs ...*protos.AttributeProto) *protos.NodeProto {
		return &protos.NodeProto{
			Name:      "sh",
			OpType:    "Shape",
			Input:     []string{"x"},
			Output:    []string{"y"},
			Attribute: attrs,
		}
	}
	intAttr := func(name string, v int64) *protos.AttributeProto {
		return &protos.AttributeProto{Name: name, Type: protos.AttributeTypeInt, I: v}
	}

	// A zero start is what older versions do anyway.
	n := shape(intAttr("start", 0))
	g := protoGraph(n)
	adaptNodes(g, map[*protos.NodeProto]int64{n: 15}, 14)
	require.NotSame(t, n, g.Node[0])
	assert.Empty(t, g.Node[0].Attribute)

	// Any other slicing cannot be expressed before 15.
	n = shape(intAttr("start", 2))
	g = protoGraph(n)
	adaptNodes(g, map[*protos.NodeProto]int64{n: 15}, 14)
	assert.Same(t, n, g.Node[0])

	n = shape(intAttr("end", 3))
	g = protoGraph(n)
	adaptNodes(g, map[*protos.NodeProto]int64{n: 15}, 14)
	assert.Same(t, n, g.Node[0])
}

func TestAdaptSplitNumOutputs(t *testing.T) {
	splitGraph := func(n *protos.NodeProto) *protos.GraphProto {
		return &protos.GraphProto{
			Name:   "g",
			Node:   []*protos.NodeProto{n},
			Input:  []*protos.ValueInfoProto{{Name: "x"}, {Name: "s"}},
			Output: []*protos.ValueInfoProto{{Name: "a"}, {Name: "b"}},
		}
	}

	// Without explicit sizes, opset 18 needs the output count spelled out.
	n := &protos.NodeProto{Name: "sp", OpType: "Split", Input: []string{"x"}, Output: []string{"a", "b"}}
	g := splitGraph(n)
	versions := map[*protos.NodeProto]int64{n: 13}
	adaptNodes(g, versions, 18)
	adapted := g.Node[0]
	require.NotSame(t, n, adapted)
	idx := findAttrProto(adapted, "num_outputs")
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, protos.AttributeTypeInt, adapted.Attribute[idx].Type)
	assert.Equal(t, int64(2), adapted.Attribute[idx].I)
	assert.Equal(t, -1, findAttrProto(n, "num_outputs"))

	// An explicit sizes input makes the attribute redundant.
	withSizes := &protos.NodeProto{Name: "sp", OpType: "Split", Input: []string{"x", "s"}, Output: []string{"a", "b"}}
	g = splitGraph(withSizes)
	adaptNodes(g, map[*protos.NodeProto]int64{withSizes: 13}, 18)
	assert.Equal(t, -1, findAttrProto(g.Node[0], "num_outputs"))
}

func TestAdaptSplitAttrToInputChain(t *testing.T) {
	// From 11 to 18 the split attribute first becomes an input at 13; the
	// input then satisfies 18 without a num_outputs attribute.
	n := &protos.NodeProto{
		Name:   "sp",
		OpType: "Split",
		Input:  []string{"x"},
		Output: []string{"a", "b"},
		Attribute: []*protos.AttributeProto{{
			Name: "split",
			Type: protos.AttributeTypeInts,
			Ints: []int64{2, 2},
		}},
	}
	g := &protos.GraphProto{
		Name:   "g",
		Node:   []*protos.NodeProto{n},
		Input:  []*protos.ValueInfoProto{{Name: "x"}},
		Output: []*protos.ValueInfoProto{{Name: "a"}, {Name: "b"}},
	}
	versions := map[*protos.NodeProto]int64{n: 11}
	adaptNodes(g, versions, 18)

	require.Len(t, g.Node, 2)
	c, adapted := g.Node[0], g.Node[1]
	assert.Equal(t, "Constant", c.OpType)
	assert.Equal(t, []string{"sp_split"}, c.Output)
	assert.Equal(t, []string{"x", "sp_split"}, adapted.Input)
	assert.Equal(t, -1, findAttrProto(adapted, "split"))
	assert.Equal(t, -1, findAttrProto(adapted, "num_outputs"))
	assert.Equal(t, int64(18), versions[adapted])
	assert.Equal(t, int64(18), versions[c])
}

func TestAdaptUnknownOpPassesThrough(t *testing.T) {
	n := &protos.NodeProto{Name: "gelu0", OpType: "Gelu", Input: []string{"x"}, Output: []string{"y"}}
	g := protoGraph(n)
	versions := map[*protos.NodeProto]int64{n: 10}
	adaptNodes(g, versions, 18)

	require.Len(t, g.Node, 1)
	adapted := g.Node[0]
	require.NotSame(t, n, adapted)
	assert.Equal(t, "Gelu", adapted.OpType)
	assert.Equal(t, []string{"x"}, adapted.Input)
	assert.Empty(t, adapted.Attribute)
	assert.Equal(t, int64(18), versions[adapted])
}

func TestAdaptSkipsForeignAndCurrentNodes(t *testing.T) {
	atTarget := &protos.NodeProto{Name: "a0", OpType: "Add", Input: []string{"x", "x"}, Output: []string{"s"}}
	foreign := &protos.NodeProto{Name: "b0", OpType: "Scale", Domain: "custom", Input: []string{"s"}, Output: []string{"u"}}
	untracked := &protos.NodeProto{Name: "c0", OpType: "Mul", Input: []string{"u", "u"}, Output: []string{"y"}}
	g := protoGraph(atTarget, foreign, untracked)
	versions := map[*protos.NodeProto]int64{atTarget: 13, foreign: 2}
	adaptNodes(g, versions, 13)

	require.Len(t, g.Node, 3)
	assert.Same(t, atTarget, g.Node[0])
	assert.Same(t, foreign, g.Node[1])
	assert.Same(t, untracked, g.Node[2])
}

func TestAdaptRecursesIntoSubgraphs(t *testing.T) {
	inner := squeezeWithAxesAttr("sq", 1)
	branch := &protos.GraphProto{
		Name:   "then",
		Node:   []*protos.NodeProto{inner},
		Output: []*protos.ValueInfoProto{{Name: "out0"}},
	}
	ifNode := &protos.NodeProto{
		Name:   "if0",
		OpType: "If",
		Input:  []string{"c"},
		Output: []string{"y"},
		Attribute: []*protos.AttributeProto{{
			Name: "then_branch",
			Type: protos.AttributeTypeGraph,
			G:    branch,
		}},
	}
	g := &protos.GraphProto{
		Name:   "g",
		Node:   []*protos.NodeProto{ifNode},
		Input:  []*protos.ValueInfoProto{{Name: "c"}, {Name: "x"}},
		Output: []*protos.ValueInfoProto{{Name: "y"}},
	}
	versions := map[*protos.NodeProto]int64{inner: 11}
	adaptNodes(g, versions, 13)

	// The If node itself is untouched; the rewrite happens in its branch.
	require.Len(t, g.Node, 1)
	assert.Same(t, ifNode, g.Node[0])
	require.Len(t, branch.Node, 2)
	assert.Equal(t, "Constant", branch.Node[0].OpType)
	assert.Equal(t, []string{"sq_axes"}, branch.Node[0].Output)
	assert.Equal(t, []string{"x", "sq_axes"}, branch.Node[1].Input)
	assert.Equal(t, int64(13), versions[branch.Node[1]])
}
