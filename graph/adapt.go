// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"

	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Version adaptation. Serialized nodes carry no version of their own; the
// graph-level operator set import binds them. When the final import
// differs from the version an operator constructor targeted, the
// serialized form must change wherever the operator's definition changed
// in between. adaptNodes patches the serialized nodes in place, best
// effort: a node it cannot adapt keeps its form and logs a warning, it
// never fails a build.

// adaptFunc rewrites one node across one definition change. It may return
// nodes to insert before it (for example a Constant feeding a new input).
type adaptFunc func(n *protos.NodeProto, fresh func(base string) string) ([]*protos.NodeProto, error)

// versionChange records one operator set version at which an operator's
// definition changed. A nil direction means the serialized form is valid
// on both sides of the change (a type-support widening, typically).
type versionChange struct {
	version int64
	up      adaptFunc
	down    adaptFunc
}

// opChanges lists the definition changes of default-domain operators the
// library emits, within the version range its constructors span. Operators
// absent here are assumed serialization-stable.
var opChanges = map[string][]versionChange{
	"Add":            {{version: 7, down: refuseFn("implicit broadcasting is unavailable before opset 7")}},
	"Sub":            {{version: 7, down: refuseFn("implicit broadcasting is unavailable before opset 7")}},
	"Mul":            {{version: 7, down: refuseFn("implicit broadcasting is unavailable before opset 7")}},
	"Div":            {{version: 7, down: refuseFn("implicit broadcasting is unavailable before opset 7")}},
	"And":            {{version: 7, down: refuseFn("implicit broadcasting is unavailable before opset 7")}},
	"Or":             {{version: 7, down: refuseFn("implicit broadcasting is unavailable before opset 7")}},
	"Equal":          {{version: 7, down: refuseFn("implicit broadcasting is unavailable before opset 7")}},
	"Less":           {{version: 7, down: refuseFn("implicit broadcasting is unavailable before opset 7")}},
	"Greater":        {{version: 7, down: refuseFn("implicit broadcasting is unavailable before opset 7")}},
	"LessOrEqual":    {{version: 12, down: refuseFn("the operator does not exist before opset 12")}},
	"GreaterOrEqual": {{version: 12, down: refuseFn("the operator does not exist before opset 12")}},
	"Where":          {{version: 9, down: refuseFn("the operator does not exist before opset 9")}},
	"Mod":            {{version: 10, down: refuseFn("the operator does not exist before opset 10")}},
	"Cast":           {{version: 6, down: refuseFn("the dtype moves to a string attribute before opset 6")}},
	"Reshape": {
		{version: 5, down: refuseFn("the shape moves to an attribute before opset 5")},
		{version: 14, down: dropDefaultIntAttr("allowzero", 0)},
	},
	"Shape": {
		{version: 15, down: shapeDropSlicing},
	},
	"Squeeze": {
		{version: 13, up: intsAttrToInput("axes"), down: intsInputToAttrEra(1, "axes")},
	},
	"Unsqueeze": {
		{version: 13, up: intsAttrToInput("axes"), down: intsInputToAttrEra(1, "axes")},
	},
	"ReduceSum": {
		{version: 13, up: intsAttrToInput("axes"), down: reduceSumToAttrEra},
	},
	"Split": {
		{version: 13, up: intsAttrToInput("split"), down: intsInputToAttrEra(1, "split")},
		{version: 18, up: splitAddNumOutputs},
	},
}

// adaptNodes rewrites the default-domain nodes of g (and of its subgraphs)
// from the version they were emitted at, recorded in versions, to target.
func adaptNodes(g *protos.GraphProto, versions map[*protos.NodeProto]int64, target int64) {
	used := make(map[string]bool)
	collectUsedNames(g, used)
	fresh := func(base string) string {
		if base != "" && !used[base] {
			used[base] = true
			return base
		}
		for k := 0; ; k++ {
			name := fmt.Sprintf("%s_%d", base, k)
			if !used[name] {
				used[name] = true
				return name
			}
		}
	}
	adaptGraphNodes(g, versions, target, fresh)
}

func adaptGraphNodes(g *protos.GraphProto, versions map[*protos.NodeProto]int64, target int64, fresh func(string) string) {
	out := make([]*protos.NodeProto, 0, len(g.Node))
	for _, n := range g.Node {
		for _, a := range n.Attribute {
			if a.G != nil {
				adaptGraphNodes(a.G, versions, target, fresh)
			}
			for _, sub := range a.Graphs {
				adaptGraphNodes(sub, versions, target, fresh)
			}
		}
		from, ok := versions[n]
		if !ok || from == target || n.Domain != "" {
			out = append(out, n)
			continue
		}
		adapted := cloneNodeProto(n)
		prelude, err := adaptNode(adapted, from, target, fresh)
		if err != nil {
			klog.Warningf("graph: cannot adapt %s node %q from opset %d to %d: %v; the serialized model may not validate",
				n.OpType, n.Name, from, target, err)
			out = append(out, n)
			continue
		}
		versions[adapted] = target
		for _, p := range prelude {
			versions[p] = target
		}
		out = append(out, prelude...)
		out = append(out, adapted)
	}
	g.Node = out
}

// adaptNode applies the definition changes crossed between from and
// target, mutating n. Callers pass a throwaway copy so refusals leave the
// original untouched.
func adaptNode(n *protos.NodeProto, from, target int64, fresh func(string) string) ([]*protos.NodeProto, error) {
	changes, ok := opChanges[n.OpType]
	if !ok {
		klog.V(1).Infof("graph: no adaptation entries for %s, assuming a stable serialized form between opsets %d and %d",
			n.OpType, from, target)
		return nil, nil
	}
	var prelude []*protos.NodeProto
	apply := func(fn adaptFunc) error {
		if fn == nil {
			return nil
		}
		extra, err := fn(n, fresh)
		if err != nil {
			return err
		}
		prelude = append(prelude, extra...)
		return nil
	}
	if target > from {
		for _, c := range changes {
			if c.version <= from || c.version > target {
				continue
			}
			if err := apply(c.up); err != nil {
				return nil, err
			}
		}
		return prelude, nil
	}
	for i := len(changes) - 1; i >= 0; i-- {
		c := changes[i]
		if c.version <= target || c.version > from {
			continue
		}
		if err := apply(c.down); err != nil {
			return nil, err
		}
	}
	return prelude, nil
}

func cloneNodeProto(n *protos.NodeProto) *protos.NodeProto {
	out := &protos.NodeProto{}
	if err := out.Unmarshal(n.Marshal()); err != nil {
		panicBuildf("internal: serialized node does not round-trip: %v", err)
	}
	return out
}

func collectUsedNames(g *protos.GraphProto, used map[string]bool) {
	for _, vi := range g.Input {
		used[vi.Name] = true
	}
	for _, vi := range g.Output {
		used[vi.Name] = true
	}
	for _, vi := range g.ValueInfo {
		used[vi.Name] = true
	}
	for _, t := range g.Initializer {
		used[t.Name] = true
	}
	for _, n := range g.Node {
		used[n.Name] = true
		for _, s := range n.Input {
			used[s] = true
		}
		for _, s := range n.Output {
			used[s] = true
		}
		for _, a := range n.Attribute {
			if a.G != nil {
				collectUsedNames(a.G, used)
			}
			for _, sub := range a.Graphs {
				collectUsedNames(sub, used)
			}
		}
	}
}

func findAttrProto(n *protos.NodeProto, name string) int {
	for i, a := range n.Attribute {
		if a.Name == name {
			return i
		}
	}
	return -1
}

func refuseFn(reason string) adaptFunc {
	return func(*protos.NodeProto, func(string) string) ([]*protos.NodeProto, error) {
		return nil, errors.New(reason)
	}
}

// intsAttrToInput moves an integer-list attribute into a trailing input
// fed by an inserted Constant, the pattern of the opset 13 reworks.
func intsAttrToInput(attr string) adaptFunc {
	return func(n *protos.NodeProto, fresh func(string) string) ([]*protos.NodeProto, error) {
		idx := findAttrProto(n, attr)
		if idx < 0 {
			return nil, nil
		}
		a := n.Attribute[idx]
		if a.Type != protos.AttributeTypeInts {
			return nil, errors.Errorf("attribute %q is %v, expected an integer list", attr, a.Type)
		}
		vals := slices.Clone(a.Ints)
		n.Attribute = slices.Delete(n.Attribute, idx, idx+1)
		valName := fresh(n.Name + "_" + attr)
		t := tensors.FromFlatDataAndDimensions(vals, int64(len(vals)))
		c := &protos.NodeProto{
			Name:   fresh(valName + "_const"),
			OpType: "Constant",
			Output: []string{valName},
			Attribute: []*protos.AttributeProto{{
				Name: "value",
				Type: protos.AttributeTypeTensor,
				T:    t.ToProto(valName),
			}},
		}
		n.Input = append(n.Input, valName)
		return []*protos.NodeProto{c}, nil
	}
}

// intsInputToAttrEra moves back into the attribute era: only possible when
// the optional input is absent, since an input is a runtime value.
func intsInputToAttrEra(index int, attr string) adaptFunc {
	return func(n *protos.NodeProto, _ func(string) string) ([]*protos.NodeProto, error) {
		if len(n.Input) > index && n.Input[index] != "" {
			return nil, errors.Errorf("the %s input cannot be folded back into an attribute", attr)
		}
		if len(n.Input) > index {
			n.Input = n.Input[:index]
		}
		return nil, nil
	}
}

func reduceSumToAttrEra(n *protos.NodeProto, fresh func(string) string) ([]*protos.NodeProto, error) {
	if idx := findAttrProto(n, "noop_with_empty_axes"); idx >= 0 {
		if n.Attribute[idx].I != 0 {
			return nil, errors.New("noop_with_empty_axes has no equivalent before opset 13")
		}
		n.Attribute = slices.Delete(n.Attribute, idx, idx+1)
	}
	return intsInputToAttrEra(1, "axes")(n, fresh)
}

// dropDefaultIntAttr removes an integer attribute when it holds the
// default the older version implies, refusing otherwise.
func dropDefaultIntAttr(attr string, def int64) adaptFunc {
	return func(n *protos.NodeProto, _ func(string) string) ([]*protos.NodeProto, error) {
		idx := findAttrProto(n, attr)
		if idx < 0 {
			return nil, nil
		}
		if n.Attribute[idx].I != def {
			return nil, errors.Errorf("attribute %q=%d has no equivalent at the target opset", attr, n.Attribute[idx].I)
		}
		n.Attribute = slices.Delete(n.Attribute, idx, idx+1)
		return nil, nil
	}
}

func shapeDropSlicing(n *protos.NodeProto, fresh func(string) string) ([]*protos.NodeProto, error) {
	if idx := findAttrProto(n, "end"); idx >= 0 {
		return nil, errors.New("the end attribute has no equivalent before opset 15")
	}
	return dropDefaultIntAttr("start", 0)(n, fresh)
}

// splitAddNumOutputs supplies the num_outputs attribute opset 18 requires
// when no explicit split is given.
func splitAddNumOutputs(n *protos.NodeProto, _ func(string) string) ([]*protos.NodeProto, error) {
	if len(n.Input) > 1 && n.Input[1] != "" {
		return nil, nil
	}
	if findAttrProto(n, "num_outputs") >= 0 {
		return nil, nil
	}
	n.Attribute = append(n.Attribute, &protos.AttributeProto{
		Name: "num_outputs",
		Type: protos.AttributeTypeInt,
		I:    int64(len(n.Output)),
	})
	return nil, nil
}
