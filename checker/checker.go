// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package checker validates serialized graphs and models against the
// structural rules of the format: single assignment, lexical scoping,
// operator set coverage, payload consistency. It has no dependency on the
// construction layer, so it vets models read from elsewhere just as well
// as models this library builds.
package checker

import (
	"fmt"

	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/pkg/errors"
)

// Level selects how much validation runs.
type Level int

const (
	// Skip runs no checks at all.
	Skip Level = iota

	// Basic checks structure: required fields, single assignment of
	// value names with lexical scoping, inputs defined before use,
	// operator set coverage for every node domain, function identity
	// uniqueness and initializer payload consistency.
	Basic

	// Full adds arity and attribute validation against the schemas of
	// the operators this library emits. Operators outside that set get
	// Basic's structural checks only.
	Full
)

// String implements fmt.Stringer.
func (l Level) String() string {
	switch l {
	case Skip:
		return "Skip"
	case Basic:
		return "Basic"
	case Full:
		return "Full"
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Check validates a complete model at the given level. A nil error means
// the model passed every check of that level.
func Check(m *protos.ModelProto, level Level) error {
	if level == Skip {
		return nil
	}
	if m == nil {
		return errors.New("nil model")
	}
	if m.IrVersion <= 0 {
		return errors.New("model has no ir_version")
	}
	if m.Graph == nil {
		return errors.New("model has no graph")
	}
	opsets, err := opsetMap(m.OpsetImport)
	if err != nil {
		return errors.WithMessage(err, "model opset imports")
	}
	if len(opsets) == 0 {
		return errors.New("model has no opset imports")
	}

	seenFns := make(map[[2]string]bool, len(m.Functions))
	for i, f := range m.Functions {
		if f == nil {
			return errors.Errorf("function #%d is nil", i)
		}
		key := [2]string{f.Domain, f.Name}
		if seenFns[key] {
			return errors.Errorf("two functions named %s::%s", f.Domain, f.Name)
		}
		seenFns[key] = true
		if err := checkFunction(f, level); err != nil {
			return errors.WithMessagef(err, "in function %s::%s", f.Domain, f.Name)
		}
	}

	c := &checkContext{level: level, opsets: opsets}
	if err := c.checkGraph(m.Graph, nil, true); err != nil {
		return errors.WithMessagef(err, "in graph %q", m.Graph.Name)
	}
	return nil
}

// CheckGraph validates a bare serialized graph. Without a model there are
// no opset imports, so operator set coverage is not checked; everything
// else of the level applies.
func CheckGraph(g *protos.GraphProto, level Level) error {
	if level == Skip {
		return nil
	}
	if g == nil {
		return errors.New("nil graph")
	}
	c := &checkContext{level: level}
	if err := c.checkGraph(g, nil, true); err != nil {
		return errors.WithMessagef(err, "in graph %q", g.Name)
	}
	return nil
}

// checkContext carries what the per-graph walk needs: the strictness, the
// opset imports in force (nil when unknown) and, inside a function body,
// the declared attribute names that ref_attr_name may target.
type checkContext struct {
	level   Level
	opsets  map[string]int64
	fnAttrs map[string]bool
}

func opsetMap(imports []*protos.OperatorSetIdProto) (map[string]int64, error) {
	out := make(map[string]int64, len(imports))
	for _, imp := range imports {
		if imp == nil {
			return nil, errors.New("nil entry")
		}
		if imp.Version < 1 {
			return nil, errors.Errorf("domain %q imported at version %d", imp.Domain, imp.Version)
		}
		if _, ok := out[imp.Domain]; ok {
			return nil, errors.Errorf("domain %q imported twice", imp.Domain)
		}
		out[imp.Domain] = imp.Version
	}
	return out, nil
}

// checkGraph walks one graph. outer holds the names visible from
// enclosing scopes; top marks the main graph, whose inputs and outputs
// must carry types (subgraphs and function bodies may leave them open).
func (c *checkContext) checkGraph(g *protos.GraphProto, outer map[string]bool, top bool) error {
	if g.Name == "" {
		return errors.New("graph has no name")
	}
	local := make(map[string]bool, len(g.Input)+len(g.Initializer)+2*len(g.Node))
	inputs := make(map[string]bool, len(g.Input))
	for i, vi := range g.Input {
		if vi == nil || vi.Name == "" {
			return errors.Errorf("graph input #%d has no name", i)
		}
		if local[vi.Name] {
			return errors.Errorf("two graph inputs named %q", vi.Name)
		}
		if outer[vi.Name] {
			return errors.Errorf("graph input %q shadows a value of an enclosing scope", vi.Name)
		}
		if top && vi.Type == nil {
			return errors.Errorf("graph input %q has no type", vi.Name)
		}
		local[vi.Name] = true
		inputs[vi.Name] = true
	}
	for i, t := range g.Initializer {
		if t == nil || t.Name == "" {
			return errors.Errorf("initializer #%d has no name", i)
		}
		if local[t.Name] && !inputs[t.Name] {
			return errors.Errorf("initializer %q collides with another value", t.Name)
		}
		if outer[t.Name] {
			return errors.Errorf("initializer %q shadows a value of an enclosing scope", t.Name)
		}
		if _, err := tensors.FromProto(t); err != nil {
			return errors.WithMessagef(err, "initializer %q", t.Name)
		}
		local[t.Name] = true
	}
	for i, vi := range g.ValueInfo {
		if vi == nil || vi.Name == "" {
			return errors.Errorf("value_info #%d has no name", i)
		}
	}

	if err := c.checkNodeSeq(g.Node, outer, local); err != nil {
		return err
	}

	seenOut := make(map[string]bool, len(g.Output))
	for i, vi := range g.Output {
		if vi == nil || vi.Name == "" {
			return errors.Errorf("graph output #%d has no name", i)
		}
		if seenOut[vi.Name] {
			return errors.Errorf("two graph outputs named %q", vi.Name)
		}
		seenOut[vi.Name] = true
		if top && vi.Type == nil {
			return errors.Errorf("graph output %q has no type", vi.Name)
		}
		if !local[vi.Name] && !outer[vi.Name] {
			return errors.Errorf("graph output %q is not produced by any node", vi.Name)
		}
	}
	return nil
}

// checkNodeSeq walks nodes in serialized order, growing local with their
// outputs. Shared by graphs and function bodies.
func (c *checkContext) checkNodeSeq(nodes []*protos.NodeProto, outer, local map[string]bool) error {
	for idx, n := range nodes {
		if n == nil {
			return errors.Errorf("node #%d is nil", idx)
		}
		if n.OpType == "" {
			return errors.Errorf("node #%d has no op_type", idx)
		}
		where := fmt.Sprintf("node #%d (%s %q)", idx, n.OpType, n.Name)

		if c.opsets != nil {
			if _, ok := c.opsets[n.Domain]; !ok {
				return errors.Errorf("%s: domain %q has no opset import", where, n.Domain)
			}
		}

		seenAttrs := make(map[string]bool, len(n.Attribute))
		for _, a := range n.Attribute {
			if a == nil || a.Name == "" {
				return errors.Errorf("%s: attribute with no name", where)
			}
			if seenAttrs[a.Name] {
				return errors.Errorf("%s: attribute %q given twice", where, a.Name)
			}
			seenAttrs[a.Name] = true
			if a.RefAttrName != "" {
				if c.fnAttrs == nil {
					return errors.Errorf("%s: attribute %q references %q outside a function body",
						where, a.Name, a.RefAttrName)
				}
				if !c.fnAttrs[a.RefAttrName] {
					return errors.Errorf("%s: attribute %q references undeclared function attribute %q",
						where, a.Name, a.RefAttrName)
				}
			}
		}

		for i, in := range n.Input {
			if in == "" {
				continue
			}
			if !local[in] && !outer[in] {
				return errors.Errorf("%s: input #%d %q is not defined at this point", where, i, in)
			}
		}

		var childOuter map[string]bool
		for _, a := range n.Attribute {
			subs := a.Graphs
			if a.G != nil {
				subs = append([]*protos.GraphProto{a.G}, subs...)
			}
			for _, sub := range subs {
				if sub == nil {
					return errors.Errorf("%s: attribute %q holds a nil graph", where, a.Name)
				}
				if childOuter == nil {
					childOuter = make(map[string]bool, len(outer)+len(local))
					for name := range outer {
						childOuter[name] = true
					}
					for name := range local {
						childOuter[name] = true
					}
				}
				if err := c.checkGraph(sub, childOuter, false); err != nil {
					return errors.WithMessagef(err, "%s: in subgraph %q of attribute %q", where, sub.Name, a.Name)
				}
			}
		}

		for i, out := range n.Output {
			if out == "" {
				continue
			}
			if local[out] || outer[out] {
				return errors.Errorf("%s: output #%d %q is assigned more than once", where, i, out)
			}
			local[out] = true
		}

		if c.level >= Full && n.Domain == "" {
			if err := checkSchema(n); err != nil {
				return errors.WithMessage(err, where)
			}
		}
	}
	return nil
}

// checkFunction validates a serialized function definition: distinct IO
// and attribute names, a well-formed body under the function's own opset
// imports, outputs produced by the body.
func checkFunction(f *protos.FunctionProto, level Level) error {
	if f.Name == "" {
		return errors.New("function has no name")
	}
	if f.Domain == "" {
		return errors.New("function has no domain")
	}
	opsets, err := opsetMap(f.OpsetImport)
	if err != nil {
		return errors.WithMessage(err, "opset imports")
	}

	local := make(map[string]bool, len(f.Input))
	for i, in := range f.Input {
		if in == "" {
			return errors.Errorf("input #%d has no name", i)
		}
		if local[in] {
			return errors.Errorf("two inputs named %q", in)
		}
		local[in] = true
	}
	attrs := make(map[string]bool, len(f.Attribute)+len(f.AttributeProto))
	for _, name := range f.Attribute {
		if name == "" {
			return errors.New("attribute with no name")
		}
		if attrs[name] {
			return errors.Errorf("attribute %q declared twice", name)
		}
		attrs[name] = true
	}
	for _, a := range f.AttributeProto {
		if a == nil || a.Name == "" {
			return errors.New("attribute default with no name")
		}
		if attrs[a.Name] {
			return errors.Errorf("attribute %q declared twice", a.Name)
		}
		attrs[a.Name] = true
	}

	c := &checkContext{level: level, fnAttrs: attrs}
	if len(opsets) > 0 {
		c.opsets = opsets
	}
	if err := c.checkNodeSeq(f.Node, nil, local); err != nil {
		return err
	}

	seenOut := make(map[string]bool, len(f.Output))
	for i, out := range f.Output {
		if out == "" {
			return errors.Errorf("output #%d has no name", i)
		}
		if seenOut[out] {
			return errors.Errorf("two outputs named %q", out)
		}
		seenOut[out] = true
		if !local[out] {
			return errors.Errorf("output %q is not produced by the body", out)
		}
	}
	return nil
}
