// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package interp is a reference evaluator for serialized models. It walks
// the graph protos directly, with no backend underneath, covering the
// operator set this library emits over Bool, Int64, Float32 and Float64
// elements. It exists to close the loop in tests: build a graph,
// serialize it, evaluate it, compare.
//
// The evaluator accepts both serialized forms of the axis-carrying
// operators (attribute era and operand era), so models rewritten to a
// pinned operator set evaluate the same as freshly built ones.
package interp

import (
	"maps"
	"slices"

	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

type fnKey struct {
	domain string
	name   string
}

type machine struct {
	functions map[fnKey]*protos.FunctionProto
}

// frame holds the values of one graph scope. Subgraph frames chain to
// their enclosing scope; function body frames do not, since a body sees
// only its formal parameters. fnAttrs carries the effective attribute
// payloads of the enclosing function call for ref_attr_name resolution.
type frame struct {
	parent  *frame
	vars    map[string]*tensors.Tensor
	fnAttrs map[string]*protos.AttributeProto
}

func (fr *frame) lookup(name string) (*tensors.Tensor, bool) {
	for cur := fr; cur != nil; cur = cur.parent {
		if t, ok := cur.vars[name]; ok {
			return t, true
		}
	}
	return nil, false
}

func (fr *frame) functionAttrs() map[string]*protos.AttributeProto {
	for cur := fr; cur != nil; cur = cur.parent {
		if cur.fnAttrs != nil {
			return cur.fnAttrs
		}
	}
	return nil
}

// operand resolves the i-th input of n, nil for an omitted optional
// input (out of range or empty name).
func (fr *frame) operand(n *protos.NodeProto, i int) (*tensors.Tensor, error) {
	if i >= len(n.Input) || n.Input[i] == "" {
		return nil, nil
	}
	t, ok := fr.lookup(n.Input[i])
	if !ok {
		return nil, errors.Errorf("input %q has no value", n.Input[i])
	}
	return t, nil
}

func (fr *frame) operands(n *protos.NodeProto) ([]*tensors.Tensor, error) {
	out := make([]*tensors.Tensor, len(n.Input))
	for i := range n.Input {
		t, err := fr.operand(n, i)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// attrIn returns the named attribute of n with ref_attr_name resolved,
// or nil when the attribute is absent.
func (fr *frame) attrIn(n *protos.NodeProto, name string) (*protos.AttributeProto, error) {
	for _, a := range n.Attribute {
		if a.Name != name {
			continue
		}
		if a.RefAttrName == "" {
			return a, nil
		}
		attrs := fr.functionAttrs()
		if attrs == nil {
			return nil, errors.Errorf("attribute %q references %q outside a function body", name, a.RefAttrName)
		}
		res, ok := attrs[a.RefAttrName]
		if !ok {
			// Declared without a default and not set by the call.
			return nil, nil
		}
		return res, nil
	}
	return nil, nil
}

func (fr *frame) intAttrOr(n *protos.NodeProto, name string, def int64) (int64, error) {
	a, err := fr.attrIn(n, name)
	if err != nil {
		return 0, err
	}
	if a == nil {
		return def, nil
	}
	return a.I, nil
}

func (fr *frame) graphAttr(n *protos.NodeProto, name string) (*protos.GraphProto, error) {
	a, err := fr.attrIn(n, name)
	if err != nil {
		return nil, err
	}
	if a == nil || a.G == nil {
		return nil, errors.Errorf("%s requires the %s subgraph", n.OpType, name)
	}
	return a.G, nil
}

// axesOperand fetches an integer list that travels either as the operand
// at index or as a same-named attribute, depending on the opset era the
// node was serialized at.
func (fr *frame) axesOperand(n *protos.NodeProto, index int, name string) ([]int64, bool, error) {
	t, err := fr.operand(n, index)
	if err != nil {
		return nil, false, err
	}
	if t != nil {
		v, err := int64Vector(t, name)
		if err != nil {
			return nil, false, err
		}
		return v, true, nil
	}
	a, err := fr.attrIn(n, name)
	if err != nil {
		return nil, false, err
	}
	if a == nil {
		return nil, false, nil
	}
	return slices.Clone(a.Ints), true, nil
}

// Run evaluates the main graph of model on the named inputs and returns
// its outputs by name. Every graph input must be covered by inputs or by
// an initializer default, and every key of inputs must name a graph
// input.
func Run(model *protos.ModelProto, inputs map[string]*tensors.Tensor) (map[string]*tensors.Tensor, error) {
	if model == nil || model.Graph == nil {
		return nil, errors.New("nil model")
	}
	m := &machine{functions: make(map[fnKey]*protos.FunctionProto, len(model.Functions))}
	for _, f := range model.Functions {
		if f == nil {
			continue
		}
		m.functions[fnKey{f.Domain, f.Name}] = f
	}
	outs, err := m.evalGraph(model.Graph, nil, inputs)
	if err != nil {
		return nil, errors.WithMessagef(err, "evaluating graph %q", model.Graph.Name)
	}
	result := make(map[string]*tensors.Tensor, len(outs))
	for i, vi := range model.Graph.Output {
		result[vi.Name] = outs[i]
	}
	return result, nil
}

// evalGraph runs one graph in a child frame of parent and returns its
// outputs in declaration order. inputs bind the graph's declared inputs;
// initializers supply defaults for inputs they share a name with and
// values for free-standing names.
func (m *machine) evalGraph(g *protos.GraphProto, parent *frame, inputs map[string]*tensors.Tensor) ([]*tensors.Tensor, error) {
	fr := &frame{parent: parent, vars: make(map[string]*tensors.Tensor, len(g.Input)+2*len(g.Node))}
	for _, tp := range g.Initializer {
		t, err := tensors.FromProto(tp)
		if err != nil {
			return nil, errors.WithMessagef(err, "initializer %q", tp.Name)
		}
		fr.vars[tp.Name] = t
	}

	declared := make(map[string]bool, len(g.Input))
	for _, vi := range g.Input {
		declared[vi.Name] = true
	}
	for _, name := range slices.Sorted(maps.Keys(inputs)) {
		if !declared[name] {
			return nil, errors.Errorf("%q is not an input of graph %q", name, g.Name)
		}
		fr.vars[name] = inputs[name]
	}
	for _, vi := range g.Input {
		if _, ok := fr.vars[vi.Name]; !ok {
			return nil, errors.Errorf("graph input %q has no value", vi.Name)
		}
	}

	if err := m.evalNodes(g.Node, fr); err != nil {
		return nil, err
	}

	outs := make([]*tensors.Tensor, len(g.Output))
	for i, vi := range g.Output {
		t, ok := fr.lookup(vi.Name)
		if !ok {
			return nil, errors.Errorf("graph output %q has no value", vi.Name)
		}
		outs[i] = t
	}
	return outs, nil
}

func (m *machine) evalNodes(nodes []*protos.NodeProto, fr *frame) error {
	for _, n := range nodes {
		if err := m.evalNode(n, fr); err != nil {
			return errors.WithMessagef(err, "node %q (%s)", n.Name, n.OpType)
		}
	}
	return nil
}

func (m *machine) evalNode(n *protos.NodeProto, fr *frame) error {
	klog.V(2).Infof("interp: %s %q", n.OpType, n.Name)
	if n.Domain != "" {
		f, ok := m.functions[fnKey{n.Domain, n.OpType}]
		if !ok {
			return errors.Errorf("no function or kernel for %s::%s", n.Domain, n.OpType)
		}
		return m.callFunction(f, n, fr)
	}
	outs, err := m.evalKernel(n, fr)
	if err != nil {
		return err
	}
	return fr.yield(n, outs)
}

// yield binds the kernel results to the node's output names. Empty names
// mark unused optional outputs and are dropped.
func (fr *frame) yield(n *protos.NodeProto, outs []*tensors.Tensor) error {
	if len(outs) != len(n.Output) {
		return errors.Errorf("kernel yields %d values for %d outputs", len(outs), len(n.Output))
	}
	for i, name := range n.Output {
		if name == "" {
			continue
		}
		if outs[i] == nil {
			return errors.Errorf("output %q has no value", name)
		}
		fr.vars[name] = outs[i]
	}
	return nil
}

// callFunction inlines a function body: a fresh frame bound to the call
// operands, with the call-site attributes (over the declared defaults)
// visible to ref_attr_name.
func (m *machine) callFunction(f *protos.FunctionProto, n *protos.NodeProto, fr *frame) error {
	if len(n.Input) != len(f.Input) {
		return errors.Errorf("%s::%s takes %d inputs, the call passes %d", f.Domain, f.Name, len(f.Input), len(n.Input))
	}
	if len(n.Output) > len(f.Output) {
		return errors.Errorf("%s::%s yields %d outputs, the call expects %d", f.Domain, f.Name, len(f.Output), len(n.Output))
	}

	attrs := make(map[string]*protos.AttributeProto, len(f.AttributeProto)+len(n.Attribute))
	for _, a := range f.AttributeProto {
		attrs[a.Name] = a
	}
	for _, a := range n.Attribute {
		eff, err := fr.attrIn(n, a.Name)
		if err != nil {
			return err
		}
		if eff != nil {
			attrs[a.Name] = eff
		}
	}

	body := &frame{vars: make(map[string]*tensors.Tensor, len(f.Input)+2*len(f.Node)), fnAttrs: attrs}
	for i, name := range f.Input {
		t, err := fr.operand(n, i)
		if err != nil {
			return err
		}
		if t == nil {
			return errors.Errorf("%s::%s input %q has no value", f.Domain, f.Name, name)
		}
		body.vars[name] = t
	}
	if err := m.evalNodes(f.Node, body); err != nil {
		return errors.WithMessagef(err, "in function %s::%s", f.Domain, f.Name)
	}
	for i, out := range n.Output {
		if out == "" {
			continue
		}
		t, ok := body.vars[f.Output[i]]
		if !ok {
			return errors.Errorf("%s::%s body yields no value for %q", f.Domain, f.Name, f.Output[i])
		}
		fr.vars[out] = t
	}
	return nil
}

func (m *machine) evalIf(n *protos.NodeProto, fr *frame) ([]*tensors.Tensor, error) {
	cond, err := fr.operand(n, 0)
	if err != nil {
		return nil, err
	}
	take, err := scalarBool(cond, "condition")
	if err != nil {
		return nil, err
	}
	branchName := "else_branch"
	if take {
		branchName = "then_branch"
	}
	branch, err := fr.graphAttr(n, branchName)
	if err != nil {
		return nil, err
	}
	outs, err := m.evalGraph(branch, fr, nil)
	if err != nil {
		return nil, errors.WithMessagef(err, "in %s %q", branchName, branch.Name)
	}
	if len(outs) != len(n.Output) {
		return nil, errors.Errorf("%s yields %d results for %d outputs", branchName, len(outs), len(n.Output))
	}
	return outs, nil
}

// maxLoopIterations bounds Loop evaluation so a body that never flips
// its condition fails instead of hanging the test suite.
const maxLoopIterations = 1 << 20

func (m *machine) evalLoop(n *protos.NodeProto, fr *frame) ([]*tensors.Tensor, error) {
	body, err := fr.graphAttr(n, "body")
	if err != nil {
		return nil, err
	}
	if len(n.Input) < 2 {
		return nil, errors.Errorf("Loop takes a trip count, a condition and the carried values, has %d inputs", len(n.Input))
	}
	carried := len(n.Input) - 2
	if len(body.Input) != carried+2 || len(body.Output) < carried+1 {
		return nil, errors.Errorf("Loop body declares %d inputs and %d outputs for %d carried values",
			len(body.Input), len(body.Output), carried)
	}
	scans := len(body.Output) - 1 - carried
	if len(n.Output) != carried+scans {
		return nil, errors.Errorf("Loop yields %d values for %d outputs", carried+scans, len(n.Output))
	}

	var tripLimit *int64
	if t, err := fr.operand(n, 0); err != nil {
		return nil, err
	} else if t != nil {
		v, err := scalarInt64(t, "trip count")
		if err != nil {
			return nil, err
		}
		tripLimit = &v
	}
	cond := true
	if t, err := fr.operand(n, 1); err != nil {
		return nil, err
	} else if t != nil {
		if cond, err = scalarBool(t, "condition"); err != nil {
			return nil, err
		}
	}

	state := make([]*tensors.Tensor, carried)
	for i := range state {
		t, err := fr.operand(n, 2+i)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, errors.Errorf("carried value #%d has no value", i)
		}
		state[i] = t
	}
	scanned := make([][]*tensors.Tensor, scans)

	for iter := int64(0); cond && (tripLimit == nil || iter < *tripLimit); iter++ {
		if iter >= maxLoopIterations {
			return nil, errors.Errorf("Loop exceeded %d iterations without terminating", maxLoopIterations)
		}
		bound := make(map[string]*tensors.Tensor, carried+2)
		bound[body.Input[0].Name] = tensors.FromScalar(iter)
		bound[body.Input[1].Name] = tensors.FromScalar(cond)
		for i, t := range state {
			bound[body.Input[2+i].Name] = t
		}
		outs, err := m.evalGraph(body, fr, bound)
		if err != nil {
			return nil, errors.WithMessagef(err, "in loop body %q (iteration %d)", body.Name, iter)
		}
		if cond, err = scalarBool(outs[0], "loop condition"); err != nil {
			return nil, err
		}
		copy(state, outs[1:1+carried])
		for i := 0; i < scans; i++ {
			scanned[i] = append(scanned[i], outs[1+carried+i])
		}
	}

	results := make([]*tensors.Tensor, 0, carried+scans)
	results = append(results, state...)
	for i, parts := range scanned {
		if len(parts) == 0 {
			return nil, errors.Errorf("scan output %q has no iterations to stack", n.Output[carried+i])
		}
		stacked, err := stackTensors(parts)
		if err != nil {
			return nil, errors.WithMessagef(err, "scan output %q", n.Output[carried+i])
		}
		results = append(results, stacked)
	}
	return results, nil
}
