// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"k8s.io/klog/v2"
)

// OpType identifies an operator: domain, name and the version of the
// domain's operator set it was introduced or last changed in. The empty
// domain is the standard operator set.
type OpType struct {
	Domain  string
	Name    string
	Version int64
}

// String implements fmt.Stringer, e.g. "Add@v14" or "my.domain::Op@v1".
func (op OpType) String() string {
	if op.Domain == "" {
		return fmt.Sprintf("%s@v%d", op.Name, op.Version)
	}
	return fmt.Sprintf("%s::%s@v%d", op.Domain, op.Name, op.Version)
}

const (
	// InternalDomain holds operators private to the builder. They never
	// surface in serialized graphs: they either vanish (arguments,
	// initializers) or lower to standard operators (Intro).
	InternalDomain = "onnxgraph.internal"

	// DefaultFunctionDomain is the domain NewFunction uses when the caller
	// passes an empty one.
	DefaultFunctionDomain = "onnxgraph.function"
)

// OpSpec defines an operator's behavior: its identity and its eager type
// inference. Specs additionally implementing ValuePropagator contribute
// constant propagation.
//
// A spec instance carries the operator's parameters (the typed view of its
// attributes) and must be immutable after Apply.
type OpSpec interface {
	// OpType returns the operator identity.
	OpType() OpType

	// InferOutputTypes computes the output types for the given inputs.
	// The number of outputs is the length of the returned slice. Returning
	// an error aborts construction.
	InferOutputTypes(inputs []*Value, attrs []Attr) ([]types.Type, error)
}

// ValuePropagator is implemented by op specs that can compute their outputs
// at construction time from constant inputs. Propagation is best effort: a
// nil entry (or a panic, which is swallowed) means "unknown".
type ValuePropagator interface {
	// PropagateValues receives the constant contents of each input, nil
	// for absent optional inputs, and returns constant outputs where
	// known. It is called only when every present input is constant.
	PropagateValues(inputs []*tensors.Tensor, attrs []Attr) []*tensors.Tensor
}

// StaticPropagator is implemented by op specs whose outputs can follow
// from the input types alone: the Shape of a statically shaped tensor is
// a constant whether or not the tensor itself is. It runs before
// ValuePropagator and without the all-inputs-constant requirement, under
// the same best-effort rules.
type StaticPropagator interface {
	PropagateStatic(inputs []*Value, attrs []Attr) []*tensors.Tensor
}

// metadataHook overrides the standard per-node metadata contribution
// (which is requiring the node's own opset).
type metadataHook interface {
	updateMetadata(n *Node, md *Metadata)
}

// emitHook overrides the standard serialization of a node (which is a
// single NodeProto).
type emitHook interface {
	emit(n *Node, em *emitState) []*protos.NodeProto
}

// aliaser is implemented by internal op specs whose outputs serialize
// under the name of one of their inputs instead of emitting a node.
type aliaser interface {
	aliasOf(n *Node, output int) *Value
}

// Node is one operator application. Nodes are created through Apply and
// immutable afterwards, except for the advisory doc string.
type Node struct {
	spec    OpSpec
	inputs  []*Value
	outputs []*Value
	attrs   []Attr
	doc     string

	// serial is the process-wide construction order, used to keep builds
	// deterministic.
	serial int64
}

var nodeSerial atomic.Int64

// Apply instantiates an operator over the given inputs, running type
// inference eagerly and value propagation best effort. It returns the
// node's output values.
//
// Inputs may contain nil entries for omitted optional inputs. Apply panics
// wrapping ErrInference if the inputs are incompatible with the operator,
// and wrapping ErrConstruction on malformed attributes.
func Apply(spec OpSpec, inputs []*Value, attrs []Attr) []*Value {
	op := spec.OpType()
	validateAttrs(op, attrs)
	n := &Node{
		spec:   spec,
		inputs: slices.Clone(inputs),
		attrs:  slices.Clone(attrs),
		serial: nodeSerial.Add(1),
	}
	outTypes, err := spec.InferOutputTypes(n.inputs, n.attrs)
	if err != nil {
		panicInferencef("applying %s to (%s): %v", op, valueList(n.inputs), err)
	}
	n.outputs = make([]*Value, len(outTypes))
	for i, typ := range outTypes {
		n.outputs[i] = &Value{typ: typ, node: n, index: i}
	}
	n.propagate()
	return n.outputs
}

// Apply1 is Apply for single-output operators.
func Apply1(spec OpSpec, inputs []*Value, attrs []Attr) *Value {
	outputs := Apply(spec, inputs, attrs)
	if len(outputs) != 1 {
		panicConstructionf("%s inferred %d outputs, expected exactly 1", spec.OpType(), len(outputs))
	}
	return outputs[0]
}

func (n *Node) propagate() {
	defer func() {
		if r := recover(); r != nil {
			klog.V(2).Infof("value propagation for %s failed: %v", n.spec.OpType(), r)
		}
	}()
	if static, ok := n.spec.(StaticPropagator); ok {
		n.setProps(static.PropagateStatic(n.inputs, n.attrs))
	}
	prop, ok := n.spec.(ValuePropagator)
	if !ok {
		return
	}
	consts := make([]*tensors.Tensor, len(n.inputs))
	for i, in := range n.inputs {
		if in == nil {
			continue
		}
		if in.prop == nil {
			return
		}
		consts[i] = in.prop
	}
	n.setProps(prop.PropagateValues(consts, n.attrs))
}

func (n *Node) setProps(outs []*tensors.Tensor) {
	for i, t := range outs {
		if i < len(n.outputs) && t != nil && n.outputs[i].prop == nil {
			n.outputs[i].prop = t
		}
	}
}

// OpType returns the operator identity of the node.
func (n *Node) OpType() OpType { return n.spec.OpType() }

// Inputs returns the input values, nil entries marking omitted optional
// inputs. The slice is shared and must not be modified.
func (n *Node) Inputs() []*Value { return n.inputs }

// Outputs returns the output values. The slice is shared and must not be
// modified.
func (n *Node) Outputs() []*Value { return n.outputs }

// Attrs returns the attributes in declaration order. The slice is shared
// and must not be modified.
func (n *Node) Attrs() []Attr { return n.attrs }

// Doc returns the node's doc string.
func (n *Node) Doc() string { return n.doc }

// SetDoc attaches a doc string, carried into the serialized node. Like
// name hints it only affects builds that have not run yet.
func (n *Node) SetDoc(doc string) *Node {
	n.doc = doc
	return n
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("%s#%d(%s)", n.spec.OpType(), n.serial, valueList(n.inputs))
}

func valueList(values []*Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if v == nil {
			parts[i] = "_"
			continue
		}
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// subgraphs returns the subgraph attributes of the node, in declaration
// order.
func (n *Node) subgraphs() []*Graph {
	var out []*Graph
	for _, a := range n.attrs {
		if g, ok := a.Value.(GraphAttr); ok {
			out = append(out, g.Value)
		}
	}
	return out
}

// Metadata accumulates graph-wide facts while walking the nodes of a
// build: the operator set versions required, the initializers to emit, and
// the functions called.
type Metadata struct {
	OpsetReq     map[string]int64
	Initializers map[*Value]*tensors.Tensor
	InitOrder    []*Value
	Functions    []*Function
}

func newMetadata() *Metadata {
	return &Metadata{
		OpsetReq:     make(map[string]int64),
		Initializers: make(map[*Value]*tensors.Tensor),
	}
}

// RequireOpset records that the build needs at least the given version of
// a domain. Requirements merge by maximum.
func (md *Metadata) RequireOpset(domain string, version int64) {
	if have, ok := md.OpsetReq[domain]; !ok || version > have {
		md.OpsetReq[domain] = version
	}
}

func (md *Metadata) addInitializer(v *Value, t *tensors.Tensor) {
	if _, ok := md.Initializers[v]; ok {
		return
	}
	md.Initializers[v] = t
	md.InitOrder = append(md.InitOrder, v)
}

// update collects the node's metadata contribution: by default its own
// opset requirement; internal operators and functions override this.
func (md *Metadata) update(n *Node) {
	if hook, ok := n.spec.(metadataHook); ok {
		hook.updateMetadata(n, md)
		return
	}
	op := n.spec.OpType()
	md.RequireOpset(op.Domain, op.Version)
}
