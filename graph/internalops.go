// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
)

// The operators below live in InternalDomain (or, for Constant, the
// default domain) and provide the building blocks that are not ordinary
// operators: graph inputs, frozen constants and scope plumbing. None of
// them serialize as internal-domain nodes: arguments and initializers
// become graph fields, Introduce and the unsafe casts vanish into name
// aliases (or Identity nodes when an aliased value needs its own name).

// Arg creates a typed graph input. The name is a serialization hint; the
// build renames on collision. A nil type creates an untyped argument,
// valid only inside function bodies.
func Arg(typ types.Type, name string) *Value {
	out := Apply1(argumentSpec{typ: typ}, nil, nil)
	out.hint = name
	return out
}

// ArgWithDefault creates a graph input with a default: the serialized
// graph carries a same-named initializer, so runtimes use def unless the
// caller binds the input.
func ArgWithDefault(typ types.Type, name string, def *tensors.Tensor) *Value {
	if def == nil {
		panicConstructionf("ArgWithDefault(%q): nil default", name)
	}
	if typ == nil {
		panicConstructionf("ArgWithDefault(%q): nil type", name)
	}
	if !types.Accepts(typ, def.Type()) {
		panicConstructionf("ArgWithDefault(%q): default of type %s does not fit declared type %s",
			name, def.Type(), typ)
	}
	out := Apply1(argumentSpec{typ: typ, def: def}, nil, nil)
	out.hint = name
	return out
}

// EnumArgs creates one typed argument per type, named prefix0, prefix1...
func EnumArgs(prefix string, typs ...types.Type) []*Value {
	args := make([]*Value, len(typs))
	for i, typ := range typs {
		args[i] = Arg(typ, fmt.Sprintf("%s%d", prefix, i))
	}
	return args
}

// Initializer creates a frozen constant emitted into the graph's
// initializer list rather than as a node, so it carries no operator set
// requirement. Its value propagates.
func Initializer(t *tensors.Tensor) *Value {
	if t == nil {
		panicConstructionf("Initializer: nil tensor")
	}
	return Apply1(initializerSpec{t: t}, nil, nil)
}

// Constant creates a standard Constant node holding t. Unlike Initializer
// it serializes as a node and requires the default operator set. Its value
// propagates.
func Constant(t *tensors.Tensor) *Value {
	if t == nil {
		panicConstructionf("Constant: nil tensor")
	}
	return Apply1(constantSpec{}, nil, []Attr{{Name: "value", Value: TensorAttr{Value: t}}})
}

// Intros reintroduces the given values as outputs of a single node placed
// in the innermost scope using them, forcing their producers to build no
// deeper than that scope. The returned values serialize under the names of
// the originals; propagated constants carry over.
func Intros(vals ...*Value) []*Value {
	if len(vals) == 0 {
		panicConstructionf("Intros requires at least one value")
	}
	for i, v := range vals {
		if v == nil {
			panicConstructionf("Intros: nil value at %d", i)
		}
	}
	return Apply(introSpec{}, vals, nil)
}

// Intro is Intros returning only the last value, so a single value can be
// introduced alongside others it should share a scope with.
func Intro(vals ...*Value) *Value {
	outs := Intros(vals...)
	return outs[len(outs)-1]
}

// UnsafeCast reinterprets the declared type of a value without any runtime
// conversion or check. A nil type strips typing. The propagated constant
// carries over only if it fits the new type.
func UnsafeCast(v *Value, typ types.Type) *Value {
	if v == nil {
		panicConstructionf("UnsafeCast: nil value")
	}
	return Apply1(unsafeCastSpec{typ: typ}, []*Value{v}, nil)
}

// UnsafeReshape redeclares the shape of a tensor value without a runtime
// reshape. Dims follow types.MakeShape: int-like for known, string for
// symbolic, nil for unknown. The propagated constant carries over when the
// new shape is fully known and preserves the element count.
func UnsafeReshape(v *Value, dims ...any) *Value {
	if v == nil {
		panicConstructionf("UnsafeReshape: nil value")
	}
	return Apply1(unsafeReshapeSpec{shape: types.MakeShape(dims...)}, []*Value{v}, nil)
}

// argumentSpec marks a graph input. def, if set, serializes as a
// same-named initializer acting as the input's default.
type argumentSpec struct {
	typ types.Type
	def *tensors.Tensor
}

func (argumentSpec) OpType() OpType {
	return OpType{Domain: InternalDomain, Name: "Argument", Version: 1}
}

func (s argumentSpec) InferOutputTypes(inputs []*Value, attrs []Attr) ([]types.Type, error) {
	if len(inputs) != 0 {
		return nil, errors.Errorf("Argument takes no inputs, got %d", len(inputs))
	}
	return []types.Type{s.typ}, nil
}

func (s argumentSpec) updateMetadata(n *Node, md *Metadata) {
	if s.def != nil {
		md.addInitializer(n.outputs[0], s.def)
	}
}

func (argumentSpec) emit(n *Node, em *emitState) []*protos.NodeProto { return nil }

// initializerSpec marks a frozen constant lowered to a graph initializer.
type initializerSpec struct {
	t *tensors.Tensor
}

func (initializerSpec) OpType() OpType {
	return OpType{Domain: InternalDomain, Name: "Initializer", Version: 1}
}

func (s initializerSpec) InferOutputTypes(inputs []*Value, attrs []Attr) ([]types.Type, error) {
	if len(inputs) != 0 {
		return nil, errors.Errorf("Initializer takes no inputs, got %d", len(inputs))
	}
	return []types.Type{s.t.Type()}, nil
}

func (s initializerSpec) PropagateValues(inputs []*tensors.Tensor, attrs []Attr) []*tensors.Tensor {
	return []*tensors.Tensor{s.t}
}

func (s initializerSpec) updateMetadata(n *Node, md *Metadata) {
	md.addInitializer(n.outputs[0], s.t)
}

func (initializerSpec) emit(n *Node, em *emitState) []*protos.NodeProto { return nil }

// constantSpec is the standard Constant operator; the payload travels in
// the "value" attribute.
type constantSpec struct{}

func (constantSpec) OpType() OpType {
	return OpType{Name: "Constant", Version: 13}
}

func (constantSpec) InferOutputTypes(inputs []*Value, attrs []Attr) ([]types.Type, error) {
	if len(inputs) != 0 {
		return nil, errors.Errorf("Constant takes no inputs, got %d", len(inputs))
	}
	t := constantPayload(attrs)
	if t == nil {
		return nil, errors.Errorf("Constant requires a tensor \"value\" attribute")
	}
	return []types.Type{t.Type()}, nil
}

func (constantSpec) PropagateValues(inputs []*tensors.Tensor, attrs []Attr) []*tensors.Tensor {
	return []*tensors.Tensor{constantPayload(attrs)}
}

func constantPayload(attrs []Attr) *tensors.Tensor {
	a, ok := findAttr(attrs, "value")
	if !ok {
		return nil
	}
	ta, ok := a.Value.(TensorAttr)
	if !ok {
		return nil
	}
	return ta.Value
}

// introSpec is the scope placement helper; see Intros.
type introSpec struct{}

func (introSpec) OpType() OpType {
	return OpType{Domain: InternalDomain, Name: "Introduce", Version: 1}
}

func (introSpec) InferOutputTypes(inputs []*Value, attrs []Attr) ([]types.Type, error) {
	typs := make([]types.Type, len(inputs))
	for i, in := range inputs {
		typs[i] = in.typ
	}
	return typs, nil
}

func (introSpec) PropagateValues(inputs []*tensors.Tensor, attrs []Attr) []*tensors.Tensor {
	return inputs
}

func (introSpec) updateMetadata(n *Node, md *Metadata) {
	// Keeps the default operator set present even in graphs made of pure
	// plumbing; merged away by any real operator.
	md.RequireOpset("", 1)
}

func (introSpec) aliasOf(n *Node, output int) *Value { return n.inputs[output] }

func (introSpec) emit(n *Node, em *emitState) []*protos.NodeProto {
	var out []*protos.NodeProto
	for i, o := range n.outputs {
		out = append(out, em.emitAliasedOutput(o, n.inputs[i])...)
	}
	return out
}

// unsafeCastSpec redeclares a value's type; see UnsafeCast.
type unsafeCastSpec struct {
	typ types.Type
}

func (unsafeCastSpec) OpType() OpType {
	return OpType{Domain: InternalDomain, Name: "UnsafeCast", Version: 1}
}

func (s unsafeCastSpec) InferOutputTypes(inputs []*Value, attrs []Attr) ([]types.Type, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, errors.Errorf("UnsafeCast takes exactly one value")
	}
	return []types.Type{s.typ}, nil
}

func (s unsafeCastSpec) PropagateValues(inputs []*tensors.Tensor, attrs []Attr) []*tensors.Tensor {
	if s.typ != nil && !types.Accepts(s.typ, inputs[0].Type()) {
		return nil
	}
	return inputs
}

func (unsafeCastSpec) updateMetadata(n *Node, md *Metadata) {
	md.RequireOpset("", 1)
}

func (unsafeCastSpec) aliasOf(n *Node, output int) *Value { return n.inputs[0] }

func (unsafeCastSpec) emit(n *Node, em *emitState) []*protos.NodeProto {
	return em.emitAliasedOutput(n.outputs[0], n.inputs[0])
}

// unsafeReshapeSpec redeclares a tensor value's shape; see UnsafeReshape.
type unsafeReshapeSpec struct {
	shape types.Shape
}

func (unsafeReshapeSpec) OpType() OpType {
	return OpType{Domain: InternalDomain, Name: "UnsafeReshape", Version: 1}
}

func (s unsafeReshapeSpec) InferOutputTypes(inputs []*Value, attrs []Attr) ([]types.Type, error) {
	if len(inputs) != 1 || inputs[0] == nil {
		return nil, errors.Errorf("UnsafeReshape takes exactly one value")
	}
	if inputs[0].typ == nil {
		return []types.Type{nil}, nil
	}
	t, err := inputs[0].tensorType()
	if err != nil {
		return nil, err
	}
	return []types.Type{types.Tensor{DType: t.DType, Shape: s.shape}}, nil
}

func (s unsafeReshapeSpec) PropagateValues(inputs []*tensors.Tensor, attrs []Attr) []*tensors.Tensor {
	dims, known := s.shape.Known()
	if !known {
		return nil
	}
	var n int64 = 1
	for _, d := range dims {
		n *= d
	}
	if n != inputs[0].Size() {
		return nil
	}
	return []*tensors.Tensor{inputs[0].WithShape(dims...)}
}

func (unsafeReshapeSpec) updateMetadata(n *Node, md *Metadata) {
	md.RequireOpset("", 1)
}

func (unsafeReshapeSpec) aliasOf(n *Node, output int) *Value { return n.inputs[0] }

func (unsafeReshapeSpec) emit(n *Node, em *emitState) []*protos.NodeProto {
	return em.emitAliasedOutput(n.outputs[0], n.inputs[0])
}
