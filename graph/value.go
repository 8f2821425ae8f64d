// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"

	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
)

// Value is a symbolic handle to one output of a node: the edges of the
// dataflow graph. Values are immutable and identified by pointer; two
// structurally similar values from different constructor calls are
// different values.
//
// A Value may carry a propagated constant (see Const) when the library
// could compute its contents at construction time.
type Value struct {
	typ   types.Type
	node  *Node
	index int

	// hint is the preferred serialized name, set for arguments. Definitive
	// names are assigned when the owning graph builds.
	hint string

	// prop is the propagated constant contents, nil if unknown.
	prop *tensors.Tensor
}

// Type returns the inferred type. It is nil (untyped) for values inside
// function bodies, whose types are bound per call site, and for the
// outputs of function calls unless the body derives a type on its own.
func (v *Value) Type() types.Type { return v.typ }

// Node returns the node producing this value.
func (v *Value) Node() *Node { return v.node }

// OutputIndex returns which output of the producing node this value is.
func (v *Value) OutputIndex() int { return v.index }

// Const returns the propagated constant contents of this value, or nil if
// they are not known at construction time. The tensor must not be modified.
func (v *Value) Const() *tensors.Tensor { return v.prop }

// NameHint returns the preferred serialized name, empty if none was set.
func (v *Value) NameHint() string { return v.hint }

// SetNameHint sets the preferred serialized name. Hints are advisory: a
// build renames on collision, and graph results always serialize under
// their result names. Changing a hint after a graph built has no effect on
// that graph's cached serialization.
func (v *Value) SetNameHint(name string) *Value {
	v.hint = name
	return v
}

// String implements fmt.Stringer, e.g. "Add#0(Float32[2 3])".
func (v *Value) String() string {
	typ := "untyped"
	if v.typ != nil {
		typ = v.typ.String()
	}
	return fmt.Sprintf("%s#%d(%s)", v.node.OpType().Name, v.index, typ)
}

// tensorType returns the value's type as a tensor type, or an error for
// untyped and non-tensor values. Convenience for operator inference.
func (v *Value) tensorType() (types.Tensor, error) {
	if v.typ == nil {
		return types.Tensor{}, errors.Errorf("value %s is untyped", v)
	}
	t, ok := v.typ.(types.Tensor)
	if !ok {
		return types.Tensor{}, errors.Errorf("value %s is not a tensor", v)
	}
	return t, nil
}

// NamedValue pairs a result name with the value it exposes; see Results.
type NamedValue struct {
	Name  string
	Value *Value
}

// Out builds the NamedValue for one graph result.
func Out(name string, value *Value) NamedValue {
	return NamedValue{Name: name, Value: value}
}
