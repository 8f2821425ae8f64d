// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package convert translates serialized nodes back into builder calls.
//
// A Registry maps operator identities to Adapter functions. Each adapter
// rebuilds one node kind with the constructors in ops and graph, so a model
// importer reduces to a walk over GraphProto.Node that resolves input names
// to values and hands each node to the registry.
//
// Registries carry no global state. Populate one during program
// initialization, then treat it as read-only and share it by reference:
// Register is not safe against concurrent Convert calls, but a frozen
// registry serves any number of goroutines. Standard returns a baseline
// covering the builtin constructors; extend a copy of it via Clone.
package convert

import (
	"cmp"
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/gomlx/onnxgraph/graph"
	"github.com/gomlx/onnxgraph/protos"
)

// Adapter rebuilds one serialized node as builder calls. It receives the
// node and its resolved inputs, positionally aligned with NodeProto.Input
// and nil where an optional input was omitted, and returns one value per
// node output.
type Adapter func(node *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error)

// Registry resolves operator identities to adapters. An operator may hold
// several adapters at different versions; lookup picks the newest adapter
// whose registered version does not exceed the requested opset, the same
// way operator sets bind: a model importing opset N runs the latest
// definition at or below N.
type Registry struct {
	entries map[opKey][]adapterEntry
}

type opKey struct {
	domain string
	name   string
}

// adapterEntry pairs an adapter with the opset version that introduced the
// node form it understands. Entry lists stay sorted by version.
type adapterEntry struct {
	version int64
	adapter Adapter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[opKey][]adapterEntry)}
}

// Register binds an adapter to op. op.Version is the lowest opset version
// whose serialized form the adapter understands; registering the same
// operator at several versions keeps every era convertible. Registering a
// version twice panics: adapters are wired once at startup, never
// replaced.
func (r *Registry) Register(op graph.OpType, adapter Adapter) {
	if op.Name == "" {
		exceptions.Panicf("convert: Register with an empty operator name")
	}
	if op.Version < 1 {
		exceptions.Panicf("convert: %s must be registered at version 1 or higher", opLabel(op.Domain, op.Name))
	}
	if adapter == nil {
		exceptions.Panicf("convert: nil adapter for %s", op)
	}
	k := opKey{domain: op.Domain, name: op.Name}
	list := r.entries[k]
	i, found := slices.BinarySearchFunc(list, op.Version, func(e adapterEntry, v int64) int {
		return cmp.Compare(e.version, v)
	})
	if found {
		exceptions.Panicf("convert: %s already has an adapter", op)
	}
	r.entries[k] = slices.Insert(list, i, adapterEntry{version: op.Version, adapter: adapter})
}

// Clone returns a registry holding the same adapters. Extending a shared
// baseline goes through Clone so the baseline stays frozen: clone it, add
// the extras, hand the clone to the importer.
func (r *Registry) Clone() *Registry {
	out := NewRegistry()
	for k, list := range r.entries {
		out.entries[k] = slices.Clone(list)
	}
	return out
}

// Convert rebuilds node with the newest adapter registered for its
// operator. Inputs align with node.Input; pass nil for omitted optional
// inputs. It returns one value per node output.
func (r *Registry) Convert(node *protos.NodeProto, inputs []*graph.Value) ([]*graph.Value, error) {
	return r.convert(node, math.MaxInt64, inputs)
}

// ConvertAt is Convert pinned to an opset version: it runs the newest
// adapter registered at or below version, so nodes serialized before an
// operator changed shape convert through the adapter for their era. The
// version to pin comes from the model's operator set import for the
// node's domain.
func (r *Registry) ConvertAt(node *protos.NodeProto, version int64, inputs []*graph.Value) ([]*graph.Value, error) {
	return r.convert(node, version, inputs)
}

func (r *Registry) convert(node *protos.NodeProto, version int64, inputs []*graph.Value) ([]*graph.Value, error) {
	if node == nil {
		return nil, errors.New("convert of a nil node")
	}
	list := r.entries[opKey{domain: node.Domain, name: node.OpType}]
	if len(list) == 0 {
		return nil, errors.Errorf("no adapter for %s", opLabel(node.Domain, node.OpType))
	}
	i, found := slices.BinarySearchFunc(list, version, func(e adapterEntry, v int64) int {
		return cmp.Compare(e.version, v)
	})
	if !found {
		i--
	}
	if i < 0 {
		return nil, errors.Errorf("%s has no adapter at opset %d, the oldest handles %d",
			opLabel(node.Domain, node.OpType), version, list[0].version)
	}

	// Builder constructors report misuse by panicking with an error;
	// surface those as ordinary errors here.
	var outs []*graph.Value
	var err error
	if caught := exceptions.TryCatch[error](func() {
		outs, err = list[i].adapter(node, inputs)
	}); caught != nil {
		err = caught
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "converting node %q (%s)", node.Name, node.OpType)
	}
	if len(outs) != len(node.Output) {
		return nil, errors.Errorf("converting node %q (%s): adapter built %d outputs, the node names %d",
			node.Name, node.OpType, len(outs), len(node.Output))
	}
	return outs, nil
}

func opLabel(domain, name string) string {
	if domain == "" {
		return name
	}
	return domain + "::" + name
}
