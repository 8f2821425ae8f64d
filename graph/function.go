// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bytes"
	"slices"
	"sync"

	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/types"
)

// AttrDecl declares one attribute of a Function. An attribute with a nil
// Default is required at every call site.
type AttrDecl struct {
	Name    string
	Type    protos.AttributeType
	Default AttrValue
}

// Function is a reusable named operator whose behavior is given by a graph
// of other operators. Calling it places a single call node in the caller's
// graph; the body serializes once into the model, next to the main graph.
//
// The body is constructed lazily at the first Call, over untyped arguments
// so that it works for any input types. Its input arity is therefore fixed
// by the first call. Call outputs are in turn untyped unless the body
// derives a type from constants alone.
type Function struct {
	domain string
	name   string
	decls  []AttrDecl
	ctor   func(fc *FunctionContext, args []*Value) []*Value

	once     sync.Once
	built    *functionBuild
	panicked any
}

type functionBuild struct {
	arity       int
	resultTypes []types.Type
	proto       *protos.FunctionProto
	raw         []byte
	opsets      map[string]int64
	callees     []*Function
}

// NewFunction declares a function named domain::name with the given body
// constructor. An empty domain selects DefaultFunctionDomain; functions
// never live in the default operator domain. The constructor receives
// untyped argument values and returns the results, in output order; it
// reaches declared attributes through the FunctionContext.
func NewFunction(domain, name string, ctor func(fc *FunctionContext, args []*Value) []*Value, attrs ...AttrDecl) *Function {
	if name == "" {
		panicConstructionf("NewFunction: empty name")
	}
	if domain == "" {
		domain = DefaultFunctionDomain
	}
	if domain == InternalDomain {
		panicConstructionf("NewFunction(%q): the domain %q is reserved", name, InternalDomain)
	}
	if ctor == nil {
		panicConstructionf("NewFunction(%q): nil body constructor", name)
	}
	seen := make(map[string]bool, len(attrs))
	for _, d := range attrs {
		if d.Name == "" {
			panicConstructionf("function %s::%s declares an attribute with an empty name", domain, name)
		}
		if seen[d.Name] {
			panicConstructionf("function %s::%s declares the attribute %q twice", domain, name, d.Name)
		}
		seen[d.Name] = true
		if d.Type == protos.AttributeTypeUndefined {
			panicConstructionf("attribute %q of function %s::%s has no type", d.Name, domain, name)
		}
		if d.Default == nil {
			continue
		}
		switch d.Default.(type) {
		case AttrRef, GraphAttr:
			panicConstructionf("attribute %q of function %s::%s: %T cannot serve as a default",
				d.Name, domain, name, d.Default)
		}
		if got := d.Default.AttrType(); got != d.Type {
			panicConstructionf("attribute %q of function %s::%s is declared as %v but defaults to %v",
				d.Name, domain, name, d.Type, got)
		}
	}
	return &Function{domain: domain, name: name, decls: slices.Clone(attrs), ctor: ctor}
}

// Domain returns the operator domain the function serializes under.
func (f *Function) Domain() string { return f.domain }

// Name returns the function name within its domain.
func (f *Function) Name() string { return f.name }

func (f *Function) opName() string { return f.domain + "::" + f.name }

// String implements fmt.Stringer.
func (f *Function) String() string { return "Function[" + f.opName() + "]" }

// Call applies the function to the given inputs and returns the call
// node's outputs, one per body result. Attributes must match the declared
// names and types; declared attributes without a default are required.
func (f *Function) Call(inputs []*Value, attrs ...Attr) []*Value {
	return Apply(fnCallSpec{fn: f}, inputs, attrs)
}

// build constructs the body once, memoizing result and failure alike.
func (f *Function) build(arity int) *functionBuild {
	f.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				f.panicked = r
			}
		}()
		f.built = f.buildBody(arity)
	})
	if f.panicked != nil {
		panic(f.panicked)
	}
	return f.built
}

func (f *Function) mustBuilt() *functionBuild {
	if f.built == nil {
		panicBuildf("internal: function %s was never built", f.opName())
	}
	return f.built
}

func (f *Function) buildBody(arity int) *functionBuild {
	args := EnumArgs("in", make([]types.Type, arity)...)
	body := EnumResults("out", f.ctor(&FunctionContext{fn: f}, args)...).
		WithArguments(args...).
		WithName(f.name)
	res := body.compiled()
	if len(res.md.InitOrder) > 0 {
		panicBuildf("the body of %s embeds frozen tensors; functions cannot carry initializers", f.opName())
	}

	p := &protos.FunctionProto{
		Name:   f.name,
		Domain: f.domain,
		Node:   res.proto.Node,
	}
	for _, vi := range res.proto.Input {
		p.Input = append(p.Input, vi.Name)
	}
	for _, vi := range res.proto.Output {
		p.Output = append(p.Output, vi.Name)
	}
	for _, d := range f.decls {
		if d.Default == nil {
			p.Attribute = append(p.Attribute, d.Name)
		} else {
			p.AttributeProto = append(p.AttributeProto, Attr{Name: d.Name, Value: d.Default}.toProto(nil))
		}
	}
	domains := make([]string, 0, len(res.opsets))
	for d := range res.opsets {
		domains = append(domains, d)
	}
	slices.Sort(domains)
	for _, d := range domains {
		p.OpsetImport = append(p.OpsetImport, &protos.OperatorSetIdProto{Domain: d, Version: res.opsets[d]})
	}

	resultTypes := make([]types.Type, len(res.proto.Output))
	for i, v := range body.ResultValues() {
		resultTypes[i] = v.Type()
	}
	var callees []*Function
	seen := make(map[*Function]bool)
	for _, callee := range res.md.Functions {
		if seen[callee] {
			continue
		}
		seen[callee] = true
		callees = append(callees, callee)
	}
	return &functionBuild{
		arity:       arity,
		resultTypes: resultTypes,
		proto:       p,
		raw:         p.Marshal(),
		opsets:      res.opsets,
		callees:     callees,
	}
}

// FunctionContext is handed to a function's body constructor.
type FunctionContext struct {
	fn *Function
}

// AttrRef returns an attribute value that resolves, at every call site, to
// the named declared attribute. It is the only way attribute values flow
// into a function body.
func (fc *FunctionContext) AttrRef(name string) AttrValue {
	for _, d := range fc.fn.decls {
		if d.Name == name {
			return AttrRef{Name: name, Type: d.Type}
		}
	}
	panicConstructionf("function %s has no attribute %q", fc.fn.opName(), name)
	return nil
}

// fnCallSpec is the OpSpec of a call node. Its serialized form is a plain
// node in the function's domain; the function body and its operator set
// requirements travel through the build metadata.
type fnCallSpec struct {
	fn *Function
}

func (s fnCallSpec) OpType() OpType {
	return OpType{Domain: s.fn.domain, Name: s.fn.name, Version: 1}
}

func (s fnCallSpec) InferOutputTypes(inputs []*Value, attrs []Attr) ([]types.Type, error) {
	for i, in := range inputs {
		if in == nil {
			panicConstructionf("input %d of a call to %s is nil; function inputs cannot be omitted", i, s.fn.opName())
		}
	}
	fb := s.fn.build(len(inputs))
	if fb.arity != len(inputs) {
		panicConstructionf("%s takes %d inputs since its first call, the call passes %d",
			s.fn.opName(), fb.arity, len(inputs))
	}
	declOf := make(map[string]AttrDecl, len(s.fn.decls))
	for _, d := range s.fn.decls {
		declOf[d.Name] = d
	}
	given := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		d, ok := declOf[a.Name]
		if !ok {
			panicConstructionf("%s has no attribute %q", s.fn.opName(), a.Name)
		}
		if got := a.Value.AttrType(); got != d.Type {
			panicConstructionf("attribute %q of %s is declared as %v, given %v", a.Name, s.fn.opName(), d.Type, got)
		}
		given[a.Name] = true
	}
	for _, d := range s.fn.decls {
		if d.Default == nil && !given[d.Name] {
			panicConstructionf("a call to %s misses the required attribute %q", s.fn.opName(), d.Name)
		}
	}
	return slices.Clone(fb.resultTypes), nil
}

func (s fnCallSpec) updateMetadata(n *Node, md *Metadata) {
	fb := s.fn.mustBuilt()
	md.RequireOpset(s.fn.domain, 1)
	for d, v := range fb.opsets {
		md.RequireOpset(d, v)
	}
	md.Functions = append(md.Functions, s.fn)
}

// collectFunctionProtos flattens the given functions and their callees
// into serialized form, callees first, deduplicating by name. Distinct
// Function objects may share a name only when their serialized bodies
// agree byte for byte. The opsets map is extended with the requirements of
// every emitted body and with the function domains themselves.
func collectFunctionProtos(fns []*Function, opsets map[string]int64) []*protos.FunctionProto {
	var out []*protos.FunctionProto
	seen := make(map[[2]string]*Function)
	var emit func(f *Function)
	emit = func(f *Function) {
		fb := f.mustBuilt()
		key := [2]string{f.domain, f.name}
		if prev, ok := seen[key]; ok {
			if prev == f || bytes.Equal(prev.mustBuilt().raw, fb.raw) {
				return
			}
			panicBuildf("two distinct functions serialize as %s with different bodies; rename one", f.opName())
		}
		seen[key] = f
		for _, callee := range fb.callees {
			emit(callee)
		}
		for d, v := range fb.opsets {
			if v > opsets[d] {
				opsets[d] = v
			}
		}
		if opsets[f.domain] < 1 {
			opsets[f.domain] = 1
		}
		out = append(out, cloneFunctionProto(fb.raw))
	}
	for _, f := range fns {
		emit(f)
	}
	return out
}

func cloneFunctionProto(raw []byte) *protos.FunctionProto {
	out := &protos.FunctionProto{}
	if err := out.Unmarshal(raw); err != nil {
		panicBuildf("internal: serialized function does not round-trip: %v", err)
	}
	return out
}
