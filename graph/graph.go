// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/onnxgraph/checker"
	"github.com/gomlx/onnxgraph/protos"
	"github.com/gomlx/onnxgraph/tensors"
	"github.com/gomlx/onnxgraph/types"
	"github.com/pkg/errors"
)

// Graph freezes a set of named results into a buildable graph. A Graph is
// immutable: the With* methods return reconfigured copies, and the
// expensive compilation to the serialized form runs once per Graph and is
// cached, along with any build failure.
//
// A Graph also serves as the subgraph payload of control flow operators
// (see GraphAttr); there it is compiled as part of the enclosing build,
// with values of enclosing scopes in reach.
type Graph struct {
	results []NamedValue
	args    []*Value // nil means discover; see WithArguments
	name    string
	doc     string
	opsets  map[string]int64

	cache *buildCache
}

type buildCache struct {
	once     sync.Once
	res      *buildResult
	panicked any
}

// Results freezes the given named values as the outputs of a new Graph.
// Names must be non-empty and distinct; they become the serialized output
// names verbatim for a main graph.
func Results(results ...NamedValue) *Graph {
	seen := make(map[string]bool, len(results))
	for i, r := range results {
		if r.Name == "" {
			panicConstructionf("result %d has an empty name", i)
		}
		if r.Value == nil {
			panicConstructionf("result %q has a nil value", r.Name)
		}
		if seen[r.Name] {
			panicConstructionf("result name %q given twice", r.Name)
		}
		seen[r.Name] = true
	}
	return &Graph{results: slices.Clone(results), cache: &buildCache{}}
}

// EnumResults is Results with generated names prefix0, prefix1...
func EnumResults(prefix string, vals ...*Value) *Graph {
	named := make([]NamedValue, len(vals))
	for i, v := range vals {
		named[i] = Out(fmt.Sprintf("%s%d", prefix, i), v)
	}
	return Results(named...)
}

// Subgraph builds a graph for use as a subgraph attribute: one unnamed
// typed argument per entry of argTypes, results named out0, out1... by the
// values fn returns. Control flow operators check the resulting signature
// against their requirements.
func Subgraph(argTypes []types.Type, fn func(args []*Value) []*Value) *Graph {
	args := make([]*Value, len(argTypes))
	for i, typ := range argTypes {
		args[i] = Arg(typ, "")
	}
	return EnumResults("out", fn(args)...).WithArguments(args...)
}

// clone returns a configuration copy with a fresh build cache.
func (g *Graph) clone() *Graph {
	out := &Graph{
		results: slices.Clone(g.results),
		args:    slices.Clone(g.args),
		name:    g.name,
		doc:     g.doc,
		cache:   &buildCache{},
	}
	if g.opsets != nil {
		out.opsets = make(map[string]int64, len(g.opsets))
		for d, v := range g.opsets {
			out.opsets[d] = v
		}
	}
	return out
}

// WithName returns a copy serializing under the given graph name.
func (g *Graph) WithName(name string) *Graph {
	out := g.clone()
	out.name = name
	return out
}

// WithDoc returns a copy carrying a doc string.
func (g *Graph) WithDoc(doc string) *Graph {
	out := g.clone()
	out.doc = doc
	return out
}

// WithArguments returns a copy with an explicit argument list and order.
// Every given value must come from Arg or ArgWithDefault. For a main graph
// the list must cover exactly the arguments the results use; subgraphs may
// declare arguments their results ignore (control flow signatures require
// that).
func (g *Graph) WithArguments(args ...*Value) *Graph {
	seen := make(map[*Value]bool, len(args))
	for i, a := range args {
		if a == nil {
			panicConstructionf("WithArguments: nil value at %d", i)
		}
		if _, ok := a.node.spec.(argumentSpec); !ok {
			panicConstructionf("WithArguments: %s is not an argument", a)
		}
		if seen[a] {
			panicConstructionf("WithArguments: %s listed twice", a)
		}
		seen[a] = true
	}
	out := g.clone()
	out.args = slices.Clone(args)
	if out.args == nil {
		out.args = []*Value{}
	}
	return out
}

// WithOpset returns a copy that pins the serialized version of one
// operator domain, overriding the version derived from the operators used.
// Pinning the default domain triggers best-effort version adaptation of
// the serialized nodes.
func (g *Graph) WithOpset(domain string, version int64) *Graph {
	if version < 1 {
		panicConstructionf("WithOpset(%q, %d): version must be positive", domain, version)
	}
	if domain == InternalDomain {
		panicConstructionf("WithOpset: %q is reserved", domain)
	}
	out := g.clone()
	if out.opsets == nil {
		out.opsets = make(map[string]int64, 1)
	}
	out.opsets[domain] = version
	return out
}

// Name returns the configured graph name ("" serializes as "main").
func (g *Graph) Name() string { return g.name }

// Doc returns the configured doc string.
func (g *Graph) Doc() string { return g.doc }

// NamedResults returns the results as given to Results.
func (g *Graph) NamedResults() []NamedValue { return slices.Clone(g.results) }

// ResultValues returns the result values in output order.
func (g *Graph) ResultValues() []*Value {
	out := make([]*Value, len(g.results))
	for i, r := range g.results {
		out[i] = r.Value
	}
	return out
}

// DeclaredArguments returns the WithArguments list, or nil when arguments
// are left to discovery. Control flow operators use it to check a
// subgraph's signature without building it.
func (g *Graph) DeclaredArguments() []*Value {
	return slices.Clone(g.args)
}

// String implements fmt.Stringer.
func (g *Graph) String() string {
	name := g.name
	if name == "" {
		name = "main"
	}
	return fmt.Sprintf("Graph[%s](%d results)", name, len(g.results))
}

// compiled builds the graph, memoizing result and failure alike.
func (g *Graph) compiled() *buildResult {
	g.cache.once.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				g.cache.panicked = r
			}
		}()
		g.cache.res = runBuild(g)
	})
	if g.cache.panicked != nil {
		panic(g.cache.panicked)
	}
	return g.cache.res
}

// ArgumentValues builds the graph and returns its arguments in final
// order: the declared order, or first-use order when discovered. It panics
// on build failure, like all build-derived accessors; ToONNX and
// ToONNXModel convert such failures to errors instead.
func (g *Graph) ArgumentValues() []*Value {
	return slices.Clone(g.compiled().args)
}

// OpsetReq builds the graph and returns the operator set version required
// per domain, merged max-wins across nodes and overridden by WithOpset.
func (g *Graph) OpsetReq() map[string]int64 {
	res := g.compiled()
	out := make(map[string]int64, len(res.opsets))
	for d, v := range res.opsets {
		out[d] = v
	}
	return out
}

// Initializers builds the graph and returns the frozen constants it embeds
// keyed by their value. The tensors are shared and must not be modified.
func (g *Graph) Initializers() map[*Value]*tensors.Tensor {
	res := g.compiled()
	out := make(map[*Value]*tensors.Tensor, len(res.md.Initializers))
	for v, t := range res.md.Initializers {
		out[v] = t
	}
	return out
}

// Functions builds the graph and returns the distinct functions its nodes
// call directly, in first-use order.
func (g *Graph) Functions() []*Function {
	res := g.compiled()
	var out []*Function
	seen := make(map[*Function]bool)
	for _, f := range res.md.Functions {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// Option configures serialization; see ToONNX and ToONNXModel.
type Option func(*buildConfig)

type buildConfig struct {
	producerName    string
	producerVersion string
	docString       string
	modelVersion    int64
	irVersion       int64
	check           checker.Level
	valueInfo       bool
}

func newBuildConfig(opts []Option) *buildConfig {
	cfg := &buildConfig{
		producerName: "onnxgraph",
		irVersion:    protos.IRVersion2023,
		check:        checker.Basic,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// WithProducerName overrides the producer name recorded in the model.
func WithProducerName(name string) Option {
	return func(cfg *buildConfig) { cfg.producerName = name }
}

// WithProducerVersion records a producer version in the model.
func WithProducerVersion(version string) Option {
	return func(cfg *buildConfig) { cfg.producerVersion = version }
}

// WithDocString attaches a doc string to the model.
func WithDocString(doc string) Option {
	return func(cfg *buildConfig) { cfg.docString = doc }
}

// WithModelVersion records the model's own version number.
func WithModelVersion(version int64) Option {
	return func(cfg *buildConfig) { cfg.modelVersion = version }
}

// WithIRVersion overrides the serialized IR version.
func WithIRVersion(version int64) Option {
	return func(cfg *buildConfig) { cfg.irVersion = version }
}

// WithCheck sets the post-serialization validation level. The default is
// checker.Basic; checker.Skip disables validation.
func WithCheck(level checker.Level) Option {
	return func(cfg *buildConfig) { cfg.check = level }
}

// WithValueInfo keeps the inferred types of intermediate values in the
// serialized graph. They are stripped by default.
func WithValueInfo(enabled bool) Option {
	return func(cfg *buildConfig) { cfg.valueInfo = enabled }
}

// ToONNX builds the graph and returns its serialized form. Each call
// returns a fresh copy; the underlying build is cached.
func (g *Graph) ToONNX(opts ...Option) (*protos.GraphProto, error) {
	var out *protos.GraphProto
	err := exceptions.TryCatch[error](func() {
		cfg := newBuildConfig(opts)
		res := g.compiled()
		out = prepareGraphProto(res, cfg)
		if cfg.check != checker.Skip {
			if cerr := checker.CheckGraph(out, cfg.check); cerr != nil {
				panic(errors.WithMessage(cerr, "serialized graph failed validation"))
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ToONNXModel builds the graph and assembles the full serialized model:
// opset imports (merged across the graph and any function bodies), the
// deduplicated function definitions, and provenance fields.
func (g *Graph) ToONNXModel(opts ...Option) (*protos.ModelProto, error) {
	var out *protos.ModelProto
	err := exceptions.TryCatch[error](func() {
		cfg := newBuildConfig(opts)
		res := g.compiled()
		if len(res.opsets) == 0 {
			panicBuildf("cannot determine the operator sets of a graph with no operators; pin one with WithOpset")
		}
		model := &protos.ModelProto{
			IrVersion:       cfg.irVersion,
			ProducerName:    cfg.producerName,
			ProducerVersion: cfg.producerVersion,
			ModelVersion:    cfg.modelVersion,
			DocString:       cfg.docString,
			Graph:           prepareGraphProto(res, cfg),
		}
		opsets := make(map[string]int64, len(res.opsets))
		for d, v := range res.opsets {
			opsets[d] = v
		}
		model.Functions = collectFunctionProtos(res.md.Functions, opsets)
		domains := make([]string, 0, len(opsets))
		for d := range opsets {
			domains = append(domains, d)
		}
		slices.Sort(domains)
		for _, d := range domains {
			model.OpsetImport = append(model.OpsetImport, &protos.OperatorSetIdProto{Domain: d, Version: opsets[d]})
		}
		if cfg.check != checker.Skip {
			if cerr := checker.Check(model, cfg.check); cerr != nil {
				panic(errors.WithMessage(cerr, "serialized model failed validation"))
			}
		}
		out = model
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// prepareGraphProto deep-copies the cached serialized graph so callers can
// mutate their copy, stripping value_info unless requested.
func prepareGraphProto(res *buildResult, cfg *buildConfig) *protos.GraphProto {
	out := cloneGraphProto(res.proto)
	if !cfg.valueInfo {
		stripValueInfo(out)
	}
	return out
}

func cloneGraphProto(g *protos.GraphProto) *protos.GraphProto {
	out := &protos.GraphProto{}
	if err := out.Unmarshal(g.Marshal()); err != nil {
		panicBuildf("internal: serialized graph does not round-trip: %v", err)
	}
	return out
}

func stripValueInfo(g *protos.GraphProto) {
	g.ValueInfo = nil
	for _, n := range g.Node {
		for _, a := range n.Attribute {
			if a.G != nil {
				stripValueInfo(a.G)
			}
			for _, sub := range a.Graphs {
				stripValueInfo(sub)
			}
		}
	}
}
