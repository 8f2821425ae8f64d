// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"container/heap"
	"fmt"
	"slices"
	"time"

	"github.com/gomlx/onnxgraph/protos"
	"k8s.io/klog/v2"
)

// buildResult is the outcome of compiling one Graph: the serialized form,
// the merged operator set requirements and the assignments (scopes, order,
// names) the serialization used. It is cached per Graph.
type buildResult struct {
	proto  *protos.GraphProto
	opsets map[string]int64
	md     *Metadata

	args      []*Value
	names     map[*Value]string
	nodeNames map[*Node]string
	scopeOf   map[*Node]*Graph
	order     map[*Graph][]*Node
}

// runBuild compiles g. It panics with ErrBuild-wrapped errors; callers
// catch at the API boundary.
func runBuild(g *Graph) *buildResult {
	start := time.Now()
	b := newBuilder(g)
	b.discoverAll()
	b.assignScopes()
	b.orderScopes()
	b.resolveArguments()
	b.collectMetadata()
	b.assignNames()

	em := &emitState{b: b, versions: make(map[*protos.NodeProto]int64)}
	rootName := g.name
	if rootName == "" {
		rootName = "main"
	}
	proto := em.emitGraph(g, rootName)

	opsets := make(map[string]int64, len(b.md.OpsetReq)+len(g.opsets))
	for domain, version := range b.md.OpsetReq {
		opsets[domain] = version
	}
	for domain, version := range g.opsets {
		opsets[domain] = version
	}
	if target, ok := opsets[""]; ok {
		adaptNodes(proto, em.versions, target)
	}

	klog.V(1).Infof("graph: built %q: %d nodes in %d scopes, %d initializers, %d functions (%s)",
		rootName, len(b.discovered), len(b.scopes), len(b.md.InitOrder), len(b.md.Functions),
		time.Since(start))
	return &buildResult{
		proto:     proto,
		opsets:    opsets,
		md:        b.md,
		args:      b.argsOf[g],
		names:     b.names,
		nodeNames: b.nodeNames,
		scopeOf:   b.scopeOf,
		order:     b.order,
	}
}

type builder struct {
	root *Graph

	// Discovery.
	scopes      []*Graph // discovery order, root first
	seen        map[*Graph]map[*Node]bool
	sightings   map[*Node][]*Graph
	sightingSet map[*Node]map[*Graph]bool
	discovered  []*Node // first-discovery order across scopes
	owner       map[*Graph]*Node
	parent      map[*Graph]*Graph
	declaredPin map[*Node]*Graph

	// Scope assignment.
	pinned  map[*Node]*Graph
	chains  map[*Graph][]*Graph
	scopeOf map[*Node]*Graph

	// Ordering and arguments.
	nodesIn map[*Graph][]*Node
	order   map[*Graph][]*Node
	argsOf  map[*Graph][]*Value

	// Metadata and naming.
	md        *Metadata
	names     map[*Value]string
	nodeNames map[*Node]string
	spaces    map[*Graph]*scopeNames
}

func newBuilder(g *Graph) *builder {
	b := &builder{
		root:        g,
		scopes:      []*Graph{g},
		seen:        make(map[*Graph]map[*Node]bool),
		sightings:   make(map[*Node][]*Graph),
		sightingSet: make(map[*Node]map[*Graph]bool),
		owner:       make(map[*Graph]*Node),
		parent:      make(map[*Graph]*Graph),
		declaredPin: make(map[*Node]*Graph),
		pinned:      make(map[*Node]*Graph),
		scopeOf:     make(map[*Node]*Graph),
	}
	for _, a := range g.args {
		b.declaredPin[a.node] = g
	}
	return b
}

func (b *builder) scopeDesc(s *Graph) string {
	if s == b.root {
		return "the main graph"
	}
	if s.name != "" {
		return fmt.Sprintf("subgraph %q", s.name)
	}
	if own := b.owner[s]; own != nil {
		return fmt.Sprintf("the subgraph of %s", own)
	}
	return "a subgraph"
}

// discoverAll walks the value graph from the result producers, recording
// in which scopes each node is sighted. Subgraph attributes open child
// scopes whose results and declared arguments are traversal roots.
func (b *builder) discoverAll() {
	if len(b.root.results) == 0 {
		panicBuildf("graph has no results")
	}
	for _, r := range b.root.results {
		b.discover(r.Value.node, b.root)
	}
}

func (b *builder) discover(n *Node, s *Graph) {
	seen := b.seen[s]
	if seen == nil {
		seen = make(map[*Node]bool)
		b.seen[s] = seen
	}
	if seen[n] {
		return
	}
	seen[n] = true

	if b.sightingSet[n] == nil {
		b.sightingSet[n] = make(map[*Graph]bool)
		b.discovered = append(b.discovered, n)
	}
	if !b.sightingSet[n][s] {
		b.sightingSet[n][s] = true
		b.sightings[n] = append(b.sightings[n], s)
	}

	for _, in := range n.inputs {
		if in != nil {
			b.discover(in.node, s)
		}
	}
	for _, sg := range n.subgraphs() {
		b.openScope(sg, n, s)
	}
}

func (b *builder) openScope(sg *Graph, n *Node, s *Graph) {
	if sg == b.root {
		panicBuildf("graph is attached to node %s as its own subgraph", n)
	}
	if own, ok := b.owner[sg]; ok {
		if own == n {
			panicBuildf("the same graph is attached twice to node %s; build separate graphs", n)
		}
		panicBuildf("%s is attached to two nodes (%s and %s); build separate graphs",
			b.scopeDesc(sg), own, n)
	}
	if len(sg.results) == 0 {
		panicBuildf("subgraph of node %s has no results", n)
	}
	b.owner[sg] = n
	b.parent[sg] = s
	b.scopes = append(b.scopes, sg)
	for _, a := range sg.args {
		if prev, ok := b.declaredPin[a.node]; ok && prev != sg {
			panicBuildf("argument %s is declared on both %s and %s",
				a, b.scopeDesc(prev), b.scopeDesc(sg))
		}
		b.declaredPin[a.node] = sg
	}
	for _, r := range sg.results {
		b.discover(r.Value.node, sg)
	}
	// Declared arguments are roots of their scope even when unused.
	for _, a := range sg.args {
		b.discover(a.node, sg)
	}
}

// assignScopes places every node in the lowest common ancestor of its
// sighting scopes. Arguments are pinned to their declaring scope (the main
// graph when undeclared) and initializers to the main graph; the scope
// tree itself depends on where subgraph-owning nodes land, so assignment
// iterates to a fixed point.
func (b *builder) assignScopes() {
	for _, n := range b.discovered {
		switch n.spec.(type) {
		case argumentSpec:
			if pin, ok := b.declaredPin[n]; ok {
				b.pinned[n] = pin
			} else {
				b.pinned[n] = b.root
			}
		case initializerSpec:
			b.pinned[n] = b.root
		}
	}

	for round := 0; ; round++ {
		if round > len(b.scopes)+1 {
			panicBuildf("internal: scope assignment did not converge")
		}
		b.computeChains()
		for _, n := range b.discovered {
			if pin, ok := b.pinned[n]; ok {
				b.scopeOf[n] = pin
				continue
			}
			b.scopeOf[n] = b.lca(b.sightings[n])
		}
		changed := false
		for _, sg := range b.scopes[1:] {
			np := b.scopeOf[b.owner[sg]]
			if b.parent[sg] != np {
				b.parent[sg] = np
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	// A pinned value may only be consumed inside the subtree it is pinned
	// to; anything else leaked out of its subgraph.
	for _, n := range b.discovered {
		pin, ok := b.pinned[n]
		if !ok || pin == b.root {
			continue
		}
		for _, s := range b.sightings[n] {
			if !b.enclosedBy(s, pin) {
				panicBuildf("argument %s of %s is used outside of it",
					n.outputs[0], b.scopeDesc(pin))
			}
		}
	}
}

func (b *builder) computeChains() {
	b.chains = map[*Graph][]*Graph{b.root: {b.root}}
	state := map[*Graph]int{b.root: 2}
	var visit func(s *Graph) []*Graph
	visit = func(s *Graph) []*Graph {
		if c, ok := b.chains[s]; ok {
			return c
		}
		if state[s] == 1 {
			panicBuildf("%s is captured inside itself through node %s",
				b.scopeDesc(s), b.owner[s])
		}
		state[s] = 1
		c := append(slices.Clone(visit(b.parent[s])), s)
		state[s] = 2
		b.chains[s] = c
		return c
	}
	for _, s := range b.scopes {
		visit(s)
	}
}

// lca returns the deepest scope enclosing all the given scopes.
func (b *builder) lca(ss []*Graph) *Graph {
	cur := b.chains[ss[0]]
	for _, s := range ss[1:] {
		other := b.chains[s]
		limit := min(len(cur), len(other))
		k := 0
		for k < limit && cur[k] == other[k] {
			k++
		}
		cur = cur[:k]
	}
	return cur[len(cur)-1]
}

// enclosedBy reports whether s is outer or one of its descendants.
func (b *builder) enclosedBy(s, outer *Graph) bool {
	return slices.Contains(b.chains[s], outer)
}

// hopOwner returns the node, in scope sp, that owns the subgraph chain
// leading down to sq.
func (b *builder) hopOwner(sp, sq *Graph) *Node {
	chain := b.chains[sq]
	for i := len(chain) - 1; i > 0; i-- {
		if chain[i-1] == sp {
			return b.owner[chain[i]]
		}
	}
	panicBuildf("internal: scope of %s does not enclose %s", b.scopeDesc(sp), b.scopeDesc(sq))
	return nil
}

// serialHeap orders ready nodes by construction serial so topological ties
// break deterministically.
type serialHeap []*Node

func (h serialHeap) Len() int           { return len(h) }
func (h serialHeap) Less(i, j int) bool { return h[i].serial < h[j].serial }
func (h serialHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *serialHeap) Push(x any)        { *h = append(*h, x.(*Node)) }

func (h *serialHeap) Pop() any {
	old := *h
	n := old[len(old)-1]
	*h = old[:len(old)-1]
	return n
}

// orderScopes topologically sorts each scope over data edges plus closure
// edges: a value consumed inside a subgraph must be produced before the
// node owning that subgraph.
func (b *builder) orderScopes() {
	b.nodesIn = make(map[*Graph][]*Node, len(b.scopes))
	for _, n := range b.discovered {
		s := b.scopeOf[n]
		b.nodesIn[s] = append(b.nodesIn[s], n)
	}

	type edge struct{ from, to *Node }
	adj := make(map[*Node][]*Node)
	indeg := make(map[*Node]int)
	seen := make(map[edge]bool)
	addEdge := func(from, to *Node) {
		if from == to {
			panicBuildf("%s consumes its own output through a subgraph", from)
		}
		e := edge{from, to}
		if seen[e] {
			return
		}
		seen[e] = true
		adj[from] = append(adj[from], to)
		indeg[to]++
	}
	for _, q := range b.discovered {
		sq := b.scopeOf[q]
		for _, in := range q.inputs {
			if in == nil {
				continue
			}
			p := in.node
			sp := b.scopeOf[p]
			if sp == sq {
				addEdge(p, q)
				continue
			}
			addEdge(p, b.hopOwner(sp, sq))
		}
	}

	b.order = make(map[*Graph][]*Node, len(b.scopes))
	for _, s := range b.scopes {
		nodes := b.nodesIn[s]
		h := &serialHeap{}
		for _, n := range nodes {
			if indeg[n] == 0 {
				heap.Push(h, n)
			}
		}
		out := make([]*Node, 0, len(nodes))
		for h.Len() > 0 {
			n := heap.Pop(h).(*Node)
			out = append(out, n)
			for _, m := range adj[n] {
				indeg[m]--
				if indeg[m] == 0 {
					heap.Push(h, m)
				}
			}
		}
		if len(out) != len(nodes) {
			var stuck *Node
			for _, n := range nodes {
				if indeg[n] > 0 && (stuck == nil || n.serial < stuck.serial) {
					stuck = n
				}
			}
			panicBuildf("cycle detected in %s involving %s", b.scopeDesc(s), stuck)
		}
		b.order[s] = out
	}
}

// resolveArguments fixes each scope's argument list: the declared order
// when one was requested, otherwise the discovered argument nodes of the
// scope in first-sighting order.
func (b *builder) resolveArguments() {
	b.argsOf = make(map[*Graph][]*Value, len(b.scopes))
	for _, s := range b.scopes {
		if s.args != nil {
			for _, a := range s.args {
				if len(b.sightings[a.node]) == 0 {
					panicBuildf("declared argument %s is not used by the results of %s",
						a, b.scopeDesc(s))
				}
			}
			b.argsOf[s] = slices.Clone(s.args)
			continue
		}
		var args []*Value
		for _, n := range b.discovered {
			if _, ok := n.spec.(argumentSpec); !ok {
				continue
			}
			if b.scopeOf[n] != s {
				continue
			}
			args = append(args, n.outputs[0])
		}
		b.argsOf[s] = args
	}

	// With a declared order the discovered set must be covered exactly.
	if b.root.args != nil {
		declared := make(map[*Node]bool, len(b.root.args))
		for _, a := range b.root.args {
			declared[a.node] = true
		}
		for _, n := range b.discovered {
			if _, ok := n.spec.(argumentSpec); !ok {
				continue
			}
			if b.scopeOf[n] != b.root || declared[n] {
				continue
			}
			panicBuildf("argument %s is used but not listed in WithArguments", n.outputs[0])
		}
	}
}

func (b *builder) collectMetadata() {
	b.md = newMetadata()
	for _, s := range b.scopes {
		for _, n := range b.order[s] {
			b.md.update(n)
		}
		if s == b.root {
			continue
		}
		// Captured results materialize as Identity nodes at emission.
		for _, r := range s.results {
			if b.scopeOf[r.Value.node] != s {
				b.md.RequireOpset("", 1)
			}
		}
	}
}

// assignNames gives every serialized entity its definitive name, scope by
// scope from the root down. Result names are authoritative for the main
// graph; everything else renames on collision.
func (b *builder) assignNames() {
	b.names = make(map[*Value]string)
	b.nodeNames = make(map[*Node]string)
	b.spaces = make(map[*Graph]*scopeNames, len(b.scopes))

	sorted := slices.Clone(b.scopes)
	slices.SortStableFunc(sorted, func(a, c *Graph) int {
		return len(b.chains[a]) - len(b.chains[c])
	})
	for _, s := range sorted {
		var parentSpace *scopeNames
		if s != b.root {
			parentSpace = b.spaces[b.parent[s]]
		}
		sp := newScopeNames(parentSpace)
		b.spaces[s] = sp

		for _, r := range s.results {
			v := r.Value
			if b.scopeOf[v.node] != s {
				// Captured from an enclosing scope; exposed through an
				// Identity at emission, no name claimed here.
				continue
			}
			if prev, ok := b.names[v]; ok {
				panicBuildf("value %s already serializes as %q; wrap it in Identity to also expose it as %q",
					v, prev, r.Name)
			}
			if sp.values.claim(r.Name) {
				b.names[v] = r.Name
			} else if s == b.root {
				panicBuildf("result name %q is already taken in the main graph", r.Name)
			} else {
				b.names[v] = sp.values.fresh(r.Name)
			}
		}
		for _, a := range b.argsOf[s] {
			if _, ok := b.names[a]; ok {
				continue // result passthrough keeps the result name
			}
			base := a.hint
			if base == "" {
				base = "arg"
			}
			b.names[a] = sp.values.fresh(sanitizeName(base))
		}
		for _, n := range b.order[s] {
			switch n.spec.(type) {
			case argumentSpec:
				continue
			case initializerSpec:
				o := n.outputs[0]
				if _, ok := b.names[o]; !ok {
					base := o.hint
					if base == "" {
						base = "init"
					}
					b.names[o] = sp.values.fresh(sanitizeName(base))
				}
				continue
			}
			if _, isAlias := n.spec.(aliaser); isAlias {
				// Vanishes into its sources; explicitly exposed outputs
				// materialize at emission.
				continue
			}
			nodeName := sp.nodes.freshNumbered(n.OpType().Name)
			b.nodeNames[n] = nodeName
			for i, o := range n.outputs {
				if _, ok := b.names[o]; ok {
					continue
				}
				base := o.hint
				if base == "" {
					base = fmt.Sprintf("%s_o%d", nodeName, i)
				}
				b.names[o] = sp.values.fresh(sanitizeName(base))
			}
		}
	}
}

// emitState drives serialization: name resolution through aliases, the
// per-proto construction versions for later adaptation, and subgraph
// emission for graph-valued attributes.
type emitState struct {
	b        *builder
	versions map[*protos.NodeProto]int64
}

// nameOf resolves the serialized name of a value, chasing aliases of
// vanished internal nodes.
func (em *emitState) nameOf(v *Value) string {
	if name, ok := em.b.names[v]; ok {
		return name
	}
	if al, ok := v.node.spec.(aliaser); ok {
		return em.nameOf(al.aliasOf(v.node, v.index))
	}
	panicBuildf("internal: value %s was never named", v)
	return ""
}

// emitAliasedOutput handles one output of a vanished node: nothing when
// the output has no name of its own, an Identity bridging the source to
// the explicit name otherwise.
func (em *emitState) emitAliasedOutput(out, src *Value) []*protos.NodeProto {
	name, ok := em.b.names[out]
	if !ok {
		return nil
	}
	srcName := em.nameOf(src)
	if name == srcName {
		return nil
	}
	return []*protos.NodeProto{em.identity(em.b.scopeOf[out.node], srcName, name)}
}

// identity emits a name-bridging Identity node in scope s. Its serialized
// form is stable across all operator set versions.
func (em *emitState) identity(s *Graph, in, out string) *protos.NodeProto {
	p := &protos.NodeProto{
		Name:   em.b.spaces[s].nodes.freshNumbered("Identity"),
		OpType: "Identity",
		Input:  []string{in},
		Output: []string{out},
	}
	em.versions[p] = 1
	return p
}

func (em *emitState) emitNode(n *Node) *protos.NodeProto {
	op := n.OpType()
	p := &protos.NodeProto{
		Name:      em.b.nodeNames[n],
		OpType:    op.Name,
		Domain:    op.Domain,
		DocString: n.doc,
	}
	p.Input = make([]string, len(n.inputs))
	for i, in := range n.inputs {
		if in != nil {
			p.Input[i] = em.nameOf(in)
		}
	}
	p.Output = make([]string, len(n.outputs))
	for i, o := range n.outputs {
		p.Output[i] = em.nameOf(o)
	}
	for _, a := range n.attrs {
		p.Attribute = append(p.Attribute, a.toProto(em))
	}
	if op.Domain == "" {
		em.versions[p] = op.Version
	}
	return p
}

func (em *emitState) emitNodes(s *Graph) []*protos.NodeProto {
	var out []*protos.NodeProto
	for _, n := range em.b.order[s] {
		if hook, ok := n.spec.(emitHook); ok {
			out = append(out, hook.emit(n, em)...)
			continue
		}
		out = append(out, em.emitNode(n))
	}
	return out
}

// emitSubgraph serializes a subgraph attribute value. The graph must be a
// scope of the running build.
func (em *emitState) emitSubgraph(sg *Graph, attrName string) *protos.GraphProto {
	own, ok := em.b.owner[sg]
	if !ok {
		panicBuildf("internal: subgraph %s emitted outside its build", em.b.scopeDesc(sg))
	}
	name := sg.name
	if name == "" {
		name = em.b.nodeNames[own] + "_" + attrName
	}
	return em.emitGraph(sg, name)
}

func (em *emitState) emitGraph(s *Graph, name string) *protos.GraphProto {
	g := &protos.GraphProto{Name: name, DocString: s.doc}
	g.Node = em.emitNodes(s)
	for _, a := range em.b.argsOf[s] {
		g.Input = append(g.Input, em.valueInfo(a))
	}
	for _, r := range s.results {
		v := r.Value
		if em.b.scopeOf[v.node] == s {
			g.Output = append(g.Output, em.valueInfo(v))
			continue
		}
		// The result lives in an enclosing scope: expose it through a
		// local Identity so the subgraph defines its own outputs.
		sp := em.b.spaces[s]
		outName := r.Name
		if !sp.values.claim(outName) {
			outName = sp.values.fresh(outName)
		}
		g.Node = append(g.Node, em.identity(s, em.nameOf(v), outName))
		vi := &protos.ValueInfoProto{Name: outName}
		if v.typ != nil {
			vi.Type = v.typ.ToProto()
		}
		g.Output = append(g.Output, vi)
	}
	if s == em.b.root {
		for _, v := range em.b.md.InitOrder {
			t := em.b.md.Initializers[v]
			g.Initializer = append(g.Initializer, t.ToProto(em.nameOf(v)))
		}
	}
	g.ValueInfo = em.valueInfoList(s)
	return g
}

func (em *emitState) valueInfo(v *Value) *protos.ValueInfoProto {
	vi := &protos.ValueInfoProto{Name: em.nameOf(v)}
	if v.typ != nil {
		vi.Type = v.typ.ToProto()
	}
	return vi
}

// valueInfoList collects type annotations for the intermediate values of a
// scope. Builds always compute them; ToONNX strips them unless requested.
func (em *emitState) valueInfoList(s *Graph) []*protos.ValueInfoProto {
	io := make(map[*Value]bool)
	for _, a := range em.b.argsOf[s] {
		io[a] = true
	}
	for _, r := range s.results {
		io[r.Value] = true
	}
	var out []*protos.ValueInfoProto
	for _, n := range em.b.order[s] {
		switch n.spec.(type) {
		case argumentSpec, initializerSpec:
			continue
		}
		if _, isAlias := n.spec.(aliaser); isAlias {
			continue
		}
		for _, o := range n.outputs {
			if io[o] || o.typ == nil {
				continue
			}
			out = append(out, &protos.ValueInfoProto{Name: em.b.names[o], Type: o.typ.ToProto()})
		}
	}
	return out
}
