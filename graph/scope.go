// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package graph

import (
	"fmt"
	"strings"
)

// namescope allocates names unique along a chain of scopes. Serialized
// graphs expose enclosing-scope values to subgraphs, so a name claimed in
// an ancestor must not be reused below it; sibling subgraphs are
// independent.
//
// Two separate chains are kept per build, one for value names and one for
// node names, matching the two namespaces of the serialized form.
type namescope struct {
	parent *namescope
	used   map[string]bool
	next   map[string]int
}

func newNamescope(parent *namescope) *namescope {
	return &namescope{
		parent: parent,
		used:   make(map[string]bool),
		next:   make(map[string]int),
	}
}

// inUse reports whether name is taken in this scope or any ancestor.
func (s *namescope) inUse(name string) bool {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.used[name] {
			return true
		}
	}
	return false
}

// claim takes name verbatim. It returns false, without claiming, if the
// name is already in use along the chain.
func (s *namescope) claim(name string) bool {
	if s.inUse(name) {
		return false
	}
	s.used[name] = true
	return true
}

// fresh returns base if free, otherwise the first free "base_<k>". Counters
// are per base, so repeated hints enumerate deterministically.
func (s *namescope) fresh(base string) string {
	if base == "" {
		base = "v"
	}
	if s.claim(base) {
		return base
	}
	for {
		name := fmt.Sprintf("%s_%d", base, s.next[base])
		s.next[base]++
		if s.claim(name) {
			return name
		}
	}
}

// freshNumbered always suffixes: it returns the first free "base_<k>".
// Node names use this form so that every node name carries its ordinal.
func (s *namescope) freshNumbered(base string) string {
	if base == "" {
		base = "node"
	}
	base = sanitizeName(base)
	for {
		name := fmt.Sprintf("%s_%d", base, s.next[base])
		s.next[base]++
		if s.claim(name) {
			return name
		}
	}
}

// sanitizeName keeps names printable and separator-free. Serialized names
// have no charset restriction, but dots and spaces confuse downstream
// tooling.
func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}

// scopeNames bundles the two namespaces of one scope.
type scopeNames struct {
	values *namescope
	nodes  *namescope
}

func newScopeNames(parent *scopeNames) *scopeNames {
	if parent == nil {
		return &scopeNames{values: newNamescope(nil), nodes: newNamescope(nil)}
	}
	return &scopeNames{
		values: newNamescope(parent.values),
		nodes:  newNamescope(parent.nodes),
	}
}
