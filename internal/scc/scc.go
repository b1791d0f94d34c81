// Package scc computes the strongly connected components of a directed
// graph via Tarjan's algorithm, giving a topologically sorted DAG of
// components.
//
// The deduplication resolver (internal/dedup) uses this to find the
// self- and mutually-referential STABS types ahead of structural hashing:
// a type inside a non-trivial component is hashed with a cycle-sentinel
// placeholder instead of being recursed into directly.
package scc

import (
	"iter"

	"mdebug.dev/ccc/internal/xdebug"
)

// Graph exposes the outgoing edges (dependencies) of a node in some
// directed graph over comparable node identities, such as a
// (file-index, type-number) STABS type key.
type Graph[Node any] func(Node) iter.Seq[Node]

// DAG is the strongly-connected-component condensation of a directed graph:
// every component is a single node in a DAG, topologically sorted so that a
// component never depends on one that appears after it.
type DAG[Node comparable] struct {
	index      map[Node]int
	components []Component[Node]
}

// Component is one strongly connected component: a set of nodes that are
// mutually reachable from one another (a STABS type cycle, including the
// trivial one-node, non-self-referential case).
type Component[Node comparable] struct {
	members []Node
}

// Members returns the nodes belonging to this component, in discovery
// order.
func (c *Component[Node]) Members() []Node { return c.members }

// Cyclic reports whether this component contains more than one node, or a
// single node with a self-edge. A cyclic component is exactly the set of
// STABS types for which the structural-hash sentinel rule applies.
func (c *Component[Node]) Cyclic(g Graph[Node]) bool {
	if len(c.members) > 1 {
		return true
	}
	only := c.members[0]
	for dep := range g(only) {
		if dep == only {
			return true
		}
	}
	return false
}

// Sort computes the strongly connected components reachable from root,
// using Tarjan's algorithm, and returns them as a topologically sorted DAG.
func Sort[Node comparable](root Node, graph Graph[Node]) *DAG[Node] {
	s := &tarjan[Node]{
		graph: graph,
		dag:   &DAG[Node]{index: make(map[Node]int)},
		meta:  make(map[Node]*frame),
	}
	s.visit(root)
	return s.dag
}

// ForNode returns the component containing node, or nil if node was never
// visited (e.g. it is unreachable from the root passed to Sort).
func (d *DAG[Node]) ForNode(node Node) *Component[Node] {
	idx, ok := d.index[node]
	if !ok {
		return nil
	}
	return &d.components[idx]
}

// Topological iterates over every component in dependency order: a
// component's dependencies are always yielded before the component itself.
func (d *DAG[Node]) Topological() iter.Seq[*Component[Node]] {
	return func(yield func(*Component[Node]) bool) {
		for i := range d.components {
			if !yield(&d.components[i]) {
				return
			}
		}
	}
}

type frame struct {
	index, lowlink int
	onStack        bool
}

type tarjan[Node comparable] struct {
	graph Graph[Node]
	dag   *DAG[Node]
	meta  map[Node]*frame
	stack []Node
	next  int
}

// visit runs Tarjan's algorithm recursively. STABS type graphs in practice
// are shallow (field/base-class nesting, not deep call chains), so we do
// not bother converting this to an explicit-stack iterative form the way a
// general-purpose compiler IR walker might need to.
func (s *tarjan[Node]) visit(v Node) {
	if _, ok := s.meta[v]; ok {
		return
	}

	f := &frame{index: s.next, lowlink: s.next, onStack: true}
	s.meta[v] = f
	s.next++
	s.stack = append(s.stack, v)
	xdebug.Log(nil, "visit", "%v index=%d", v, f.index)

	for w := range s.graph(v) {
		wf, seen := s.meta[w]
		if !seen {
			s.visit(w)
			wf = s.meta[w]
			if f.lowlink > wf.lowlink {
				f.lowlink = wf.lowlink
			}
		} else if wf.onStack {
			if f.lowlink > wf.index {
				f.lowlink = wf.index
			}
		}
	}

	if f.lowlink != f.index {
		return
	}

	var members []Node
	for {
		n := len(s.stack) - 1
		w := s.stack[n]
		s.stack = s.stack[:n]
		s.meta[w].onStack = false
		members = append(members, w)
		if w == v {
			break
		}
	}

	idx := len(s.dag.components)
	s.dag.components = append(s.dag.components, Component[Node]{members: members})
	for _, m := range members {
		s.dag.index[m] = idx
	}
}
