package api

import (
	"fmt"
	"strings"
)

// Terminal is the pseudo-node name that ends a graph walk.
const Terminal = "END"

// RouterFunc picks the next node from the current snapshot. Routers must be
// total: every value they can return has to appear in the conditional edge's
// declared target set (Terminal included), which is checked when the graph
// is built.
type RouterFunc func(snap *Snapshot) string

// StageNode is one named node of a graph. Gate nodes have no stage function;
// the executor suspends when the cursor reaches them.
type StageNode struct {
	Name string
	Fn   StageFunc
	Gate bool
}

// ConditionalEdge routes out of a node through a router. Targets declares
// every node name the router may return. LoopTarget, if set, names the
// target that re-enters a revision loop: the executor counts one iteration
// each time the router picks it.
type ConditionalEdge struct {
	Router     RouterFunc
	Targets    []string
	LoopTarget string
}

// GraphDefinition is an immutable description of a pipeline: stage nodes,
// static edges, and conditional routers. Build it with the GraphBuilder in
// the root package, or assemble it directly and call Validate.
type GraphDefinition struct {
	Name  string
	Entry string
	Nodes []StageNode

	// Edges maps a node to its single static successor.
	Edges map[string]string

	// Routers maps a node to its conditional edge. A node has either a
	// static edge or a router, never both.
	Routers map[string]ConditionalEdge
}

// Node returns the node with the given name.
func (d *GraphDefinition) Node(name string) (StageNode, bool) {
	for _, n := range d.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return StageNode{}, false
}

// IsGate reports whether the named node is a human-review gate.
func (d *GraphDefinition) IsGate(name string) bool {
	n, ok := d.Node(name)
	return ok && n.Gate
}

// Next resolves the successor of a node against the snapshot: the static
// edge if present, else the conditional router. It returns the next node
// name, whether the route re-enters the revision loop, and an error if the
// router produced an undeclared name (a configuration error that escaped
// validation; the caller must treat it as fatal).
func (d *GraphDefinition) Next(from string, snap *Snapshot) (next string, loop bool, err error) {
	if to, ok := d.Edges[from]; ok {
		return to, false, nil
	}
	edge, ok := d.Routers[from]
	if !ok {
		return "", false, fmt.Errorf("graph %s: node %s has no outgoing edge", d.Name, from)
	}
	got := edge.Router(snap)
	for _, t := range edge.Targets {
		if t == got {
			return got, got == edge.LoopTarget, nil
		}
	}
	return "", false, fmt.Errorf("graph %s: router at %s returned undeclared target %q", d.Name, from, got)
}

// Validate checks the graph for configuration errors: a missing entry point,
// nodes without stage functions (gates excepted), edges or declared router
// targets that name unknown nodes, and nodes with both a static edge and a
// router. Undefined routes are rejected here rather than at runtime.
func (d *GraphDefinition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("graph name is required")
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("graph %s: at least one node is required", d.Name)
	}

	seen := make(map[string]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.Name == "" || n.Name == Terminal {
			return fmt.Errorf("graph %s: invalid node name %q", d.Name, n.Name)
		}
		if seen[n.Name] {
			return fmt.Errorf("graph %s: duplicate node %s", d.Name, n.Name)
		}
		seen[n.Name] = true
		if n.Fn == nil && !n.Gate {
			return fmt.Errorf("graph %s: node %s has no stage function", d.Name, n.Name)
		}
	}

	if !seen[d.Entry] {
		return fmt.Errorf("graph %s: entry point %q is not a node", d.Name, d.Entry)
	}

	known := func(name string) bool { return name == Terminal || seen[name] }

	for from, to := range d.Edges {
		if !seen[from] {
			return fmt.Errorf("graph %s: edge from unknown node %s", d.Name, from)
		}
		if !known(to) {
			return fmt.Errorf("graph %s: edge %s -> %s targets unknown node", d.Name, from, to)
		}
		if _, both := d.Routers[from]; both {
			return fmt.Errorf("graph %s: node %s has both a static edge and a router", d.Name, from)
		}
	}

	for from, edge := range d.Routers {
		if !seen[from] {
			return fmt.Errorf("graph %s: router on unknown node %s", d.Name, from)
		}
		if edge.Router == nil {
			return fmt.Errorf("graph %s: node %s has a nil router", d.Name, from)
		}
		if len(edge.Targets) == 0 {
			return fmt.Errorf("graph %s: router at %s declares no targets", d.Name, from)
		}
		for _, t := range edge.Targets {
			if !known(t) {
				return fmt.Errorf("graph %s: router at %s declares unknown target %q", d.Name, from, t)
			}
		}
		if edge.LoopTarget != "" {
			found := false
			for _, t := range edge.Targets {
				if t == edge.LoopTarget {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("graph %s: loop target %q at %s is not a declared target", d.Name, edge.LoopTarget, from)
			}
		}
	}

	// Every non-terminal node needs a way out.
	for _, n := range d.Nodes {
		if _, ok := d.Edges[n.Name]; ok {
			continue
		}
		if _, ok := d.Routers[n.Name]; ok {
			continue
		}
		return fmt.Errorf("graph %s: node %s has no outgoing edge", d.Name, n.Name)
	}

	return nil
}

// Decision outcomes emitted by a decision stage. The decision record is a
// snapshot field whose first token names the outcome; anything after a ':'
// is free-form rationale.
const (
	DecisionAccept = "accept"
	DecisionRevise = "revise"
)

// OutcomeOf extracts the outcome token from a decision record. Unknown or
// empty records resolve to accept: a decision stage driven by a model can
// produce arbitrary text, and falling back to a deterministic default is
// what keeps the routing total.
func OutcomeOf(record string) string {
	head, _, _ := strings.Cut(record, ":")
	head = strings.ToLower(strings.TrimSpace(head))
	if head == DecisionRevise {
		return DecisionRevise
	}
	return DecisionAccept
}

// DecisionRouter builds the bounded accept/revise router for a decision
// node. It reads the decision record from decisionField and routes to
// reviseTarget only while the revision budget holds; once the snapshot's
// IterationCount reaches MaxIterations the route is forced to acceptTarget
// regardless of the recorded outcome. The router itself never mutates the
// snapshot; the executor counts the iteration when the loop edge is taken.
func DecisionRouter(decisionField, reviseTarget, acceptTarget string) RouterFunc {
	return func(snap *Snapshot) string {
		if snap.ReviewState.Terminal() {
			return acceptTarget
		}
		if snap.IterationCount >= snap.MaxIterations {
			return acceptTarget
		}
		if OutcomeOf(snap.Field(decisionField)) == DecisionRevise {
			return reviseTarget
		}
		return acceptTarget
	}
}
