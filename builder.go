package heimdall

import (
	"fmt"

	"github.com/petrijr/heimdall/pkg/api"
)

// GraphBuilder provides a fluent API for defining pipeline graphs:
//
//	graph := heimdall.NewGraph("equity-report").
//	    Stage("draft", draft).
//	    Stage("decide", decide).
//	    Gate("review").
//	    Stage("finalize", finalize).
//	    Edge("draft", "decide").
//	    DecisionLoop("decide", "decision", "draft", "review").
//	    Edge("review", "finalize").
//	    Edge("finalize", heimdall.Terminal)
//
//	if err := graph.Register(engine); err != nil {
//	    log.Fatal(err)
//	}
//
// The first node added becomes the entry point unless Entry overrides it.
// Structural errors are reported by Register (through GraphDefinition
// validation), not by the intermediate calls.
type GraphBuilder struct {
	def api.GraphDefinition
}

// NewGraph creates a new graph builder with the given name.
func NewGraph(name string) *GraphBuilder {
	return &GraphBuilder{
		def: api.GraphDefinition{
			Name:    name,
			Edges:   make(map[string]string),
			Routers: make(map[string]api.ConditionalEdge),
		},
	}
}

// Name returns the graph name.
func (b *GraphBuilder) Name() string {
	return b.def.Name
}

// Definition returns the underlying GraphDefinition.
// Typically used when interacting with lower-level APIs.
func (b *GraphBuilder) Definition() GraphDefinition {
	return b.def
}

// Entry sets the entry node explicitly.
func (b *GraphBuilder) Entry(name string) *GraphBuilder {
	b.def.Entry = name
	return b
}

// Stage adds a named stage node.
func (b *GraphBuilder) Stage(name string, fn StageFunc) *GraphBuilder {
	if name == "" {
		panic("heimdall: stage name must not be empty")
	}
	if fn == nil {
		panic(fmt.Sprintf("heimdall: stage %q has nil function", name))
	}
	return b.addNode(api.StageNode{Name: name, Fn: fn})
}

// Gate adds a human-review gate node. The executor suspends the session
// when the cursor reaches it; Resume moves past it.
func (b *GraphBuilder) Gate(name string) *GraphBuilder {
	if name == "" {
		panic("heimdall: gate name must not be empty")
	}
	return b.addNode(api.StageNode{Name: name, Gate: true})
}

func (b *GraphBuilder) addNode(n api.StageNode) *GraphBuilder {
	if b.def.Entry == "" {
		b.def.Entry = n.Name
	}
	b.def.Nodes = append(b.def.Nodes, n)
	return b
}

// Edge adds a static edge from one node to another (or to Terminal).
func (b *GraphBuilder) Edge(from, to string) *GraphBuilder {
	b.def.Edges[from] = to
	return b
}

// Route adds a conditional edge: the router picks the successor from the
// snapshot, and targets declares every name it may return.
func (b *GraphBuilder) Route(from string, router RouterFunc, targets ...string) *GraphBuilder {
	b.def.Routers[from] = api.ConditionalEdge{
		Router:  router,
		Targets: targets,
	}
	return b
}

// DecisionLoop installs the bounded accept/revise router on a decision
// node: the decision record in decisionField routes to reviseTarget while
// the session's iteration budget holds, then is forced to acceptTarget.
// The executor counts one iteration each time the revise route is taken.
func (b *GraphBuilder) DecisionLoop(from, decisionField, reviseTarget, acceptTarget string) *GraphBuilder {
	b.def.Routers[from] = api.ConditionalEdge{
		Router:     api.DecisionRouter(decisionField, reviseTarget, acceptTarget),
		Targets:    []string{reviseTarget, acceptTarget},
		LoopTarget: reviseTarget,
	}
	return b
}

// Register registers the built graph with the given engine.
func (b *GraphBuilder) Register(eng Engine) error {
	return eng.RegisterGraph(b.def)
}

// MustRegister is like Register but panics on error.
// Useful for initialization in main().
func (b *GraphBuilder) MustRegister(eng Engine) {
	if err := b.Register(eng); err != nil {
		panic(err)
	}
}
