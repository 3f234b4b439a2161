package graph

import "fmt"

// Reduction is the result of minimizing an authored graph for publication.
type Reduction struct {
	// Graph is the minimized wire form: primitives stripped to Kind and
	// Data, authoring metadata removed.
	Graph *Graph

	// Resolved maps reference node ids to their graph keys for the
	// named and explicit forms, which resolve immediately.
	Resolved map[NodeID]Key

	// Dynamic maps reference node ids to their raw, still unresolved
	// dynamic references. Resolution happens during reconciliation,
	// before publication.
	Dynamic map[NodeID]DynamicRef
}

// Reduce minimizes an authored graph in a single pass and extracts every
// scene-reference node. Named references resolve to (name, "") without
// checking for a live publisher; explicit references are recorded as-is;
// dynamic references are collected for reconciliation, or rejected with
// ErrDynamicNotAllowed when the publishing scene does not manage children.
func Reduce(g *Graph, allowChildren bool) (*Reduction, error) {
	red := &Reduction{
		Graph:    New(),
		Resolved: make(map[NodeID]Key),
		Dynamic:  make(map[NodeID]DynamicRef),
	}

	for _, n := range g.Nodes() {
		p := n.Primitive
		if p.Kind != KindSceneRef {
			red.Graph.Add(n.ID, Primitive{Kind: p.Kind, Data: p.Data})
			continue
		}

		switch ref := p.Data.(type) {
		case NamedRef:
			red.Resolved[n.ID] = Key{Scene: ref.Name}
		case ExplicitRef:
			red.Resolved[n.ID] = ref.Key
		case DynamicRef:
			if !allowChildren {
				return nil, fmt.Errorf("node %d (%s): %w",
					n.ID, moduleName(ref.Module), ErrDynamicNotAllowed)
			}
			red.Dynamic[n.ID] = ref
		default:
			return nil, fmt.Errorf("node %d: payload %T: %w", n.ID, p.Data, ErrMalformedReference)
		}

		// Reference nodes keep their raw payload in the minimized
		// graph until the reconciler rewrites them to resolved keys.
		red.Graph.Add(n.ID, Primitive{Kind: KindSceneRef, Data: p.Data})
	}

	return red, nil
}

func moduleName(m Module) string {
	if m == nil {
		return "<nil module>"
	}
	return m.ModuleName()
}
