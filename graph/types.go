// Package graph defines the renderable scene graph data model: primitives,
// graph keys, the three scene-reference forms, graph minimization and the
// dynamic-reference diff used for child reconciliation.
package graph

import (
	"fmt"

	"github.com/google/uuid"
)

// Ref is an opaque identifier for a scene instance. It is the first
// component of every graph key the scene publishes and stays stable across
// restarts of the hosting actor.
type Ref string

// NewRef generates a fresh opaque scene reference.
func NewRef() Ref {
	return Ref(uuid.NewString())
}

// NodeID identifies a node within one graph. IDs are small integers assigned
// by the graph author; they are only meaningful within their own graph.
type NodeID int

// Key is the publication identity of a graph: the publishing scene's Ref
// plus an optional sub-graph identifier. Sub == "" names the scene's
// primary graph. Keys are the unit the registry indexes.
type Key struct {
	Scene Ref
	Sub   string
}

// String returns a printable form of the key.
func (k Key) String() string {
	if k.Sub == "" {
		return string(k.Scene)
	}
	return fmt.Sprintf("%s/%s", k.Scene, k.Sub)
}

// Module is the minimal view of a scene module this package needs: enough
// identity to diff dynamic references and to report configuration errors.
// The scene package's module definitions satisfy it.
type Module interface {
	ModuleName() string
}

// KindSceneRef tags a primitive that delegates rendering to another scene.
// Its Data payload must be one of NamedRef, ExplicitRef or DynamicRef; in a
// published graph it is always a resolved Key.
const KindSceneRef = "scene_ref"

// NamedRef delegates to whatever scene is currently registered under a
// well-known name. Resolution is structural: the key is formed from the
// name without checking that a publisher exists.
type NamedRef struct {
	Name Ref
}

// ExplicitRef delegates to a specific, already resolved graph key.
type ExplicitRef struct {
	Key Key
}

// DynamicRef declares that a child scene of the given module must be running
// at this node. The hosting actor starts one if none exists, matched by
// node id.
type DynamicRef struct {
	Module Module
	Args   any
}

// Primitive is one drawable or structural record in a graph. Styles and ID
// are authoring metadata; minimization keeps only Kind and Data.
type Primitive struct {
	// Kind tags the primitive type (rect, text, scene_ref, ...).
	Kind string

	// Data is the kind-specific payload. For KindSceneRef it carries one
	// of the three reference forms, or a resolved Key after publication.
	Data any

	// Styles holds opaque style data for this node. Passed through to
	// dynamic children; stripped from the published form.
	Styles map[string]any

	// ID is the author-declared identifier of this node, if any.
	ID string
}

// Node pairs a node id with its primitive.
type Node struct {
	ID        NodeID
	Primitive Primitive
}

// Graph is an ordered collection of nodes. Order is the author's drawing
// order and is preserved through minimization.
type Graph struct {
	nodes []Node
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// Add appends a node. Adding a duplicate id replaces the earlier node's
// primitive while keeping its position.
func (g *Graph) Add(id NodeID, p Primitive) *Graph {
	for i := range g.nodes {
		if g.nodes[i].ID == id {
			g.nodes[i].Primitive = p
			return g
		}
	}
	g.nodes = append(g.nodes, Node{ID: id, Primitive: p})
	return g
}

// Get returns the primitive for a node id.
func (g *Graph) Get(id NodeID) (Primitive, bool) {
	for i := range g.nodes {
		if g.nodes[i].ID == id {
			return g.nodes[i].Primitive, true
		}
	}
	return Primitive{}, false
}

// Nodes returns the nodes in order. The slice is shared; callers must not
// mutate it.
func (g *Graph) Nodes() []Node {
	if g == nil {
		return nil
	}
	return g.nodes
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.nodes)
}
