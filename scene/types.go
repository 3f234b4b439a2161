// Package scene implements the runtime actor that hosts one scene of a UI
// scene graph. A scene owns application state, builds a renderable graph,
// reconciles declared dynamic sub-scenes against running child actors and
// routes input (top-down) and events (bottom-up) through host callbacks.
package scene

import (
	"context"
	"time"

	"github.com/vantle/scenekit/graph"
	"github.com/vantle/scenekit/logging"
)

// Addr is the address of a running scene actor. Addresses are transient:
// a restarted scene keeps its graph.Ref but gets a new address.
type Addr interface {
	// Ref returns the scene's stable opaque reference.
	Ref() graph.Ref

	// Send delivers a generic application message asynchronously.
	Send(msg any) error

	// Call delivers a request and blocks the caller until the scene
	// replies. Only the caller blocks, never the target scene.
	Call(ctx context.Context, req any) (any, error)

	// SendInput delivers an input payload with its routing context.
	SendInput(in Input, rc RoutingContext) error

	// SendEvent delivers an event emitted by origin for filtering.
	SendEvent(ev Event, origin Addr) error

	// Push asks the scene to publish a graph under the given sub id.
	Push(g *graph.Graph, sub string) error

	// Deactivate performs a best-effort synchronous deactivation
	// handshake before the scene is stopped.
	Deactivate(ctx context.Context) error

	// Shutdown asks the scene to stop with the given reason. It does
	// not wait for termination; use Done for that.
	Shutdown(reason error) error

	// Done is closed once the scene actor has terminated.
	Done() <-chan struct{}
}

// Input is an opaque input payload routed to a scene by the driver layer.
type Input = any

// Event is an opaque payload a scene emits toward its logical parent.
type Event = any

// Timeout is delivered to the scene's generic message handler when a timing
// directive expires with no other message arriving first.
type Timeout struct{}

// InputRouter is the upstream distribution point inputs escalate back to
// when a scene declines them, so default-routing rules can hand them to
// the scene's parent.
type InputRouter interface {
	EscalateInput(in Input, from graph.Key) error
}

// RoutingContext accompanies every input dispatch: which published graph
// the input was resolved against, the raw source payload and the
// distribution point to escalate to.
type RoutingContext struct {
	Key    graph.Key
	Raw    any
	Source InputRouter
}

// Registration is the record a scene registers under its ref so other
// components can reach it and its supervision nodes.
type Registration struct {
	Addr              Addr
	Supervisor        ChildStarter
	DynamicSupervisor ChildStarter
}

// Registry is the shared mapping from scene refs and graph keys to
// addresses and published graphs. Implementations must be safe for
// concurrent use; registration and publication are upserts.
type Registry interface {
	RegisterScene(ref graph.Ref, reg Registration) error
	InsertGraph(key graph.Key, publisher Addr, g *graph.Graph, refs map[graph.NodeID]graph.Key) error
	GetSceneAddress(ref graph.Ref) (Addr, bool)
	GetGraphAddress(key graph.Key) (Addr, bool)
	GetRefs(key graph.Key) (map[graph.NodeID]graph.Key, bool)
	DeleteGraph(key graph.Key)
	DeleteScene(ref graph.Ref)
}

// ChildSpec describes a dynamic child scene to start.
type ChildSpec struct {
	Def     ModuleDef
	Args    any
	Options Options
}

// ChildStarter is the supervision surface this package needs: starting a
// child scene under a supervision node and terminating one.
type ChildStarter interface {
	StartChild(spec ChildSpec) (Addr, error)
	TerminateChild(target Addr) error
}

// ViewPort is the optional root controller collaborator. SetRoot replaces
// a failed root scene with a diagnostic one; SceneUp is the idempotent
// "I am up" signal a dynamically-rooted scene sends so the controller can
// recover the address after a crash-restart.
type ViewPort interface {
	SetRoot(from Addr, desc ErrorDescriptor) error
	SceneUp(ref graph.Ref, addr Addr)
}

// StyleResolver gathers the style data applicable to a graph node, used
// when starting the dynamic child declared at that node.
type StyleResolver interface {
	StylesFor(g *graph.Graph, id graph.NodeID) map[string]any
}

// nodeStyles is the default resolver: the node's own style map.
type nodeStyles struct{}

func (nodeStyles) StylesFor(g *graph.Graph, id graph.NodeID) map[string]any {
	p, ok := g.Get(id)
	if !ok {
		return nil
	}
	return p.Styles
}

// ErrorDescriptor carries the diagnostic payload surfaced when a scene's
// init fails or returns an invalid shape.
type ErrorDescriptor struct {
	Module string
	Err    error
	Args   any
	Stack  []byte
}

// Options configure a scene actor at start. Supervision handles are passed
// explicitly here; the actor never introspects its runtime ancestry.
type Options struct {
	// Name is the fallback scene ref when Ref is empty.
	Name string

	// Ref is the scene's stable reference. Empty means derive one from
	// Name, or generate a fresh opaque ref.
	Ref graph.Ref

	// Self is the hosting actor's own address. Set by the runtime
	// before Init runs; ignored if supplied by the caller.
	Self Addr

	// Parent is the logical parent address events bubble to. Nil for
	// root or independently supervised scenes: their events are dropped
	// rather than bubbled, since no single parent is unambiguous.
	Parent Addr

	// NoChildren disables dynamic sub-scene management. A dynamic
	// reference in a published graph then becomes a fatal
	// configuration error.
	NoChildren bool

	// Styles and ID carry the referencing node's resolved style data
	// and declared identifier into a dynamic child.
	Styles map[string]any
	ID     string

	// ViewPort is the optional root controller.
	ViewPort ViewPort

	// Root marks a dynamically-rooted scene that must announce its
	// address to the ViewPort on every start.
	Root bool

	// Supervisor and DynamicSupervisor are this scene's own supervision
	// nodes. A nil DynamicSupervisor disables dynamic children even
	// when NoChildren is false.
	Supervisor        ChildStarter
	DynamicSupervisor ChildStarter

	// Registry receives registration and graph publications. May be nil
	// for standalone actors, which then resolve graphs locally only.
	Registry Registry

	// Styler resolves per-node styles during reconciliation. Defaults
	// to the node's own style map.
	Styler StyleResolver

	// Logger defaults to a discarding logger.
	Logger logging.Logger

	// MailboxSize is the mailbox buffer size. Defaults to 64.
	MailboxSize int

	// DeactivateTimeout bounds the deactivation handshake during
	// removed-child cleanup. Defaults to one second.
	DeactivateTimeout time.Duration
}
