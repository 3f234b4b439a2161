package scene

import "context"

// Module is the behaviour a hosted scene implements. A fresh module
// instance hosts each actor; instance fields are the scene's private state,
// mutated only from the actor's own dispatch loop.
type Module interface {
	// Init is invoked once during startup, inside the actor loop.
	// Returning NoReply activates the scene (optionally pushing an
	// initial graph); Ignore declines cleanly; Stop or a panic converts
	// into a diagnostic handed to the viewport's root replacement.
	Init(args any, opts Options) Response
}

// ModuleDef names a module and constructs fresh instances of it. Dynamic
// scene references carry a ModuleDef so reconciliation can start children.
type ModuleDef interface {
	ModuleName() string
	New() Module
}

// Def builds a ModuleDef from a name and a factory.
func Def(name string, factory func() Module) ModuleDef {
	return &moduleDef{name: name, factory: factory}
}

type moduleDef struct {
	name    string
	factory func() Module
}

func (d *moduleDef) ModuleName() string { return d.name }
func (d *moduleDef) New() Module        { return d.factory() }

// CallHandler handles synchronous requests. Modules without it reply
// ErrNotHandled to every call.
type CallHandler interface {
	HandleCall(req any, from Addr) Response
}

// InfoHandler handles generic asynchronous messages, including Timeout
// signals from an expired timing directive.
type InfoHandler interface {
	HandleInfo(msg any) Response
}

// ContinueHandler handles continuation tokens scheduled by a previous
// callback's directive, delivered before any other message.
type ContinueHandler interface {
	HandleContinue(token any) Response
}

// InputHandler handles routed input. Modules without it escalate every
// input back to the distribution point.
type InputHandler interface {
	HandleInput(in Input, rc RoutingContext) Response
}

// EventFilter filters events bubbling up from child scenes. Modules
// without it pass every event through unchanged.
type EventFilter interface {
	FilterEvent(ev Event, origin Addr) Response
}

// Deactivator is invoked by the synchronous deactivation handshake before
// a dynamic child is stopped.
type Deactivator interface {
	Deactivate(ctx context.Context)
}

// Terminator is invoked during actor termination for cleanup. The return
// value is ignored.
type Terminator interface {
	Terminate(reason error)
}
