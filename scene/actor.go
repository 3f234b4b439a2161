package scene

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vantle/scenekit/graph"
	"github.com/vantle/scenekit/logging"
)

// Status is the lifecycle state of a scene actor.
type Status int32

const (
	// StatusStarting means the actor exists but its loop has not begun.
	StatusStarting Status = iota

	// StatusRegistering means the actor is recording itself and its
	// supervision nodes with the registry.
	StatusRegistering

	// StatusInitializing means the hosted module's Init is running.
	StatusInitializing

	// StatusActivated means the actor is dispatching runtime messages.
	StatusActivated

	// StatusTerminating means the actor is running cleanup.
	StatusTerminating

	// StatusStopped means the actor has terminated.
	StatusStopped
)

// String returns the string representation of Status.
func (s Status) String() string {
	switch s {
	case StatusStarting:
		return "starting"
	case StatusRegistering:
		return "registering"
	case StatusInitializing:
		return "initializing"
	case StatusActivated:
		return "activated"
	case StatusTerminating:
		return "terminating"
	case StatusStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type msgKind uint8

const (
	kindInit msgKind = iota
	kindCall
	kindInfo
	kindInput
	kindEvent
	kindPush
	kindDeactivate
	kindStop
	kindTimeout
)

type callResult struct {
	val any
	err error
}

type envelope struct {
	kind    msgKind
	payload any
	from    Addr
	rc      RoutingContext
	graph   *graph.Graph
	sub     string
	reason  error
	gen     uint64
	ctx     context.Context
	reply   chan callResult
}

// Actor hosts one scene module: it owns the module's state, publishes its
// graphs, reconciles dynamic children and routes input and events through
// the module's callbacks. All state is mutated only by the actor's own
// loop goroutine; no locks guard it.
type Actor struct {
	ref     graph.Ref
	defName string
	module  Module
	args    any
	opts    Options

	parent        Addr
	registry      Registry
	viewport      ViewPort
	styler        StyleResolver
	sup           ChildStarter
	dynSup        ChildStarter
	allowChildren bool
	log           logging.Logger

	mailbox chan envelope
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	status  int32 // Status

	// Reconciliation bookkeeping keyed by sub id, each entry consistent
	// with the most recent publication of that sub. Owned by the loop
	// goroutine.
	children  map[string]*subChildren
	published map[string]struct{}

	timer    *time.Timer
	timerGen uint64

	stopping   bool
	exitReason error
	exitCrash  bool
	done       chan struct{}
}

// New creates a scene actor hosting a fresh instance of def. The actor is
// inert until Start is called.
func New(def ModuleDef, args any, opts Options) *Actor {
	ref := opts.Ref
	if ref == "" {
		if opts.Name != "" {
			ref = graph.Ref(opts.Name)
		} else {
			ref = graph.NewRef()
		}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Styler == nil {
		opts.Styler = nodeStyles{}
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = 64
	}
	if opts.DeactivateTimeout <= 0 {
		opts.DeactivateTimeout = time.Second
	}
	opts.Ref = ref

	ctx, cancel := context.WithCancel(context.Background())

	a := &Actor{
		ref:           ref,
		defName:       def.ModuleName(),
		module:        def.New(),
		args:          args,
		opts:          opts,
		parent:        opts.Parent,
		registry:      opts.Registry,
		viewport:      opts.ViewPort,
		styler:        opts.Styler,
		sup:           opts.Supervisor,
		dynSup:        opts.DynamicSupervisor,
		allowChildren: !opts.NoChildren,
		log:           opts.Logger,
		mailbox:       make(chan envelope, opts.MailboxSize),
		ctx:           ctx,
		cancel:        cancel,
		children:      make(map[string]*subChildren),
		published:     make(map[string]struct{}),
		done:          make(chan struct{}),
	}
	a.opts.Self = a
	return a
}

// Ref returns the scene's stable opaque reference.
func (a *Actor) Ref() graph.Ref { return a.ref }

// Status returns the actor's current lifecycle state.
func (a *Actor) Status() Status { return Status(atomic.LoadInt32(&a.status)) }

// Done is closed once the actor has terminated.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Exit reports the termination reason and whether it was a crash. Valid
// after Done is closed.
func (a *Actor) Exit() (reason error, crashed bool) {
	return a.exitReason, a.exitCrash
}

// Start launches the actor loop and begins the asynchronous initialization
// sequence: registering, then the module's Init inside the loop.
func (a *Actor) Start() error {
	if !atomic.CompareAndSwapInt32(&a.status, int32(StatusStarting), int32(StatusRegistering)) {
		return fmt.Errorf("scene %s already started (state: %s)", a.ref, a.Status())
	}

	// The mailbox is empty here, so init is processed first.
	a.mailbox <- envelope{kind: kindInit}

	a.wg.Add(1)
	go a.loop()

	return nil
}

func (a *Actor) loop() {
	defer a.wg.Done()

	for {
		select {
		case env := <-a.mailbox:
			a.process(env)
		case <-a.ctx.Done():
			a.stopping = true
		}

		if a.stopping {
			a.terminate()
			return
		}
	}
}

// process dispatches one message. A panic in a steady-state callback is
// converted to a crash exit surfaced to the owning supervisor; init has
// its own soft-landing recovery.
func (a *Actor) process(env envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			a.fail(fmt.Errorf("scene %s (%s): panic in dispatch: %v", a.ref, a.defName, rec), true)
			a.log.Error("scene callback panicked",
				"scene", a.ref, "module", a.defName, "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	// Any message arrival cancels the pending timeout timer.
	if env.kind != kindTimeout {
		a.cancelTimer()
	}

	switch env.kind {
	case kindInit:
		a.runInit()
	case kindCall:
		a.handleCall(env)
	case kindInfo:
		a.handleInfo(env.payload)
	case kindInput:
		a.handleInput(env)
	case kindEvent:
		a.handleEvent(env)
	case kindPush:
		if err := a.publish(env.graph, env.sub); err != nil {
			a.fail(fmt.Errorf("scene %s: publish: %w", a.ref, err), true)
		}
	case kindDeactivate:
		if d, ok := a.module.(Deactivator); ok {
			d.Deactivate(env.ctx)
		}
		env.reply <- callResult{}
	case kindStop:
		a.stop(env.reason)
	case kindTimeout:
		if env.gen == a.timerGen {
			a.timer = nil
			a.handleInfo(Timeout{})
		}
	}
}

// runInit performs the registering and initializing-host phases. A fault,
// stop or invalid shape here is soft-landed: a diagnostic is handed to the
// root-replacement collaborator and the actor exits cleanly instead of
// crashing into a restart storm.
func (a *Actor) runInit() {
	atomic.StoreInt32(&a.status, int32(StatusRegistering))

	if a.registry != nil {
		err := a.registry.RegisterScene(a.ref, Registration{
			Addr:              a,
			Supervisor:        a.sup,
			DynamicSupervisor: a.dynSup,
		})
		if err != nil {
			a.startupFailure(fmt.Errorf("register scene: %w", err), nil)
			return
		}
	}

	// A dynamically-rooted scene announces its address so the controller
	// can recover it after a crash-restart. The ref is stable across
	// restarts; the address is not.
	if a.opts.Root && a.viewport != nil {
		a.viewport.SceneUp(a.ref, a)
	}

	atomic.StoreInt32(&a.status, int32(StatusInitializing))

	resp, err := a.safeInit()
	if err != nil {
		a.startupFailure(err, debug.Stack())
		return
	}

	resp, err = a.normalize(resp)
	if err != nil {
		a.startupFailure(err, nil)
		return
	}

	switch resp.verb {
	case verbNoReply:
		atomic.StoreInt32(&a.status, int32(StatusActivated))
		a.log.Debug("scene activated", "scene", a.ref, "module", a.defName)
		a.finish(resp)
	case verbIgnore:
		a.stop(nil)
	case verbStop:
		reason := resp.reason
		if reason == nil {
			reason = ErrInitFailed
		}
		a.startupFailure(reason, nil)
	default:
		a.startupFailure(fmt.Errorf("init returned %s: %w", resp.verb, ErrInitFailed), nil)
	}
}

func (a *Actor) safeInit() (resp Response, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("init panicked: %v: %w", rec, ErrInitFailed)
		}
	}()
	return a.module.Init(a.args, a.opts), nil
}

func (a *Actor) startupFailure(err error, stack []byte) {
	desc := ErrorDescriptor{
		Module: a.defName,
		Err:    err,
		Args:   a.args,
		Stack:  stack,
	}

	a.log.Error("scene failed to start",
		"scene", a.ref, "module", a.defName, "err", err, "args", a.args)

	if a.viewport != nil {
		if rerr := a.viewport.SetRoot(a, desc); rerr != nil {
			a.log.Error("root replacement failed", "scene", a.ref, "err", rerr)
		}
	}

	// Handled outcome, not a crash: report upward instead of re-raising.
	a.stopping = true
	a.exitReason = fmt.Errorf("%w: %v", ErrInitFailed, err)
	a.exitCrash = false
}

func (a *Actor) handleCall(env envelope) {
	h, ok := a.module.(CallHandler)
	if !ok {
		env.reply <- callResult{err: fmt.Errorf("scene %s (%s): %w", a.ref, a.defName, ErrNotHandled)}
		return
	}

	resp := h.HandleCall(env.payload, env.from)

	// Publication happens inside normalize, so by the time the reply is
	// observable the graph is already in the registry.
	resp, err := a.normalize(resp)
	if err != nil {
		env.reply <- callResult{err: err}
		a.fail(err, true)
		return
	}

	switch resp.verb {
	case verbReply:
		env.reply <- callResult{val: resp.reply}
	case verbNoReply:
		env.reply <- callResult{}
	case verbStop:
		env.reply <- callResult{err: resp.reason}
		a.stop(resp.reason)
		return
	default:
		err := fmt.Errorf("scene %s: call returned %s", a.ref, resp.verb)
		env.reply <- callResult{err: err}
		a.fail(err, true)
		return
	}

	a.finish(resp)
}

func (a *Actor) handleInfo(msg any) {
	h, ok := a.module.(InfoHandler)
	if !ok {
		a.log.Debug("unhandled message dropped", "scene", a.ref, "msg", msg)
		return
	}

	resp := h.HandleInfo(msg)
	resp, err := a.normalize(resp)
	if err != nil {
		a.fail(err, true)
		return
	}

	switch resp.verb {
	case verbNoReply:
		a.finish(resp)
	case verbStop:
		a.stop(resp.reason)
	default:
		a.fail(fmt.Errorf("scene %s: info handler returned %s", a.ref, resp.verb), true)
	}
}

func (a *Actor) handleInput(env envelope) {
	resp := Cont()
	if h, ok := a.module.(InputHandler); ok {
		resp = h.HandleInput(env.payload, env.rc)
	}

	resp, err := a.normalize(resp)
	if err != nil {
		a.fail(err, true)
		return
	}

	switch resp.verb {
	case verbHalt, verbNoReply:
		// Consumed.
	case verbCont:
		// Forward the original raw input back to the distribution
		// point; default routing there hands it to our parent.
		if env.rc.Source != nil {
			if ferr := env.rc.Source.EscalateInput(env.payload, env.rc.Key); ferr != nil {
				a.log.Warn("input escalation failed", "scene", a.ref, "err", ferr)
			}
		}
	case verbStop:
		a.stop(resp.reason)
		return
	default:
		a.fail(fmt.Errorf("scene %s: input handler returned %s", a.ref, resp.verb), true)
		return
	}

	a.finish(resp)
}

func (a *Actor) handleEvent(env envelope) {
	resp := ContEvent(env.payload)
	if f, ok := a.module.(EventFilter); ok {
		resp = f.FilterEvent(env.payload, env.from)
	}

	resp, err := a.normalize(resp)
	if err != nil {
		a.fail(err, true)
		return
	}

	switch resp.verb {
	case verbHalt, verbNoReply:
		// Consumed.
	case verbCont:
		ev := env.payload
		if resp.hasEvent {
			ev = resp.event
		}
		if a.parent != nil {
			if serr := a.parent.SendEvent(ev, a); serr != nil {
				a.log.Warn("event bubbling failed", "scene", a.ref, "err", serr)
			}
		} else {
			// No parent address: nothing unambiguous to bubble to.
			a.log.Debug("event dropped at root", "scene", a.ref)
		}
	case verbStop:
		a.stop(resp.reason)
		return
	default:
		a.fail(fmt.Errorf("scene %s: event filter returned %s", a.ref, resp.verb), true)
		return
	}

	a.finish(resp)
}

// finish applies the directive of a normalized response and handles a stop
// produced by a continuation.
func (a *Actor) finish(resp Response) {
	resp, err := a.applyDirective(resp)
	if err != nil {
		a.fail(err, true)
		return
	}
	if resp.verb == verbStop {
		a.stop(resp.reason)
	}
}

// stop requests a clean termination with the given reason.
func (a *Actor) stop(reason error) {
	a.stopping = true
	a.exitReason = reason
	a.exitCrash = false
}

// fail requests termination with a failure reason. crash exits are
// surfaced to the owning supervisor's restart policy.
func (a *Actor) fail(err error, crash bool) {
	a.stopping = true
	a.exitReason = err
	a.exitCrash = crash
	if crash {
		a.log.Error("scene failed", "scene", a.ref, "module", a.defName, "err", err)
	}
}

// terminate runs the terminating phase: module cleanup, registry cleanup,
// mailbox drain, then the exit signal.
func (a *Actor) terminate() {
	atomic.StoreInt32(&a.status, int32(StatusTerminating))
	a.cancelTimer()

	if t, ok := a.module.(Terminator); ok {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					a.log.Error("terminate callback panicked", "scene", a.ref, "panic", rec)
				}
			}()
			t.Terminate(a.exitReason)
		}()
	}

	if a.registry != nil {
		for sub := range a.published {
			a.registry.DeleteGraph(graph.Key{Scene: a.ref, Sub: sub})
		}
		a.registry.DeleteScene(a.ref)
	}

	a.cancel()
	a.drainMailbox()

	atomic.StoreInt32(&a.status, int32(StatusStopped))
	close(a.done)
}

// drainMailbox answers queued synchronous requests during shutdown so no
// caller is left blocked.
func (a *Actor) drainMailbox() {
	for {
		select {
		case env := <-a.mailbox:
			if env.reply != nil {
				env.reply <- callResult{err: fmt.Errorf("scene %s: %w", a.ref, ErrNotRunning)}
			}
		default:
			return
		}
	}
}

func (a *Actor) enqueue(env envelope) error {
	switch a.Status() {
	case StatusTerminating, StatusStopped:
		return fmt.Errorf("scene %s: %w", a.ref, ErrNotRunning)
	}

	select {
	case a.mailbox <- env:
		return nil
	case <-a.ctx.Done():
		return fmt.Errorf("scene %s: %w", a.ref, ErrNotRunning)
	default:
		return fmt.Errorf("scene %s: %w", a.ref, ErrMailboxFull)
	}
}

// Send delivers a generic application message to the scene's mailbox.
func (a *Actor) Send(msg any) error {
	return a.enqueue(envelope{kind: kindInfo, payload: msg})
}

// Call delivers a request and blocks the caller until the scene replies,
// ctx expires or the scene terminates.
func (a *Actor) Call(ctx context.Context, req any) (any, error) {
	reply := make(chan callResult, 1)
	if err := a.enqueue(envelope{kind: kindCall, payload: req, reply: reply}); err != nil {
		return nil, err
	}

	select {
	case res := <-reply:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-a.done:
		return nil, fmt.Errorf("scene %s: %w", a.ref, ErrNotRunning)
	}
}

// SendInput delivers an input payload with its routing context.
func (a *Actor) SendInput(in Input, rc RoutingContext) error {
	return a.enqueue(envelope{kind: kindInput, payload: in, rc: rc})
}

// SendEvent delivers an event emitted by origin for filtering.
func (a *Actor) SendEvent(ev Event, origin Addr) error {
	return a.enqueue(envelope{kind: kindEvent, payload: ev, from: origin})
}

// Push asks the scene to publish a graph under the given sub id.
func (a *Actor) Push(g *graph.Graph, sub string) error {
	return a.enqueue(envelope{kind: kindPush, graph: g, sub: sub})
}

// Deactivate performs the synchronous deactivation handshake.
func (a *Actor) Deactivate(ctx context.Context) error {
	reply := make(chan callResult, 1)
	if err := a.enqueue(envelope{kind: kindDeactivate, ctx: ctx, reply: reply}); err != nil {
		return err
	}

	select {
	case res := <-reply:
		return res.err
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return nil
	}
}

// Shutdown asks the scene to stop. It does not wait; use Done.
func (a *Actor) Shutdown(reason error) error {
	if err := a.enqueue(envelope{kind: kindStop, reason: reason}); err != nil {
		// Mailbox full or already going down: force the loop out.
		a.cancel()
	}
	return nil
}
