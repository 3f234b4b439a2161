package scene

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vantle/scenekit/graph"
)

const testTimeout = 2 * time.Second

// fakeRegistry records registrations and publications.
type fakeRegistry struct {
	mu            sync.Mutex
	registrations map[graph.Ref]Registration
	graphs        map[graph.Key]*graph.Graph
	refs          map[graph.Key]map[graph.NodeID]graph.Key
	inserts       int
	deletedScenes []graph.Ref
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		registrations: make(map[graph.Ref]Registration),
		graphs:        make(map[graph.Key]*graph.Graph),
		refs:          make(map[graph.Key]map[graph.NodeID]graph.Key),
	}
}

func (r *fakeRegistry) RegisterScene(ref graph.Ref, reg Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrations[ref] = reg
	return nil
}

func (r *fakeRegistry) InsertGraph(key graph.Key, _ Addr, g *graph.Graph, refs map[graph.NodeID]graph.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.graphs[key] = g
	r.refs[key] = refs
	r.inserts++
	return nil
}

func (r *fakeRegistry) GetSceneAddress(ref graph.Ref) (Addr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.registrations[ref]
	if !ok {
		return nil, false
	}
	return reg.Addr, true
}

func (r *fakeRegistry) GetGraphAddress(key graph.Key) (Addr, bool) {
	return r.GetSceneAddress(key.Scene)
}

func (r *fakeRegistry) GetRefs(key graph.Key) (map[graph.NodeID]graph.Key, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	refs, ok := r.refs[key]
	return refs, ok
}

func (r *fakeRegistry) DeleteGraph(key graph.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.graphs, key)
	delete(r.refs, key)
}

func (r *fakeRegistry) DeleteScene(ref graph.Ref) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.registrations, ref)
	r.deletedScenes = append(r.deletedScenes, ref)
}

func (r *fakeRegistry) insertCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts
}

func (r *fakeRegistry) graphFor(key graph.Key) (*graph.Graph, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.graphs[key]
	return g, ok
}

// fakeStarter hands out fake child addresses and records the order of
// start, deactivate and terminate operations.
type fakeStarter struct {
	mu         sync.Mutex
	seq        []string
	started    []ChildSpec
	terminated chan Addr
	fail       error
	failName   string // refuse to start this module
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{terminated: make(chan Addr, 16)}
}

func (s *fakeStarter) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = append(s.seq, op)
}

func (s *fakeStarter) sequence() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.seq))
	copy(out, s.seq)
	return out
}

func (s *fakeStarter) StartChild(spec ChildSpec) (Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	if s.failName != "" && s.failName == spec.Def.ModuleName() {
		return nil, fmt.Errorf("start %s refused", s.failName)
	}
	addr := &fakeAddr{ref: graph.NewRef(), rec: s, done: make(chan struct{})}
	s.started = append(s.started, spec)
	s.seq = append(s.seq, "start:"+spec.Def.ModuleName())
	return addr, nil
}

func (s *fakeStarter) TerminateChild(target Addr) error {
	s.record("terminate:" + string(target.Ref()))
	s.terminated <- target
	return nil
}

func (s *fakeStarter) startCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.started)
}

// fakeAddr is an inert child scene address.
type fakeAddr struct {
	ref  graph.Ref
	rec  *fakeStarter
	done chan struct{}
}

func (a *fakeAddr) Ref() graph.Ref                  { return a.ref }
func (a *fakeAddr) Send(any) error                  { return nil }
func (a *fakeAddr) Call(context.Context, any) (any, error) {
	return nil, nil
}
func (a *fakeAddr) SendInput(Input, RoutingContext) error { return nil }
func (a *fakeAddr) SendEvent(Event, Addr) error           { return nil }
func (a *fakeAddr) Push(*graph.Graph, string) error       { return nil }

func (a *fakeAddr) Deactivate(context.Context) error {
	if a.rec != nil {
		a.rec.record("deactivate:" + string(a.ref))
	}
	return nil
}

func (a *fakeAddr) Shutdown(error) error {
	select {
	case <-a.done:
	default:
		close(a.done)
	}
	return nil
}

func (a *fakeAddr) Done() <-chan struct{} { return a.done }

// fakeViewPort records root replacements and up-signals.
type fakeViewPort struct {
	mu       sync.Mutex
	setRoots []ErrorDescriptor
	sceneUps []graph.Ref
}

func (vp *fakeViewPort) SetRoot(_ Addr, desc ErrorDescriptor) error {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.setRoots = append(vp.setRoots, desc)
	return nil
}

func (vp *fakeViewPort) SceneUp(ref graph.Ref, _ Addr) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	vp.sceneUps = append(vp.sceneUps, ref)
}

func (vp *fakeViewPort) replacements() []ErrorDescriptor {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	out := make([]ErrorDescriptor, len(vp.setRoots))
	copy(out, vp.setRoots)
	return out
}

// fakeRouter is a distribution point recording escalated inputs.
type fakeRouter struct {
	mu        sync.Mutex
	escalated []Input
	notify    chan struct{}
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{notify: make(chan struct{}, 16)}
}

func (r *fakeRouter) EscalateInput(in Input, _ graph.Key) error {
	r.mu.Lock()
	r.escalated = append(r.escalated, in)
	r.mu.Unlock()
	r.notify <- struct{}{}
	return nil
}

func (r *fakeRouter) inputs() []Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Input, len(r.escalated))
	copy(out, r.escalated)
	return out
}

// stubModule implements every optional callback through pluggable funcs.
type stubModule struct {
	init   func(args any, opts Options) Response
	call   func(req any, from Addr) Response
	info   func(msg any) Response
	cont   func(token any) Response
	input  func(in Input, rc RoutingContext) Response
	filter func(ev Event, origin Addr) Response

	mu          sync.Mutex
	opts        Options
	deactivated bool
	terminated  []error
}

func (m *stubModule) Init(args any, opts Options) Response {
	m.mu.Lock()
	m.opts = opts
	m.mu.Unlock()
	if m.init != nil {
		return m.init(args, opts)
	}
	return NoReply()
}

func (m *stubModule) HandleCall(req any, from Addr) Response {
	if m.call != nil {
		return m.call(req, from)
	}
	return Reply(nil)
}

func (m *stubModule) HandleInfo(msg any) Response {
	if m.info != nil {
		return m.info(msg)
	}
	return NoReply()
}

func (m *stubModule) HandleContinue(token any) Response {
	if m.cont != nil {
		return m.cont(token)
	}
	return NoReply()
}

func (m *stubModule) HandleInput(in Input, rc RoutingContext) Response {
	if m.input != nil {
		return m.input(in, rc)
	}
	return Cont()
}

func (m *stubModule) FilterEvent(ev Event, origin Addr) Response {
	if m.filter != nil {
		return m.filter(ev, origin)
	}
	return ContEvent(ev)
}

func (m *stubModule) Deactivate(context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deactivated = true
}

func (m *stubModule) Terminate(reason error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminated = append(m.terminated, reason)
}

func stubDef(name string, m *stubModule) ModuleDef {
	return Def(name, func() Module { return m })
}

// recordLogger captures log messages for assertions.
type recordLogger struct {
	mu   sync.Mutex
	msgs []string
}

func (l *recordLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *recordLogger) has(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.msgs {
		if m == msg {
			return true
		}
	}
	return false
}

func (l *recordLogger) Debug(msg string, _ ...any) { l.add(msg) }
func (l *recordLogger) Info(msg string, _ ...any)  { l.add(msg) }
func (l *recordLogger) Warn(msg string, _ ...any)  { l.add(msg) }
func (l *recordLogger) Error(msg string, _ ...any) { l.add(msg) }

// bareModule implements only Init, to exercise default dispatch paths.
type bareModule struct{}

func (bareModule) Init(any, Options) Response { return NoReply() }

func waitDone(a *Actor) error {
	select {
	case <-a.Done():
		return nil
	case <-time.After(testTimeout):
		return fmt.Errorf("actor %s did not terminate", a.Ref())
	}
}
