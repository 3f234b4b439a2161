// Package supervisor provides in-process supervision nodes for scene
// actors: starting children, monitoring their exits, applying a restart
// policy to crashes and terminating them on request. Each supervised scene
// gets a nested dynamic-supervision node that parents the dynamic children
// it spawns during reconciliation.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vantle/scenekit/graph"
	"github.com/vantle/scenekit/logging"
	"github.com/vantle/scenekit/scene"
)

// Options configure a supervision node.
type Options struct {
	// MaxRestarts is the number of crash restarts tolerated per child
	// within Window before the supervisor gives the child up.
	MaxRestarts int

	// Window is the restart intensity window.
	Window time.Duration

	// StopTimeout bounds how long TerminateChild waits for a child to
	// exit before abandoning it.
	StopTimeout time.Duration

	Logger logging.Logger
}

func (o *Options) defaults() {
	if o.MaxRestarts <= 0 {
		o.MaxRestarts = 3
	}
	if o.Window <= 0 {
		o.Window = 5 * time.Second
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = logging.Nop()
	}
}

type child struct {
	spec     scene.ChildSpec
	actor    *scene.Actor
	dynamic  *Supervisor
	restarts []time.Time
	stopping bool
}

// Supervisor is one supervision node. It implements scene.ChildStarter.
type Supervisor struct {
	name string
	opts Options
	log  logging.Logger

	mu       sync.Mutex
	children map[graph.Ref]*child
	stopped  bool
	wg       sync.WaitGroup
}

// New creates a supervision node.
func New(name string, opts Options) *Supervisor {
	opts.defaults()
	return &Supervisor{
		name:     name,
		opts:     opts,
		log:      opts.Logger,
		children: make(map[graph.Ref]*child),
	}
}

// StartChild starts a scene actor from spec under this node. A spec with
// no explicit ref gets a fresh opaque one, distinct from any previous
// occupant; the ref then stays stable across crash restarts.
func (s *Supervisor) StartChild(spec scene.ChildSpec) (scene.Addr, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, fmt.Errorf("supervisor %s is shut down", s.name)
	}

	if spec.Options.Ref == "" && spec.Options.Name == "" {
		spec.Options.Ref = graph.NewRef()
	}
	if spec.Options.Logger == nil {
		spec.Options.Logger = s.log
	}

	c := &child{spec: spec}
	actor, err := s.spawn(c)
	if err != nil {
		return nil, err
	}

	s.children[actor.Ref()] = c
	return actor, nil
}

// spawn starts one incarnation of a child and its monitor. Caller holds
// s.mu.
func (s *Supervisor) spawn(c *child) (*scene.Actor, error) {
	spec := c.spec
	spec.Options.Supervisor = s

	// NoChildren scenes never start dynamic children, so they get no
	// nested supervision node.
	var dyn *Supervisor
	if !spec.Options.NoChildren {
		dyn = New(s.name+"/dynamic", s.opts)
		spec.Options.DynamicSupervisor = dyn
	}

	actor := scene.New(spec.Def, spec.Args, spec.Options)

	// Later incarnations reuse the assigned ref so the scene's logical
	// identity survives restarts.
	c.spec.Options.Ref = actor.Ref()
	c.actor = actor
	c.dynamic = dyn

	if err := actor.Start(); err != nil {
		if dyn != nil {
			dyn.Shutdown(context.Background())
		}
		return nil, fmt.Errorf("start scene %s: %w", spec.Def.ModuleName(), err)
	}

	s.wg.Add(1)
	go s.monitor(actor, dyn)

	return actor, nil
}

// monitor waits for one incarnation to exit and applies the restart
// policy: crashes restart up to the intensity limit, clean exits and
// requested stops do not.
func (s *Supervisor) monitor(actor *scene.Actor, dyn *Supervisor) {
	defer s.wg.Done()

	<-actor.Done()
	reason, crashed := actor.Exit()

	// The incarnation's dynamic children die with it; a restarted scene
	// re-spawns its own on its next publish.
	if dyn != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.StopTimeout)
		dyn.Shutdown(ctx)
		cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.children[actor.Ref()]
	if !ok || c.actor != actor {
		return
	}

	if !crashed || c.stopping || s.stopped {
		delete(s.children, actor.Ref())
		return
	}

	if !s.allowRestart(c) {
		s.log.Error("scene restart intensity exceeded, giving up",
			"supervisor", s.name, "scene", actor.Ref(), "reason", reason)
		delete(s.children, actor.Ref())
		return
	}

	s.log.Warn("restarting crashed scene",
		"supervisor", s.name, "scene", actor.Ref(), "reason", reason)

	if _, err := s.spawn(c); err != nil {
		s.log.Error("scene restart failed",
			"supervisor", s.name, "scene", actor.Ref(), "err", err)
		delete(s.children, actor.Ref())
	}
}

// allowRestart prunes the restart history to the window and checks the
// intensity limit. Caller holds s.mu.
func (s *Supervisor) allowRestart(c *child) bool {
	now := time.Now()
	cutoff := now.Add(-s.opts.Window)

	kept := c.restarts[:0]
	for _, t := range c.restarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	c.restarts = append(kept, now)

	return len(c.restarts) <= s.opts.MaxRestarts
}

// TerminateChild stops a child and its dynamic descendants. Unknown
// targets are a no-op.
func (s *Supervisor) TerminateChild(target scene.Addr) error {
	if target == nil {
		return nil
	}

	s.mu.Lock()
	c, ok := s.children[target.Ref()]
	if ok {
		c.stopping = true
		delete(s.children, target.Ref())
	}
	s.mu.Unlock()

	_ = target.Shutdown(nil)

	select {
	case <-target.Done():
	case <-time.After(s.opts.StopTimeout):
		s.log.Warn("child did not stop in time", "supervisor", s.name, "scene", target.Ref())
	}

	return nil
}

// Lookup returns the running actor for a ref, if this node supervises it.
func (s *Supervisor) Lookup(ref graph.Ref) (*scene.Actor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.children[ref]
	if !ok {
		return nil, false
	}
	return c.actor, true
}

// Children returns the refs of all currently supervised scenes.
func (s *Supervisor) Children() []graph.Ref {
	s.mu.Lock()
	defer s.mu.Unlock()

	refs := make([]graph.Ref, 0, len(s.children))
	for ref := range s.children {
		refs = append(refs, ref)
	}
	return refs
}

// Shutdown stops all children and waits for their monitors, bounded by
// ctx.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true

	actors := make([]*scene.Actor, 0, len(s.children))
	for _, c := range s.children {
		c.stopping = true
		actors = append(actors, c.actor)
	}
	s.mu.Unlock()

	for _, actor := range actors {
		_ = actor.Shutdown(nil)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
