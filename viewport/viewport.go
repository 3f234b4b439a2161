// Package viewport provides the root controller of a scene tree: it owns
// the root scene, substitutes a diagnostic scene when a root fails to
// start, and acts as the distribution point inputs are dispatched from and
// escalate back to.
package viewport

import (
	"context"
	"fmt"
	"sync"

	"github.com/vantle/scenekit/graph"
	"github.com/vantle/scenekit/logging"
	"github.com/vantle/scenekit/registry"
	"github.com/vantle/scenekit/scene"
	"github.com/vantle/scenekit/supervisor"
)

// ViewPort implements scene.ViewPort and scene.InputRouter.
type ViewPort struct {
	registry *registry.Memory
	sup      *supervisor.Supervisor
	log      logging.Logger

	mu       sync.Mutex
	rootRef  graph.Ref
	rootAddr scene.Addr
}

// New creates a viewport backed by the given registry and root supervisor.
func New(reg *registry.Memory, sup *supervisor.Supervisor, log logging.Logger) *ViewPort {
	if log == nil {
		log = logging.Nop()
	}
	return &ViewPort{registry: reg, sup: sup, log: log}
}

// StartRoot starts the application's root scene under this viewport.
func (vp *ViewPort) StartRoot(def scene.ModuleDef, args any, opts scene.Options) (scene.Addr, error) {
	if opts.Ref == "" {
		if opts.Name != "" {
			opts.Ref = graph.Ref(opts.Name)
		} else {
			opts.Ref = graph.NewRef()
		}
	}
	opts.Root = true
	opts.ViewPort = vp
	opts.Registry = vp.registry

	vp.mu.Lock()
	vp.rootRef = opts.Ref
	vp.mu.Unlock()

	addr, err := vp.sup.StartChild(scene.ChildSpec{Def: def, Args: args, Options: opts})
	if err != nil {
		return nil, fmt.Errorf("start root scene %s: %w", def.ModuleName(), err)
	}

	vp.mu.Lock()
	vp.rootAddr = addr
	vp.mu.Unlock()

	return addr, nil
}

// Root returns the current root scene address.
func (vp *ViewPort) Root() (scene.Addr, bool) {
	vp.mu.Lock()
	defer vp.mu.Unlock()
	return vp.rootAddr, vp.rootAddr != nil
}

// SceneUp records a root scene's address. Idempotent: a crash-restarted
// root re-announces itself under its stable ref and only the address
// changes.
func (vp *ViewPort) SceneUp(ref graph.Ref, addr scene.Addr) {
	vp.mu.Lock()
	defer vp.mu.Unlock()

	if vp.rootRef == "" {
		vp.rootRef = ref
	}
	if ref == vp.rootRef {
		vp.rootAddr = addr
	}
}

// SetRoot substitutes a diagnostic scene for a scene that failed during
// startup. The failed scene terminates itself after this returns, so the
// previous root is never stopped synchronously here.
func (vp *ViewPort) SetRoot(from scene.Addr, desc scene.ErrorDescriptor) error {
	vp.log.Error("replacing root with error scene",
		"failed", desc.Module, "err", desc.Err)

	addr, err := vp.sup.StartChild(scene.ChildSpec{
		Def:  ErrorSceneDef,
		Args: desc,
		Options: scene.Options{
			Root:       true,
			ViewPort:   vp,
			Registry:   vp.registry,
			Logger:     vp.log,
			NoChildren: true,
		},
	})
	if err != nil {
		return fmt.Errorf("start error scene: %w", err)
	}

	vp.mu.Lock()
	old := vp.rootAddr
	vp.rootRef = addr.Ref()
	vp.rootAddr = addr
	vp.mu.Unlock()

	if old != nil && (from == nil || old.Ref() != from.Ref()) {
		sup := vp.sup
		go func() {
			_ = sup.TerminateChild(old)
		}()
	}

	return nil
}

// DispatchInput routes an input payload to the scene publishing the target
// graph key.
func (vp *ViewPort) DispatchInput(in scene.Input, target graph.Key) error {
	addr, ok := vp.registry.GetGraphAddress(target)
	if !ok {
		return fmt.Errorf("no scene publishes %s", target)
	}

	return addr.SendInput(in, scene.RoutingContext{
		Key:    target,
		Raw:    in,
		Source: vp,
	})
}

// EscalateInput applies default routing for input a scene declined: hand
// the raw input to the scene referencing it, or drop it at the root.
func (vp *ViewPort) EscalateInput(in scene.Input, from graph.Key) error {
	parent, ok := vp.registry.FindReferrer(from)
	if !ok {
		vp.log.Debug("input dropped at root", "from", from)
		return nil
	}
	return vp.DispatchInput(in, parent)
}

// Shutdown stops the root scene tree.
func (vp *ViewPort) Shutdown(ctx context.Context) error {
	return vp.sup.Shutdown(ctx)
}
