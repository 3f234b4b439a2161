package scene

import (
	"context"
	"errors"
	"fmt"

	"github.com/vantle/scenekit/graph"
)

// subChildren is the dynamic-child bookkeeping for one published sub id.
// Each sub reconciles only against its own previous publication, so
// independent graphs published by the same scene never touch each other's
// children even when their node ids collide.
type subChildren struct {
	refs  map[graph.NodeID]graph.DynamicRef
	addrs map[graph.NodeID]Addr
	keys  map[graph.NodeID]graph.Key
}

func newSubChildren() *subChildren {
	return &subChildren{
		refs:  make(map[graph.NodeID]graph.DynamicRef),
		addrs: make(map[graph.NodeID]Addr),
		keys:  make(map[graph.NodeID]graph.Key),
	}
}

// publish reduces a graph, reconciles its dynamic references against the
// children running for the same sub id, rewrites every reference node to a
// resolved key and upserts the result into the registry. Configuration
// errors surface before any child is started or any registry write occurs.
func (a *Actor) publish(g *graph.Graph, sub string) error {
	if g == nil {
		return errors.New("nil graph")
	}

	red, err := graph.Reduce(g, a.allowChildren)
	if err != nil {
		return err
	}

	resolved := red.Resolved

	if a.allowChildren {
		state := a.children[sub]
		if state == nil {
			state = newSubChildren()
			a.children[sub] = state
		}

		script := graph.Diff(state.refs, red.Dynamic)

		// Fail fast on configuration errors before any side effect.
		for id, edit := range script {
			if edit.Op != graph.EditPut {
				continue
			}
			if a.dynSup == nil {
				return fmt.Errorf("node %d: %w", id, ErrNoDynamicSupervisor)
			}
			if _, ok := edit.Ref.Module.(ModuleDef); !ok {
				return fmt.Errorf("node %d (%T): %w", id, edit.Ref.Module, ErrNotStartable)
			}
		}

		// Each edit commits its bookkeeping as it succeeds, so a start
		// failure midway leaves the applied edits recorded and a retry
		// re-puts only what is still missing.
		for id, edit := range script {
			switch edit.Op {
			case graph.EditPut:
				if err := a.startChild(g, state, id, edit.Ref); err != nil {
					return err
				}
				state.refs[id] = edit.Ref
			case graph.EditDelete:
				a.removeChild(state, id)
				delete(state.refs, id)
			}
		}

		// Every current child of this sub contributes its resolved key,
		// changed or not.
		for id, key := range state.keys {
			resolved[id] = key
		}
	}

	// Rewrite reference nodes to carry resolved keys: the published
	// form never contains raw reference payloads.
	for id, key := range resolved {
		red.Graph.Add(id, graph.Primitive{Kind: graph.KindSceneRef, Data: key})
	}

	key := graph.Key{Scene: a.ref, Sub: sub}
	if a.registry != nil {
		if err := a.registry.InsertGraph(key, a, red.Graph, resolved); err != nil {
			return fmt.Errorf("insert graph %s: %w", key, err)
		}
	}

	a.published[sub] = struct{}{}

	return nil
}

// startChild starts the dynamic child declared at a node, replacing any
// previous occupant of the same node in the same sub. The old child is
// told to stop only after the new one is confirmed started, so the node
// never resolves to nothing.
func (a *Actor) startChild(g *graph.Graph, state *subChildren, id graph.NodeID, ref graph.DynamicRef) error {
	def := ref.Module.(ModuleDef)
	prim, _ := g.Get(id)

	spec := ChildSpec{
		Def:  def,
		Args: ref.Args,
		Options: Options{
			Parent:   a,
			Styles:   a.styler.StylesFor(g, id),
			ID:       prim.ID,
			ViewPort: a.viewport,
			Registry: a.registry,
			Styler:   a.styler,
			Logger:   a.log,
		},
	}

	addr, err := a.dynSup.StartChild(spec)
	if err != nil {
		return fmt.Errorf("start child %s at node %d: %w", def.ModuleName(), id, err)
	}

	if old, ok := state.addrs[id]; ok {
		sup := a.dynSup
		go func() {
			_ = sup.TerminateChild(old)
		}()
	}

	state.addrs[id] = addr
	state.keys[id] = graph.Key{Scene: addr.Ref()}

	return nil
}

// removeChild drops a node's bookkeeping immediately and runs the
// deactivate-then-stop sequence on a detached task, keeping the owning
// actor's loop responsive while cleanup proceeds.
func (a *Actor) removeChild(state *subChildren, id graph.NodeID) {
	old, ok := state.addrs[id]
	delete(state.addrs, id)
	delete(state.keys, id)
	if !ok {
		return
	}

	sup := a.dynSup
	timeout := a.opts.DeactivateTimeout
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = old.Deactivate(ctx)
		if sup != nil {
			_ = sup.TerminateChild(old)
		} else {
			_ = old.Shutdown(nil)
		}
	}()
}
