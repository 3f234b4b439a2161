package viewport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantle/scenekit/graph"
	"github.com/vantle/scenekit/registry"
	"github.com/vantle/scenekit/scene"
	"github.com/vantle/scenekit/supervisor"
)

const testTimeout = 2 * time.Second

type harness struct {
	reg *registry.Memory
	sup *supervisor.Supervisor
	vp  *ViewPort
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg := registry.NewMemory()
	sup := supervisor.New("viewport", supervisor.Options{})
	vp := New(reg, sup, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
		defer cancel()
		_ = vp.Shutdown(ctx)
	})
	return &harness{reg: reg, sup: sup, vp: vp}
}

// rootModule publishes a one-node graph on init and records routed input.
type rootModule struct {
	inputs chan scene.Input
	init   func(opts scene.Options) scene.Response
}

func (m *rootModule) Init(args any, opts scene.Options) scene.Response {
	if m.init != nil {
		return m.init(opts)
	}
	g := graph.New().Add(0, graph.Primitive{Kind: "rect", Data: [2]int{100, 50}})
	return scene.NoReply().WithPush(g)
}

func (m *rootModule) HandleInput(in scene.Input, rc scene.RoutingContext) scene.Response {
	if m.inputs != nil {
		m.inputs <- in
	}
	return scene.Halt()
}

func waitGraph(t *testing.T, reg *registry.Memory, key graph.Key) *graph.Graph {
	t.Helper()
	var g *graph.Graph
	require.Eventually(t, func() bool {
		got, ok := reg.GetGraph(key)
		g = got
		return ok
	}, testTimeout, 10*time.Millisecond)
	return g
}

func TestStartRootPublishes(t *testing.T) {
	h := newHarness(t)

	def := scene.Def("test.root", func() scene.Module { return &rootModule{} })
	addr, err := h.vp.StartRoot(def, nil, scene.Options{Name: "main"})
	require.NoError(t, err)
	assert.Equal(t, graph.Ref("main"), addr.Ref())

	root, ok := h.vp.Root()
	require.True(t, ok)
	assert.Equal(t, addr.Ref(), root.Ref())

	g := waitGraph(t, h.reg, graph.Key{Scene: "main"})
	assert.Equal(t, 1, g.Len())
}

func TestDispatchInputReachesPublisher(t *testing.T) {
	h := newHarness(t)

	inputs := make(chan scene.Input, 1)
	def := scene.Def("test.root", func() scene.Module { return &rootModule{inputs: inputs} })
	_, err := h.vp.StartRoot(def, nil, scene.Options{Name: "main"})
	require.NoError(t, err)
	waitGraph(t, h.reg, graph.Key{Scene: "main"})

	require.NoError(t, h.vp.DispatchInput("click", graph.Key{Scene: "main"}))

	select {
	case in := <-inputs:
		assert.Equal(t, "click", in)
	case <-time.After(testTimeout):
		t.Fatal("input never delivered")
	}
}

func TestDispatchInputUnknownTarget(t *testing.T) {
	h := newHarness(t)
	err := h.vp.DispatchInput("click", graph.Key{Scene: "nobody"})
	assert.Error(t, err)
}

func TestEscalateInputDropsAtRoot(t *testing.T) {
	h := newHarness(t)

	def := scene.Def("test.root", func() scene.Module { return &rootModule{} })
	_, err := h.vp.StartRoot(def, nil, scene.Options{Name: "main"})
	require.NoError(t, err)
	waitGraph(t, h.reg, graph.Key{Scene: "main"})

	// Nothing references the root graph, so escalation drops silently.
	assert.NoError(t, h.vp.EscalateInput("scroll", graph.Key{Scene: "main"}))
}

func TestEscalateInputRoutesToReferrer(t *testing.T) {
	h := newHarness(t)

	inputs := make(chan scene.Input, 1)
	def := scene.Def("test.parent", func() scene.Module { return &rootModule{inputs: inputs} })
	_, err := h.vp.StartRoot(def, nil, scene.Options{Name: "parent"})
	require.NoError(t, err)
	waitGraph(t, h.reg, graph.Key{Scene: "parent"})

	// Simulate a publication whose ref map points at a child key.
	childKey := graph.Key{Scene: "child-1"}
	require.NoError(t, h.reg.InsertGraph(graph.Key{Scene: "parent"}, mustRoot(t, h.vp), graph.New(),
		map[graph.NodeID]graph.Key{5: childKey}))

	require.NoError(t, h.vp.EscalateInput("keypress", childKey))

	select {
	case in := <-inputs:
		assert.Equal(t, "keypress", in)
	case <-time.After(testTimeout):
		t.Fatal("escalated input never reached the referrer")
	}
}

func mustRoot(t *testing.T, vp *ViewPort) scene.Addr {
	t.Helper()
	addr, ok := vp.Root()
	require.True(t, ok)
	return addr
}

func TestFailedRootReplacedByErrorScene(t *testing.T) {
	h := newHarness(t)

	boom := errors.New("bad root args")
	def := scene.Def("test.broken", func() scene.Module {
		return &rootModule{init: func(scene.Options) scene.Response {
			return scene.Stop(boom)
		}}
	})

	addr, err := h.vp.StartRoot(def, nil, scene.Options{Name: "broken"})
	require.NoError(t, err)

	// The failed root exits cleanly after handing off its diagnostic.
	select {
	case <-addr.Done():
	case <-time.After(testTimeout):
		t.Fatal("failed root never exited")
	}
	_, crashed := addr.(*scene.Actor).Exit()
	assert.False(t, crashed)

	// An error scene took its place and published the diagnostic text.
	require.Eventually(t, func() bool {
		root, ok := h.vp.Root()
		return ok && root.Ref() != addr.Ref()
	}, testTimeout, 10*time.Millisecond)

	root, _ := h.vp.Root()
	g := waitGraph(t, h.reg, graph.Key{Scene: root.Ref()})
	require.GreaterOrEqual(t, g.Len(), 2)
	p, ok := g.Get(0)
	require.True(t, ok)
	assert.Contains(t, p.Data, "test.broken")
}

func TestSceneUpRefreshesRootAddress(t *testing.T) {
	h := newHarness(t)

	def := scene.Def("test.root", func() scene.Module { return &rootModule{} })
	addr, err := h.vp.StartRoot(def, nil, scene.Options{Name: "main"})
	require.NoError(t, err)
	waitGraph(t, h.reg, graph.Key{Scene: "main"})

	replacement := scene.New(def, nil, scene.Options{Ref: addr.Ref()})
	h.vp.SceneUp(addr.Ref(), replacement)

	root, ok := h.vp.Root()
	require.True(t, ok)
	assert.Same(t, replacement, root.(*scene.Actor))

	// A non-root ref does not touch the root address.
	h.vp.SceneUp("someone-else", scene.New(def, nil, scene.Options{}))
	root, _ = h.vp.Root()
	assert.Same(t, replacement, root.(*scene.Actor))
}
