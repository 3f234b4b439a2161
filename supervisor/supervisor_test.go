package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantle/scenekit/graph"
	"github.com/vantle/scenekit/scene"
)

const testTimeout = 2 * time.Second

// supModule is a minimal supervised scene. Each incarnation announces its
// ref on inits; "boom" panics, "bye" stops cleanly.
type supModule struct {
	inits chan graph.Ref
}

func (m *supModule) Init(args any, opts scene.Options) scene.Response {
	if m.inits != nil {
		m.inits <- opts.Ref
	}
	return scene.NoReply()
}

func (m *supModule) HandleInfo(msg any) scene.Response {
	switch msg {
	case "boom":
		panic("boom")
	case "bye":
		return scene.Stop(nil)
	}
	return scene.NoReply()
}

func supDef(inits chan graph.Ref) scene.ModuleDef {
	return scene.Def("test.supervised", func() scene.Module {
		return &supModule{inits: inits}
	})
}

func waitRef(t *testing.T, inits chan graph.Ref) graph.Ref {
	t.Helper()
	select {
	case ref := <-inits:
		return ref
	case <-time.After(testTimeout):
		t.Fatal("timed out waiting for scene init")
		return ""
	}
}

func TestStartChildAndLookup(t *testing.T) {
	s := New("root", Options{})
	defer s.Shutdown(context.Background())

	inits := make(chan graph.Ref, 1)
	addr, err := s.StartChild(scene.ChildSpec{Def: supDef(inits)})
	require.NoError(t, err)

	ref := waitRef(t, inits)
	assert.Equal(t, addr.Ref(), ref)

	actor, ok := s.Lookup(ref)
	require.True(t, ok)
	assert.Equal(t, ref, actor.Ref())
	assert.Len(t, s.Children(), 1)
}

func TestTerminateChildStopsWithoutRestart(t *testing.T) {
	s := New("root", Options{})
	defer s.Shutdown(context.Background())

	inits := make(chan graph.Ref, 4)
	addr, err := s.StartChild(scene.ChildSpec{Def: supDef(inits)})
	require.NoError(t, err)
	waitRef(t, inits)

	require.NoError(t, s.TerminateChild(addr))

	select {
	case <-addr.Done():
	case <-time.After(testTimeout):
		t.Fatal("child did not stop")
	}

	assert.Empty(t, s.Children())
	select {
	case ref := <-inits:
		t.Fatalf("unexpected restart as %s", ref)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCrashRestartsWithStableRef(t *testing.T) {
	s := New("root", Options{})
	defer s.Shutdown(context.Background())

	inits := make(chan graph.Ref, 4)
	addr, err := s.StartChild(scene.ChildSpec{Def: supDef(inits)})
	require.NoError(t, err)
	first := waitRef(t, inits)

	require.NoError(t, addr.Send("boom"))

	second := waitRef(t, inits)
	assert.Equal(t, first, second, "logical identity must survive restart")

	// The new incarnation is a different actor behind the same ref.
	restarted, ok := s.Lookup(first)
	require.True(t, ok)
	assert.NotSame(t, addr.(*scene.Actor), restarted)
}

func TestCleanStopIsNotRestarted(t *testing.T) {
	s := New("root", Options{})
	defer s.Shutdown(context.Background())

	inits := make(chan graph.Ref, 4)
	addr, err := s.StartChild(scene.ChildSpec{Def: supDef(inits)})
	require.NoError(t, err)
	waitRef(t, inits)

	require.NoError(t, addr.Send("bye"))

	select {
	case <-addr.Done():
	case <-time.After(testTimeout):
		t.Fatal("child did not stop")
	}

	select {
	case ref := <-inits:
		t.Fatalf("clean exit restarted as %s", ref)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Eventually(t, func() bool { return len(s.Children()) == 0 },
		testTimeout, 10*time.Millisecond)
}

func TestRestartIntensityGivesUp(t *testing.T) {
	s := New("root", Options{MaxRestarts: 1, Window: time.Minute})
	defer s.Shutdown(context.Background())

	inits := make(chan graph.Ref, 8)
	_, err := s.StartChild(scene.ChildSpec{Def: supDef(inits)})
	require.NoError(t, err)
	ref := waitRef(t, inits)

	// First crash: restarted.
	actor, ok := s.Lookup(ref)
	require.True(t, ok)
	require.NoError(t, actor.Send("boom"))
	waitRef(t, inits)

	// Second crash within the window: given up.
	actor, ok = s.Lookup(ref)
	require.True(t, ok)
	require.NoError(t, actor.Send("boom"))

	assert.Eventually(t, func() bool {
		_, ok := s.Lookup(ref)
		return !ok
	}, testTimeout, 10*time.Millisecond)

	select {
	case r := <-inits:
		t.Fatalf("restarted past the intensity limit as %s", r)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestShutdownStopsAllChildren(t *testing.T) {
	s := New("root", Options{})

	inits := make(chan graph.Ref, 4)
	a1, err := s.StartChild(scene.ChildSpec{Def: supDef(inits)})
	require.NoError(t, err)
	a2, err := s.StartChild(scene.ChildSpec{Def: supDef(inits)})
	require.NoError(t, err)
	waitRef(t, inits)
	waitRef(t, inits)

	require.NoError(t, s.Shutdown(context.Background()))

	for _, addr := range []scene.Addr{a1, a2} {
		select {
		case <-addr.Done():
		case <-time.After(testTimeout):
			t.Fatal("child still running after shutdown")
		}
	}

	_, err = s.StartChild(scene.ChildSpec{Def: supDef(nil)})
	assert.Error(t, err)
}

type optsModule struct {
	opts chan scene.Options
}

func (m *optsModule) Init(_ any, opts scene.Options) scene.Response {
	m.opts <- opts
	return scene.NoReply()
}

func TestNoChildrenSceneGetsNoDynamicNode(t *testing.T) {
	s := New("root", Options{})
	defer s.Shutdown(context.Background())

	optsCh := make(chan scene.Options, 2)
	def := scene.Def("test.leaf", func() scene.Module { return &optsModule{opts: optsCh} })

	waitOpts := func() scene.Options {
		t.Helper()
		select {
		case opts := <-optsCh:
			return opts
		case <-time.After(testTimeout):
			t.Fatal("scene never initialized")
			return scene.Options{}
		}
	}

	_, err := s.StartChild(scene.ChildSpec{Def: def, Options: scene.Options{NoChildren: true}})
	require.NoError(t, err)
	assert.Nil(t, waitOpts().DynamicSupervisor, "leaf scenes carry no dynamic node")

	_, err = s.StartChild(scene.ChildSpec{Def: def})
	require.NoError(t, err)
	assert.NotNil(t, waitOpts().DynamicSupervisor)
}

func TestChildrenGetFreshRefs(t *testing.T) {
	s := New("root", Options{})
	defer s.Shutdown(context.Background())

	a1, err := s.StartChild(scene.ChildSpec{Def: supDef(nil)})
	require.NoError(t, err)
	a2, err := s.StartChild(scene.ChildSpec{Def: supDef(nil)})
	require.NoError(t, err)

	assert.NotEqual(t, a1.Ref(), a2.Ref())
}
