// Package registry provides the in-process shared mapping from scene refs
// and graph keys to actor addresses and published graphs. Renderers and
// drivers read published graphs from here; scene actors upsert them.
package registry

import (
	"sync"
	"time"

	"github.com/vantle/scenekit/graph"
	"github.com/vantle/scenekit/scene"
)

// SceneEntry is one registered scene with its supervision nodes.
type SceneEntry struct {
	Addr              scene.Addr
	Supervisor        scene.ChildStarter
	DynamicSupervisor scene.ChildStarter
	RegisteredAt      time.Time
}

// GraphEntry is one published graph with its resolved reference map.
type GraphEntry struct {
	Publisher   scene.Addr
	Graph       *graph.Graph
	Refs        map[graph.NodeID]graph.Key
	PublishedAt time.Time
}

// Memory is an in-memory registry safe for concurrent use. Registration
// and publication are upserts: a restarted scene simply overwrites its
// previous entries.
type Memory struct {
	mu     sync.RWMutex
	scenes map[graph.Ref]SceneEntry
	graphs map[graph.Key]GraphEntry
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		scenes: make(map[graph.Ref]SceneEntry),
		graphs: make(map[graph.Key]GraphEntry),
	}
}

// RegisterScene records a scene's address and supervision nodes under its
// ref, replacing any previous registration.
func (m *Memory) RegisterScene(ref graph.Ref, reg scene.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.scenes[ref] = SceneEntry{
		Addr:              reg.Addr,
		Supervisor:        reg.Supervisor,
		DynamicSupervisor: reg.DynamicSupervisor,
		RegisteredAt:      time.Now(),
	}
	return nil
}

// InsertGraph publishes a minimized graph under its key, replacing any
// prior publication atomically.
func (m *Memory) InsertGraph(key graph.Key, publisher scene.Addr, g *graph.Graph, refs map[graph.NodeID]graph.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.graphs[key] = GraphEntry{
		Publisher:   publisher,
		Graph:       g,
		Refs:        refs,
		PublishedAt: time.Now(),
	}
	return nil
}

// GetSceneAddress resolves a scene ref to its current address.
func (m *Memory) GetSceneAddress(ref graph.Ref) (scene.Addr, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.scenes[ref]
	if !ok {
		return nil, false
	}
	return entry.Addr, true
}

// GetGraphAddress resolves a graph key to the address of its publisher,
// falling back to the key's scene registration when the graph has not been
// published yet.
func (m *Memory) GetGraphAddress(key graph.Key) (scene.Addr, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if entry, ok := m.graphs[key]; ok {
		return entry.Publisher, true
	}
	if entry, ok := m.scenes[key.Scene]; ok {
		return entry.Addr, true
	}
	return nil, false
}

// GetGraph returns the published graph for a key.
func (m *Memory) GetGraph(key graph.Key) (*graph.Graph, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.graphs[key]
	if !ok {
		return nil, false
	}
	return entry.Graph, true
}

// GetRefs returns the resolved node-id to graph-key map of a publication.
func (m *Memory) GetRefs(key graph.Key) (map[graph.NodeID]graph.Key, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.graphs[key]
	if !ok {
		return nil, false
	}
	return entry.Refs, true
}

// GetRegistration returns the full registration record for a scene ref.
func (m *Memory) GetRegistration(ref graph.Ref) (SceneEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.scenes[ref]
	return entry, ok
}

// DeleteGraph removes a publication. Deleting an absent key is a no-op.
func (m *Memory) DeleteGraph(key graph.Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.graphs, key)
}

// DeleteScene removes a scene registration. Idempotent.
func (m *Memory) DeleteScene(ref graph.Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.scenes, ref)
}

// FindReferrer returns the key of the published graph whose resolved
// reference map points at target. The viewport uses this to default-route
// escalated input to the referencing (parent) scene.
func (m *Memory) FindReferrer(target graph.Key) (graph.Key, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for key, entry := range m.graphs {
		for _, ref := range entry.Refs {
			if ref == target || (ref.Sub == "" && ref.Scene == target.Scene) {
				return key, true
			}
		}
	}
	return graph.Key{}, false
}

// Keys returns all published graph keys.
func (m *Memory) Keys() []graph.Key {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]graph.Key, 0, len(m.graphs))
	for key := range m.graphs {
		keys = append(keys, key)
	}
	return keys
}
