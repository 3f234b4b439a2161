package viewport

import (
	"fmt"

	"github.com/vantle/scenekit/graph"
	"github.com/vantle/scenekit/scene"
)

// ErrorSceneDef is the built-in diagnostic scene substituted for a scene
// that failed to start. Its graph is a plain text rendering of the
// failure descriptor.
var ErrorSceneDef = scene.Def("scenekit.error_scene", func() scene.Module {
	return &errorScene{}
})

type errorScene struct {
	desc scene.ErrorDescriptor
}

func (s *errorScene) Init(args any, opts scene.Options) scene.Response {
	desc, ok := args.(scene.ErrorDescriptor)
	if !ok {
		desc = scene.ErrorDescriptor{Err: fmt.Errorf("unknown failure: %v", args)}
	}
	s.desc = desc

	g := graph.New().
		Add(0, graph.Primitive{Kind: "text", Data: fmt.Sprintf("scene %s failed to start", desc.Module)}).
		Add(1, graph.Primitive{Kind: "text", Data: fmt.Sprint(desc.Err)})
	if len(desc.Stack) > 0 {
		g.Add(2, graph.Primitive{Kind: "text", Data: string(desc.Stack)})
	}

	return scene.NoReply().WithPush(g)
}
