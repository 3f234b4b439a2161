package graph

import "reflect"

// EditOp is the kind of change a diff entry describes.
type EditOp uint8

const (
	// EditPut means the node's dynamic reference is new or changed: a
	// child must be (re)started for it.
	EditPut EditOp = iota

	// EditDelete means the reference disappeared: the existing child
	// must be stopped.
	EditDelete
)

// String returns the string representation of EditOp.
func (op EditOp) String() string {
	switch op {
	case EditPut:
		return "put"
	case EditDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Edit is one entry of a reference edit script.
type Edit struct {
	Op  EditOp
	Ref DynamicRef // the new reference for EditPut; zero for EditDelete
}

// Diff computes the edit script between the dynamic-reference maps of two
// consecutive publications, keyed by node id. Unchanged references produce
// no entry, so publishing an identical graph yields an empty script.
func Diff(old, next map[NodeID]DynamicRef) map[NodeID]Edit {
	script := make(map[NodeID]Edit)

	for id, ref := range next {
		prev, ok := old[id]
		if ok && sameRef(prev, ref) {
			continue
		}
		script[id] = Edit{Op: EditPut, Ref: ref}
	}

	for id := range old {
		if _, ok := next[id]; !ok {
			script[id] = Edit{Op: EditDelete}
		}
	}

	return script
}

// sameRef reports whether two dynamic references denote the same child:
// same module identity and deeply equal init arguments.
func sameRef(a, b DynamicRef) bool {
	if moduleName(a.Module) != moduleName(b.Module) {
		return false
	}
	return reflect.DeepEqual(a.Args, b.Args)
}
