package graph

import "errors"

// Configuration errors raised during reduction. These indicate authoring
// bugs in the declared graph and are never silently ignored.
var (
	ErrDynamicNotAllowed  = errors.New("dynamic scene reference in a scene that does not allow children")
	ErrMalformedReference = errors.New("malformed scene reference payload")
)
