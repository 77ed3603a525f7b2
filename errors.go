package framegraph

import (
	"errors"
	"fmt"
)

// Sentinel errors. Typed errors below unwrap to one of these, so callers
// match with errors.Is.
var (
	// ErrResourceNotFound is returned when a lookup names a resource that was
	// never registered.
	ErrResourceNotFound = errors.New("framegraph: resource not found")

	// ErrResourceTypeMismatch is returned when a resource is retrieved (or
	// overwritten) as a different kind or payload type than it was stored.
	ErrResourceTypeMismatch = errors.New("framegraph: resource type mismatch")

	// ErrResourceNotPrepared is returned when a node's declared input has
	// been registered but its GPU backing is not ready.
	ErrResourceNotPrepared = errors.New("framegraph: resource not prepared")

	// ErrOutputMissing is returned when a node's Setup finished without
	// registering one of its declared outputs.
	ErrOutputMissing = errors.New("framegraph: declared output not produced")

	ErrInvalidResource  = errors.New("framegraph: invalid resource")
	ErrDuplicateNode    = errors.New("framegraph: duplicate node name")
	ErrDuplicateOutput  = errors.New("framegraph: output already produced by another node")
	ErrUndeclaredOutput = errors.New("framegraph: resource is not a declared output of the node")
	ErrInvalidNode      = errors.New("framegraph: invalid node")
	ErrUnsatisfiedInput = errors.New("framegraph: input has no producer")
	ErrCycle            = errors.New("framegraph: dependency cycle")
	ErrGraphReleased    = errors.New("framegraph: graph released")

	// ErrGraphBusy is returned by AddNode and Execute when they are called
	// from a node callback while the graph is executing a frame.
	ErrGraphBusy = errors.New("framegraph: graph is executing")

	// ErrNoDevice is returned by the resource production helpers when the
	// graph was built without WithDevice.
	ErrNoDevice = errors.New("framegraph: no GPU device configured")
)

// ResourceError describes a failed store operation on a named resource.
type ResourceError struct {
	Name string
	Op   string // "get", "add", "update", "remove"
	Want string // expected kind or payload, if relevant
	Have string // stored kind or payload, if relevant
	Err  error
}

func (e *ResourceError) Error() string {
	if e.Want != "" || e.Have != "" {
		return fmt.Sprintf("%s resource %q: %v (want %s, have %s)", e.Op, e.Name, e.Err, e.Want, e.Have)
	}
	return fmt.Sprintf("%s resource %q: %v", e.Op, e.Name, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Phase identifies where in a node's lifecycle a failure happened.
type Phase string

const (
	PhaseRegister Phase = "register"
	PhaseSetup    Phase = "setup"
	PhaseExecute  Phase = "execute"
)

// NodeError wraps a failure raised by or about a specific node.
type NodeError struct {
	Node  string
	Phase Phase
	Err   error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %q %s: %v", e.Node, e.Phase, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
