package framegraph

import (
	"slices"

	"github.com/gogpu/wgpu/hal"
)

// SetupFunc allocates a node's GPU objects and produces its output
// resources. It runs at most once per graph lifetime, before the node's
// first Execute.
type SetupFunc func(g *Graph, n *Node) error

// ExecuteFunc records the node's GPU commands for one frame. It must
// re-derive any per-frame state itself.
type ExecuteFunc func(g *Graph, cmd hal.CommandEncoder, n *Node) error

// NodeState is the lifecycle state of a node.
type NodeState uint8

const (
	StateUnregistered NodeState = iota
	StateRegistered
	StateSetupPending
	StateReady
)

func (s NodeState) String() string {
	switch s {
	case StateUnregistered:
		return "Unregistered"
	case StateRegistered:
		return "Registered"
	case StateSetupPending:
		return "SetupPending"
	case StateReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// Node is a unit of frame work: a named pass with declared inputs and
// outputs, a one-shot Setup and a per-frame Execute.
//
// Nil Setup or Execute callbacks are treated as no-ops.
type Node struct {
	Name string

	// Inputs lists resources the node reads. They must be prepared before
	// the node's Setup or Execute runs.
	Inputs []string
	// Outputs lists resources the node's Setup produces.
	Outputs []string

	// ShouldExecute enables the node for the coming frames. Disabled nodes
	// get neither Setup nor Execute.
	ShouldExecute bool

	Setup   SetupFunc
	Execute ExecuteFunc

	// Objects holds GPU objects owned by the node. They are destroyed when
	// the graph is released.
	Objects NodeObjects

	state    NodeState
	setupErr error
}

// State returns the node's lifecycle state.
func (n *Node) State() NodeState { return n.state }

// SetupComplete reports whether Setup has run successfully.
func (n *Node) SetupComplete() bool { return n.state == StateReady }

// Produces reports whether name is one of the node's declared outputs.
func (n *Node) Produces(name string) bool { return slices.Contains(n.Outputs, name) }

// Consumes reports whether name is one of the node's declared inputs.
func (n *Node) Consumes(name string) bool { return slices.Contains(n.Inputs, name) }
