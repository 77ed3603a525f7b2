// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// Graph owns an ordered list of nodes and the Store their resources live
// in, and walks the nodes once per frame.
//
// By default nodes run in registration order and AddNode rejects inputs
// that no earlier node produces. WithDependencyOrder relaxes registration
// order and sorts nodes by their declared inputs and outputs instead.
//
// Node callbacks receive the graph and may use any read accessor, the
// Store and the Produce helpers. The graph lock is not held while callbacks
// run. AddNode and Execute called from a callback fail with ErrGraphBusy;
// Release is deferred until the frame walk ends.
type Graph struct {
	mu sync.Mutex

	nodes  []*Node // registration order
	byName map[string]*Node
	order  []*Node // execution order, valid when compiled

	store   *Store
	device  hal.Device
	queue   hal.Queue
	metrics *Metrics
	log     *slog.Logger

	dependencyOrder bool
	compiled        bool
	released        bool
	executing       bool
	releasePending  bool
	frame           uint64
}

// Option configures a Graph.
type Option func(*Graph)

// WithDevice sets the device and queue used by the Produce helpers and by
// Release to destroy GPU objects.
func WithDevice(device hal.Device, queue hal.Queue) Option {
	return func(g *Graph) {
		g.device = device
		g.queue = queue
	}
}

// WithDependencyOrder makes the graph order nodes topologically by their
// declared resources. Missing producers and cycles are reported by Compile
// (or the first Execute) instead of AddNode.
func WithDependencyOrder() Option {
	return func(g *Graph) { g.dependencyOrder = true }
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(g *Graph) { g.metrics = m }
}

// WithLogger overrides the package logger for this graph.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.log = l }
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{byName: make(map[string]*Node)}
	for _, opt := range opts {
		opt(g)
	}
	g.store = NewStore(g.device)
	return g
}

// Store returns the graph's resource store.
func (g *Graph) Store() *Store { return g.store }

// Device returns the configured device, or nil.
func (g *Graph) Device() hal.Device { return g.device }

// Queue returns the configured queue, or nil.
func (g *Graph) Queue() hal.Queue { return g.queue }

// Frame returns the number of Execute calls that started a frame walk.
func (g *Graph) Frame() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.frame
}

// AddNode appends n to the graph.
//
// It fails for a nil or unnamed node, a duplicate node name, an output that
// another node already declares, and (unless WithDependencyOrder is set)
// an input that neither an earlier node nor the store provides.
func (g *Graph) AddNode(n *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return ErrGraphReleased
	}
	if g.executing {
		return &NodeError{Node: nodeName(n), Phase: PhaseRegister, Err: ErrGraphBusy}
	}
	if n == nil || n.Name == "" {
		return &NodeError{Phase: PhaseRegister, Err: ErrInvalidNode}
	}
	if _, dup := g.byName[n.Name]; dup {
		return &NodeError{Node: n.Name, Phase: PhaseRegister, Err: ErrDuplicateNode}
	}
	if n.state != StateUnregistered {
		return &NodeError{Node: n.Name, Phase: PhaseRegister, Err: fmt.Errorf("%w: already in state %s", ErrInvalidNode, n.state)}
	}
	for _, out := range n.Outputs {
		if p := g.producerLocked(out); p != nil {
			return &NodeError{Node: n.Name, Phase: PhaseRegister, Err: fmt.Errorf("%w: %q is produced by %q", ErrDuplicateOutput, out, p.Name)}
		}
	}
	if !g.dependencyOrder {
		for _, in := range n.Inputs {
			if g.producerLocked(in) == nil && !g.store.Has(in) {
				return &NodeError{Node: n.Name, Phase: PhaseRegister, Err: fmt.Errorf("%w: %q", ErrUnsatisfiedInput, in)}
			}
		}
	}

	n.state = StateRegistered
	g.nodes = append(g.nodes, n)
	g.byName[n.Name] = n
	g.compiled = false

	g.logger().Debug("framegraph: node registered", "node", n.Name, "inputs", n.Inputs, "outputs", n.Outputs)
	return nil
}

func nodeName(n *Node) string {
	if n == nil {
		return ""
	}
	return n.Name
}

func (g *Graph) producerLocked(resource string) *Node {
	for _, n := range g.nodes {
		if n.Produces(resource) {
			return n
		}
	}
	return nil
}

// NodeCount returns the number of registered nodes.
func (g *Graph) NodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Node returns the node registered under name.
func (g *Graph) Node(name string) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.byName[name]
	return n, ok
}

// Nodes returns the nodes in registration order.
func (g *Graph) Nodes() []*Node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.nodes)
}

// Compile validates the graph and fixes the execution order. Execute calls
// it implicitly when nodes were added since the last compile.
func (g *Graph) Compile() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return ErrGraphReleased
	}
	return g.compileLocked()
}

// ExecutionOrder compiles the graph if needed and returns the node names in
// the order Execute walks them.
func (g *Graph) ExecutionOrder() ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return nil, ErrGraphReleased
	}
	if err := g.compileLocked(); err != nil {
		return nil, err
	}
	names := make([]string, len(g.order))
	for i, n := range g.order {
		names[i] = n.Name
	}
	return names, nil
}

// Execute runs one frame. Each enabled node has its inputs checked, its
// Setup run if it has not run yet, and then its Execute callback invoked
// with cmd. Disabled nodes are skipped entirely.
//
// The first failure aborts the rest of the frame and is returned as a
// *NodeError wrapping the cause. A node whose Setup failed keeps returning
// that error on later frames; Setup is not retried.
func (g *Graph) Execute(cmd hal.CommandEncoder) error {
	order, frame, err := g.beginFrame()
	if err != nil {
		return err
	}
	defer g.endFrame()

	for _, n := range order {
		if !n.ShouldExecute {
			continue
		}
		if err := g.runNode(cmd, n, frame); err != nil {
			return err
		}
	}
	g.metrics.frameDone()
	return nil
}

// beginFrame compiles the graph, counts the frame and snapshots the
// execution order, then releases the lock for the node walk.
func (g *Graph) beginFrame() ([]*Node, uint64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return nil, 0, ErrGraphReleased
	}
	if g.executing {
		return nil, 0, ErrGraphBusy
	}
	if err := g.compileLocked(); err != nil {
		return nil, 0, err
	}
	g.frame++
	g.executing = true
	return slices.Clone(g.order), g.frame, nil
}

func (g *Graph) endFrame() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.executing = false
	if g.releasePending {
		g.releaseLocked()
	}
}

func (g *Graph) runNode(cmd hal.CommandEncoder, n *Node, frame uint64) error {
	if n.setupErr != nil {
		g.metrics.failed(n.Name, PhaseSetup)
		return &NodeError{Node: n.Name, Phase: PhaseSetup, Err: n.setupErr}
	}

	phase := PhaseExecute
	if n.state != StateReady {
		phase = PhaseSetup
	}
	if err := g.checkInputs(n); err != nil {
		g.metrics.failed(n.Name, phase)
		return &NodeError{Node: n.Name, Phase: phase, Err: err}
	}

	if n.state != StateReady {
		if err := g.setupNode(n, frame); err != nil {
			n.setupErr = err
			g.metrics.failed(n.Name, PhaseSetup)
			return &NodeError{Node: n.Name, Phase: PhaseSetup, Err: err}
		}
	}

	start := time.Now()
	if n.Execute != nil {
		if err := n.Execute(g, cmd, n); err != nil {
			g.metrics.failed(n.Name, PhaseExecute)
			return &NodeError{Node: n.Name, Phase: PhaseExecute, Err: err}
		}
	}
	g.metrics.executeDone(n.Name, time.Since(start))
	return nil
}

func (g *Graph) setupNode(n *Node, frame uint64) error {
	n.state = StateSetupPending
	g.logger().Debug("framegraph: node setup", "node", n.Name, "frame", frame)

	if n.Setup != nil {
		if err := n.Setup(g, n); err != nil {
			return err
		}
	}
	for _, out := range n.Outputs {
		found, prepared := g.store.ready(out)
		if !found {
			return fmt.Errorf("%w: %q", ErrOutputMissing, out)
		}
		if !prepared {
			return &ResourceError{Name: out, Op: "setup", Err: ErrResourceNotPrepared}
		}
	}

	n.state = StateReady
	g.metrics.setupDone(n.Name)
	return nil
}

func (g *Graph) checkInputs(n *Node) error {
	for _, in := range n.Inputs {
		found, prepared := g.store.ready(in)
		if !found {
			return &ResourceError{Name: in, Op: "get", Err: ErrResourceNotFound}
		}
		if !prepared {
			return &ResourceError{Name: in, Op: "get", Err: ErrResourceNotPrepared}
		}
	}
	return nil
}

// Release destroys every node's GPU objects, in reverse registration order,
// then every resource in the store. The graph cannot be used afterwards.
// Called while a frame is executing, it takes effect when the walk ends.
func (g *Graph) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.executing {
		g.releasePending = true
		return
	}
	g.releaseLocked()
}

func (g *Graph) releaseLocked() {
	if g.released {
		return
	}
	g.released = true
	g.releasePending = false

	for i := len(g.nodes) - 1; i >= 0; i-- {
		g.nodes[i].Objects.Destroy(g.device)
	}
	g.store.Release()
	g.logger().Debug("framegraph: graph released", "nodes", len(g.nodes), "frames", g.frame)
}
