// Package framegraph describes a frame's GPU work as a graph of named nodes
// that produce and consume named resources.
//
// # Overview
//
// A Node declares the resources it reads (Inputs) and creates (Outputs),
// and carries two callbacks: Setup, which runs once on the node's first
// frame to allocate pipelines and resources, and Execute, which records
// commands every frame. A Graph owns the nodes and a Store of resources and
// walks the enabled nodes once per Execute call.
//
// # Quick Start
//
//	g := framegraph.New(framegraph.WithDevice(device, queue))
//	defer g.Release()
//
//	g.AddNode(&framegraph.Node{
//	    Name:          "Indices",
//	    Outputs:       []string{"Indices"},
//	    ShouldExecute: true,
//	    Setup: func(g *framegraph.Graph, n *framegraph.Node) error {
//	        _, err := framegraph.ProduceBuffer(g, n, framegraph.BufferDesc[uint32]{
//	            Name:  "Indices",
//	            Usage: gputypes.BufferUsageIndex,
//	            Data:  []uint32{0, 1, 2},
//	        })
//	        return err
//	    },
//	})
//
//	// per frame
//	if err := g.Execute(encoder); err != nil {
//	    // abort the frame
//	}
//
// # Resources
//
// Images and buffers share one namespace in the Store. Buffers are typed by
// their Payload, a closed set of element types: lookups with the wrong
// payload fail with ErrResourceTypeMismatch. A resource is readable once its
// Prepared flag is set; the Produce helpers set it after the GPU upload.
//
// # Ordering
//
// Nodes run in registration order, and AddNode rejects inputs that no
// earlier node produces. With WithDependencyOrder the graph instead sorts
// nodes by their declared resources and rejects cycles.
//
// # Lifetime
//
// Resources and node GPU objects live until Graph.Release, which destroys
// them in reverse creation order. Disabling a node does not free anything.
package framegraph
