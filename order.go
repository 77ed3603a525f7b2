package framegraph

import (
	"fmt"
	"slices"
	"strings"
)

// compileLocked validates inputs against producers and fixes g.order.
// Caller must hold g.mu.
func (g *Graph) compileLocked() error {
	if g.compiled {
		return nil
	}

	producers := make(map[string]int, len(g.nodes))
	for i, n := range g.nodes {
		for _, out := range n.Outputs {
			producers[out] = i
		}
	}

	// deps[i] lists the registration indices node i reads from.
	deps := make([][]int, len(g.nodes))
	for i, n := range g.nodes {
		for _, in := range n.Inputs {
			p, ok := producers[in]
			if !ok {
				if g.store.Has(in) {
					continue
				}
				return &NodeError{Node: n.Name, Phase: PhaseRegister, Err: fmt.Errorf("%w: %q", ErrUnsatisfiedInput, in)}
			}
			if !slices.Contains(deps[i], p) {
				deps[i] = append(deps[i], p)
			}
		}
	}

	if !g.dependencyOrder {
		g.order = slices.Clone(g.nodes)
		g.compiled = true
		return nil
	}

	order, err := topoSort(g.nodes, deps)
	if err != nil {
		return err
	}
	g.order = order
	g.compiled = true

	names := make([]string, len(order))
	for i, n := range order {
		names[i] = n.Name
	}
	g.logger().Info("framegraph: graph compiled", "nodes", len(order), "order", names)
	return nil
}

// topoSort orders nodes so every producer precedes its consumers. Among
// nodes that are ready at the same time, registration order wins, so a
// graph already registered in dependency order keeps its order.
func topoSort(nodes []*Node, deps [][]int) ([]*Node, error) {
	indegree := make([]int, len(nodes))
	dependents := make([][]int, len(nodes))
	for i, ds := range deps {
		for _, d := range ds {
			indegree[i]++
			dependents[d] = append(dependents[d], i)
		}
	}

	var ready []int
	for i, deg := range indegree {
		if deg == 0 {
			ready = append(ready, i)
		}
	}

	order := make([]*Node, 0, len(nodes))
	for len(ready) > 0 {
		// ready is kept sorted; take the earliest registered node.
		i := ready[0]
		ready = ready[1:]
		order = append(order, nodes[i])
		for _, d := range dependents[i] {
			indegree[d]--
			if indegree[d] == 0 {
				pos, _ := slices.BinarySearch(ready, d)
				ready = slices.Insert(ready, pos, d)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(findCycle(nodes, deps), " -> "))
	}
	return order, nil
}

// findCycle returns the node names along one dependency cycle, first node
// repeated at the end. It uses a depth-first walk with an on-stack set.
func findCycle(nodes []*Node, deps [][]int) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(nodes))
	var stack []int
	var cycle []string

	var visit func(i int) bool
	visit = func(i int) bool {
		state[i] = visiting
		stack = append(stack, i)
		for _, d := range deps[i] {
			switch state[d] {
			case visiting:
				start := slices.Index(stack, d)
				for _, j := range stack[start:] {
					cycle = append(cycle, nodes[j].Name)
				}
				cycle = append(cycle, nodes[d].Name)
				return true
			case unvisited:
				if visit(d) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		return false
	}

	for i := range nodes {
		if state[i] == unvisited && visit(i) {
			break
		}
	}
	return cycle
}
