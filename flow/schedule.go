package flow

import "sort"

// scheduledNode is the per-instance scheduling metadata derived for
// one node before batching.
type scheduledNode struct {
	node             *Node
	priority         Priority
	resources        Resources
	durationEstimate float64
	parallelizable   bool
	exclusive        bool
	batchGroup       string
}

// DurationHistory reports the mean of up to the last 100 observed
// durations (seconds) for a node id, if any have been recorded.
type DurationHistory interface {
	Mean(nodeID string) (float64, bool)
}

func priorityFromConfig(n *Node, fallback Priority) Priority {
	switch n.ConfigString("priority") {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "normal":
		return PriorityNormal
	case "low":
		return PriorityLow
	default:
		return fallback
	}
}

func buildScheduledNodes(def *WorkflowDefinition, reg *Registry, hist DurationHistory) (map[string]scheduledNode, error) {
	out := make(map[string]scheduledNode, len(def.Nodes))
	for i := range def.Nodes {
		n := &def.Nodes[i]
		_, defaults, ok := reg.Lookup(n.Type)
		if !ok {
			return nil, ErrUnknownNodeType
		}

		res := defaults.Resources
		if n.ConfigBool("cpu_intensive") {
			res.CPUCores *= 2
		}
		if n.ConfigBool("memory_intensive") {
			res.MemoryMB *= 2
		}
		if n.ConfigBool("network_intensive") {
			res.NetworkMbps *= 2
		}

		parallelizable := defaults.Parallelizable
		if n.Type == "input" || n.Type == "output" || n.ConfigBool("sequential_only") || n.ConfigBool("stateful") {
			parallelizable = false
		}

		duration := defaults.DurationEstimate
		if hist != nil {
			if mean, ok := hist.Mean(n.ID); ok {
				duration = mean
			}
		}

		out[n.ID] = scheduledNode{
			node:             n,
			priority:         priorityFromConfig(n, defaults.Priority),
			resources:        res,
			durationEstimate: duration,
			parallelizable:   parallelizable,
			exclusive:        defaults.Exclusive,
			batchGroup:       n.ConfigString("batch_group"),
		}
	}
	return out, nil
}

// computeLevels groups node ids into topological levels (Kahn's
// algorithm, frontier by frontier) so each level's members have no
// dependency on one another. Returns ErrCyclicGraph if nodes remain with
// no reachable zero-in-degree frontier.
func computeLevels(def *WorkflowDefinition) ([][]string, error) {
	indeg := make(map[string]int, len(def.Nodes))
	succ := make(map[string][]string, len(def.Nodes))
	for i := range def.Nodes {
		indeg[def.Nodes[i].ID] = 0
	}
	for i := range def.Edges {
		e := &def.Edges[i]
		if _, ok := indeg[e.Target]; !ok {
			continue
		}
		indeg[e.Target]++
		succ[e.Source] = append(succ[e.Source], e.Target)
	}

	var current []string
	for i := range def.Nodes {
		id := def.Nodes[i].ID
		if indeg[id] == 0 {
			current = append(current, id)
		}
	}

	var levels [][]string
	seen := 0
	for len(current) > 0 {
		levels = append(levels, current)
		seen += len(current)
		var next []string
		for _, id := range current {
			for _, nx := range succ[id] {
				indeg[nx]--
				if indeg[nx] == 0 {
					next = append(next, nx)
				}
			}
		}
		current = next
	}
	if seen != len(def.Nodes) {
		return nil, ErrCyclicGraph
	}
	return levels, nil
}

// buildBatches greedily packs one level's nodes into concurrency-bounded,
// resource-bounded, compatibility-checked batches, then attempts to merge
// adjacent batches that still fit together.
func buildBatches(level []string, meta map[string]scheduledNode, poolTotal Resources, maxWorkers int) [][]string {
	sorted := append([]string(nil), level...)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := meta[sorted[i]], meta[sorted[j]]
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		if a.durationEstimate != b.durationEstimate {
			return a.durationEstimate > b.durationEstimate
		}
		return a.resources.CPUCores > b.resources.CPUCores
	})

	var batches [][]string
	var current []string
	var currentRes Resources

	for _, id := range sorted {
		m := meta[id]
		fits := currentRes.Add(m.resources).Fits(poolTotal)
		canParallel := len(current) == 0 || m.parallelizable
		if len(current) < maxWorkers && fits && canParallel && compatibleWithBatch(current, meta, m) {
			current = append(current, id)
			currentRes = currentRes.Add(m.resources)
			continue
		}
		if len(current) > 0 {
			batches = append(batches, current)
		}
		current = []string{id}
		currentRes = m.resources
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	return mergeBatches(batches, meta, maxWorkers)
}

func compatibleWithBatch(batch []string, meta map[string]scheduledNode, candidate scheduledNode) bool {
	for _, id := range batch {
		if !pairCompatible(meta[id], candidate) {
			return false
		}
	}
	return true
}

func pairCompatible(a, b scheduledNode) bool {
	if a.resources.CPUCores > 1.5 && b.resources.CPUCores > 1.5 {
		return false
	}
	if a.exclusive && b.exclusive && a.node.Type == b.node.Type {
		return false
	}
	if a.batchGroup != "" && b.batchGroup != "" && a.batchGroup != b.batchGroup {
		return false
	}
	return true
}

func mergeBatches(batches [][]string, meta map[string]scheduledNode, maxWorkers int) [][]string {
	var merged [][]string
	i := 0
	for i < len(batches) {
		batch := batches[i]
		if i+1 < len(batches) {
			candidate := append(append([]string(nil), batch...), batches[i+1]...)
			if len(candidate) <= maxWorkers && allPairsCompatible(batch, batches[i+1], meta) {
				merged = append(merged, candidate)
				i += 2
				continue
			}
		}
		merged = append(merged, batch)
		i++
	}
	return merged
}

func allPairsCompatible(a, b []string, meta map[string]scheduledNode) bool {
	for _, x := range a {
		for _, y := range b {
			if !pairCompatible(meta[x], meta[y]) {
				return false
			}
		}
	}
	return true
}
