package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relayci/relay/pkg/errors"
)

// TopoSort returns job IDs in a deterministic topological order:
// dependencies before dependents, ties broken alphabetically.
// Returns a ValidationError naming the cycle members when the needs
// graph is not acyclic.
func TopoSort(jobs map[string]*Job) ([]string, error) {
	indegree := make(map[string]int, len(jobs))
	dependents := make(map[string][]string, len(jobs))

	for id, job := range jobs {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		if job == nil {
			continue
		}
		for _, need := range job.Needs {
			indegree[id]++
			dependents[need] = append(dependents[need], id)
		}
	}

	ready := make([]string, 0, len(jobs))
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(jobs))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		released := make([]string, 0, len(dependents[id]))
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				released = append(released, dep)
			}
		}
		sort.Strings(released)
		ready = mergeSorted(ready, released)
	}

	if len(order) != len(jobs) {
		var cycle []string
		for id, deg := range indegree {
			if deg > 0 {
				cycle = append(cycle, id)
			}
		}
		sort.Strings(cycle)
		return nil, &errors.ValidationError{
			Field:      "needs",
			Message:    fmt.Sprintf("dependency cycle involving: %s", strings.Join(cycle, ", ")),
			Suggestion: "break the cycle by removing one of the needs references",
		}
	}

	return order, nil
}

// mergeSorted merges two sorted string slices into one sorted slice.
func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// Layers groups job IDs into execution waves: layer N contains jobs
// whose needs are all in layers < N. Jobs within a layer are
// independent and may run concurrently. Used by the plan command.
func Layers(jobs map[string]*Job) ([][]string, error) {
	order, err := TopoSort(jobs)
	if err != nil {
		return nil, err
	}

	depth := make(map[string]int, len(jobs))
	for _, id := range order {
		d := 0
		for _, need := range jobs[id].Needs {
			if depth[need]+1 > d {
				d = depth[need] + 1
			}
		}
		depth[id] = d
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	layers := make([][]string, maxDepth+1)
	for _, id := range order {
		layers[depth[id]] = append(layers[depth[id]], id)
	}
	for _, layer := range layers {
		sort.Strings(layer)
	}
	return layers, nil
}

// ReachableFrom returns the set of job IDs transitively reachable from
// id through needs (the job's full upstream closure, excluding itself).
func ReachableFrom(jobs map[string]*Job, id string) map[string]bool {
	reachable := make(map[string]bool)
	var visit func(string)
	visit = func(cur string) {
		job, ok := jobs[cur]
		if !ok || job == nil {
			return
		}
		for _, need := range job.Needs {
			if !reachable[need] {
				reachable[need] = true
				visit(need)
			}
		}
	}
	visit(id)
	return reachable
}
