package uppaal

import "errors"

// errUnreachable is returned by FindPath when end cannot be reached.
var errUnreachable = errors.New("uppaal: no path from start to end")

// Arc is a directed edge of a graph given as an arc list.
type Arc[T comparable] struct {
	From T
	To   T
}

// FindPath runs a breadth-first search over arcs from start to end and
// returns the arcs of a path with the fewest arcs, in walking order. An
// empty path is returned when start equals end.
func FindPath[T comparable](arcs []Arc[T], start, end T) ([]Arc[T], error) {
	adjacency := make(map[T][]T)
	for _, a := range arcs {
		adjacency[a.From] = append(adjacency[a.From], a.To)
	}

	// parent records, for every visited vertex but start, the vertex it
	// was discovered from.
	parent := map[T]T{}
	visited := map[T]bool{start: true}
	queue := []T{start}

	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]

		if v == end {
			return reconstruct(parent, start, end), nil
		}

		for _, next := range adjacency[v] {
			if visited[next] {
				continue
			}
			visited[next] = true
			parent[next] = v
			queue = append(queue, next)
		}
	}

	return nil, errUnreachable
}

// reconstruct walks parent links back from end to start.
func reconstruct[T comparable](parent map[T]T, start, end T) []Arc[T] {
	var path []Arc[T]
	for v := end; v != start; v = parent[v] {
		path = append(path, Arc[T]{From: parent[v], To: v})
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
