package graph

import (
	"github.com/clinical-kg-server/internal/domain"
)

// Resolve keeps one edge per (source, target, type) triple: the one with the
// highest confidence, or the earliest emitted on an exact tie. Survivors keep
// the position at which their triple was first seen, so Resolve applied to
// its own output returns it unchanged.
func Resolve(edges []domain.GraphEdge) []domain.GraphEdge {
	index := make(map[domain.EdgeKey]int, len(edges))
	resolved := make([]domain.GraphEdge, 0, len(edges))

	for _, edge := range edges {
		key := edge.Key()
		if i, seen := index[key]; seen {
			if edge.Confidence > resolved[i].Confidence {
				resolved[i] = edge
			}
			continue
		}
		index[key] = len(resolved)
		resolved = append(resolved, edge)
	}
	return resolved
}
