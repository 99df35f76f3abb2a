package graph

import (
	"math"

	"github.com/clinical-kg-server/internal/domain"
)

// DefaultHighConfidenceThreshold is the confidence at or above which an
// edge counts as high confidence.
const DefaultHighConfidenceThreshold = 0.8

// Summarize computes graph statistics and groups node ids by entity type,
// preserving node order within each cluster.
func Summarize(nodes []domain.GraphNode, edges []domain.GraphEdge, highConfidence float64) (domain.GraphStatistics, map[domain.EntityType][]string) {
	stats := domain.GraphStatistics{
		TotalNodes:        len(nodes),
		TotalEdges:        len(edges),
		NodeTypes:         make(map[domain.EntityType]int),
		RelationshipTypes: make(map[domain.RelationshipType]int),
	}
	clusters := make(map[domain.EntityType][]string)

	for _, n := range nodes {
		stats.NodeTypes[n.Type]++
		clusters[n.Type] = append(clusters[n.Type], n.ID)
	}

	var sum float64
	for _, e := range edges {
		stats.RelationshipTypes[e.Type]++
		sum += e.Confidence
		if e.Confidence >= highConfidence {
			stats.HighConfidence++
		}
	}
	if len(edges) > 0 {
		stats.AvgConfidence = math.Round(sum/float64(len(edges))*100) / 100
	}

	return stats, clusters
}
