package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/clinical-kg-server/internal/domain"
)

const PromptReviewGraph = "review_patient_graph"

// lowConfidenceCutoff marks edges the review prompt asks the model to verify.
const lowConfidenceCutoff = 0.75

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        PromptReviewGraph,
		Title:       "Review Patient Knowledge Graph",
		Description: "Guided clinical review of a patient's knowledge graph: contraindications first, then weakly supported relationships, then gaps.",
		Arguments: []*mcp.PromptArgument{
			{Name: "patient_id", Description: "Identifier of the patient to review", Required: true},
			{Name: "focus", Description: "Optional clinical focus, e.g. a condition or medication name", Required: false},
		},
	}, s.handleReviewPrompt)
}

func (s *Server) handleReviewPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	patientID := strings.TrimSpace(args["patient_id"])
	if patientID == "" {
		return nil, fmt.Errorf("patient_id is required")
	}

	graph, err := s.graphs.GetGraph(ctx, patientID, false)
	if err != nil {
		return nil, fmt.Errorf("building graph for review: %w", err)
	}

	payload, err := json.Marshal(graph)
	if err != nil {
		return nil, err
	}

	return &mcp.GetPromptResult{
		Description: "Clinical knowledge graph review for patient " + patientID,
		Messages: []*mcp.PromptMessage{
			{
				Role:    mcp.Role("assistant"),
				Content: &mcp.TextContent{Text: "# Knowledge graph\n\n```json\n" + string(payload) + "\n```"},
			},
			{
				Role:    mcp.Role("user"),
				Content: &mcp.TextContent{Text: reviewInstructions(graph, args["focus"])},
			},
		},
	}, nil
}

func reviewInstructions(g *domain.KnowledgeGraph, focus string) string {
	var b strings.Builder
	b.WriteString("Review the knowledge graph above as a clinician would.\n\n")

	if g.IsEmpty() {
		b.WriteString("The graph is empty: no clinical facts have been extracted for this patient yet. ")
		b.WriteString("Say so and suggest which documents should be processed.\n")
		return b.String()
	}

	contraindications := edgesOf(g, func(e domain.GraphEdge) bool { return e.Type == domain.RelContraindicatedWith })
	weak := edgesOf(g, func(e domain.GraphEdge) bool { return e.Confidence < lowConfidenceCutoff })

	b.WriteString("1. Contraindications")
	if len(contraindications) == 0 {
		b.WriteString(": none were inferred. Confirm whether that is plausible for the active medications.\n")
	} else {
		b.WriteString(". Assess each one and state whether it requires action:\n")
		writeEdgeList(&b, g, contraindications)
	}

	b.WriteString("2. Weakly supported relationships (confidence below ")
	fmt.Fprintf(&b, "%.2f", lowConfidenceCutoff)
	b.WriteString(")")
	if len(weak) == 0 {
		b.WriteString(": none.\n")
	} else {
		b.WriteString(". For each, say whether the evidence supports it:\n")
		writeEdgeList(&b, g, weak)
	}

	b.WriteString("3. Gaps: list medications with no treated condition and abnormal labs with no linked condition.\n")

	if focus = strings.TrimSpace(focus); focus != "" {
		fmt.Fprintf(&b, "\nConcentrate on anything related to %q.\n", focus)
	}
	return b.String()
}

func edgesOf(g *domain.KnowledgeGraph, keep func(domain.GraphEdge) bool) []domain.GraphEdge {
	var out []domain.GraphEdge
	for _, e := range g.Edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func writeEdgeList(b *strings.Builder, g *domain.KnowledgeGraph, edges []domain.GraphEdge) {
	labels := make(map[string]string, len(g.Nodes))
	for _, n := range g.Nodes {
		labels[n.ID] = n.Label
	}
	for _, e := range edges {
		fmt.Fprintf(b, "   - %s %s %s (%.2f): %s\n", labels[e.Source], e.Type, labels[e.Target], e.Confidence, e.Evidence)
	}
}
