package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/clinical-kg-server/internal/domain"
)

const (
	ToolBuildKnowledgeGraph = "build_knowledge_graph"
	ToolGraphStatistics     = "get_graph_statistics"
)

// BuildGraphArgs are the inputs of build_knowledge_graph.
type BuildGraphArgs struct {
	PatientID string `json:"patient_id" jsonschema:"Identifier of the patient whose clinical facts are assembled"`
	Refresh   bool   `json:"refresh,omitempty" jsonschema:"Rebuild the graph even if a cached copy exists"`
}

// GraphStatisticsArgs are the inputs of get_graph_statistics.
type GraphStatisticsArgs struct {
	PatientID string `json:"patient_id" jsonschema:"Identifier of the patient"`
	Refresh   bool   `json:"refresh,omitempty" jsonschema:"Rebuild the graph even if a cached copy exists"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: ToolBuildKnowledgeGraph,
		Description: "Build the clinical knowledge graph for a patient. Returns canonical nodes " +
			"(conditions, medications, lab results, procedures, allergies), inferred relationships " +
			"with confidence and evidence, statistics and per-type clusters as JSON.",
	}, audited(s, ToolBuildKnowledgeGraph, func(a BuildGraphArgs) string { return a.PatientID }, s.handleBuildGraph))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        ToolGraphStatistics,
		Description: "Return only the statistics and clusters of a patient's clinical knowledge graph.",
	}, audited(s, ToolGraphStatistics, func(a GraphStatisticsArgs) string { return a.PatientID }, s.handleGraphStatistics))

	s.logger.WithField("tool_count", 2).Info("Registered MCP tools")
}

func (s *Server) handleBuildGraph(ctx context.Context, _ *mcp.CallToolRequest, args BuildGraphArgs) (*mcp.CallToolResult, any, error) {
	graph, err := s.graphs.GetGraph(ctx, args.PatientID, args.Refresh)
	if err != nil {
		return s.toolError(ToolBuildKnowledgeGraph, args.PatientID, err), nil, nil
	}
	return jsonResult(graph)
}

func (s *Server) handleGraphStatistics(ctx context.Context, _ *mcp.CallToolRequest, args GraphStatisticsArgs) (*mcp.CallToolResult, any, error) {
	summary, err := s.graphs.GetSummary(ctx, args.PatientID, args.Refresh)
	if err != nil {
		return s.toolError(ToolGraphStatistics, args.PatientID, err), nil, nil
	}
	return jsonResult(summary)
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// toolError reports failures inside the result so the client model can see
// them. Internal error text is only logged.
func (s *Server) toolError(tool, patientID string, err error) *mcp.CallToolResult {
	var apiErr *domain.APIError
	switch {
	case errors.Is(err, domain.ErrInvalidPatientID):
		apiErr = domain.NewAPIError(domain.ErrInvalidInput, "patient_id is required", "", "")
	case domain.IsDataAccessError(err):
		apiErr = domain.NewAPIError(domain.ErrDataAccess, "Failed to load clinical data", "", "")
	default:
		apiErr = domain.NewAPIError(domain.ErrInternalServer, "Internal server error", "", "")
	}

	// Tool logs sit next to the audit trail and carry the same hashed id.
	fields := logrus.Fields{
		"tool_name":    tool,
		"patient_hash": hashIdentifier(patientID),
		"error":        err,
	}
	var dae *domain.DataAccessError
	if errors.As(err, &dae) {
		fields["entity_type"] = dae.EntityType
		fields["error"] = dae.Err
	}
	s.logger.WithFields(fields).Warn("MCP tool call failed")

	data, _ := json.Marshal(apiErr)
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
