package mcp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// audited logs one audit entry per tool call. Patient identifiers are
// recorded as a truncated SHA-256 so audit trails can be correlated without
// holding the identifier itself.
func audited[A any](
	s *Server,
	tool string,
	patientID func(A) string,
	next func(context.Context, *mcp.CallToolRequest, A) (*mcp.CallToolResult, any, error),
) func(context.Context, *mcp.CallToolRequest, A) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, args A) (*mcp.CallToolResult, any, error) {
		start := time.Now()
		res, out, err := next(ctx, req, args)

		fields := logrus.Fields{
			"event":          "tool_call",
			"tool_name":      tool,
			"correlation_id": uuid.NewString(),
			"patient_hash":   hashIdentifier(patientID(args)),
			"duration_ms":    time.Since(start).Milliseconds(),
			"success":        err == nil && (res == nil || !res.IsError),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		s.logger.WithFields(fields).Info("MCP tool audit")
		return res, out, err
	}
}

func hashIdentifier(id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:8])
}
