package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/transition"
)

const workflowURI = "monteerly://workflow"

// Workflow renders the status tables as markdown for LLM clients.
func Workflow() string {
	var b strings.Builder
	b.WriteString("# Monteerly Status Workflow\n\n")
	b.WriteString("Records only move along the transitions listed here. Any other move is rejected ")
	b.WriteString("and leaves the record unchanged. Terminal statuses have no outgoing transitions.\n")

	for _, kind := range []models.Kind{models.KindProject, models.KindBrief} {
		fmt.Fprintf(&b, "\n## %s\n\n", kind)
		fmt.Fprintf(&b, "New records start as `%s`.\n\n", kind.InitialStatus())
		for _, status := range kind.Statuses() {
			next := transition.LegalNext(kind, status)
			if len(next) == 0 {
				fmt.Fprintf(&b, "- `%s`: terminal\n", status)
				continue
			}
			quoted := make([]string, len(next))
			for i, n := range next {
				quoted[i] = "`" + string(n) + "`"
			}
			fmt.Fprintf(&b, "- `%s` → %s\n", status, strings.Join(quoted, ", "))
		}
	}

	b.WriteString("\n## Projects\n\n")
	b.WriteString("- `budget` must be greater than zero; `deadline` is required.\n")
	b.WriteString("- `escrowStatus` starts as `unfunded` and is not changed by status transitions.\n")
	return b.String()
}

func nextOf(rec models.Record) []models.Status {
	next := transition.LegalNext(rec.Kind, rec.Status)
	if next == nil {
		next = []models.Status{}
	}
	return next
}

func (s *Server) getWorkflow(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(Workflow()), nil
}

func (s *Server) readWorkflowResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      workflowURI,
			MIMEType: "text/markdown",
			Text:     Workflow(),
		},
	}, nil
}
