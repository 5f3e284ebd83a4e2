// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Monteerly tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/monteerly/internal/apperr"
	"github.com/starford/monteerly/internal/models"
	"github.com/starford/monteerly/internal/session"
	"github.com/starford/monteerly/internal/storage"
	"github.com/starford/monteerly/internal/studio"
	"github.com/starford/monteerly/internal/syncengine"
)

// awaitTimeout bounds how long a tool waits for the first live snapshot.
const awaitTimeout = 5 * time.Second

// Server wraps the MCP server with Monteerly tools. Tools act as whoever is
// signed in on the session client; the project and brief engines follow
// that identity and serve the list tools from their live caches.
type Server struct {
	mcp      *server.MCPServer
	svc      *studio.Service
	client   *session.Client
	files    storage.Provider
	projects *syncengine.Engine
	briefs   *syncengine.Engine
	stop     []func()
	logger   *slog.Logger
}

// New creates a new MCP server with all Monteerly tools registered. files
// may be nil, which leaves attach_file unregistered.
func New(ctx context.Context, svc *studio.Service, client *session.Client, live syncengine.Subscriber, files storage.Provider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:      svc,
		client:   client,
		files:    files,
		projects: syncengine.New(live, models.KindProject, logger),
		briefs:   syncengine.New(live, models.KindBrief, logger),
		logger:   logger,
	}
	s.stop = append(s.stop,
		s.projects.Follow(ctx, client, syncengine.Options{}),
		s.briefs.Follow(ctx, client, syncengine.Options{}),
	)

	s.mcp = server.NewMCPServer(
		"Monteerly",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_projects",
		mcp.WithDescription("List the signed-in user's projects, newest first, with totals."),
		mcp.WithString("status", mcp.Description("Optional status to filter by (draft, hiring, in_progress, review, completed)")),
	), s.listProjects)

	s.mcp.AddTool(mcp.NewTool("get_project",
		mcp.WithDescription("Get one project with the statuses it can move to next."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Project id")),
	), s.getProject)

	s.mcp.AddTool(mcp.NewTool("create_project",
		mcp.WithDescription("Create a draft project. Title, a positive budget and a deadline are required."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Project title")),
		mcp.WithString("description", mcp.Description("Free-text description")),
		mcp.WithNumber("budget", mcp.Required(), mcp.Description("Budget, greater than zero")),
		mcp.WithString("deadline", mcp.Required(), mcp.Description("Deadline as YYYY-MM-DD or RFC 3339")),
	), s.createProject)

	s.mcp.AddTool(mcp.NewTool("list_briefs",
		mcp.WithDescription("List the signed-in user's client briefs, newest first."),
		mcp.WithString("status", mcp.Description("Optional status to filter by (pending, accepted, in_progress, completed, rejected)")),
	), s.listBriefs)

	s.mcp.AddTool(mcp.NewTool("create_brief",
		mcp.WithDescription("Record a new pending client brief."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Brief title")),
		mcp.WithString("client_name", mcp.Description("Client name")),
		mcp.WithString("description", mcp.Description("Free-text description")),
		mcp.WithNumber("budget", mcp.Required(), mcp.Description("Budget, greater than zero")),
		mcp.WithString("deadline", mcp.Required(), mcp.Description("Deadline as YYYY-MM-DD or RFC 3339")),
	), s.createBrief)

	s.mcp.AddTool(mcp.NewTool("transition_status",
		mcp.WithDescription("Move a project or brief to its next status. Read the workflow first via "+
			"the get_workflow tool or the monteerly://workflow resource."),
		mcp.WithString("kind", mcp.Required(), mcp.Description("project or brief"), mcp.Enum("project", "brief")),
		mcp.WithString("id", mcp.Required(), mcp.Description("Record id")),
		mcp.WithString("status", mcp.Required(), mcp.Description("Target status")),
	), s.transitionStatus)

	s.mcp.AddTool(mcp.NewTool("dashboard_stats",
		mcp.WithDescription("Headline numbers: project totals by status, budget sum, active and recent projects, pending briefs."),
	), s.dashboardStats)

	s.mcp.AddTool(mcp.NewTool("get_workflow",
		mcp.WithDescription("Returns the project and brief status workflows."),
	), s.getWorkflow)

	if files != nil {
		s.mcp.AddTool(mcp.NewTool("attach_file",
			mcp.WithDescription("Attach an image or PDF to a project, from a base64 data URI or "+
				"downloaded from a public http(s) URL (max 10 MB)."),
			mcp.WithString("project_id", mcp.Required(), mcp.Description("Project id")),
			mcp.WithString("url", mcp.Required(), mcp.Description("data:<mime>;base64,<data> URI or http(s) URL")),
			mcp.WithString("filename", mcp.Description("Optional file name")),
		), s.attachFile)
	}

	s.mcp.AddResource(
		mcp.NewResource(workflowURI, "Status Workflow",
			mcp.WithResourceDescription("Legal status transitions for projects and briefs."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readWorkflowResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Close detaches the live engines from the session.
func (s *Server) Close() {
	for _, stop := range s.stop {
		stop()
	}
	s.stop = nil
}

func (s *Server) owner() (string, error) {
	identity := s.client.Current()
	if identity == nil {
		return "", apperr.ErrNotAuthenticated
	}
	return identity.UserID, nil
}

// toolError renders err for the model. Validation and auth failures carry
// their details; everything else is logged and reported tersely.
func (s *Server) toolError(err error) *mcp.CallToolResult {
	var (
		validErr *apperr.ValidationError
		authErr  *apperr.AuthError
	)
	switch {
	case errors.As(err, &validErr):
		out, _ := json.Marshal(validErr.Fields)
		return mcp.NewToolResultError("validation failed: " + string(out))
	case errors.As(err, &authErr):
		return mcp.NewToolResultError("authentication failed: " + authErr.Reason)
	case errors.Is(err, apperr.ErrNotAuthenticated),
		errors.Is(err, apperr.ErrNotFound),
		errors.Is(err, apperr.ErrIllegalTransition),
		errors.Is(err, storage.ErrInvalidName):
		return mcp.NewToolResultError(err.Error())
	}
	s.logger.Error("tool failed", slog.String("error", err.Error()))
	return mcp.NewToolResultError("internal error")
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

type listResult struct {
	Records    []models.Record       `json:"records"`
	Aggregates syncengine.Aggregates `json:"aggregates"`
}

func (s *Server) liveList(ctx context.Context, e *syncengine.Engine, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, awaitTimeout)
	defer cancel()
	view, err := e.Await(ctx)
	if err != nil {
		return s.toolError(err), nil
	}

	records := view.Records
	if status := req.GetString("status", ""); status != "" {
		records = view.WithStatus(models.Status(status))
	}
	return jsonResult(listResult{Records: records, Aggregates: view.Aggregates}), nil
}

func (s *Server) listProjects(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.liveList(ctx, s.projects, req)
}

func (s *Server) listBriefs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.liveList(ctx, s.briefs, req)
}

type recordResult struct {
	models.Record
	Next []models.Status `json:"next"`
}

func (s *Server) getProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	owner, err := s.owner()
	if err != nil {
		return s.toolError(err), nil
	}
	rec, err := s.svc.GetProject(ctx, owner, id)
	if err != nil {
		return s.toolError(err), nil
	}
	return jsonResult(recordResult{Record: rec, Next: nextOf(rec)}), nil
}

func (s *Server) createProject(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	budget, err := req.RequireFloat("budget")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	deadline, err := requireDeadline(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	owner, err := s.owner()
	if err != nil {
		return s.toolError(err), nil
	}

	rec, err := s.svc.CreateProject(ctx, owner, studio.ProjectInput{
		Title:       title,
		Description: req.GetString("description", ""),
		Budget:      budget,
		Deadline:    deadline,
	})
	if err != nil {
		return s.toolError(err), nil
	}
	return jsonResult(recordResult{Record: rec, Next: nextOf(rec)}), nil
}

func (s *Server) createBrief(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	budget, err := req.RequireFloat("budget")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	deadline, err := requireDeadline(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	owner, err := s.owner()
	if err != nil {
		return s.toolError(err), nil
	}

	rec, err := s.svc.CreateBrief(ctx, owner, studio.BriefInput{
		Title:       title,
		ClientName:  req.GetString("client_name", ""),
		Description: req.GetString("description", ""),
		Budget:      budget,
		Deadline:    deadline,
	})
	if err != nil {
		return s.toolError(err), nil
	}
	return jsonResult(recordResult{Record: rec, Next: nextOf(rec)}), nil
}

func (s *Server) transitionStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	kind, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	owner, err := s.owner()
	if err != nil {
		return s.toolError(err), nil
	}

	var rec models.Record
	switch models.Kind(kind) {
	case models.KindProject:
		rec, err = s.svc.TransitionProject(ctx, owner, id, models.Status(status))
	case models.KindBrief:
		rec, err = s.svc.TransitionBrief(ctx, owner, id, models.Status(status))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown kind: %s", kind)), nil
	}
	if err != nil {
		return s.toolError(err), nil
	}
	return jsonResult(recordResult{Record: rec, Next: nextOf(rec)}), nil
}

func (s *Server) dashboardStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner, err := s.owner()
	if err != nil {
		return s.toolError(err), nil
	}
	dash, err := s.svc.Dashboard(ctx, owner)
	if err != nil {
		return s.toolError(err), nil
	}
	return jsonResult(dash), nil
}

func requireDeadline(req mcp.CallToolRequest) (*time.Time, error) {
	raw, err := req.RequireString("deadline")
	if err != nil {
		return nil, err
	}
	deadline, err := studio.ParseDeadline(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid deadline %q: use YYYY-MM-DD or RFC 3339", raw)
	}
	return deadline, nil
}
