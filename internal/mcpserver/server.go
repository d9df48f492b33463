// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes imagesorter tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/imagesorter/internal/apperr"
	"github.com/starford/imagesorter/internal/models"
	"github.com/starford/imagesorter/internal/rules"
)

// FrontMatterURI is the resource describing the keys the sorter reads.
const FrontMatterURI = "imagesorter://front-matter"

// RuleStore is the rule table as the tools edit it.
type RuleStore interface {
	Get() models.RuleSet
	Add(r models.Rule) (int, models.Rule, error)
	Update(i int, r models.Rule) (models.Rule, error)
	Remove(i int) error
}

// Processor runs the sorting pipeline for one note.
type Processor interface {
	Process(ctx context.Context, notePath string) (*models.TargetAsset, error)
}

// RunLister exposes recorded runs.
type RunLister interface {
	List(limit int, outcome string) ([]models.Run, error)
}

// FolderLister lists vault folders.
type FolderLister interface {
	ListFolders() ([]string, error)
}

// Server wraps the MCP server with imagesorter tools.
type Server struct {
	mcp     *server.MCPServer
	rules   RuleStore
	sorter  Processor
	runs    RunLister
	folders FolderLister
}

// New creates a new MCP server with all tools registered. runs may be nil
// when the journal is disabled.
func New(rs RuleStore, p Processor, runs RunLister, folders FolderLister, version string) *Server {
	s := &Server{rules: rs, sorter: p, runs: runs, folders: folders}

	s.mcp = server.NewMCPServer(
		"imagesorter",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_rules",
		mcp.WithDescription("List the domain→folder rules in match order. The first rule whose domain "+
			"equals or is a parent of a note's link host decides where its image is stored."),
	), s.listRules)

	s.mcp.AddTool(mcp.NewTool("add_rule",
		mcp.WithDescription("Append a domain→folder rule and save the rule file."),
		mcp.WithString("domain", mcp.Required(), mcp.Description("Bare host name, e.g. goodreads.com (no scheme, no www.)")),
		mcp.WithString("folder", mcp.Description("Vault-relative folder; empty for the vault root")),
	), s.addRule)

	s.mcp.AddTool(mcp.NewTool("update_rule",
		mcp.WithDescription("Overwrite the rule at an index and save the rule file."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based rule index from list_rules")),
		mcp.WithString("domain", mcp.Required(), mcp.Description("Bare host name")),
		mcp.WithString("folder", mcp.Description("Vault-relative folder; empty for the vault root")),
	), s.updateRule)

	s.mcp.AddTool(mcp.NewTool("remove_rule",
		mcp.WithDescription("Delete the rule at an index and save the rule file."),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based rule index from list_rules")),
	), s.removeRule)

	s.mcp.AddTool(mcp.NewTool("suggest_folders",
		mcp.WithDescription("Suggest existing vault folders matching a partial path."),
		mcp.WithString("query", mcp.Description("Partial folder path; empty lists all folders")),
	), s.suggestFolders)

	s.mcp.AddTool(mcp.NewTool("sort_note",
		mcp.WithDescription("Fetch the remote image of a note now, store it under its rule folder "+
			"and point the note's image key at the local copy. Read "+FrontMatterURI+" for the keys used."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. Clippings/article.md)")),
	), s.sortNote)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent sorter runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Max results (default 50)")),
		mcp.WithString("outcome", mcp.Description("Filter: sorted, skipped or failed")),
	), s.listRuns)

	// Resource: front-matter keys.
	s.mcp.AddResource(
		mcp.NewResource(FrontMatterURI, "Front Matter Keys",
			mcp.WithResourceDescription("Front-matter keys the sorter reads and the value it writes back."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFrontMatterResource,
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

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listRules(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.rules.Get())
}

func (s *Server) addRule(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	domain, err := req.RequireString("domain")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rule := models.Rule{Domain: domain, Folder: req.GetString("folder", "")}
	idx, added, err := s.rules.Add(rule)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added rule %d: %s -> %s", idx, added.Domain, folderLabel(added.Folder))), nil
}

func (s *Server) updateRule(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	domain, err := req.RequireString("domain")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r, err := s.rules.Update(idx, models.Rule{Domain: domain, Folder: req.GetString("folder", "")})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated rule %d: %s -> %s", idx, r.Domain, folderLabel(r.Folder))), nil
}

func (s *Server) removeRule(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	idx, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.rules.Remove(idx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed rule %d", idx)), nil
}

func (s *Server) suggestFolders(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folders, err := s.folders.ListFolders()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rules.SuggestFolders(folders, req.GetString("query", ""), 0))
}

type sortResult struct {
	Outcome string              `json:"outcome"`
	Asset   *models.TargetAsset `json:"asset,omitempty"`
	Reason  string              `json:"reason,omitempty"`
}

func (s *Server) sortNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	asset, err := s.sorter.Process(ctx, path)
	switch {
	case err == nil:
		return jsonResult(sortResult{Outcome: models.OutcomeSorted, Asset: asset})
	case apperr.KindOf(err) == apperr.KindNotApplicable:
		return jsonResult(sortResult{Outcome: models.OutcomeSkipped, Reason: err.Error()})
	default:
		return mcp.NewToolResultError(err.Error()), nil
	}
}

func (s *Server) listRuns(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.runs == nil {
		return mcp.NewToolResultError("run journal is disabled"), nil
	}
	runs, err := s.runs.List(req.GetInt("limit", 0), req.GetString("outcome", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(runs)
}

func (s *Server) readFrontMatterResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      FrontMatterURI,
			MIMEType: "text/markdown",
			Text:     FrontMatterGuide(),
		},
	}, nil
}

func folderLabel(folder string) string {
	if folder == "" {
		return "(vault root)"
	}
	return folder
}
