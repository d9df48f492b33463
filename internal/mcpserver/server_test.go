package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/imagesorter/internal/fetcher"
	"github.com/starford/imagesorter/internal/journal"
	"github.com/starford/imagesorter/internal/models"
	"github.com/starford/imagesorter/internal/rules"
	"github.com/starford/imagesorter/internal/sorter"
	"github.com/starford/imagesorter/internal/testutil"
)

type testEnv struct {
	srv      *Server
	vaultDir string
	rules    *rules.Store
	journal  *journal.DB
	imageURL string
}

func testServer(t *testing.T) *testEnv {
	t.Helper()

	vaultDir, store := testutil.TestVault(t)
	db := testutil.TestJournal(t)
	images := testutil.ImageServer(t)

	rs, err := rules.NewMemory(models.RuleSet{{Domain: "goodreads.com", Folder: "Books"}})
	if err != nil {
		t.Fatal(err)
	}
	s := sorter.New(store, rs, fetcher.New(fetcher.WithClient(images.Client())), testutil.Logger(),
		sorter.Config{}, sorter.WithRecorder(db))

	return &testEnv{
		srv:      New(rs, s, db, store, "test"),
		vaultDir: vaultDir,
		rules:    rs,
		journal:  db,
		imageURL: images.URL,
	}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_rules":
		result, err = srv.listRules(ctx, req)
	case "add_rule":
		result, err = srv.addRule(ctx, req)
	case "update_rule":
		result, err = srv.updateRule(ctx, req)
	case "remove_rule":
		result, err = srv.removeRule(ctx, req)
	case "suggest_folders":
		result, err = srv.suggestFolders(ctx, req)
	case "sort_note":
		result, err = srv.sortNote(ctx, req)
	case "list_runs":
		result, err = srv.listRuns(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListRules(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "list_rules", nil)
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	var got models.RuleSet
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Domain != "goodreads.com" || got[0].Folder != "Books" {
		t.Errorf("rules = %+v", got)
	}
}

func TestAddUpdateRemoveRule(t *testing.T) {
	env := testServer(t)

	r := callTool(t, env.srv, "add_rule", map[string]interface{}{
		"domain": "WWW.IMDb.com",
		"folder": "Movies/",
	})
	if r.IsError {
		t.Fatalf("add_rule: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "added rule 1: imdb.com -> Movies") {
		t.Errorf("unexpected text: %s", resultText(r))
	}

	r = callTool(t, env.srv, "update_rule", map[string]interface{}{
		"index":  float64(1),
		"domain": "imdb.com",
	})
	if r.IsError {
		t.Fatalf("update_rule: %s", resultText(r))
	}
	if !strings.Contains(resultText(r), "(vault root)") {
		t.Errorf("unexpected text: %s", resultText(r))
	}
	if got := env.rules.Get()[1].Folder; got != "" {
		t.Errorf("folder = %q, want empty", got)
	}

	r = callTool(t, env.srv, "remove_rule", map[string]interface{}{"index": float64(0)})
	if r.IsError {
		t.Fatalf("remove_rule: %s", resultText(r))
	}
	got := env.rules.Get()
	if len(got) != 1 || got[0].Domain != "imdb.com" {
		t.Errorf("rules after remove = %+v", got)
	}
}

func TestRuleTools_Errors(t *testing.T) {
	env := testServer(t)

	tests := []struct {
		tool string
		args map[string]interface{}
	}{
		{"add_rule", map[string]interface{}{}},
		{"add_rule", map[string]interface{}{"domain": "https://x.com/path"}},
		{"add_rule", map[string]interface{}{"domain": "x.com", "folder": "../outside"}},
		{"update_rule", map[string]interface{}{"domain": "x.com"}},
		{"update_rule", map[string]interface{}{"index": float64(7), "domain": "x.com"}},
		{"remove_rule", map[string]interface{}{}},
		{"remove_rule", map[string]interface{}{"index": float64(7)}},
	}
	for _, tt := range tests {
		r := callTool(t, env.srv, tt.tool, tt.args)
		if !r.IsError {
			t.Errorf("%s %v: expected error, got %s", tt.tool, tt.args, resultText(r))
		}
	}
	if n := len(env.rules.Get()); n != 1 {
		t.Errorf("rule count = %d, want 1", n)
	}
}

func TestSuggestFolders(t *testing.T) {
	env := testServer(t)
	testutil.WriteFile(t, env.vaultDir, "Library/Books/a.md", "x")
	testutil.WriteFile(t, env.vaultDir, "Media/Movies/b.md", "x")
	testutil.WriteFile(t, env.vaultDir, ".obsidian/app.json", "{}")

	r := callTool(t, env.srv, "suggest_folders", map[string]interface{}{"query": "book"})
	if r.IsError {
		t.Fatalf("suggest_folders: %s", resultText(r))
	}
	var got []rules.Suggestion
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) == 0 || got[0].Path != "Library/Books" {
		t.Errorf("suggestions = %+v", got)
	}
	for _, s := range got {
		if strings.HasPrefix(s.Path, ".obsidian") {
			t.Errorf("hidden folder suggested: %s", s.Path)
		}
	}
}

func TestSortNote(t *testing.T) {
	env := testServer(t)
	testutil.WriteFile(t, env.vaultDir, "Dune.md", "---\n"+
		"title: Dune\n"+
		"author: Frank Herbert\n"+
		"Link: https://www.goodreads.com/book/show/1\n"+
		"image: "+env.imageURL+"/covers/dune.png\n"+
		"---\nBody\n")

	r := callTool(t, env.srv, "sort_note", map[string]interface{}{"path": "Dune.md"})
	if r.IsError {
		t.Fatalf("sort_note: %s", resultText(r))
	}
	var got sortResult
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Outcome != models.OutcomeSorted || got.Asset == nil || got.Asset.FullPath != "Books/Dune-Frank Herbert.png" {
		t.Errorf("result = %+v", got)
	}
	if data := testutil.ReadFile(t, env.vaultDir, "Books/Dune-Frank Herbert.png"); data != testutil.PNG {
		t.Errorf("stored image = %q", data)
	}
	if note := testutil.ReadFile(t, env.vaultDir, "Dune.md"); !strings.Contains(note, "[[Dune-Frank Herbert.png]]") {
		t.Errorf("note not rewritten:\n%s", note)
	}

	// A second run sees the local reference and skips.
	r = callTool(t, env.srv, "sort_note", map[string]interface{}{"path": "Dune.md"})
	if r.IsError {
		t.Fatalf("second sort_note: %s", resultText(r))
	}
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Outcome != models.OutcomeSkipped || got.Reason == "" {
		t.Errorf("second result = %+v", got)
	}
}

func TestSortNote_Failures(t *testing.T) {
	env := testServer(t)
	testutil.WriteFile(t, env.vaultDir, "Broken.md", "---\n"+
		"title: Broken\n"+
		"image: "+env.imageURL+"/missing/x.png\n"+
		"---\n")

	for _, args := range []map[string]interface{}{
		{},
		{"path": "nope.md"},
		{"path": "Broken.md"},
	} {
		r := callTool(t, env.srv, "sort_note", args)
		if !r.IsError {
			t.Errorf("sort_note %v: expected error, got %s", args, resultText(r))
		}
	}
}

func TestListRuns(t *testing.T) {
	env := testServer(t)
	testutil.WriteFile(t, env.vaultDir, "A.md", "---\ntitle: A\nimage: "+env.imageURL+"/a.png\n---\n")
	testutil.WriteFile(t, env.vaultDir, "B.md", "---\ntitle: B\n---\n")
	callTool(t, env.srv, "sort_note", map[string]interface{}{"path": "A.md"})
	callTool(t, env.srv, "sort_note", map[string]interface{}{"path": "B.md"})

	r := callTool(t, env.srv, "list_runs", map[string]interface{}{"outcome": "sorted"})
	if r.IsError {
		t.Fatalf("list_runs: %s", resultText(r))
	}
	var runs []models.Run
	if err := json.Unmarshal([]byte(resultText(r)), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].NotePath != "A.md" {
		t.Errorf("runs = %+v", runs)
	}

	r = callTool(t, env.srv, "list_runs", map[string]interface{}{"limit": float64(10)})
	if err := json.Unmarshal([]byte(resultText(r)), &runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 2 {
		t.Errorf("all runs = %d, want 2", len(runs))
	}
}

func TestListRuns_JournalDisabled(t *testing.T) {
	_, store := testutil.TestVault(t)
	rs, _ := rules.NewMemory(nil)
	srv := New(rs, nil, nil, store, "test")

	r := callTool(t, srv, "list_runs", nil)
	if !r.IsError {
		t.Errorf("expected error, got %s", resultText(r))
	}
}

func TestFrontMatterResource(t *testing.T) {
	env := testServer(t)

	contents, err := env.srv.readFrontMatterResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("unexpected content type %T", contents[0])
	}
	for _, want := range []string{"`image`", "`Link`", "`cover`", "[[file name]]"} {
		if !strings.Contains(tc.Text, want) {
			t.Errorf("guide missing %q", want)
		}
	}
}
